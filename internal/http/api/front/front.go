package front

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vitalscope/vitalscope-business/internal/config"
	"github.com/vitalscope/vitalscope-business/internal/entitlement"
	"github.com/vitalscope/vitalscope-business/internal/http/api/front/handlers"
	"github.com/vitalscope/vitalscope-business/internal/security"
)

// RegisterFrontRoutes registers the authenticated user-facing routes.
func RegisterFrontRoutes(r *gin.Engine, engine *entitlement.Engine, authCfg config.AuthConfig) {
	if r == nil || engine == nil {
		return
	}

	front := r.Group("/v0/front")
	front.Use(userAuthMiddleware(authCfg.JWTSecret))

	entitlementHandler := handlers.NewEntitlementHandler(engine)
	front.GET("/tier", entitlementHandler.TierInfo)
	front.GET("/entitlements/report", entitlementHandler.CheckReport)
	front.GET("/entitlements/chat/:reportID", entitlementHandler.CheckChat)
	front.GET("/entitlements/snapshot", entitlementHandler.CheckSnapshot)
	front.GET("/entitlements/data-range", entitlementHandler.DataRange)
	front.POST("/entitlements/model", entitlementHandler.ResolveModel)
	front.POST("/entitlements/report/consume", entitlementHandler.ConsumeReport)
	front.POST("/entitlements/chat/:reportID/consume", entitlementHandler.ConsumeChat)
	front.POST("/entitlements/snapshot/consume", entitlementHandler.ConsumeSnapshot)
}

// userAuthMiddleware validates user JWTs and loads the user ID into context.
func userAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseToken(secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if claims.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token carries no user"})
			return
		}

		c.Set("userID", claims.UserID)
		c.Next()
	}
}
