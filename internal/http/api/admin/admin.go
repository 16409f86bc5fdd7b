package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vitalscope/vitalscope-business/internal/config"
	"github.com/vitalscope/vitalscope-business/internal/http/api/admin/handlers"
	"github.com/vitalscope/vitalscope-business/internal/reconcile"
	"github.com/vitalscope/vitalscope-business/internal/security"
	"github.com/vitalscope/vitalscope-business/internal/subscription"
)

// RegisterAdminRoutes registers the operator endpoints.
func RegisterAdminRoutes(r *gin.Engine, registry *subscription.Registry, syncer *reconcile.Syncer, authCfg config.AuthConfig) {
	if r == nil || registry == nil {
		return
	}

	group := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(authCfg)
	group.POST("/login", authHandler.Login)

	authed := group.Group("")
	authed.Use(adminAuthMiddleware(authCfg.JWTSecret))

	subHandler := handlers.NewSubscriptionHandler(registry, syncer)
	authed.GET("/users/:userID/subscription", subHandler.Get)
	authed.PUT("/users/:userID/tier", subHandler.OverrideTier)
	authed.POST("/users/:userID/reconcile", subHandler.Reconcile)
}

// adminAuthMiddleware validates admin JWTs.
func adminAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if authHeader == "" || token == authHeader || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, errJWT := security.ParseAdminToken(secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		// A user token decodes under the same secret but carries no admin ID.
		if claims.AdminID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not an admin token"})
			return
		}
		c.Set("adminID", claims.AdminID)
		c.Next()
	}
}
