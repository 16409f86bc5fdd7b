// Package http assembles the gin router for the service.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/vitalscope/vitalscope-business/internal/config"
	"github.com/vitalscope/vitalscope-business/internal/entitlement"
	"github.com/vitalscope/vitalscope-business/internal/http/api/admin"
	"github.com/vitalscope/vitalscope-business/internal/http/api/front"
	"github.com/vitalscope/vitalscope-business/internal/reconcile"
	"github.com/vitalscope/vitalscope-business/internal/subscription"
	"github.com/vitalscope/vitalscope-business/internal/webhook"
)

// Deps carries the wired components the router exposes.
type Deps struct {
	DB       *gorm.DB
	Engine   *entitlement.Engine
	Registry *subscription.Registry
	Syncer   *reconcile.Syncer
	Webhook  *webhook.Handler
	Auth     config.AuthConfig
}

// BuildRouter registers all routes and returns the engine.
func BuildRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", healthz(deps.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/v0/billing/webhook", deps.Webhook.Receive)

	front.RegisterFrontRoutes(r, deps.Engine, deps.Auth)
	admin.RegisterAdminRoutes(r, deps.Registry, deps.Syncer, deps.Auth)

	return r
}

// requestLogger logs one line per request at debug level, errors at warn.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	}
}

// healthz checks database connectivity and returns status.
func healthz(conn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := conn.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
			return
		}
		if errPing := sqlDB.PingContext(c.Request.Context()); errPing != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
