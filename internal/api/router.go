package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/opencohort/outpost/internal/api/handlers"
	"github.com/opencohort/outpost/internal/auth"
	"github.com/opencohort/outpost/internal/config"
	"github.com/opencohort/outpost/internal/notify"
	"github.com/opencohort/outpost/internal/releases"
	"github.com/opencohort/outpost/internal/store"
)

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *gorm.DB, svc *releases.Service, st *store.Store, notifier notify.Notifier) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware())

	authenticator := auth.New(db, cfg.Auth.JWTSecret)
	releaseHandler := handlers.NewReleaseHandler(db, svc, st, notifier)

	v2 := router.Group("/api/v2")
	v2.Use(authenticator.Identify())
	{
		v2.GET("/health", handlers.HealthCheck)
		v2.POST("/auth/login", handlers.Login(authenticator, db))

		// The /releases subtree mixes static segments (file, notifications)
		// with the :release_id wildcard, which gin's router tree cannot
		// express directly. The wildcard routes dispatch on the captured
		// segment instead.
		v2.GET("/releases/:release_id", releaseHandler.GetRelease)
		v2.POST("/releases/:release_id", dispatchSegment("release_id", "notifications",
			releaseHandler.Notify, releaseHandler.UploadFile))
		v2.GET("/releases/:release_id/:action", releaseHandler.GetReleaseSub)
		v2.DELETE("/releases/:release_id/:action", releaseHandler.DeleteReleaseSub)

		v2.GET("/workspaces/:workspace_name/releases", releaseHandler.WorkspaceReleases)
		v2.POST("/workspaces/:workspace_name/releases", releaseHandler.CreateRelease)
		v2.GET("/workspaces/:workspace_name/status", releaseHandler.WorkspaceStatus)
		v2.POST("/workspaces/:workspace_name/snapshots", releaseHandler.CreateSnapshot)
		v2.GET("/workspaces/:workspace_name/snapshots/:snapshot_id", releaseHandler.GetSnapshot)
		v2.POST("/workspaces/:workspace_name/snapshots/:snapshot_id/publish", releaseHandler.PublishSnapshot)

		v2.POST("/backends/:backend_slug/token", releaseHandler.RotateBackendToken)
	}

	slog.Info("API router initialized", "mode", cfg.Server.Mode)
	return router
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Disposition, Authorization, OS-User")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// dispatchSegment picks between two handlers depending on whether the named
// path param captured a known static segment.
func dispatchSegment(param, value string, match, otherwise gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Param(param) == value {
			match(c)
			return
		}
		otherwise(c)
	}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		slog.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}
