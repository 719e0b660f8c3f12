package api

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/killallgit/voxlog/api/health"
	"github.com/killallgit/voxlog/api/sessions"
	"github.com/killallgit/voxlog/api/types"
	"github.com/killallgit/voxlog/api/version"
	_ "github.com/killallgit/voxlog/docs/swagger"
)

// RouteOptions carries the settings route registration needs
type RouteOptions struct {
	APIToken  string
	RateLimit int
}

// RegisterRoutes registers all API routes
func RegisterRoutes(engine *gin.Engine, deps *types.Dependencies, opts RouteOptions, rateLimiters *sync.Map, cleanupStop chan struct{}, cleanupInitialized *sync.Once) error {
	if deps == nil || deps.Sessions == nil {
		return fmt.Errorf("session reader is required")
	}

	// Register public routes (no rate limiting)
	health.RegisterRoutes(engine, deps)
	version.RegisterRoutes(engine, deps)

	// Register Swagger documentation route
	engine.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/docs/index.html")
	})
	docsGroup := engine.Group("/docs")
	docsGroup.GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Setup 404 handler
	engine.NoRoute(NotFoundHandler())

	rps := opts.RateLimit
	if rps <= 0 {
		rps = 10
	}

	v1 := engine.Group("/api/v1")
	v1.Use(BearerToken(opts.APIToken))
	v1.Use(PerClientRateLimit(rateLimiters, cleanupStop, cleanupInitialized, rps, rps*2))

	sessions.RegisterRoutes(v1.Group("/sessions"), deps)

	return nil
}

// NotFoundHandler handles 404 errors
func NotFoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"status":  "error",
			"message": "The requested endpoint was not found",
			"path":    c.Request.URL.Path,
		})
	}
}
