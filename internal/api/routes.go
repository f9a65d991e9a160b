package api

import (
	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duel/internal/api/handlers"
	"github.com/playmatatu/duel/internal/config"
	"github.com/playmatatu/duel/internal/metrics"
	"github.com/playmatatu/duel/internal/middleware"
	"github.com/playmatatu/duel/internal/ws"
)

// Engine is what the routes need from the match manager.
type Engine interface {
	ws.Engine
	handlers.StatusSource
}

// Store is what the routes need from persistence.
type Store interface {
	handlers.ProfileStore
	handlers.MatchHistory
}

// Deps carries the collaborators routes are wired to. Snapshots is nil when
// lifecycle events do not go through Redis.
type Deps struct {
	Config    *config.Config
	Verifier  ws.TokenVerifier
	Engine    Engine
	Store     Store
	Snapshots handlers.SnapshotSource
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, d Deps) {
	cfg := d.Config
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg))

	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
	}

	health := handlers.HealthCheck(d.Engine)
	router.GET("/health", health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	bands := cfg.GameSettings().RankedBands
	gate := ws.NewGate(d.Verifier, d.Engine, middleware.AllowedOrigins(cfg))

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", health)

		// The gate authenticates itself so it can answer before upgrading.
		v1.GET("/ws", gate.Handle)

		authed := v1.Group("", middleware.RequireIdentity(d.Verifier))
		{
			authed.GET("/me", handlers.GetProfile(d.Store, bands))
			authed.PUT("/me", handlers.UpdateProfile(d.Store, bands))
			authed.GET("/me/matches", handlers.ListMatches(d.Store))
			authed.GET("/queue/status", handlers.GetQueueStatus(d.Engine))
			if d.Snapshots != nil {
				authed.GET("/sessions/:id", handlers.GetSessionSnapshot(d.Snapshots))
			}
		}
	}
}
