package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/playmatatu/duel/internal/api"
	"github.com/playmatatu/duel/internal/api/handlers"
	"github.com/playmatatu/duel/internal/auth"
	"github.com/playmatatu/duel/internal/config"
	"github.com/playmatatu/duel/internal/database"
	"github.com/playmatatu/duel/internal/game"
	"github.com/playmatatu/duel/internal/matchevents"
	"github.com/playmatatu/duel/internal/migrations"
	"github.com/playmatatu/duel/internal/redis"
	"github.com/playmatatu/duel/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// eventBus is the lifecycle event backend selected by EVENTS_BACKEND.
type eventBus struct {
	publisher game.Publisher
	snapshots handlers.SnapshotSource
	subscribe func(ctx context.Context, fn func(game.LifecycleEvent)) error
	close     func()
}

func openEventBus(ctx context.Context, cfg *config.Config) (*eventBus, error) {
	switch cfg.EventsBackend {
	case "redis":
		rdb, err := redis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		pub := matchevents.NewRedisPublisher(rdb)
		return &eventBus{
			publisher: pub,
			snapshots: pub,
			subscribe: pub.Subscribe,
			close:     func() { rdb.Close() },
		}, nil
	case "nats":
		pub, err := matchevents.NewNATSPublisher(matchevents.DefaultNATSConfig(cfg.NATSURL))
		if err != nil {
			return nil, err
		}
		return &eventBus{publisher: pub, subscribe: pub.Subscribe, close: pub.Close}, nil
	default:
		return &eventBus{close: func() {}}, nil
	}
}

func runServe(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		log.Info().Str("dir", cfg.MigrationsDir).Msg("running migrations on startup")
		if err := migrations.Run(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("migrate on start: %w", err)
		}
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	bus, err := openEventBus(ctx, cfg)
	if err != nil {
		return err
	}
	defer bus.close()

	profiles := store.NewPostgres(db, store.Defaults{
		Coins:  cfg.StartingCoins,
		Gems:   cfg.StartingGems,
		Rating: cfg.StartingRating,
	})

	manager, err := game.NewManager(cfg.GameSettings(), profiles, bus.publisher, nil)
	if err != nil {
		return err
	}

	// The manager outlives the listener so in-flight settlements can finish.
	managerCtx, stopManager := context.WithCancel(context.Background())
	managerDone := make(chan error, 1)
	go func() { managerDone <- manager.Run(managerCtx) }()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, api.Deps{
		Config:    cfg,
		Verifier:  auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Engine:    manager,
		Store:     profiles,
		Snapshots: bus.snapshots,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("events", cfg.EventsBackend).Msg("duel server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var listenErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case listenErr = <-serveErr:
		if listenErr != nil {
			log.Error().Err(listenErr).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}

	stopManager()
	select {
	case err := <-managerDone:
		return errors.Join(listenErr, err)
	case <-shutdownCtx.Done():
		return errors.Join(listenErr, errors.New("match manager did not stop in time"))
	}
}
