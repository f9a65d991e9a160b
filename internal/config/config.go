package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/playmatatu/duel/internal/game"
)

type Config struct {
	// Environment
	Environment string `env:"APP_ENV" envDefault:"development"`

	// Database
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/duel?sslmode=disable"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"false"`
	MigrationsDir  string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	// Redis / NATS
	RedisURL      string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	NATSURL       string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	EventsBackend string `env:"EVENTS_BACKEND" envDefault:"redis"`

	// Server
	Port        string `env:"APP_PORT" envDefault:"8080"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	// Security
	JWTSecret string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"duel"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	// Matchmaking
	CasualStakes []int64 `env:"CASUAL_STAKES" envSeparator:"," envDefault:"10,50,100,500"`

	// Game timing
	WinThreshold      int           `env:"WIN_THRESHOLD" envDefault:"3"`
	CountdownSeconds  int           `env:"COUNTDOWN_SECONDS" envDefault:"3"`
	CountdownTick     time.Duration `env:"COUNTDOWN_TICK" envDefault:"1s"`
	MatchStartDelay   time.Duration `env:"MATCH_START_DELAY" envDefault:"1s"`
	RoundResultDelay  time.Duration `env:"ROUND_RESULT_DELAY" envDefault:"3s"`
	RematchResetDelay time.Duration `env:"REMATCH_RESET_DELAY" envDefault:"2s"`
	TeardownDelay     time.Duration `env:"TEARDOWN_DELAY" envDefault:"2s"`
	RematchWindow     time.Duration `env:"REMATCH_WINDOW" envDefault:"60s"`

	// Settlement
	PrizeMultiplier     int64         `env:"PRIZE_MULTIPLIER" envDefault:"2"`
	RatingWinDelta      int           `env:"RATING_WIN_DELTA" envDefault:"25"`
	RatingLossDelta     int           `env:"RATING_LOSS_DELTA" envDefault:"20"`
	ForfeitOnDisconnect bool          `env:"FORFEIT_ON_DISCONNECT" envDefault:"true"`
	PersistTimeout      time.Duration `env:"PERSIST_TIMEOUT" envDefault:"5s"`

	// New profile defaults
	StartingCoins  int64 `env:"STARTING_COINS" envDefault:"1000"`
	StartingGems   int64 `env:"STARTING_GEMS" envDefault:"100"`
	StartingRating int   `env:"STARTING_RATING" envDefault:"1000"`
}

// Load reads .env (when present) and the process environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to read .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the game loop cannot run with.
func (c *Config) Validate() error {
	if c.WinThreshold < 1 {
		return fmt.Errorf("WIN_THRESHOLD must be positive, got %d", c.WinThreshold)
	}
	if c.CountdownTick <= 0 {
		return fmt.Errorf("COUNTDOWN_TICK must be positive, got %s", c.CountdownTick)
	}
	if c.CountdownSeconds < 0 {
		return fmt.Errorf("COUNTDOWN_SECONDS must not be negative, got %d", c.CountdownSeconds)
	}
	if len(c.CasualStakes) == 0 {
		return fmt.Errorf("CASUAL_STAKES must list at least one stake")
	}
	for _, s := range c.CasualStakes {
		if s <= 0 {
			return fmt.Errorf("CASUAL_STAKES entries must be positive, got %d", s)
		}
	}
	switch c.EventsBackend {
	case "redis", "nats", "none":
	default:
		return fmt.Errorf("EVENTS_BACKEND must be redis, nats or none, got %q", c.EventsBackend)
	}
	if c.Environment == "production" && c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

// GameSettings projects the game-related configuration for the match manager.
func (c *Config) GameSettings() game.Settings {
	return game.Settings{
		CasualStakes:        c.CasualStakes,
		RankedBands:         game.DefaultRankedBands(),
		WinThreshold:        c.WinThreshold,
		CountdownSeconds:    c.CountdownSeconds,
		CountdownTick:       c.CountdownTick,
		MatchStartDelay:     c.MatchStartDelay,
		RoundResultDelay:    c.RoundResultDelay,
		RematchResetDelay:   c.RematchResetDelay,
		TeardownDelay:       c.TeardownDelay,
		RematchWindow:       c.RematchWindow,
		PrizeMultiplier:     c.PrizeMultiplier,
		RatingWinDelta:      c.RatingWinDelta,
		RatingLossDelta:     c.RatingLossDelta,
		ForfeitOnDisconnect: c.ForfeitOnDisconnect,
		PersistTimeout:      c.PersistTimeout,
	}
}
