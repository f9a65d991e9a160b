package game

import (
	"context"
	"time"

	"github.com/playmatatu/duel/internal/models"
)

// Store is the persistence the manager depends on. Calls are made from
// worker goroutines, never from the loop itself.
type Store interface {
	// GetProfile returns the profile for identity, creating it with starting
	// balances when absent.
	GetProfile(ctx context.Context, identity string) (*models.Profile, error)
	// DebitStakes takes amount from every identity atomically. A short
	// balance fails the whole debit with *InsufficientFundsError.
	DebitStakes(ctx context.Context, currency Currency, amount int64, identities ...string) error
	RefundStakes(ctx context.Context, currency Currency, amount int64, identities ...string) error
	ApplySettlement(ctx context.Context, delta ProfileDelta) error
	AppendMatchRecord(ctx context.Context, rec models.MatchRecord) error
	UpdateProfile(ctx context.Context, identity, displayName string, birthDate time.Time) (*models.Profile, error)
}

// ProfileDelta is one player's share of a settlement.
type ProfileDelta struct {
	Identity    string
	Currency    Currency
	Credit      int64
	RatingDelta int
	Won         bool
}

// Publisher fans lifecycle events out to other processes. Failures are
// logged and never affect the match.
type Publisher interface {
	Publish(ctx context.Context, ev LifecycleEvent) error
}

// Lifecycle event types.
const (
	EventSessionStarted = "session_started"
	EventRoundResolved  = "round_resolved"
	EventMatchCompleted = "match_completed"
	EventRematchStarted = "rematch_started"
	EventSessionClosed  = "session_closed"
)

type LifecycleEvent struct {
	Type       string          `json:"type"`
	SessionID  string          `json:"session_id"`
	Snapshot   SessionSnapshot `json:"snapshot"`
	Settlement *Settlement     `json:"settlement,omitempty"`
	At         time.Time       `json:"at"`
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, LifecycleEvent) error { return nil }
