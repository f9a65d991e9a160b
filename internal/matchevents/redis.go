// Package matchevents fans session lifecycle events out to other processes
// over Redis pub/sub or NATS, and keeps a short-lived Redis snapshot of each
// live session for the REST layer.
package matchevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/playmatatu/duel/internal/game"
)

const (
	// DefaultChannel is the Redis pub/sub channel lifecycle events go to.
	DefaultChannel = "match_events"
	// DefaultSnapshotTTL bounds how long an abandoned snapshot lingers.
	DefaultSnapshotTTL = time.Hour
)

// ErrSnapshotNotFound is returned when no live session has the requested id.
var ErrSnapshotNotFound = errors.New("session snapshot not found")

// SnapshotKey is the Redis key holding the latest event for a session.
func SnapshotKey(sessionID string) string {
	return "session:" + sessionID + ":state"
}

// RedisPublisher publishes on a channel and mirrors each session's latest
// event under SnapshotKey.
type RedisPublisher struct {
	rdb         *redis.Client
	channel     string
	snapshotTTL time.Duration
}

var _ game.Publisher = (*RedisPublisher)(nil)

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: DefaultChannel, snapshotTTL: DefaultSnapshotTTL}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev game.LifecycleEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}

	pipe := p.rdb.TxPipeline()
	if ev.Type == game.EventSessionClosed {
		pipe.Del(ctx, SnapshotKey(ev.SessionID))
	} else {
		pipe.SetEx(ctx, SnapshotKey(ev.SessionID), data, p.snapshotTTL)
	}
	pipe.Publish(ctx, p.channel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %s event for %s: %w", ev.Type, ev.SessionID, err)
	}
	return nil
}

// Snapshot returns the most recent event recorded for a live session.
func (p *RedisPublisher) Snapshot(ctx context.Context, sessionID string) (*game.LifecycleEvent, error) {
	data, err := p.rdb.Get(ctx, SnapshotKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", sessionID, err)
	}
	var ev game.LifecycleEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", sessionID, err)
	}
	return &ev, nil
}

// Subscribe delivers every event on the channel to fn until ctx is done.
func (p *RedisPublisher) Subscribe(ctx context.Context, fn func(game.LifecycleEvent)) error {
	pubsub := p.rdb.Subscribe(ctx, p.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", p.channel, err)
	}
	ch := pubsub.Channel()
	log.Info().Str("channel", p.channel).Msg("lifecycle subscriber started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev game.LifecycleEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Msg("invalid lifecycle event payload")
				continue
			}
			fn(ev)
		}
	}
}
