package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duel/internal/game"
	"github.com/playmatatu/duel/internal/logging"
	"github.com/playmatatu/duel/internal/matchevents"
)

// StatusSource reports live matchmaking counts.
type StatusSource interface {
	Status(ctx context.Context) (game.Status, error)
}

// SnapshotSource returns the latest lifecycle event of a live session.
type SnapshotSource interface {
	Snapshot(ctx context.Context, sessionID string) (*game.LifecycleEvent, error)
}

// GetQueueStatus returns waiting players per bucket and session counts.
func GetQueueStatus(source StatusSource) gin.HandlerFunc {
	logger := logging.Component("api")
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		st, err := source.Status(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("queue status unavailable")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "matchmaking unavailable"})
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// GetSessionSnapshot returns the last published state of a session.
func GetSessionSnapshot(source SnapshotSource) gin.HandlerFunc {
	logger := logging.Component("api")
	return func(c *gin.Context) {
		id := c.Param("id")
		ev, err := source.Snapshot(c.Request.Context(), id)
		if errors.Is(err, matchevents.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if err != nil {
			logger.Error().Err(err).Str("session", id).Msg("failed to load session snapshot")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
			return
		}
		c.JSON(http.StatusOK, ev)
	}
}
