package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duel/internal/game"
	"github.com/playmatatu/duel/internal/logging"
	"github.com/playmatatu/duel/internal/models"
)

// ProfileStore is the profile half of the persistence layer.
type ProfileStore interface {
	GetProfile(ctx context.Context, identity string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, identity, displayName string, birthDate time.Time) (*models.Profile, error)
}

// MatchHistory lists settled matches.
type MatchHistory interface {
	ListMatches(ctx context.Context, identity string, limit int) ([]models.MatchRecord, error)
}

type profileResponse struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`
	BirthDate   string `json:"birth_date,omitempty"`
	ImageRef    string `json:"image_ref,omitempty"`
	Coins       int64  `json:"coins"`
	Gems        int64  `json:"gems"`
	Rating      int    `json:"rating"`
	Band        string `json:"band"`
	Wins        int    `json:"wins"`
	Losses      int    `json:"losses"`
}

func newProfileResponse(p *models.Profile, bands game.BandTable) profileResponse {
	return profileResponse{
		Identity:    p.Identity,
		DisplayName: p.DisplayName,
		BirthDate:   p.BirthDateString(),
		ImageRef:    p.ImageRef,
		Coins:       p.Coins,
		Gems:        p.Gems,
		Rating:      p.Rating,
		Band:        bands.BandFor(p.Rating).Name,
		Wins:        p.Wins,
		Losses:      p.Losses,
	}
}

// GetProfile returns the caller's profile, creating it with starting balances on first use.
func GetProfile(profiles ProfileStore, bands game.BandTable) gin.HandlerFunc {
	logger := logging.Component("api")
	return func(c *gin.Context) {
		identity := identityOf(c)
		p, err := profiles.GetProfile(c.Request.Context(), identity)
		if err != nil {
			logger.Error().Err(err).Str("identity", identity).Msg("failed to load profile")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
			return
		}
		c.JSON(http.StatusOK, newProfileResponse(p, bands))
	}
}

// UpdateProfile applies the same validation as the updateProfile socket event.
func UpdateProfile(profiles ProfileStore, bands game.BandTable) gin.HandlerFunc {
	logger := logging.Component("api")
	return func(c *gin.Context) {
		var body struct {
			DisplayName string `json:"display_name"`
			BirthDate   string `json:"birth_date"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		upd, err := game.ValidateProfileUpdate(body.DisplayName, body.BirthDate, time.Now())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		identity := identityOf(c)
		p, err := profiles.UpdateProfile(c.Request.Context(), identity, upd.DisplayName, upd.BirthDate)
		if err != nil {
			logger.Error().Err(err).Str("identity", identity).Msg("failed to update profile")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save profile"})
			return
		}
		c.JSON(http.StatusOK, newProfileResponse(p, bands))
	}
}

// ListMatches returns the caller's recent match records. ?limit= caps the count.
func ListMatches(history MatchHistory) gin.HandlerFunc {
	logger := logging.Component("api")
	return func(c *gin.Context) {
		limit := 20
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}

		identity := identityOf(c)
		records, err := history.ListMatches(c.Request.Context(), identity, limit)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error().Err(err).Str("identity", identity).Msg("failed to list matches")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list matches"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"matches": records})
	}
}
