// Package store persists profiles and match history in PostgreSQL.
package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/playmatatu/duel/internal/game"
	"github.com/playmatatu/duel/internal/models"
)

// Defaults are the balances and rating a profile starts with.
type Defaults struct {
	Coins  int64
	Gems   int64
	Rating int
}

// Postgres implements game.Store on top of sqlx.
type Postgres struct {
	db       *sqlx.DB
	defaults Defaults
}

var _ game.Store = (*Postgres)(nil)

func NewPostgres(db *sqlx.DB, defaults Defaults) *Postgres {
	return &Postgres{db: db, defaults: defaults}
}

const profileColumns = `identity, display_name, birth_date, image_ref, coins, gems, rating, wins, losses, created_at, updated_at`

const insertDefaultProfile = `INSERT INTO profiles (identity, coins, gems, rating) VALUES ($1, $2, $3, $4) ON CONFLICT (identity) DO NOTHING`

// GetProfile returns the profile for identity, creating it on first sight.
func (s *Postgres) GetProfile(ctx context.Context, identity string) (*models.Profile, error) {
	if _, err := s.db.ExecContext(ctx, insertDefaultProfile, identity, s.defaults.Coins, s.defaults.Gems, s.defaults.Rating); err != nil {
		return nil, fmt.Errorf("create profile %s: %w", identity, err)
	}
	var p models.Profile
	if err := s.db.GetContext(ctx, &p, `SELECT `+profileColumns+` FROM profiles WHERE identity = $1`, identity); err != nil {
		return nil, fmt.Errorf("load profile %s: %w", identity, err)
	}
	return &p, nil
}

func balanceColumn(c game.Currency) (string, error) {
	switch c {
	case game.CurrencyCoins:
		return "coins", nil
	case game.CurrencyGems:
		return "gems", nil
	}
	return "", fmt.Errorf("unknown currency %q", c)
}

// DebitStakes locks every profile row, checks balances and debits all of
// them in one transaction. Rows are locked in identity order so two
// concurrent debits over the same pair cannot deadlock.
func (s *Postgres) DebitStakes(ctx context.Context, currency game.Currency, amount int64, identities ...string) error {
	col, err := balanceColumn(currency)
	if err != nil {
		return err
	}
	ids := append([]string(nil), identities...)
	sort.Strings(ids)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin debit: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, insertDefaultProfile, id, s.defaults.Coins, s.defaults.Gems, s.defaults.Rating); err != nil {
			return fmt.Errorf("create profile %s: %w", id, err)
		}
	}

	var rows []struct {
		Identity string `db:"identity"`
		Balance  int64  `db:"balance"`
	}
	query := `SELECT identity, ` + col + ` AS balance FROM profiles WHERE identity = ANY($1) ORDER BY identity FOR UPDATE`
	if err := tx.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("lock profiles: %w", err)
	}
	if len(rows) != len(ids) {
		return fmt.Errorf("debit %v: %w", ids, game.ErrProfileNotFound)
	}
	for _, r := range rows {
		if r.Balance < amount {
			return &game.InsufficientFundsError{Identity: r.Identity, Currency: currency, Balance: r.Balance, Required: amount}
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE profiles SET `+col+` = `+col+` - $1, updated_at = NOW() WHERE identity = ANY($2)`, amount, pq.Array(ids)); err != nil {
		return fmt.Errorf("debit profiles: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit debit: %w", err)
	}

	log.Debug().Strs("identities", ids).Str("currency", string(currency)).Int64("amount", amount).Msg("stakes debited")
	return nil
}

// RefundStakes credits amount back to every identity.
func (s *Postgres) RefundStakes(ctx context.Context, currency game.Currency, amount int64, identities ...string) error {
	col, err := balanceColumn(currency)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE profiles SET `+col+` = `+col+` + $1, updated_at = NOW() WHERE identity = ANY($2)`, amount, pq.Array(identities))
	if err != nil {
		return fmt.Errorf("refund stakes: %w", err)
	}
	if n, _ := res.RowsAffected(); int(n) != len(identities) {
		return fmt.Errorf("refund %v: %w", identities, game.ErrProfileNotFound)
	}
	return nil
}

// ApplySettlement credits the prize, moves the rating (never below zero)
// and bumps the win or loss tally.
func (s *Postgres) ApplySettlement(ctx context.Context, d game.ProfileDelta) error {
	col, err := balanceColumn(d.Currency)
	if err != nil {
		return err
	}
	wins, losses := 0, 1
	if d.Won {
		wins, losses = 1, 0
	}
	query := `UPDATE profiles SET ` + col + ` = ` + col + ` + $2,
		rating = GREATEST(rating + $3, 0),
		wins = wins + $4,
		losses = losses + $5,
		updated_at = NOW()
		WHERE identity = $1`
	res, err := s.db.ExecContext(ctx, query, d.Identity, d.Credit, d.RatingDelta, wins, losses)
	if err != nil {
		return fmt.Errorf("apply settlement for %s: %w", d.Identity, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("apply settlement for %s: %w", d.Identity, game.ErrProfileNotFound)
	}
	return nil
}

// AppendMatchRecord inserts a history row. Re-inserting the same id is a no-op.
func (s *Postgres) AppendMatchRecord(ctx context.Context, rec models.MatchRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO match_records
		(id, session_id, player_a, player_b, score_a, score_b, winner, mode, bucket, stake, forfeit, created_at)
		VALUES (:id, :session_id, :player_a, :player_b, :score_a, :score_b, :winner, :mode, :bucket, :stake, :forfeit, :created_at)
		ON CONFLICT (id) DO NOTHING`, rec)
	if err != nil {
		return fmt.Errorf("append match record %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateProfile sets the display name and birth date, creating the profile if needed.
func (s *Postgres) UpdateProfile(ctx context.Context, identity, displayName string, birthDate time.Time) (*models.Profile, error) {
	var p models.Profile
	err := s.db.GetContext(ctx, &p, `INSERT INTO profiles (identity, display_name, birth_date, coins, gems, rating)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			birth_date = EXCLUDED.birth_date,
			updated_at = NOW()
		RETURNING `+profileColumns,
		identity, displayName, birthDate, s.defaults.Coins, s.defaults.Gems, s.defaults.Rating)
	if err != nil {
		return nil, fmt.Errorf("update profile %s: %w", identity, err)
	}
	return &p, nil
}

// ListMatches returns the newest match records involving identity.
func (s *Postgres) ListMatches(ctx context.Context, identity string, limit int) ([]models.MatchRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	records := []models.MatchRecord{}
	err := s.db.SelectContext(ctx, &records, `SELECT id, session_id, player_a, player_b, score_a, score_b, winner, mode, bucket, stake, forfeit, created_at
		FROM match_records
		WHERE player_a = $1 OR player_b = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches for %s: %w", identity, err)
	}
	return records, nil
}
