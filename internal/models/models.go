package models

import (
	"database/sql"
	"time"
)

// Profile is the persisted player record. Identity is the authenticated
// subject; a profile is created with starting balances on first lookup.
type Profile struct {
	Identity    string       `db:"identity" json:"identity"`
	DisplayName string       `db:"display_name" json:"display_name"`
	BirthDate   sql.NullTime `db:"birth_date" json:"-"`
	ImageRef    string       `db:"image_ref" json:"image_ref,omitempty"`
	Coins       int64        `db:"coins" json:"coins"`
	Gems        int64        `db:"gems" json:"gems"`
	Rating      int          `db:"rating" json:"rating"`
	Wins        int          `db:"wins" json:"wins"`
	Losses      int          `db:"losses" json:"losses"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// BirthDateString renders the birth date as YYYY-MM-DD, or "" when unset.
func (p *Profile) BirthDateString() string {
	if !p.BirthDate.Valid {
		return ""
	}
	return p.BirthDate.Time.Format("2006-01-02")
}

// MatchRecord is the append-only history row written when a match settles.
type MatchRecord struct {
	ID        string    `db:"id" json:"id"`
	SessionID string    `db:"session_id" json:"session_id"`
	PlayerA   string    `db:"player_a" json:"player_a"`
	PlayerB   string    `db:"player_b" json:"player_b"`
	ScoreA    int       `db:"score_a" json:"score_a"`
	ScoreB    int       `db:"score_b" json:"score_b"`
	Winner    string    `db:"winner" json:"winner"`
	Mode      string    `db:"mode" json:"mode"`
	Bucket    string    `db:"bucket" json:"bucket"`
	Stake     int64     `db:"stake" json:"stake"`
	Forfeit   bool      `db:"forfeit" json:"forfeit"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
