package game

import (
	"time"

	"github.com/playmatatu/duel/internal/models"
)

// PlayerSettlement is what one player gains or loses when a match settles.
type PlayerSettlement struct {
	Identity    string    `json:"identity"`
	Won         bool      `json:"won"`
	Score       int       `json:"score"`
	RatingDelta int       `json:"rating_delta"`
	NewRating   int       `json:"new_rating"`
	NewBucket   BucketKey `json:"new_bucket,omitempty"`
	Prize       int64     `json:"prize"`
}

// Settlement is computed in the loop from the snapshot taken at match start
// and persisted asynchronously.
type Settlement struct {
	RecordID  string              `json:"record_id"`
	SessionID string              `json:"session_id"`
	Mode      Mode                `json:"mode"`
	Bucket    BucketKey           `json:"bucket"`
	Stake     int64               `json:"stake"`
	Currency  Currency            `json:"currency"`
	Forfeit   bool                `json:"forfeit"`
	Winner    Side                `json:"-"`
	Players   [2]PlayerSettlement `json:"players"`
	At        time.Time           `json:"at"`
}

func computeSettlement(cfg Settings, s *Session, winner Side, forfeit bool, recordID string, now time.Time) Settlement {
	st := Settlement{
		RecordID:  recordID,
		SessionID: s.ID,
		Mode:      s.Mode,
		Bucket:    s.Bucket,
		Stake:     s.Stake,
		Currency:  s.Mode.Currency(),
		Forfeit:   forfeit,
		Winner:    winner,
		At:        now,
	}
	for i, p := range s.Players {
		won := Side(i) == winner
		ps := PlayerSettlement{
			Identity:  p.Identity,
			Won:       won,
			Score:     p.Score,
			NewRating: p.Rating,
		}
		if won {
			ps.Prize = s.Stake * cfg.PrizeMultiplier
		}
		if s.Mode == ModeRanked {
			next := p.Rating - cfg.RatingLossDelta
			if won {
				next = p.Rating + cfg.RatingWinDelta
			}
			if next < 0 {
				next = 0
			}
			ps.RatingDelta = next - p.Rating
			ps.NewRating = next
			ps.NewBucket = RankedBucket(cfg.RankedBands.BandFor(next).Name)
		}
		st.Players[i] = ps
	}
	return st
}

func (st Settlement) delta(side Side) ProfileDelta {
	ps := st.Players[side]
	return ProfileDelta{
		Identity:    ps.Identity,
		Currency:    st.Currency,
		Credit:      ps.Prize,
		RatingDelta: ps.RatingDelta,
		Won:         ps.Won,
	}
}

// Record builds the match history row.
func (st Settlement) Record() models.MatchRecord {
	return models.MatchRecord{
		ID:        st.RecordID,
		SessionID: st.SessionID,
		PlayerA:   st.Players[SideA].Identity,
		PlayerB:   st.Players[SideB].Identity,
		ScoreA:    st.Players[SideA].Score,
		ScoreB:    st.Players[SideB].Score,
		Winner:    st.Players[st.Winner].Identity,
		Mode:      string(st.Mode),
		Bucket:    string(st.Bucket),
		Stake:     st.Stake,
		Forfeit:   st.Forfeit,
		CreatedAt: st.At,
	}
}
