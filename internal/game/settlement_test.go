package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func rankedSession(ratingA, ratingB int) *Session {
	band := DefaultRankedBands().BandFor(ratingA)
	a := &Player{Identity: "alice", Mode: ModeRanked, Bucket: RankedBucket(band.Name), Stake: band.Stake, Rating: ratingA}
	b := &Player{Identity: "bob", Mode: ModeRanked, Bucket: RankedBucket(band.Name), Stake: band.Stake, Rating: ratingB}
	return newSession("s1", a, b, time.Unix(0, 0))
}

func TestRankedSettlement(t *testing.T) {
	cfg := DefaultSettings()
	s := rankedSession(1390, 1210)
	s.Players[SideA].Score = 3
	s.Players[SideB].Score = 1

	st := computeSettlement(cfg, s, SideA, false, "r1", time.Unix(10, 0))

	assert.Equal(t, CurrencyGems, st.Currency)
	winner, loser := st.Players[SideA], st.Players[SideB]
	assert.True(t, winner.Won)
	assert.Equal(t, 25, winner.RatingDelta)
	assert.Equal(t, 1415, winner.NewRating)
	assert.Equal(t, RankedBucket("gold"), winner.NewBucket)
	assert.Equal(t, int64(50), winner.Prize)

	assert.False(t, loser.Won)
	assert.Equal(t, -20, loser.RatingDelta)
	assert.Equal(t, 1190, loser.NewRating)
	assert.Equal(t, RankedBucket("bronze"), loser.NewBucket)
	assert.Zero(t, loser.Prize)

	rec := st.Record()
	assert.Equal(t, "r1", rec.ID)
	assert.Equal(t, "alice", rec.Winner)
	assert.Equal(t, 3, rec.ScoreA)
	assert.Equal(t, 1, rec.ScoreB)
	assert.Equal(t, "ranked", rec.Mode)
	assert.False(t, rec.Forfeit)
}

func TestRatingFloorsAtZero(t *testing.T) {
	st := computeSettlement(DefaultSettings(), rankedSession(0, 12), SideA, false, "r", time.Unix(0, 0))
	loser := st.Players[SideB]
	assert.Equal(t, 0, loser.NewRating)
	assert.Equal(t, -12, loser.RatingDelta)
}

func TestCasualSettlementLeavesRating(t *testing.T) {
	s := newTestSession()
	s.Players[SideA].Rating = 1500
	st := computeSettlement(DefaultSettings(), s, SideB, true, "r", time.Unix(0, 0))

	assert.Equal(t, CurrencyCoins, st.Currency)
	assert.True(t, st.Forfeit)
	assert.Equal(t, int64(20), st.Players[SideB].Prize)
	assert.Zero(t, st.Players[SideA].RatingDelta)
	assert.Equal(t, 1500, st.Players[SideA].NewRating)
	assert.Empty(t, st.Players[SideA].NewBucket)

	d := st.delta(SideB)
	assert.Equal(t, ProfileDelta{Identity: "bob", Currency: CurrencyCoins, Credit: 20, Won: true}, d)
}
