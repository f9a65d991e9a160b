package game

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Mode selects the matchmaking pool and the currency stakes are paid in.
type Mode string

const (
	ModeCasual Mode = "casual"
	ModeRanked Mode = "ranked"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCasual:
		return ModeCasual, true
	case ModeRanked:
		return ModeRanked, true
	}
	return "", false
}

// Currency is the balance column a mode debits and credits.
type Currency string

const (
	CurrencyCoins Currency = "coins"
	CurrencyGems  Currency = "gems"
)

func (m Mode) Currency() Currency {
	if m == ModeRanked {
		return CurrencyGems
	}
	return CurrencyCoins
}

// BucketKey names a matchmaking queue: "casual:<stake>" or "ranked:<band>".
type BucketKey string

func CasualBucket(stake int64) BucketKey {
	return BucketKey("casual:" + strconv.FormatInt(stake, 10))
}

func RankedBucket(band string) BucketKey {
	return BucketKey("ranked:" + band)
}

// Band is a ranked rating range. A band covers [MinRating, next band's MinRating).
type Band struct {
	Name      string `json:"name"`
	MinRating int    `json:"min_rating"`
	Stake     int64  `json:"stake"`
}

// BandTable is a ranked band list ordered by MinRating.
type BandTable []Band

// DefaultRankedBands returns the stock five-band ladder.
func DefaultRankedBands() BandTable {
	return BandTable{
		{Name: "bronze", MinRating: 0, Stake: 10},
		{Name: "silver", MinRating: 1200, Stake: 25},
		{Name: "gold", MinRating: 1400, Stake: 50},
		{Name: "platinum", MinRating: 1600, Stake: 100},
		{Name: "diamond", MinRating: 1800, Stake: 200},
	}
}

// Validate checks the table starts at zero and strictly ascends.
func (t BandTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("ranked bands: empty table")
	}
	if t[0].MinRating != 0 {
		return fmt.Errorf("ranked bands: first band must start at 0, got %d", t[0].MinRating)
	}
	seen := make(map[string]bool, len(t))
	for i, b := range t {
		if b.Name == "" || seen[b.Name] {
			return fmt.Errorf("ranked bands: invalid or duplicate name %q", b.Name)
		}
		seen[b.Name] = true
		if b.Stake <= 0 {
			return fmt.Errorf("ranked bands: %s stake must be positive", b.Name)
		}
		if i > 0 && b.MinRating <= t[i-1].MinRating {
			return fmt.Errorf("ranked bands: %s does not ascend", b.Name)
		}
	}
	return nil
}

// BandFor picks the band containing rating. Ratings below zero map to the first band.
func (t BandTable) BandFor(rating int) Band {
	i := sort.Search(len(t), func(i int) bool { return t[i].MinRating > rating })
	if i == 0 {
		return t[0]
	}
	return t[i-1]
}
