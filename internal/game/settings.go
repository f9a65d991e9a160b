package game

import (
	"fmt"
	"time"
)

// Settings tunes matchmaking, pacing and settlement.
type Settings struct {
	CasualStakes []int64
	RankedBands  BandTable

	WinThreshold     int
	CountdownSeconds int
	CountdownTick    time.Duration

	MatchStartDelay   time.Duration
	RoundResultDelay  time.Duration
	RematchResetDelay time.Duration
	TeardownDelay     time.Duration
	RematchWindow     time.Duration

	PrizeMultiplier     int64
	RatingWinDelta      int
	RatingLossDelta     int
	ForfeitOnDisconnect bool

	// PersistTimeout bounds every store and publisher call made off the loop.
	PersistTimeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		CasualStakes:        []int64{10, 50, 100, 500},
		RankedBands:         DefaultRankedBands(),
		WinThreshold:        3,
		CountdownSeconds:    3,
		CountdownTick:       time.Second,
		MatchStartDelay:     time.Second,
		RoundResultDelay:    3 * time.Second,
		RematchResetDelay:   2 * time.Second,
		TeardownDelay:       2 * time.Second,
		RematchWindow:       60 * time.Second,
		PrizeMultiplier:     2,
		RatingWinDelta:      25,
		RatingLossDelta:     20,
		ForfeitOnDisconnect: true,
		PersistTimeout:      5 * time.Second,
	}
}

func (s Settings) validate() error {
	if s.WinThreshold < 1 {
		return fmt.Errorf("win threshold must be positive")
	}
	if len(s.CasualStakes) == 0 {
		return fmt.Errorf("no casual stakes configured")
	}
	return s.RankedBands.Validate()
}

func (s Settings) casualStakeAllowed(stake int64) bool {
	for _, allowed := range s.CasualStakes {
		if allowed == stake {
			return true
		}
	}
	return false
}
