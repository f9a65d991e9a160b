package game

import "time"

// Session is one best-of-N match between two players. It is owned by the
// manager loop and never touched from any other goroutine.
type Session struct {
	ID      string
	Players [2]*Player
	Mode    Mode
	Bucket  BucketKey
	Stake   int64

	Round     int
	Phase     Phase
	Remaining int

	// Rematch bookkeeping. RematchBy is valid only in PhaseRematchPending.
	RematchBy        Side
	RematchAccepting bool
	// RematchStaked is set once the next match's stakes are debited and
	// cleared when play restarts. A teardown in between refunds them.
	RematchStaked bool

	CreatedAt time.Time

	timer Timer
	gen   uint64
}

func newSession(id string, a, b *Player, now time.Time) *Session {
	s := &Session{
		ID:        id,
		Players:   [2]*Player{a, b},
		Mode:      a.Mode,
		Bucket:    a.Bucket,
		Stake:     a.Stake,
		CreatedAt: now,
	}
	s.Reset()
	return s
}

// Reset clears scores and moves and starts again from round one.
func (s *Session) Reset() {
	for _, p := range s.Players {
		p.Score = 0
		p.Move = MoveNone
	}
	s.Round = 1
	s.RematchAccepting = false
	s.RematchStaked = false
}

func (s *Session) SideOf(identity string) (Side, bool) {
	for i, p := range s.Players {
		if p.Identity == identity {
			return Side(i), true
		}
	}
	return SideA, false
}

func (s *Session) Player(side Side) *Player {
	return s.Players[side]
}

// RecordMove stores a move for side, replacing any earlier move this round.
// It reports whether both sides have now committed.
func (s *Session) RecordMove(side Side, m Move) bool {
	s.Players[side].Move = m
	return s.Players[SideA].Move != MoveNone && s.Players[SideB].Move != MoveNone
}

// RoundResult is the resolved state of one round.
type RoundResult struct {
	Round   int
	Moves   [2]Move
	Outcome Outcome
}

// ResolveRound scores the committed moves and clears them for the next round.
func (s *Session) ResolveRound() RoundResult {
	a, b := s.Players[SideA], s.Players[SideB]
	res := RoundResult{
		Round:   s.Round,
		Moves:   [2]Move{a.Move, b.Move},
		Outcome: Resolve(a.Move, b.Move),
	}
	switch res.Outcome {
	case AWins:
		a.Score++
	case BWins:
		b.Score++
	}
	a.Move, b.Move = MoveNone, MoveNone
	return res
}

// Winner reports the side that has reached threshold, if any.
func (s *Session) Winner(threshold int) (Side, bool) {
	for i, p := range s.Players {
		if p.Score >= threshold {
			return Side(i), true
		}
	}
	return SideA, false
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// Any callback already queued carries the old generation and is dropped.
	s.gen++
}

// SessionSnapshot is the externally visible state published on lifecycle events.
type SessionSnapshot struct {
	ID      string           `json:"id"`
	Mode    Mode             `json:"mode"`
	Bucket  BucketKey        `json:"bucket"`
	Stake   int64            `json:"stake"`
	Round   int              `json:"round"`
	Phase   Phase            `json:"phase"`
	Players [2]PlayerSummary `json:"players"`
}

type PlayerSummary struct {
	Identity string `json:"identity"`
	Score    int    `json:"score"`
}

func (s *Session) Snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		ID:     s.ID,
		Mode:   s.Mode,
		Bucket: s.Bucket,
		Stake:  s.Stake,
		Round:  s.Round,
		Phase:  s.Phase,
	}
	for i, p := range s.Players {
		snap.Players[i] = PlayerSummary{Identity: p.Identity, Score: p.Score}
	}
	return snap
}
