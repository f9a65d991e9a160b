package game

import "strings"

// Move is one of the three symbols a player may commit per round.
type Move string

const (
	MoveNone Move = ""
	Rock     Move = "rock"
	Paper    Move = "paper"
	Scissors Move = "scissors"
)

var beats = map[Move]Move{
	Rock:     Scissors,
	Paper:    Rock,
	Scissors: Paper,
}

// ParseMove accepts a client symbol, case-insensitively.
func ParseMove(symbol string) (Move, bool) {
	m := Move(strings.ToLower(strings.TrimSpace(symbol)))
	if _, ok := beats[m]; !ok {
		return MoveNone, false
	}
	return m, true
}

// Outcome of a single round from the session's point of view.
type Outcome int

const (
	Tie Outcome = iota
	AWins
	BWins
)

func (o Outcome) String() string {
	switch o {
	case AWins:
		return "a_wins"
	case BWins:
		return "b_wins"
	}
	return "tie"
}

// For translates a session outcome into the win/loss/tie seen by side.
func (o Outcome) For(side Side) string {
	switch {
	case o == Tie:
		return "tie"
	case (o == AWins) == (side == SideA):
		return "win"
	default:
		return "loss"
	}
}

// Resolve decides a round. Both moves must be valid.
func Resolve(a, b Move) Outcome {
	switch {
	case a == b:
		return Tie
	case beats[a] == b:
		return AWins
	default:
		return BWins
	}
}
