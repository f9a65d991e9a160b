package game

// Phase is the lifecycle position of a session.
type Phase string

const (
	PhaseCountdown      Phase = "COUNTDOWN"
	PhaseDeciding       Phase = "DECIDING"
	PhaseResolved       Phase = "RESOLVED"
	PhaseEnded          Phase = "ENDED"
	PhaseRematchPending Phase = "REMATCH_PENDING"
	PhaseTorndown       Phase = "TORNDOWN"
)

// Live reports whether a round is still being played.
func (p Phase) Live() bool {
	switch p {
	case PhaseCountdown, PhaseDeciding, PhaseResolved:
		return true
	}
	return false
}

// Finished reports whether the match result has been settled and the
// session is only waiting on rematch traffic.
func (p Phase) Finished() bool {
	return p == PhaseEnded || p == PhaseRematchPending
}

// Side identifies one of the two seats in a session. A is the player that
// was waiting in the queue; B is the player whose request completed the pair.
type Side int

const (
	SideA Side = iota
	SideB
)

func (s Side) Other() Side {
	return 1 - s
}

func (s Side) String() string {
	if s == SideA {
		return "A"
	}
	return "B"
}

type presenceStatus int

const (
	statusIdle presenceStatus = iota
	statusLookup
	statusQueued
	statusPairing
	statusPlaying
)

func (s presenceStatus) String() string {
	switch s {
	case statusLookup:
		return "lookup"
	case statusQueued:
		return "queued"
	case statusPairing:
		return "pairing"
	case statusPlaying:
		return "playing"
	}
	return "idle"
}
