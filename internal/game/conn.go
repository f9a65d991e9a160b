package game

import "github.com/playmatatu/duel/internal/protocol"

// Conn is a player's live connection as seen by the manager. Send and Close
// must not block; they are called from the loop goroutine.
type Conn interface {
	// ID is unique per physical connection.
	ID() string
	// Identity is the authenticated subject bound at upgrade time.
	Identity() string
	Send(ev protocol.Event)
	Close(reason string)
}
