// Package protocol defines the event-addressed messages exchanged with players
// over their persistent connection. Every frame is a JSON envelope carrying an
// event type and an optional data payload.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client -> Server event types.
const (
	TypeFindMatch       = "findMatch"
	TypeLeaveQueue      = "leaveQueue"
	TypeMakeChoice      = "makeChoice"
	TypeRequestRematch  = "requestRematch"
	TypeRematchResponse = "rematchResponse"
	TypeUpdateProfile   = "updateProfile"
)

// Server -> Client event types.
const (
	TypeWaiting              = "waiting"
	TypeMatchFound           = "matchFound"
	TypeCountdown            = "countdown"
	TypeRoundStart           = "roundStart"
	TypeRoundResult          = "roundResult"
	TypeGameOver             = "gameOver"
	TypeRematchRequested     = "rematchRequested"
	TypeRematchAccepted      = "rematchAccepted"
	TypeRematchDeclined      = "rematchDeclined"
	TypeOpponentDisconnected = "opponentDisconnected"
	TypeOpponentLeft         = "opponentLeft"
	TypeMatchError           = "matchError"
	TypeQueueLeft            = "queueLeft"
	TypeProfileUpdated       = "profileUpdated"
	TypeProfileError         = "profileError"
)

// Outcome values as seen by the receiving player.
const (
	OutcomeWin  = "win"
	OutcomeLoss = "loss"
	OutcomeTie  = "tie"
)

// ErrMissingType is returned when an inbound frame has no event type.
var ErrMissingType = errors.New("protocol: missing event type")

// Envelope is the inbound frame. Data is decoded lazily once the type is known.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ParseEnvelope decodes a raw inbound frame.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// Decode unmarshals the envelope payload into v. An absent payload leaves v untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("protocol: decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Event is an outbound frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// NewEvent builds an outbound event.
func NewEvent(typ string, data any) Event {
	return Event{Type: typ, Data: data}
}

// ---------------------------------------------------------------------------
// Client -> Server payloads
// ---------------------------------------------------------------------------

type FindMatch struct {
	Mode          string `json:"mode"`
	StakeOrBucket int64  `json:"stakeOrBucket,omitempty"`
	ImageRef      string `json:"imageRef,omitempty"`
}

type MakeChoice struct {
	Symbol string `json:"symbol"`
}

type RematchResponse struct {
	Accepted bool `json:"accepted"`
}

type UpdateProfile struct {
	DisplayName string `json:"displayName"`
	BirthDate   string `json:"birthDate"`
}

// ---------------------------------------------------------------------------
// Server -> Client payloads
// ---------------------------------------------------------------------------

type MatchFound struct {
	SessionID        string `json:"sessionId"`
	Side             string `json:"side"`
	OpponentID       string `json:"opponentId"`
	OpponentName     string `json:"opponentName,omitempty"`
	OpponentImageRef string `json:"opponentImageRef,omitempty"`
	Stake            int64  `json:"stake"`
	Mode             string `json:"mode"`
	Bucket           string `json:"bucket"`
}

type Countdown struct {
	Remaining int `json:"remaining"`
}

type RoundStart struct {
	Round int `json:"round"`
}

type RoundResult struct {
	Round         int    `json:"round"`
	OwnMove       string `json:"ownMove"`
	OpponentMove  string `json:"opponentMove"`
	Outcome       string `json:"outcome"`
	OwnScore      int    `json:"ownScore"`
	OpponentScore int    `json:"opponentScore"`
}

type GameOver struct {
	Outcome            string `json:"outcome"`
	FinalOwnScore      int    `json:"finalOwnScore"`
	FinalOpponentScore int    `json:"finalOpponentScore"`
	RatingDelta        *int   `json:"ratingDelta,omitempty"`
	NewRating          *int   `json:"newRating,omitempty"`
	NewBucket          string `json:"newBucket,omitempty"`
	Prize              *int64 `json:"prize,omitempty"`
	Currency           string `json:"currency,omitempty"`
}

// OpponentDisconnected carries forfeit settlement fields only when the
// abandoned match was settled as a forfeit win.
type OpponentDisconnected struct {
	Forfeit     bool   `json:"forfeit,omitempty"`
	RatingDelta *int   `json:"ratingDelta,omitempty"`
	NewRating   *int   `json:"newRating,omitempty"`
	NewBucket   string `json:"newBucket,omitempty"`
	Prize       *int64 `json:"prize,omitempty"`
	Currency    string `json:"currency,omitempty"`
}

type MatchError struct {
	Reason string `json:"reason"`
}

type ProfileUpdated struct {
	DisplayName string `json:"displayName"`
	BirthDate   string `json:"birthDate"`
}

type ProfileError struct {
	Reason string `json:"reason"`
}
