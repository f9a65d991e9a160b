package game

import (
	"time"

	"github.com/playmatatu/duel/internal/models"
	"github.com/playmatatu/duel/internal/protocol"
)

type command any

type connectCmd struct {
	conn Conn
}

type disconnectCmd struct {
	conn Conn
}

type messageCmd struct {
	conn Conn
	env  protocol.Envelope
}

type profileLoadedCmd struct {
	identity    string
	connID      string
	seq         uint64
	mode        Mode
	stake       int64
	imageRef    string
	requestedAt time.Time

	profile *models.Profile
	err     error
}

type stakesDebitedCmd struct {
	pairingID string
	err       error
}

type rematchDebitedCmd struct {
	sessionID  string
	currency   Currency
	stake      int64
	identities [2]string
	err        error
}

type profileSavedCmd struct {
	identity string
	connID   string
	profile  *models.Profile
	err      error
}

type timerStep int

const (
	stepCountdown timerStep = iota
	stepNextRound
	stepEndMatch
	stepRematchExpired
	stepRematchReset
	stepTeardown
)

type timerCmd struct {
	sessionID string
	gen       uint64
	phase     Phase
	step      timerStep
}

type inspectCmd struct {
	fn   func()
	done chan struct{}
}

func (m *Manager) handle(cmd command) {
	switch c := cmd.(type) {
	case connectCmd:
		m.onConnect(c.conn)
	case disconnectCmd:
		m.onDisconnect(c.conn)
	case messageCmd:
		m.onMessage(c.conn, c.env)
	case profileLoadedCmd:
		m.onProfileLoaded(c)
	case stakesDebitedCmd:
		m.onStakesDebited(c)
	case rematchDebitedCmd:
		m.onRematchDebited(c)
	case profileSavedCmd:
		m.onProfileSaved(c)
	case timerCmd:
		m.onTimer(c)
	case inspectCmd:
		c.fn()
		close(c.done)
	default:
		m.logger.Error().Msgf("unknown command %T", cmd)
	}
}

func (m *Manager) onMessage(conn Conn, env protocol.Envelope) {
	pr := m.holder(conn)
	if pr == nil {
		m.logger.Debug().Str("identity", conn.Identity()).Str("event", env.Type).Msg("message from stale connection ignored")
		return
	}
	switch env.Type {
	case protocol.TypeFindMatch:
		m.onFindMatch(pr, env)
	case protocol.TypeLeaveQueue:
		m.onLeaveQueue(pr)
	case protocol.TypeMakeChoice:
		m.onMakeChoice(pr, env)
	case protocol.TypeRequestRematch:
		m.onRequestRematch(pr)
	case protocol.TypeRematchResponse:
		m.onRematchResponse(pr, env)
	case protocol.TypeUpdateProfile:
		m.onUpdateProfile(pr, env)
	default:
		m.logger.Debug().Str("identity", conn.Identity()).Str("event", env.Type).Msg("unknown client event ignored")
	}
}
