package game

import (
	"context"
	"errors"

	"github.com/playmatatu/duel/internal/metrics"
	"github.com/playmatatu/duel/internal/protocol"
)

func (m *Manager) onRequestRematch(pr *presence) {
	if pr.status != statusPlaying {
		return
	}
	s := pr.session
	side, _ := s.SideOf(pr.conn.Identity())
	switch s.Phase {
	case PhaseEnded:
		s.Phase = PhaseRematchPending
		s.RematchBy = side
		send(s.Player(side.Other()).Conn, protocol.TypeRematchRequested, nil)
		m.schedule(s, m.settings.RematchWindow, stepRematchExpired)
	case PhaseRematchPending:
		// Both sides asking is as good as an accept.
		if s.RematchAccepting || s.RematchBy == side {
			return
		}
		m.acceptRematch(s)
	}
}

func (m *Manager) onRematchResponse(pr *presence, env protocol.Envelope) {
	if pr.status != statusPlaying {
		return
	}
	var req protocol.RematchResponse
	if err := env.Decode(&req); err != nil {
		return
	}
	s := pr.session
	side, _ := s.SideOf(pr.conn.Identity())
	if s.Phase != PhaseRematchPending || s.RematchAccepting || side == s.RematchBy {
		return
	}
	if req.Accepted {
		m.acceptRematch(s)
		return
	}
	m.logger.Debug().Str("session_id", s.ID).Msg("rematch declined")
	m.declineRematch(s)
}

// acceptRematch debits a fresh pair of stakes before the session restarts.
func (m *Manager) acceptRematch(s *Session) {
	s.RematchAccepting = true
	s.stopTimer()
	cmd := rematchDebitedCmd{
		sessionID:  s.ID,
		currency:   s.Mode.Currency(),
		stake:      s.Stake,
		identities: [2]string{s.Players[SideA].Identity, s.Players[SideB].Identity},
	}
	m.async(func(ctx context.Context) command {
		cmd.err = m.store.DebitStakes(ctx, cmd.currency, cmd.stake, cmd.identities[:]...)
		return cmd
	})
}

func (m *Manager) onRematchDebited(c rematchDebitedCmd) {
	s, ok := m.sessions[c.sessionID]
	if !ok || s.Phase != PhaseRematchPending || !s.RematchAccepting {
		if c.err == nil {
			m.logger.Info().Str("session_id", c.sessionID).Msg("session gone before rematch started, refunding stakes")
			m.refund(c.currency, c.stake, c.identities[:]...)
		}
		return
	}

	if c.err != nil {
		var short *InsufficientFundsError
		if errors.As(c.err, &short) {
			metrics.PairingFailures.WithLabelValues("insufficient_funds").Inc()
			if side, ok := s.SideOf(short.Identity); ok {
				send(s.Player(side).Conn, protocol.TypeMatchError, protocol.MatchError{Reason: reasonInsufficientFunds})
			}
		} else {
			metrics.PairingFailures.WithLabelValues("store").Inc()
			m.logger.Error().Err(c.err).Str("session_id", s.ID).Msg("rematch stake debit failed")
			m.broadcast(s, protocol.TypeMatchError, protocol.MatchError{Reason: reasonUnavailable})
		}
		m.declineRematch(s)
		return
	}

	s.RematchStaked = true
	m.broadcast(s, protocol.TypeRematchAccepted, nil)
	m.schedule(s, m.settings.RematchResetDelay, stepRematchReset)
}

func (m *Manager) resetForRematch(s *Session) {
	s.Reset()
	metrics.MatchesStarted.WithLabelValues(string(s.Mode)).Inc()
	m.logger.Info().Str("session_id", s.ID).Msg("rematch started")
	m.publish(s, EventRematchStarted, nil)
	m.startCountdown(s, 0)
}

func (m *Manager) declineRematch(s *Session) {
	m.broadcast(s, protocol.TypeRematchDeclined, nil)
	m.retire(s)
}

func (m *Manager) expireRematch(s *Session) {
	if s.Phase == PhaseRematchPending {
		m.broadcast(s, protocol.TypeRematchDeclined, nil)
	}
	m.destroy(s, "rematch window expired")
}
