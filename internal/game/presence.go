package game

import (
	"github.com/playmatatu/duel/internal/metrics"
	"github.com/playmatatu/duel/internal/protocol"
)

const reasonReplaced = "replaced by new connection"

func (m *Manager) onConnect(conn Conn) {
	identity := conn.Identity()
	if old, ok := m.presences[identity]; ok {
		if old.conn.ID() == conn.ID() {
			return
		}
		m.logger.Info().Str("identity", identity).Str("old_conn", old.conn.ID()).Str("conn", conn.ID()).Msg("identity reconnected, replacing previous connection")
		m.release(old)
		old.conn.Close(reasonReplaced)
	}
	m.presences[identity] = &presence{conn: conn}
	metrics.Connections.Set(float64(len(m.presences)))
	m.logger.Debug().Str("identity", identity).Str("conn", conn.ID()).Msg("connection registered")
}

func (m *Manager) onDisconnect(conn Conn) {
	pr := m.holder(conn)
	if pr == nil {
		return
	}
	m.release(pr)
	delete(m.presences, conn.Identity())
	metrics.Connections.Set(float64(len(m.presences)))
	m.logger.Debug().Str("identity", conn.Identity()).Str("conn", conn.ID()).Msg("connection released")
}

// release undoes everything the identity is taking part in. An in-flight
// profile lookup or stake debit is left to notice the identity is gone.
func (m *Manager) release(pr *presence) {
	switch pr.status {
	case statusQueued:
		m.queue.Remove(pr.conn.Identity())
		m.refreshQueueMetrics()
	case statusPlaying:
		m.abandon(pr.session, pr.conn.Identity())
	}
	m.idle(pr)
}

// abandon tears down s because identity left it without going through the
// normal end of match flow.
func (m *Manager) abandon(s *Session, identity string) {
	side, ok := s.SideOf(identity)
	if !ok {
		return
	}
	other := s.Player(side.Other())
	ev := protocol.OpponentDisconnected{}
	if winner, done := s.Winner(m.settings.WinThreshold); done && s.Phase.Live() {
		// The deciding round already resolved; settle the result as played.
		st := m.settle(s, winner, false)
		ev = opponentDisconnectedFor(st, side.Other())
	} else if s.Phase.Live() && m.settings.ForfeitOnDisconnect {
		st := m.settle(s, side.Other(), true)
		ev = opponentDisconnectedFor(st, side.Other())
	}
	if m.attached(other, s) {
		send(other.Conn, protocol.TypeOpponentDisconnected, ev)
	}
	m.destroy(s, "player disconnected")
}

// attached reports whether p still has a live connection bound to s.
func (m *Manager) attached(p *Player, s *Session) bool {
	pr, ok := m.presences[p.Identity]
	return ok && pr.session == s && pr.conn.ID() == p.Conn.ID()
}
