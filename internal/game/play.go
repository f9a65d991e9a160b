package game

import (
	"context"
	"time"

	"github.com/playmatatu/duel/internal/metrics"
	"github.com/playmatatu/duel/internal/protocol"
)

func (m *Manager) startSession(a, b *Player, live [2]*presence) {
	now := m.now()
	s := newSession(NewID(), a, b, now)
	m.sessions[s.ID] = s
	for i, pr := range live {
		pr.status = statusPlaying
		pr.pairing = ""
		pr.session = s
		if !s.Players[i].RequestedAt.IsZero() {
			metrics.MatchWait.Observe(now.Sub(s.Players[i].RequestedAt).Seconds())
		}
	}

	for _, side := range []Side{SideA, SideB} {
		me, opp := s.Player(side), s.Player(side.Other())
		send(me.Conn, protocol.TypeMatchFound, protocol.MatchFound{
			SessionID:        s.ID,
			Side:             side.String(),
			OpponentID:       opp.Identity,
			OpponentName:     opp.DisplayName,
			OpponentImageRef: opp.ImageRef,
			Stake:            s.Stake,
			Mode:             string(s.Mode),
			Bucket:           string(s.Bucket),
		})
	}

	metrics.MatchesStarted.WithLabelValues(string(s.Mode)).Inc()
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.logger.Info().
		Str("session_id", s.ID).
		Str("a", a.Identity).
		Str("b", b.Identity).
		Str("bucket", string(s.Bucket)).
		Int64("stake", s.Stake).
		Msg("session created")
	m.publish(s, EventSessionStarted, nil)
	m.startCountdown(s, m.settings.MatchStartDelay)
}

// schedule replaces the session's pending timer. The callback carries the
// generation and phase it was armed under so a late firing is dropped.
func (m *Manager) schedule(s *Session, d time.Duration, step timerStep) {
	s.stopTimer()
	id, gen, phase := s.ID, s.gen, s.Phase
	s.timer = m.sched.AfterFunc(d, func() {
		m.post(timerCmd{sessionID: id, gen: gen, phase: phase, step: step})
	})
}

func (m *Manager) onTimer(c timerCmd) {
	s, ok := m.sessions[c.sessionID]
	if !ok || s.gen != c.gen || s.Phase != c.phase {
		return
	}
	s.timer = nil
	switch c.step {
	case stepCountdown:
		m.tickCountdown(s)
	case stepNextRound:
		s.Round++
		m.startCountdown(s, 0)
	case stepEndMatch:
		m.endMatch(s)
	case stepRematchExpired:
		m.expireRematch(s)
	case stepRematchReset:
		m.resetForRematch(s)
	case stepTeardown:
		m.destroy(s, "teardown")
	}
}

func (m *Manager) startCountdown(s *Session, delay time.Duration) {
	s.Phase = PhaseCountdown
	s.Remaining = m.settings.CountdownSeconds
	m.schedule(s, delay, stepCountdown)
}

func (m *Manager) tickCountdown(s *Session) {
	if s.Remaining > 0 {
		m.broadcast(s, protocol.TypeCountdown, protocol.Countdown{Remaining: s.Remaining})
		s.Remaining--
		m.schedule(s, m.settings.CountdownTick, stepCountdown)
		return
	}
	s.Phase = PhaseDeciding
	m.broadcast(s, protocol.TypeRoundStart, protocol.RoundStart{Round: s.Round})
}

func (m *Manager) onMakeChoice(pr *presence, env protocol.Envelope) {
	if pr.status != statusPlaying || pr.session.Phase != PhaseDeciding {
		return
	}
	var req protocol.MakeChoice
	if err := env.Decode(&req); err != nil {
		return
	}
	move, ok := ParseMove(req.Symbol)
	if !ok {
		m.logger.Debug().Str("identity", pr.conn.Identity()).Str("symbol", req.Symbol).Msg("invalid move ignored")
		return
	}
	s := pr.session
	side, _ := s.SideOf(pr.conn.Identity())
	if s.RecordMove(side, move) {
		m.resolveRound(s)
	}
}

func (m *Manager) resolveRound(s *Session) {
	s.Phase = PhaseResolved
	res := s.ResolveRound()
	for _, side := range []Side{SideA, SideB} {
		me, opp := s.Player(side), s.Player(side.Other())
		send(me.Conn, protocol.TypeRoundResult, protocol.RoundResult{
			Round:         res.Round,
			OwnMove:       string(res.Moves[side]),
			OpponentMove:  string(res.Moves[side.Other()]),
			Outcome:       res.Outcome.For(side),
			OwnScore:      me.Score,
			OpponentScore: opp.Score,
		})
	}
	label := "decisive"
	if res.Outcome == Tie {
		label = "tie"
	}
	metrics.RoundsResolved.WithLabelValues(label).Inc()
	m.publish(s, EventRoundResolved, nil)

	next := stepNextRound
	if _, done := s.Winner(m.settings.WinThreshold); done {
		next = stepEndMatch
	}
	m.schedule(s, m.settings.RoundResultDelay, next)
}

func (m *Manager) endMatch(s *Session) {
	winner, _ := s.Winner(m.settings.WinThreshold)
	s.Phase = PhaseEnded
	st := m.settle(s, winner, false)
	for _, side := range []Side{SideA, SideB} {
		send(s.Player(side).Conn, protocol.TypeGameOver, gameOverFor(st, side))
	}
	m.schedule(s, m.settings.RematchWindow, stepRematchExpired)
}

// settle computes the result in the loop, updates in-memory ratings for a
// possible rematch and hands persistence to a background worker.
func (m *Manager) settle(s *Session, winner Side, forfeit bool) Settlement {
	st := computeSettlement(m.settings, s, winner, forfeit, NewID(), m.now())
	for i, p := range s.Players {
		p.Rating = st.Players[i].NewRating
	}

	result := "completed"
	if forfeit {
		result = "forfeit"
	}
	metrics.MatchesSettled.WithLabelValues(string(s.Mode), result).Inc()
	m.logger.Info().
		Str("session_id", s.ID).
		Str("winner", st.Players[winner].Identity).
		Int("score_a", st.Players[SideA].Score).
		Int("score_b", st.Players[SideB].Score).
		Bool("forfeit", forfeit).
		Msg("match settled")

	m.background(func(ctx context.Context) {
		for _, side := range []Side{SideA, SideB} {
			if err := m.store.ApplySettlement(ctx, st.delta(side)); err != nil {
				metrics.PersistFailures.WithLabelValues("settlement").Inc()
				m.logger.Error().Err(err).Str("session_id", st.SessionID).Str("identity", st.Players[side].Identity).Msg("failed to apply settlement")
			}
		}
		if err := m.store.AppendMatchRecord(ctx, st.Record()); err != nil {
			metrics.PersistFailures.WithLabelValues("match_record").Inc()
			m.logger.Error().Err(err).Str("session_id", st.SessionID).Msg("failed to append match record")
		}
	})
	m.publish(s, EventMatchCompleted, &st)
	return st
}

// destroy is the single teardown path. It is safe to call more than once.
func (m *Manager) destroy(s *Session, reason string) {
	if _, ok := m.sessions[s.ID]; !ok {
		return
	}
	s.stopTimer()
	if s.RematchStaked {
		s.RematchStaked = false
		m.logger.Info().Str("session_id", s.ID).Msg("session closed before rematch began, refunding stakes")
		m.refund(s.Mode.Currency(), s.Stake, s.Players[SideA].Identity, s.Players[SideB].Identity)
	}
	delete(m.sessions, s.ID)
	m.detach(s)
	s.Phase = PhaseTorndown
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.logger.Debug().Str("session_id", s.ID).Str("reason", reason).Msg("session torn down")
	m.publish(s, EventSessionClosed, nil)
}

// retire frees both players now and drops the session after TeardownDelay.
func (m *Manager) retire(s *Session) {
	m.detach(s)
	s.Phase = PhaseTorndown
	m.schedule(s, m.settings.TeardownDelay, stepTeardown)
}

func (m *Manager) detach(s *Session) {
	for _, p := range s.Players {
		if pr, ok := m.presences[p.Identity]; ok && pr.session == s {
			m.idle(pr)
		}
	}
}

func gameOverFor(st Settlement, side Side) protocol.GameOver {
	me, opp := st.Players[side], st.Players[side.Other()]
	g := protocol.GameOver{
		Outcome:            protocol.OutcomeLoss,
		FinalOwnScore:      me.Score,
		FinalOpponentScore: opp.Score,
		Currency:           string(st.Currency),
	}
	if me.Won {
		g.Outcome = protocol.OutcomeWin
	}
	if me.Prize > 0 {
		prize := me.Prize
		g.Prize = &prize
	}
	if st.Mode == ModeRanked {
		delta, rating := me.RatingDelta, me.NewRating
		g.RatingDelta = &delta
		g.NewRating = &rating
		g.NewBucket = string(me.NewBucket)
	}
	return g
}

func opponentDisconnectedFor(st Settlement, side Side) protocol.OpponentDisconnected {
	g := gameOverFor(st, side)
	return protocol.OpponentDisconnected{
		Forfeit:     st.Forfeit,
		RatingDelta: g.RatingDelta,
		NewRating:   g.NewRating,
		NewBucket:   g.NewBucket,
		Prize:       g.Prize,
		Currency:    g.Currency,
	}
}
