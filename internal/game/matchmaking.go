package game

import (
	"context"
	"errors"

	"github.com/playmatatu/duel/internal/metrics"
	"github.com/playmatatu/duel/internal/models"
	"github.com/playmatatu/duel/internal/protocol"
)

func (m *Manager) onFindMatch(pr *presence, env protocol.Envelope) {
	identity := pr.conn.Identity()
	var req protocol.FindMatch
	if err := env.Decode(&req); err != nil {
		m.logger.Debug().Err(err).Str("identity", identity).Msg("malformed findMatch ignored")
		return
	}

	mode, ok := ParseMode(req.Mode)
	if !ok {
		m.logger.Warn().Str("identity", identity).Str("mode", req.Mode).Msg("findMatch with unknown mode ignored")
		return
	}
	if mode == ModeCasual && !m.settings.casualStakeAllowed(req.StakeOrBucket) {
		m.logger.Warn().Str("identity", identity).Int64("stake", req.StakeOrBucket).Msg("findMatch with unsupported stake ignored")
		return
	}

	switch pr.status {
	case statusLookup, statusQueued, statusPairing:
		m.logger.Debug().Str("identity", identity).Stringer("status", pr.status).Msg("duplicate findMatch ignored")
		return
	case statusPlaying:
		s := pr.session
		if !s.Phase.Finished() {
			m.logger.Debug().Str("identity", identity).Str("session_id", s.ID).Msg("findMatch during live session ignored")
			return
		}
		m.leave(s, identity)
	}

	m.lookupSeq++
	pr.status = statusLookup
	pr.lookup = m.lookupSeq
	cmd := profileLoadedCmd{
		identity:    identity,
		connID:      pr.conn.ID(),
		seq:         m.lookupSeq,
		mode:        mode,
		stake:       req.StakeOrBucket,
		imageRef:    req.ImageRef,
		requestedAt: m.now(),
	}
	m.async(func(ctx context.Context) command {
		cmd.profile, cmd.err = m.store.GetProfile(ctx, identity)
		return cmd
	})
}

// leave walks identity out of a finished session so they can queue again.
func (m *Manager) leave(s *Session, identity string) {
	side, _ := s.SideOf(identity)
	other := s.Player(side.Other())
	if m.attached(other, s) {
		send(other.Conn, protocol.TypeOpponentLeft, nil)
	}
	m.destroy(s, "player left")
}

func (m *Manager) onProfileLoaded(c profileLoadedCmd) {
	pr, ok := m.presences[c.identity]
	if !ok || pr.conn.ID() != c.connID || pr.status != statusLookup || pr.lookup != c.seq {
		m.logger.Debug().Str("identity", c.identity).Msg("stale profile lookup dropped")
		return
	}
	pr.status = statusIdle

	if c.err != nil {
		m.logger.Error().Err(c.err).Str("identity", c.identity).Msg("profile lookup failed")
		send(pr.conn, protocol.TypeMatchError, protocol.MatchError{Reason: reasonUnavailable})
		return
	}

	prof := c.profile
	stake, bucket := c.stake, CasualBucket(c.stake)
	if c.mode == ModeRanked {
		band := m.settings.RankedBands.BandFor(prof.Rating)
		stake, bucket = band.Stake, RankedBucket(band.Name)
	}
	if balanceOf(prof, c.mode.Currency()) < stake {
		m.logger.Info().Str("identity", c.identity).Str("bucket", string(bucket)).Msg("findMatch rejected, balance below stake")
		send(pr.conn, protocol.TypeMatchError, protocol.MatchError{Reason: reasonInsufficientFunds})
		return
	}

	imageRef := c.imageRef
	if imageRef == "" {
		imageRef = prof.ImageRef
	}
	p := &Player{
		Identity:    c.identity,
		DisplayName: prof.DisplayName,
		ImageRef:    imageRef,
		Conn:        pr.conn,
		Mode:        c.mode,
		Bucket:      bucket,
		Stake:       stake,
		Rating:      prof.Rating,
		RequestedAt: c.requestedAt,
	}
	pr.player = p

	opponent, paired := m.queue.TryPair(p)
	m.refreshQueueMetrics()
	if !paired {
		pr.status = statusQueued
		send(pr.conn, protocol.TypeWaiting, nil)
		m.logger.Debug().Str("identity", c.identity).Str("bucket", string(bucket)).Msg("player queued")
		return
	}
	m.beginPairing(opponent, p)
}

// beginPairing debits both stakes in one transaction before a session exists.
// a is the side that was waiting.
func (m *Manager) beginPairing(a, b *Player) {
	pg := &pairing{id: NewID(), players: [2]*Player{a, b}}
	m.pairings[pg.id] = pg
	for _, p := range pg.players {
		if pr, ok := m.presences[p.Identity]; ok {
			pr.status = statusPairing
			pr.pairing = pg.id
		}
	}
	m.logger.Debug().Str("pairing_id", pg.id).Str("a", a.Identity).Str("b", b.Identity).Str("bucket", string(a.Bucket)).Msg("pairing players")

	currency, stake := a.Mode.Currency(), a.Stake
	m.async(func(ctx context.Context) command {
		return stakesDebitedCmd{
			pairingID: pg.id,
			err:       m.store.DebitStakes(ctx, currency, stake, a.Identity, b.Identity),
		}
	})
}

func (m *Manager) onStakesDebited(c stakesDebitedCmd) {
	pg, ok := m.pairings[c.pairingID]
	if !ok {
		return
	}
	delete(m.pairings, c.pairingID)

	var live [2]*presence
	for i, p := range pg.players {
		if pr, ok := m.presences[p.Identity]; ok && pr.status == statusPairing && pr.pairing == pg.id && pr.player == p {
			live[i] = pr
		}
	}

	if c.err != nil {
		var short *InsufficientFundsError
		if errors.As(c.err, &short) {
			metrics.PairingFailures.WithLabelValues("insufficient_funds").Inc()
			m.logger.Info().Str("pairing_id", pg.id).Str("identity", short.Identity).Msg("pairing failed, insufficient funds")
			for i, pr := range live {
				if pr == nil {
					continue
				}
				if pg.players[i].Identity == short.Identity {
					m.idle(pr)
					send(pr.conn, protocol.TypeMatchError, protocol.MatchError{Reason: reasonInsufficientFunds})
				} else {
					m.requeue(pr)
				}
			}
			return
		}
		metrics.PairingFailures.WithLabelValues("store").Inc()
		m.logger.Error().Err(c.err).Str("pairing_id", pg.id).Msg("stake debit failed")
		for _, pr := range live {
			if pr != nil {
				m.idle(pr)
				send(pr.conn, protocol.TypeMatchError, protocol.MatchError{Reason: reasonUnavailable})
			}
		}
		return
	}

	if live[SideA] == nil || live[SideB] == nil {
		metrics.PairingFailures.WithLabelValues("disconnect").Inc()
		m.logger.Info().Str("pairing_id", pg.id).Msg("player left during pairing, refunding stakes")
		a := pg.players[SideA]
		m.refund(a.Mode.Currency(), a.Stake, a.Identity, pg.players[SideB].Identity)
		for _, pr := range live {
			if pr != nil {
				m.requeue(pr)
			}
		}
		return
	}

	m.startSession(pg.players[SideA], pg.players[SideB], live)
}

// requeue puts a player whose pairing fell through back at the head of their
// bucket, pairing them straight away if someone arrived meanwhile.
func (m *Manager) requeue(pr *presence) {
	p := pr.player
	pr.pairing = ""
	send(pr.conn, protocol.TypeWaiting, nil)
	if opponent := m.queue.PopHead(p.Bucket); opponent != nil {
		m.refreshQueueMetrics()
		m.beginPairing(p, opponent)
		return
	}
	pr.status = statusQueued
	m.queue.PushFront(p)
	m.refreshQueueMetrics()
}

func (m *Manager) onLeaveQueue(pr *presence) {
	switch pr.status {
	case statusQueued:
		m.queue.Remove(pr.conn.Identity())
		m.refreshQueueMetrics()
	case statusLookup:
	default:
		return
	}
	m.idle(pr)
	send(pr.conn, protocol.TypeQueueLeft, nil)
}

func (m *Manager) refund(currency Currency, amount int64, identities ...string) {
	m.background(func(ctx context.Context) {
		if err := m.store.RefundStakes(ctx, currency, amount, identities...); err != nil {
			metrics.PersistFailures.WithLabelValues("refund").Inc()
			m.logger.Error().Err(err).Strs("identities", identities).Int64("amount", amount).Msg("stake refund failed")
		}
	})
}

func balanceOf(p *models.Profile, c Currency) int64 {
	if c == CurrencyGems {
		return p.Gems
	}
	return p.Coins
}
