package game

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/playmatatu/duel/internal/models"
	"github.com/playmatatu/duel/internal/protocol"
)

// ---------------------------------------------------------------------------
// Manual clock
// ---------------------------------------------------------------------------

type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (c *manualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// next pops the earliest live timer due at or before target and moves the
// clock to it.
func (c *manualClock) next(target time.Duration) *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			live = append(live, t)
		}
	}
	c.timers = live
	sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].at < c.timers[j].at })
	if len(c.timers) == 0 || c.timers[0].at > target {
		return nil
	}
	t := c.timers[0]
	t.fired = true
	if t.at > c.now {
		c.now = t.at
	}
	return t
}

func (c *manualClock) set(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = d
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

type memStore struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
	records  []models.MatchRecord
	deltas   []ProfileDelta

	debits  int
	refunds int

	getErr    error
	debitErr  error
	settleErr error
	// debitGate, when set, blocks DebitStakes until closed.
	debitGate chan struct{}
}

func newMemStore() *memStore {
	return &memStore{profiles: make(map[string]*models.Profile)}
}

func (s *memStore) profile(identity string) *models.Profile {
	p, ok := s.profiles[identity]
	if !ok {
		p = &models.Profile{Identity: identity, DisplayName: identity, Coins: 1000, Gems: 100, Rating: 1000}
		s.profiles[identity] = p
	}
	return p
}

func (s *memStore) set(identity string, fn func(p *models.Profile)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.profile(identity))
}

func (s *memStore) get(identity string) models.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.profile(identity)
}

func (s *memStore) GetProfile(_ context.Context, identity string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	cp := *s.profile(identity)
	return &cp, nil
}

func (s *memStore) DebitStakes(ctx context.Context, currency Currency, amount int64, identities ...string) error {
	s.mu.Lock()
	s.debits++
	gate := s.debitGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debitErr != nil {
		return s.debitErr
	}
	for _, id := range identities {
		if bal := balanceOf(s.profile(id), currency); bal < amount {
			return &InsufficientFundsError{Identity: id, Currency: currency, Balance: bal, Required: amount}
		}
	}
	for _, id := range identities {
		s.credit(s.profile(id), currency, -amount)
	}
	return nil
}

func (s *memStore) RefundStakes(_ context.Context, currency Currency, amount int64, identities ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refunds++
	for _, id := range identities {
		s.credit(s.profile(id), currency, amount)
	}
	return nil
}

func (s *memStore) credit(p *models.Profile, currency Currency, amount int64) {
	if currency == CurrencyGems {
		p.Gems += amount
		return
	}
	p.Coins += amount
}

func (s *memStore) ApplySettlement(_ context.Context, d ProfileDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settleErr != nil {
		return s.settleErr
	}
	p := s.profile(d.Identity)
	s.credit(p, d.Currency, d.Credit)
	p.Rating += d.RatingDelta
	if p.Rating < 0 {
		p.Rating = 0
	}
	if d.Won {
		p.Wins++
	} else {
		p.Losses++
	}
	s.deltas = append(s.deltas, d)
	return nil
}

func (s *memStore) AppendMatchRecord(_ context.Context, rec models.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memStore) UpdateProfile(_ context.Context, identity, displayName string, birthDate time.Time) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profile(identity)
	p.DisplayName = displayName
	p.BirthDate.Time, p.BirthDate.Valid = birthDate, true
	cp := *p
	return &cp, nil
}

func (s *memStore) matchRecords() []models.MatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MatchRecord(nil), s.records...)
}

func (s *memStore) counts() (debits, refunds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debits, s.refunds
}

// ---------------------------------------------------------------------------
// Fake connection
// ---------------------------------------------------------------------------

type fakeConn struct {
	id       string
	identity string

	mu     sync.Mutex
	events []protocol.Event
	closed string
}

func (c *fakeConn) ID() string       { return c.id }
func (c *fakeConn) Identity() string { return c.identity }

func (c *fakeConn) Send(ev protocol.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *fakeConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = reason
}

// take returns everything received since the last take.
func (c *fakeConn) take() []protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

func (c *fakeConn) closeReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func types(events []protocol.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func find(events []protocol.Event, typ string) (protocol.Event, bool) {
	for _, ev := range events {
		if ev.Type == typ {
			return ev, true
		}
	}
	return protocol.Event{}, false
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	t     *testing.T
	m     *Manager
	store *memStore
	clock *manualClock
	conns int
}

func newHarness(t *testing.T, tweak ...func(*Settings)) *harness {
	t.Helper()
	settings := DefaultSettings()
	for _, fn := range tweak {
		fn(&settings)
	}
	clock := &manualClock{}
	store := newMemStore()
	m, err := NewManager(settings, store, nil, clock)
	require.NoError(t, err)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base.Add(clock.Now()) }

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return &harness{t: t, m: m, store: store, clock: clock}
}

func (h *harness) sync() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(h.t, h.m.inspect(ctx, func() {}))
}

// settle waits until the loop is idle and no worker is in flight.
func (h *harness) settle() {
	h.t.Helper()
	for i := 0; i < 500; i++ {
		h.sync()
		if h.m.pending.Load() == 0 {
			h.sync()
			if h.m.pending.Load() == 0 {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	h.t.Fatal("manager did not settle")
}

// advance moves the clock forward, firing due timers one at a time and
// letting the loop react to each before looking for the next.
func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	target := h.clock.Now() + d
	for {
		t := h.clock.next(target)
		if t == nil {
			break
		}
		t.f()
		h.settle()
	}
	h.clock.set(target)
}

func (h *harness) connect(identity string) *fakeConn {
	h.t.Helper()
	h.conns++
	c := &fakeConn{id: fmt.Sprintf("%s-%d", identity, h.conns), identity: identity}
	h.m.Connect(c)
	h.settle()
	return c
}

func (h *harness) disconnect(c *fakeConn) {
	h.t.Helper()
	h.m.Disconnect(c)
	h.settle()
}

func (h *harness) send(c *fakeConn, typ string, data any) {
	h.t.Helper()
	env := protocol.Envelope{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(h.t, err)
		env.Data = raw
	}
	h.m.Dispatch(c, env)
	h.settle()
}

func (h *harness) findCasual(c *fakeConn, stake int64) {
	h.send(c, protocol.TypeFindMatch, protocol.FindMatch{Mode: "casual", StakeOrBucket: stake})
}

func (h *harness) choose(c *fakeConn, symbol string) {
	h.send(c, protocol.TypeMakeChoice, protocol.MakeChoice{Symbol: symbol})
}

func (h *harness) status() Status {
	h.t.Helper()
	st, err := h.m.Status(context.Background())
	require.NoError(h.t, err)
	return st
}

// pair connects two players, matches them in the casual 10 bucket and runs
// the clock to the first roundStart.
func (h *harness) pair(a, b string) (*fakeConn, *fakeConn) {
	h.t.Helper()
	ca, cb := h.connect(a), h.connect(b)
	h.findCasual(ca, 10)
	h.findCasual(cb, 10)
	h.advance(h.m.settings.MatchStartDelay + time.Duration(h.m.settings.CountdownSeconds)*h.m.settings.CountdownTick)
	return ca, cb
}

// betweenRounds is RoundResultDelay plus a full countdown.
func (h *harness) betweenRounds() time.Duration {
	return h.m.settings.RoundResultDelay + time.Duration(h.m.settings.CountdownSeconds)*h.m.settings.CountdownTick
}

// playToEnd has a win every round until the threshold, ending on gameOver.
func (h *harness) playToEnd(a, b *fakeConn) {
	h.t.Helper()
	for i := 0; i < h.m.settings.WinThreshold; i++ {
		if i > 0 {
			h.advance(h.betweenRounds())
		}
		h.choose(a, "rock")
		h.choose(b, "scissors")
	}
	h.advance(h.m.settings.RoundResultDelay)
}
