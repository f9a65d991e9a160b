package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/playmatatu/duel/internal/logging"
	"github.com/playmatatu/duel/internal/metrics"
	"github.com/playmatatu/duel/internal/protocol"
)

// Manager owns every queue, pairing and session. All state is mutated by the
// single goroutine running Run; connections, timers and store workers talk to
// it by posting commands.
type Manager struct {
	settings  Settings
	store     Store
	publisher Publisher
	sched     Scheduler
	now       func() time.Time
	logger    zerolog.Logger

	cmds    chan command
	done    chan struct{}
	running atomic.Bool
	ctx     context.Context
	tasks   sync.WaitGroup
	pending atomic.Int64

	// Loop-owned state.
	presences map[string]*presence
	queue     *Queue
	sessions  map[string]*Session
	pairings  map[string]*pairing
	lookupSeq uint64
}

// presence is the loop's view of one connected identity.
type presence struct {
	conn    Conn
	status  presenceStatus
	lookup  uint64
	player  *Player
	pairing string
	session *Session
}

// pairing is two players popped from a queue whose stakes are being debited.
type pairing struct {
	id      string
	players [2]*Player
}

// Status is a point-in-time summary of the manager.
type Status struct {
	Connections    int          `json:"connections"`
	ActiveSessions int          `json:"active_sessions"`
	Pairing        int          `json:"pairing"`
	Buckets        []BucketSize `json:"buckets"`
}

// NewManager builds a manager. A nil publisher disables lifecycle events and
// a nil scheduler uses the wall clock.
func NewManager(settings Settings, store Store, publisher Publisher, sched Scheduler) (*Manager, error) {
	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("match manager: %w", err)
	}
	if store == nil {
		return nil, errors.New("match manager: store is required")
	}
	if settings.CountdownTick <= 0 {
		settings.CountdownTick = time.Second
	}
	if settings.PersistTimeout <= 0 {
		settings.PersistTimeout = 5 * time.Second
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if sched == nil {
		sched = WallClock()
	}
	return &Manager{
		settings:  settings,
		store:     store,
		publisher: publisher,
		sched:     sched,
		now:       time.Now,
		logger:    logging.Component("match"),
		cmds:      make(chan command, 1024),
		done:      make(chan struct{}),
		presences: make(map[string]*presence),
		queue:     NewQueue(),
		sessions:  make(map[string]*Session),
		pairings:  make(map[string]*pairing),
	}, nil
}

// Run processes commands until ctx is cancelled. Settlement writes already
// in flight are allowed to finish before Run returns.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("match manager: already running")
	}
	m.ctx = ctx
	m.logger.Info().
		Int("win_threshold", m.settings.WinThreshold).
		Bool("forfeit_on_disconnect", m.settings.ForfeitOnDisconnect).
		Msg("match manager started")

	defer func() {
		close(m.done)
		m.shutdown()
		m.tasks.Wait()
		m.logger.Info().Msg("match manager stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-m.cmds:
			m.handle(cmd)
		}
	}
}

// Connect registers a freshly authenticated connection. An older connection
// for the same identity is closed and fully disconnected first.
func (m *Manager) Connect(c Conn) {
	m.post(connectCmd{conn: c})
}

// Disconnect reports that a connection is gone. Stale connections are ignored.
func (m *Manager) Disconnect(c Conn) {
	m.post(disconnectCmd{conn: c})
}

// Dispatch hands an inbound client event to the loop.
func (m *Manager) Dispatch(c Conn, env protocol.Envelope) {
	m.post(messageCmd{conn: c, env: env})
}

// Status reports connection, session and queue counts.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	var st Status
	err := m.inspect(ctx, func() {
		st = Status{
			Connections:    len(m.presences),
			ActiveSessions: len(m.sessions),
			Pairing:        len(m.pairings),
			Buckets:        m.queue.Sizes(),
		}
	})
	return st, err
}

// inspect runs fn on the loop goroutine and waits for it.
func (m *Manager) inspect(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	select {
	case m.cmds <- inspectCmd{fn: fn, done: ran}:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrStopped
	}
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrStopped
	}
}

func (m *Manager) post(cmd command) {
	select {
	case m.cmds <- cmd:
	case <-m.done:
	}
}

// async runs fn on a worker bounded by PersistTimeout and posts its result
// back into the loop. Cancelling Run cancels fn.
func (m *Manager) async(fn func(ctx context.Context) command) {
	m.tasks.Add(1)
	m.pending.Add(1)
	go func() {
		defer m.tasks.Done()
		defer m.pending.Add(-1)
		ctx, cancel := context.WithTimeout(m.ctx, m.settings.PersistTimeout)
		defer cancel()
		if cmd := fn(ctx); cmd != nil {
			m.post(cmd)
		}
	}()
}

// background runs a fire-and-forget write that survives cancellation of Run.
func (m *Manager) background(fn func(ctx context.Context)) {
	m.tasks.Add(1)
	m.pending.Add(1)
	go func() {
		defer m.tasks.Done()
		defer m.pending.Add(-1)
		ctx, cancel := context.WithTimeout(context.WithoutCancel(m.ctx), m.settings.PersistTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (m *Manager) shutdown() {
	for _, s := range m.sessions {
		s.stopTimer()
	}
	m.logger.Info().
		Int("sessions", len(m.sessions)).
		Int("connections", len(m.presences)).
		Msg("match manager draining")
}

// holder returns the presence for c only if c is the identity's current connection.
func (m *Manager) holder(c Conn) *presence {
	pr, ok := m.presences[c.Identity()]
	if !ok || pr.conn.ID() != c.ID() {
		return nil
	}
	return pr
}

func (m *Manager) idle(pr *presence) {
	pr.status = statusIdle
	pr.player = nil
	pr.pairing = ""
	pr.session = nil
}

func (m *Manager) refreshQueueMetrics() {
	for _, b := range m.queue.Sizes() {
		metrics.QueueSize.WithLabelValues(string(b.Bucket)).Set(float64(b.Waiting))
	}
}

func (m *Manager) publish(s *Session, typ string, st *Settlement) {
	if _, ok := m.publisher.(noopPublisher); ok {
		return
	}
	ev := LifecycleEvent{
		Type:       typ,
		SessionID:  s.ID,
		Snapshot:   s.Snapshot(),
		Settlement: st,
		At:         m.now(),
	}
	m.background(func(ctx context.Context) {
		if err := m.publisher.Publish(ctx, ev); err != nil {
			metrics.PersistFailures.WithLabelValues("publish").Inc()
			m.logger.Warn().Err(err).Str("session_id", ev.SessionID).Str("event", ev.Type).Msg("failed to publish lifecycle event")
		}
	})
}

func send(c Conn, typ string, data any) {
	c.Send(protocol.NewEvent(typ, data))
}

func (m *Manager) broadcast(s *Session, typ string, data any) {
	for _, p := range s.Players {
		send(p.Conn, typ, data)
	}
}
