// Package connectivity tracks whether the remote backend is
// reachable. A ticker-driven prober flips a boolean state and notifies
// subscribers exactly once per transition.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/oficinahq/garagesync/internal/logging"
)

const defaultProbeTimeout = 3 * time.Second

// Pinger probes remote reachability. The remote backend implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor holds the current connectivity state and fans transition
// events out to subscribers. Construct with New and run Start in a
// goroutine; SetOnline allows direct state injection (tests, manual
// override).
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	log      logging.Logger

	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(online bool)
}

// New returns a Monitor probing via pinger every interval. The monitor
// starts offline until the first successful probe.
func New(pinger Pinger, interval time.Duration, log logging.Logger) *Monitor {
	return &Monitor{
		pinger:   pinger,
		interval: interval,
		log:      log,
		subs:     make(map[int]func(bool)),
	}
}

// Online returns the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn to be called on every state transition. The
// returned function unsubscribes.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// SetOnline updates the state. Subscribers are notified only when the
// state actually changes; repeated identical signals are dropped.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	notify := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		notify = append(notify, fn)
	}
	m.mu.Unlock()

	m.log.Info(context.Background(), "connectivity changed", "online", online)
	for _, fn := range notify {
		fn(online)
	}
}

// Start probes immediately and then on every tick until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	err := m.pinger.Ping(probeCtx)
	cancel()
	m.SetOnline(err == nil)
}
