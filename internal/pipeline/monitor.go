package pipeline

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultProbeInterval is how often Run probes connectivity.
const DefaultProbeInterval = 15 * time.Second

// Monitor is the connectivity signal. Subscribers are notified only when the
// state flips.
type Monitor struct {
	prober   Prober
	interval time.Duration
	forced   bool
	online   atomic.Bool

	mu     sync.Mutex
	subs   map[int]func(bool)
	nextID int
}

// NewMonitor creates a monitor that probes with prober. It starts online so
// the first capture attempts extraction; a failing probe flips it.
func NewMonitor(prober Prober, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	m := &Monitor{
		prober:   prober,
		interval: interval,
		subs:     make(map[int]func(bool)),
	}
	m.online.Store(true)
	return m
}

// NewOfflineMonitor creates a monitor pinned offline. Check and Set are no-ops.
func NewOfflineMonitor() *Monitor {
	return &Monitor{forced: true, subs: make(map[int]func(bool))}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Set records the connectivity state and notifies subscribers on a transition.
func (m *Monitor) Set(online bool) {
	if m.forced {
		return
	}
	if m.online.Swap(online) == online {
		return
	}
	if online {
		log.Printf("connectivity restored")
	} else {
		log.Printf("connectivity lost")
	}

	m.mu.Lock()
	subs := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}

// Check probes once and updates the state.
func (m *Monitor) Check(ctx context.Context) bool {
	if m.forced || m.prober == nil {
		return m.Online()
	}
	m.Set(m.prober.Ping(ctx) == nil)
	return m.Online()
}

// Run probes on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	if m.forced || m.prober == nil {
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Subscribe registers fn for state transitions and returns a function that
// removes it.
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
