// Package connectivity watches backend reachability and publishes
// online/offline transitions to interested components.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/techtrack/internal/logging"
)

type Mode string

const (
	ModeUnknown Mode = "unknown"
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// DefaultProbeTimeout bounds one probe.
const DefaultProbeTimeout = 3 * time.Second

// Probe reports whether the backend is reachable; nil means online.
type Probe interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function such as (*client.RESTClient).Ping to Probe.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

type Transition struct {
	From Mode
	To   Mode
	At   time.Time
}

type Monitor struct {
	probe    Probe
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger

	mu     sync.RWMutex
	mode   Mode
	subs   map[int]chan Transition
	nextID int
}

func NewMonitor(probe Probe, interval time.Duration, logger logging.Logger) *Monitor {
	return &Monitor{
		probe:    probe,
		interval: interval,
		timeout:  DefaultProbeTimeout,
		logger:   logger,
		mode:     ModeUnknown,
		subs:     make(map[int]chan Transition),
	}
}

// Start probes immediately and then every interval until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check runs one probe now and returns the resulting mode.
func (m *Monitor) Check(ctx context.Context) Mode {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.probe.Probe(pctx)
	cancel()

	// a probe cut short by shutdown says nothing about the backend
	if ctx.Err() != nil {
		return m.Mode()
	}

	if err != nil {
		m.logger.Debug(ctx, "connectivity probe failed", "error", err)
		m.setMode(ctx, ModeOffline)
	} else {
		m.setMode(ctx, ModeOnline)
	}
	return m.Mode()
}

func (m *Monitor) setMode(ctx context.Context, mode Mode) {
	m.mu.Lock()
	if m.mode == mode {
		m.mu.Unlock()
		return
	}
	tr := Transition{From: m.mode, To: mode, At: time.Now()}
	m.mode = mode
	// sent under the lock so unsubscribe cannot close a channel mid-send
	for _, ch := range m.subs {
		publish(ch, tr)
	}
	m.mu.Unlock()

	m.logger.Info(ctx, "connectivity changed", "from", tr.From, "to", tr.To)
}

// publish never blocks: a slow subscriber loses the oldest transition, not
// the newest.
func publish(ch chan Transition, tr Transition) {
	select {
	case ch <- tr:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- tr:
	default:
	}
}

func (m *Monitor) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

func (m *Monitor) Online() bool {
	return m.Mode() == ModeOnline
}

// Subscribe returns a channel of future transitions and a function that
// unsubscribes and closes it.
func (m *Monitor) Subscribe() (<-chan Transition, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Transition, 4)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}
