package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/quotesync/pkg/logger"
)

// Pinger reports whether the remote backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deduper shares one in-flight execution between callers of the same key.
type Deduper interface {
	Deduped(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error)
}

const probeKey = "connectivity:probe"

// Monitor tracks whether the process should attempt network calls.
type Monitor struct {
	online  atomic.Bool
	pinger  Pinger
	dedupe  Deduper
	timeout time.Duration
	log     *zap.Logger

	mu        sync.Mutex
	listeners []func(online bool)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPinger attaches a probe used by Probe.
func WithPinger(p Pinger) Option {
	return func(m *Monitor) { m.pinger = p }
}

// WithDeduper routes probes through d so overlapping probes share one ping.
func WithDeduper(d Deduper) Option {
	return func(m *Monitor) { m.dedupe = d }
}

// WithProbeTimeout bounds each probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Monitor) {
		if log != nil {
			m.log = log
		}
	}
}

// NewMonitor returns a monitor starting in the given state.
func NewMonitor(online bool, opts ...Option) *Monitor {
	m := &Monitor{timeout: 5 * time.Second, log: logger.WithModule("connectivity")}
	m.online.Store(online)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Online reports the last known state. A nil monitor is always online.
func (m *Monitor) Online() bool {
	if m == nil {
		return true
	}
	return m.online.Load()
}

// Set records a new state and notifies listeners when it changed.
func (m *Monitor) Set(online bool) {
	if m == nil {
		return
	}
	if m.online.Swap(online) == online {
		return
	}
	m.log.Info("connectivity changed", zap.Bool("online", online))

	m.mu.Lock()
	listeners := append([]func(bool){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(online)
	}
}

// OnChange registers fn to run after every state transition.
func (m *Monitor) OnChange(fn func(online bool)) {
	if m == nil || fn == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Probe pings the remote and updates the state. Without a pinger the state is unchanged.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m == nil || m.pinger == nil {
		return m.Online()
	}
	ping := func(ctx context.Context) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		return nil, m.pinger.Ping(ctx)
	}

	var err error
	if m.dedupe != nil {
		_, err = m.dedupe.Deduped(ctx, probeKey, ping)
	} else {
		_, err = ping(ctx)
	}
	if err != nil {
		m.log.Debug("remote probe failed", zap.Error(err))
	}
	m.Set(err == nil)
	return err == nil
}
