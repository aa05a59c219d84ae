package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/quotesync/internal/coordinator"
)

type stubPinger struct{ err error }

func (s *stubPinger) Ping(context.Context) error { return s.err }

func TestMonitorTransitions(t *testing.T) {
	m := NewMonitor(true)
	var seen []bool
	m.OnChange(func(online bool) { seen = append(seen, online) })

	m.Set(true)
	m.Set(false)
	m.Set(false)
	m.Set(true)

	require.Equal(t, []bool{false, true}, seen)
	require.True(t, m.Online())
}

func TestMonitorProbe(t *testing.T) {
	pinger := &stubPinger{err: errors.New("unreachable")}
	m := NewMonitor(true, WithPinger(pinger))

	require.False(t, m.Probe(context.Background()))
	require.False(t, m.Online())

	pinger.err = nil
	require.True(t, m.Probe(context.Background()))
	require.True(t, m.Online())
}

func TestMonitorWithoutPinger(t *testing.T) {
	m := NewMonitor(false)
	require.False(t, m.Probe(context.Background()))

	var nilMonitor *Monitor
	require.True(t, nilMonitor.Online())
	nilMonitor.Set(false)
}

type gatedPinger struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (g *gatedPinger) Ping(ctx context.Context) error {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestOverlappingProbesShareOnePing(t *testing.T) {
	pinger := &gatedPinger{started: make(chan struct{}), release: make(chan struct{})}
	coord := coordinator.New(coordinator.Options{})
	m := NewMonitor(false, WithPinger(pinger), WithDeduper(coord))

	var wg sync.WaitGroup
	results := make([]bool, 4)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = m.Probe(context.Background())
	}()
	<-pinger.started
	for i := 1; i < len(results); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Probe(context.Background())
		}(i)
	}
	require.Equal(t, 1, coord.InFlight())
	time.Sleep(20 * time.Millisecond)
	close(pinger.release)
	wg.Wait()

	require.EqualValues(t, 1, pinger.calls.Load())
	require.Equal(t, []bool{true, true, true, true}, results)
	require.True(t, m.Online())
}
