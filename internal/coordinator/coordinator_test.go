package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (m *manualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func TestDedupedSharesOneExecution(t *testing.T) {
	c := New(Options{})
	var calls atomic.Int32
	release := make(chan struct{})

	const callers = 10
	var wg sync.WaitGroup
	results := make([]any, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Deduped(context.Background(), "customers:u1", func(ctx context.Context) (any, error) {
				calls.Add(1)
				<-release
				return "payload", nil
			})
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "payload", results[i])
	}
	require.Eventually(t, func() bool { return c.InFlight() == 0 }, time.Second, time.Millisecond)
}

func TestDedupedEvictsStaleRequests(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(Options{Now: clock.Now, MaxAge: 20 * time.Second, RequestTimeout: time.Minute})
	var calls atomic.Int32

	staleErr := make(chan error, 1)
	go func() {
		_, err := c.Deduped(context.Background(), "quotes:u1", func(ctx context.Context) (any, error) {
			calls.Add(1)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		staleErr <- err
	}()
	require.Eventually(t, func() bool { return c.InFlight() == 1 && calls.Load() == 1 }, time.Second, time.Millisecond)

	clock.Advance(21 * time.Second)

	val, err := c.Deduped(context.Background(), "quotes:u1", func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "fresh", nil
	})
	require.NoError(t, err)
	require.Equal(t, "fresh", val)
	require.EqualValues(t, 2, calls.Load())

	select {
	case err := <-staleErr:
		require.ErrorIs(t, err, ErrEvicted)
	case <-time.After(time.Second):
		t.Fatal("stale request was not aborted")
	}
}

func TestDedupedCallerCancellationDoesNotCancelSharedWork(t *testing.T) {
	c := New(Options{})
	release := make(chan struct{})
	var finished atomic.Bool

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Deduped(ctx, "items:u1", func(ctx context.Context) (any, error) {
			select {
			case <-release:
				finished.Store(true)
				return "done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})
		errCh <- err
	}()
	require.Eventually(t, func() bool { return c.InFlight() == 1 }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	require.Eventually(t, finished.Load, time.Second, time.Millisecond)
}

func TestAdmissionCeiling(t *testing.T) {
	c := New(Options{MaxConcurrent: 2})
	var active, peak atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Do(context.Background(), func(context.Context) (any, error) {
				current := active.Add(1)
				for {
					observed := peak.Load()
					if current <= observed || peak.CompareAndSwap(observed, current) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				active.Add(-1)
				return nil, nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.EqualValues(t, 2, peak.Load())
}

func TestAdmissionWaitHonoursContext(t *testing.T) {
	c := New(Options{MaxConcurrent: 1})
	release := make(chan struct{})
	go func() {
		_, _ = c.Do(context.Background(), func(context.Context) (any, error) {
			<-release
			return nil, nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Do(ctx, func(context.Context) (any, error) { return nil, nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestCoalesceFetchesOnce(t *testing.T) {
	c := New(Options{})
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	fetch := func(context.Context) (any, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return []string{"a", "b"}, nil
	}

	var wg sync.WaitGroup
	results := make([]any, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			val, err := c.Coalesce(context.Background(), "customers:list:u1", fetch)
			require.NoError(t, err)
			results[i] = val
		}(i)
		if i == 0 {
			<-started
		}
	}
	time.Sleep(30 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, calls.Load())
	for _, res := range results {
		require.Equal(t, []string{"a", "b"}, res)
	}
}

func TestWithTimeout(t *testing.T) {
	val, err := WithTimeout(context.Background(), time.Second, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, val)

	_, err = WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, ErrTransportTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = WithTimeout(ctx, time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)

	boom := errors.New("boom")
	_, err = WithTimeout(context.Background(), time.Second, func(context.Context) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestTypedAndAs(t *testing.T) {
	wrapped := Typed(func(context.Context) ([]int, error) { return []int{1}, nil })
	got, err := As[[]int](wrapped(context.Background()))
	require.NoError(t, err)
	require.Equal(t, []int{1}, got)

	_, err = As[string](42, nil)
	require.Error(t, err)
}
