package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/charlesng35/quotesync/internal/monitoring"
	"github.com/charlesng35/quotesync/pkg/logger"
)

const (
	DefaultMaxConcurrent  = 2
	DefaultMaxAge         = 20 * time.Second
	DefaultRequestTimeout = 15 * time.Second
)

// ErrEvicted is returned to callers of a deduplicated request that was aborted by the age sweep.
var ErrEvicted = errors.New("coordinator: request evicted after exceeding max age")

// Options tune admission control and deduplication.
type Options struct {
	MaxConcurrent  int
	MaxAge         time.Duration
	RequestTimeout time.Duration
	Now            func() time.Time
	Logger         *zap.Logger
}

// Coordinator bounds outbound concurrency and shares identical in-flight requests.
type Coordinator struct {
	slots   *semaphore.Weighted
	group   singleflight.Group
	maxAge  time.Duration
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger

	mu       sync.Mutex
	inflight map[string]*call
}

type call struct {
	done    chan struct{}
	started time.Time
	cancel  context.CancelCauseFunc
	val     any
	err     error
}

// New constructs a Coordinator, filling unset options with defaults.
func New(opts Options) *Coordinator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.WithModule("coordinator")
	}
	return &Coordinator{
		slots:    semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		maxAge:   opts.MaxAge,
		timeout:  opts.RequestTimeout,
		now:      opts.Now,
		log:      opts.Logger,
		inflight: make(map[string]*call),
	}
}

// Do runs fn once an admission slot is free. Waiting honours ctx cancellation.
func (c *Coordinator) Do(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	waitStart := time.Now()
	if err := c.slots.Acquire(ctx, 1); err != nil {
		monitoring.RecordCoordinatorCall("admit", "cancelled")
		return nil, fmt.Errorf("coordinator: waiting for admission: %w", err)
	}
	monitoring.ObserveAdmissionWait(time.Since(waitStart))
	monitoring.AdjustCoordinatorInFlight(1)
	defer func() {
		monitoring.AdjustCoordinatorInFlight(-1)
		c.slots.Release(1)
	}()

	val, err := fn(ctx)
	monitoring.RecordCoordinatorCall("admit", resultLabel(err))
	return val, err
}

// Deduped shares one execution of fn between every caller using key while it is in flight.
// Each call first aborts and forgets registrations older than MaxAge. The shared execution
// runs under admission control with its own context bounded by RequestTimeout, so one
// caller giving up does not cancel the work for the others.
func (c *Coordinator) Deduped(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	c.sweepLocked()
	existing, shared := c.inflight[key]
	if !shared {
		existing = c.startLocked(ctx, key, fn)
	}
	c.mu.Unlock()

	if shared {
		monitoring.RecordCoordinatorCall("dedupe", "shared")
	}

	select {
	case <-existing.done:
		return existing.val, existing.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) startLocked(parent context.Context, key string, fn func(ctx context.Context) (any, error)) *call {
	base, cancel := context.WithCancelCause(context.WithoutCancel(parent))
	entry := &call{
		done:    make(chan struct{}),
		started: c.now(),
		cancel:  cancel,
	}
	c.inflight[key] = entry

	go func() {
		runCtx, stop := context.WithTimeout(base, c.timeout)
		defer stop()
		defer cancel(nil)

		entry.val, entry.err = c.Do(runCtx, fn)
		if cause := context.Cause(base); errors.Is(cause, ErrEvicted) {
			entry.val, entry.err = nil, ErrEvicted
		}
		close(entry.done)

		c.mu.Lock()
		if c.inflight[key] == entry {
			delete(c.inflight, key)
		}
		c.mu.Unlock()
	}()
	return entry
}

func (c *Coordinator) sweepLocked() {
	now := c.now()
	for key, entry := range c.inflight {
		if now.Sub(entry.started) <= c.maxAge {
			continue
		}
		entry.cancel(ErrEvicted)
		delete(c.inflight, key)
		monitoring.RecordCoordinatorCall("dedupe", "evicted")
		c.log.Warn("evicted stale request", zap.String("key", key), zap.Duration("age", now.Sub(entry.started)))
	}
}

// Coalesce collapses concurrent callers of key onto one execution of fn without
// age-based eviction. The execution is admitted like any other outbound call.
func (c *Coordinator) Coalesce(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ch := c.group.DoChan(key, func() (any, error) {
		return c.Do(context.WithoutCancel(ctx), fn)
	})
	select {
	case res := <-ch:
		if res.Shared {
			monitoring.RecordCoordinatorCall("coalesce", "shared")
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InFlight reports the number of registered deduplicated requests.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
