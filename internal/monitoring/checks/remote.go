package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/charlesng35/quotesync/internal/monitoring"
)

// Pinger is satisfied by the remote store adapters.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Remote returns an optional probe for the authoritative remote store.
func Remote(remote Pinger, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("remote_store", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if remote == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "remote store not configured"}
		}
		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultDatabaseTimeout))
		defer cancel()
		return monitoring.ResultFromError("remote_store", remote.Ping(probeCtx), time.Since(start))
	}).AsOptional()
}

// QueueBacklog degrades health once more than limit local mutations await sync.
func QueueBacklog(depth func() int, limit int) monitoring.Check {
	return monitoring.NewCheck("sync_queue", func(context.Context) monitoring.ProbeResult {
		pending := depth()
		if limit > 0 && pending > limit {
			return monitoring.ProbeResult{
				Status:  monitoring.StatusDegraded,
				Details: fmt.Sprintf("%d pending changes exceed backlog limit %d", pending, limit),
			}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: fmt.Sprintf("%d pending changes", pending)}
	})
}
