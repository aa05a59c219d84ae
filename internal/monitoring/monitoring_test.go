package monitoring_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/quotesync/internal/monitoring"
	"github.com/charlesng35/quotesync/internal/monitoring/checks"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestInstrumentationExportsMetrics(t *testing.T) {
	mod, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)
	monitoring.SetModule(mod)

	monitoring.RecordCacheLookup("customers", "hit", time.Millisecond)
	monitoring.RecordCacheInvalidation("quotes")
	monitoring.RecordCoordinatorCall("dedupe", "shared")
	monitoring.AdjustCoordinatorInFlight(1)
	monitoring.SetQueueDepth(3)
	monitoring.RecordQueueChange("customers", "delete", "collapsed")
	monitoring.RecordSyncOperation("items", "list", "remote")
	monitoring.ObserveRemoteCall("items", "select", errors.New("boom"), time.Second)
	monitoring.RecordMigrationRun("completed")
	monitoring.RecordMaintenanceRun("queue_prune", "success", time.Second)

	rec := httptest.NewRecorder()
	mod.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, metric := range []string{
		`quotesync_cache_requests_total{entity="customers",result="hit"} 1`,
		`quotesync_sync_queue_pending 3`,
		`quotesync_sync_queue_changes_total{outcome="collapsed",table="customers",type="delete"} 1`,
		`quotesync_migration_runs_total{result="completed"} 1`,
	} {
		require.True(t, strings.Contains(body, metric), "missing %s", metric)
	}
}

func TestHealthManagerEvaluate(t *testing.T) {
	manager := monitoring.NewHealthManager()
	manager.Register(checks.LocalStore(nil, 0))
	manager.Register(checks.Remote(pinger{err: errors.New("connection refused")}, time.Second))

	report := manager.Evaluate(context.Background())
	require.True(t, report.Success)
	require.Equal(t, monitoring.StatusDegraded, report.Status)
	require.Len(t, report.Checks, 2)
	require.Equal(t, "remote_store", report.Checks[1].Component)
	require.Equal(t, monitoring.StatusDown, report.Checks[1].Status)

	manager.Register(monitoring.NewCheck("critical", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown}
	}))
	report = manager.Evaluate(context.Background())
	require.False(t, report.Success)
	require.Equal(t, monitoring.StatusDown, report.Status)
}

func TestHealthCheckRecoversFromPanic(t *testing.T) {
	manager := monitoring.NewHealthManager()
	manager.Register(monitoring.NewCheck("explodes", func(context.Context) monitoring.ProbeResult {
		panic("boom")
	}))

	report := manager.Evaluate(context.Background())
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Equal(t, "boom", report.Checks[0].Details)
	require.Equal(t, "explodes", report.Checks[0].Component)
}

func TestQueueBacklogDegrades(t *testing.T) {
	depth := 10
	check := checks.QueueBacklog(func() int { return depth }, 5)

	manager := monitoring.NewHealthManager()
	manager.Register(check)
	require.Equal(t, monitoring.StatusDegraded, manager.Evaluate(context.Background()).Status)

	depth = 1
	require.Equal(t, monitoring.StatusUp, manager.Evaluate(context.Background()).Status)
}

func TestWatchExportsStateGauges(t *testing.T) {
	mod, err := monitoring.NewModule(monitoring.Options{Namespace: "qs", DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)

	online := true
	require.NoError(t, mod.Watch(monitoring.Sources{
		Online:        func() bool { return online },
		CacheHitRatio: func() float64 { return 0.75 },
		Deduplicating: func() int { return 2 },
	}))

	scrape := func() string {
		rec := httptest.NewRecorder()
		mod.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rec.Body.String()
	}

	body := scrape()
	require.Contains(t, body, "qs_connectivity_online 1")
	require.Contains(t, body, "qs_cache_hit_ratio 0.75")
	require.Contains(t, body, "qs_coordinator_tracked_requests 2")

	online = false
	require.Contains(t, scrape(), "qs_connectivity_online 0")

	require.Error(t, mod.Watch(monitoring.Sources{Online: func() bool { return true }}))
}

func TestNilModuleHandler(t *testing.T) {
	var mod *monitoring.Module
	rec := httptest.NewRecorder()
	mod.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, mod.Watch(monitoring.Sources{}))
}
