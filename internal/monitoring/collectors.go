package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type collectorSet struct {
	cacheRequests       *prometheus.CounterVec
	cacheLatency        *prometheus.HistogramVec
	cacheInvalidations  *prometheus.CounterVec
	coordinatorInFlight prometheus.Gauge
	coordinatorCalls    *prometheus.CounterVec
	coordinatorWait     prometheus.Histogram
	queueDepth          prometheus.Gauge
	queueChanges        *prometheus.CounterVec
	syncOperations      *prometheus.CounterVec
	remoteLatency       *prometheus.HistogramVec
	migrationRuns       *prometheus.CounterVec
	apiLatency          *prometheus.HistogramVec
	realtimeConnections prometheus.Gauge
	realtimeBroadcasts  *prometheus.CounterVec
	maintenanceRuns     *prometheus.CounterVec
	maintenanceDuration *prometheus.HistogramVec
	maintenanceLastRun  *prometheus.GaugeVec
}

func newCollectors(namespace string) *collectorSet {
	buckets := prometheus.DefBuckets
	fastBuckets := []float64{.0001, .0005, .001, .005, .01, .05, .1, .5}

	return &collectorSet{
		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Volatile cache lookups by entity and result",
			},
			[]string{"entity", "result"},
		),
		cacheLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_lookup_seconds",
				Help:      "Volatile cache lookup latency",
				Buckets:   fastBuckets,
			},
			[]string{"entity"},
		),
		cacheInvalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_invalidations_total",
				Help:      "Cache invalidations by entity, including cascades",
			},
			[]string{"entity"},
		),
		coordinatorInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "coordinator_inflight_requests",
				Help:      "Outbound requests currently holding an admission slot",
			},
		),
		coordinatorCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "coordinator_calls_total",
				Help:      "Coordinated calls by kind and outcome",
			},
			[]string{"kind", "result"},
		),
		coordinatorWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "coordinator_admission_wait_seconds",
				Help:      "Time spent waiting for an admission slot",
				Buckets:   buckets,
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sync_queue_pending",
				Help:      "Queued local mutations not yet confirmed by the remote store",
			},
		),
		queueChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_queue_changes_total",
				Help:      "Changes offered to the mutation queue by outcome",
			},
			[]string{"table", "type", "outcome"},
		),
		syncOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_operations_total",
				Help:      "Entity service operations by source of the returned data",
			},
			[]string{"entity", "operation", "source"},
		),
		remoteLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "remote_call_seconds",
				Help:      "Remote store call latency",
				Buckets:   buckets,
			},
			[]string{"entity", "operation", "result"},
		),
		migrationRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "migration_runs_total",
				Help:      "Legacy data migration attempts by result",
			},
			[]string{"result"},
		),
		apiLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_latency_seconds",
				Help:      "API endpoint latency",
				Buckets:   buckets,
			},
			[]string{"method", "path", "status"},
		),
		realtimeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "realtime_connections",
				Help:      "Active change-signal websocket connections",
			},
		),
		realtimeBroadcasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_broadcasts_total",
				Help:      "Change signals broadcast per stream",
			},
			[]string{"stream"},
		),
		maintenanceRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "maintenance_runs_total",
				Help:      "Maintenance job executions",
			},
			[]string{"job", "result"},
		),
		maintenanceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "maintenance_duration_seconds",
				Help:      "Maintenance job duration",
				Buckets:   buckets,
			},
			[]string{"job"},
		),
		maintenanceLastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "maintenance_last_run_timestamp_seconds",
				Help:      "Unix time of the last maintenance job completion",
			},
			[]string{"job"},
		),
	}
}

func (c *collectorSet) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.cacheRequests,
		c.cacheLatency,
		c.cacheInvalidations,
		c.coordinatorInFlight,
		c.coordinatorCalls,
		c.coordinatorWait,
		c.queueDepth,
		c.queueChanges,
		c.syncOperations,
		c.remoteLatency,
		c.migrationRuns,
		c.apiLatency,
		c.realtimeConnections,
		c.realtimeBroadcasts,
		c.maintenanceRuns,
		c.maintenanceDuration,
		c.maintenanceLastRun,
	}
}

// observeDuration records a duration in seconds on the supplied histogram observer.
func observeDuration(observer prometheus.Observer, d time.Duration) {
	if observer == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	observer.Observe(d.Seconds())
}
