package monitoring

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options control monitoring module configuration.
type Options struct {
	// Namespace prefixes every metric. Defaults to "quotesync".
	Namespace string
	// DisableGoCollector skips registration of the Go runtime collector when true.
	DisableGoCollector bool
	// DisableProcessCollector skips registration of the process collector when true.
	DisableProcessCollector bool
}

// Sources are read lazily at scrape time. Nil members are not exported.
type Sources struct {
	// Online reports the connectivity flag.
	Online func() bool
	// CacheHitRatio reports hits over lookups since the last stats reset.
	CacheHitRatio func() float64
	// Deduplicating reports distinct requests tracked by the coordinator.
	Deduplicating func() int
}

// Module owns the Prometheus registry and the readiness probes of the data layer.
type Module struct {
	namespace string
	registry  *prometheus.Registry
	metrics   *collectorSet
	health    *HealthManager
}

// NewModule constructs a monitoring module with its own Prometheus registry.
func NewModule(opts Options) (*Module, error) {
	m := &Module{
		namespace: opts.Namespace,
		registry:  prometheus.NewRegistry(),
		health:    NewHealthManager(),
	}
	if m.namespace == "" {
		m.namespace = "quotesync"
	}

	var runtime []prometheus.Collector
	if !opts.DisableGoCollector {
		runtime = append(runtime, collectors.NewGoCollector())
	}
	if !opts.DisableProcessCollector {
		runtime = append(runtime, collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	m.metrics = newCollectors(m.namespace)
	for _, c := range append(runtime, m.metrics.all()...) {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("monitoring: register collector: %w", err)
		}
	}
	return m, nil
}

// Watch exports the state gauges backed by src.
func (m *Module) Watch(src Sources) error {
	if m == nil {
		return nil
	}
	var gauges []prometheus.Collector
	if src.Online != nil {
		online := src.Online
		gauges = append(gauges, m.gaugeFunc("connectivity_online", "1 when the data layer attempts remote calls.", func() float64 {
			if online() {
				return 1
			}
			return 0
		}))
	}
	if src.CacheHitRatio != nil {
		gauges = append(gauges, m.gaugeFunc("cache_hit_ratio", "Share of cache lookups served without a fetch.", src.CacheHitRatio))
	}
	if src.Deduplicating != nil {
		tracked := src.Deduplicating
		gauges = append(gauges, m.gaugeFunc("coordinator_tracked_requests", "Distinct requests currently tracked for deduplication.", func() float64 {
			return float64(tracked())
		}))
	}
	for _, g := range gauges {
		if err := m.registry.Register(g); err != nil {
			return fmt.Errorf("monitoring: register gauge: %w", err)
		}
	}
	return nil
}

func (m *Module) gaugeFunc(name, help string, fn func() float64) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      name,
		Help:      help,
	}, fn)
}

// Registry exposes the underlying Prometheus registry.
func (m *Module) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the module's metrics, or 503 on a nil module.
func (m *Module) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Health exposes the probe registry used by the health endpoint.
func (m *Module) Health() *HealthManager {
	if m == nil {
		return nil
	}
	return m.health
}

var globalModule atomic.Pointer[Module]

// SetModule installs module for the package-level Record and Observe helpers.
// A nil module is ignored.
func SetModule(module *Module) {
	if module != nil {
		globalModule.Store(module)
	}
}

// CurrentModule returns the process-wide monitoring module, or nil when unset.
func CurrentModule() *Module {
	return globalModule.Load()
}
