package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/quotesync/internal/api"
	"github.com/charlesng35/quotesync/internal/app"
	"github.com/charlesng35/quotesync/internal/app/maintenance"
	"github.com/charlesng35/quotesync/internal/cache"
	"github.com/charlesng35/quotesync/internal/connectivity"
	"github.com/charlesng35/quotesync/internal/coordinator"
	"github.com/charlesng35/quotesync/internal/database"
	"github.com/charlesng35/quotesync/internal/durable"
	"github.com/charlesng35/quotesync/internal/kvstore"
	"github.com/charlesng35/quotesync/internal/migration"
	"github.com/charlesng35/quotesync/internal/monitoring"
	"github.com/charlesng35/quotesync/internal/monitoring/checks"
	"github.com/charlesng35/quotesync/internal/queue"
	"github.com/charlesng35/quotesync/internal/realtime"
	"github.com/charlesng35/quotesync/internal/remote"
	"github.com/charlesng35/quotesync/internal/services"
	"github.com/charlesng35/quotesync/pkg/logger"
)

// runtimeStack holds every component of a running data layer.
type runtimeStack struct {
	cfg *app.Config
	log *zap.Logger

	localDB  *gorm.DB
	remoteDB *gorm.DB

	Durable     *durable.Store
	Legacy      kvstore.Store
	Monitoring  *monitoring.Module
	Coordinator *coordinator.Coordinator
	Cache       *cache.Cache
	Queue       *queue.Queue
	Remote      remote.Store
	Monitor     *connectivity.Monitor
	Hub         *realtime.Hub
	Services    *services.Services
	Migration   *migration.Manager
	Cleaner     *maintenance.Cleaner
}

// bootstrapRuntime opens the stores and wires the services described by cfg.
// Callers must Shutdown the returned stack.
func bootstrapRuntime(ctx context.Context, cfg *app.Config) (stack *runtimeStack, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is nil")
	}

	stack = &runtimeStack{cfg: cfg, log: logger.WithModule("bootstrap")}
	defer func() {
		if err != nil {
			_ = stack.Shutdown(context.Background())
			stack = nil
		}
	}()

	if err = stack.openDurable(); err != nil {
		return stack, err
	}

	legacy, err := kvstore.NewFileStore(cfg.Legacy.Dir)
	if err != nil {
		return stack, fmt.Errorf("open legacy store: %w", err)
	}
	stack.Legacy = legacy

	module, err := monitoring.NewModule(monitoring.Options{Namespace: cfg.Monitoring.Prometheus.Namespace})
	if err != nil {
		return stack, fmt.Errorf("initialise monitoring: %w", err)
	}
	monitoring.SetModule(module)
	stack.Monitoring = module

	stack.Coordinator = coordinator.New(cfg.Coordinator.Options())

	if err = stack.openCache(); err != nil {
		return stack, err
	}
	if err = stack.openQueue(ctx); err != nil {
		return stack, err
	}
	if err = stack.openRemote(ctx); err != nil {
		return stack, err
	}

	stack.Monitor = connectivity.NewMonitor(cfg.Remote.StartOnline,
		connectivity.WithPinger(stack.Remote),
		connectivity.WithDeduper(stack.Coordinator),
		connectivity.WithProbeTimeout(cfg.Remote.ProbeTimeout),
	)
	stack.Hub = realtime.NewHub()

	stack.Services, err = services.New(services.Deps{
		Durable:        stack.Durable,
		Cache:          stack.Cache,
		Queue:          stack.Queue,
		Coordinator:    stack.Coordinator,
		Remote:         stack.Remote,
		Connectivity:   stack.Monitor,
		Notifier:       stack.Hub,
		RequestTimeout: cfg.Coordinator.RequestTimeout,
	})
	if err != nil {
		return stack, fmt.Errorf("initialise services: %w", err)
	}

	stack.Migration, err = migration.NewManager(stack.Legacy, stack.Durable)
	if err != nil {
		return stack, fmt.Errorf("initialise migration manager: %w", err)
	}

	if err = stack.Monitoring.Watch(monitoring.Sources{
		Online:        stack.Monitor.Online,
		CacheHitRatio: stack.cacheHitRatio,
		Deduplicating: stack.Coordinator.InFlight,
	}); err != nil {
		return stack, err
	}
	stack.registerHealthChecks()
	stack.Cleaner = stack.newCleaner()

	return stack, nil
}

func (s *runtimeStack) openDurable() error {
	opts := []durable.Option{durable.WithTxTimeout(s.cfg.Database.TxTimeout)}
	if !s.cfg.Database.Enabled {
		s.log.Warn("durable store disabled; services run remote-only")
		s.Durable = durable.New(nil, opts...)
		return nil
	}

	db, err := database.OpenAndUpgrade(s.cfg.Database.Connection())
	if err != nil {
		return fmt.Errorf("open local database: %w", err)
	}
	s.localDB = db
	s.Durable = durable.New(db, opts...)
	s.log.Info("local database ready", zap.String("driver", s.cfg.Database.Driver), zap.String("path", s.cfg.Database.Path))
	return nil
}

func (s *runtimeStack) openCache() error {
	var store cache.Store
	switch s.cfg.Cache.Backend {
	case "database":
		store = cache.NewDatabaseStore(s.localDB)
	default:
		store = cache.NewMemoryStore(s.cfg.Cache.Capacity)
	}

	entities, err := s.cfg.Cache.EntityConfigs()
	if err != nil {
		return err
	}
	opts := []cache.Option{
		cache.WithSchemaVersion(s.cfg.Cache.SchemaVersion),
		cache.WithCoalescer(s.Coordinator),
	}
	for entity, cfg := range entities {
		opts = append(opts, cache.WithEntityConfig(entity, cfg))
	}

	c, err := cache.New(store, opts...)
	if err != nil {
		return fmt.Errorf("initialise cache: %w", err)
	}
	s.Cache = c
	return nil
}

func (s *runtimeStack) openQueue(ctx context.Context) error {
	var persister queue.Persister
	switch s.cfg.Queue.Persistence {
	case "durable":
		persister = durable.NewQueueStore(s.Durable)
	default:
		persister = queue.NewKVPersister(s.Legacy, s.cfg.Queue.Key)
	}

	q, err := queue.New(ctx, persister)
	if err != nil {
		return fmt.Errorf("load sync queue: %w", err)
	}
	s.Queue = q
	s.log.Info("sync queue loaded", zap.String("persistence", s.cfg.Queue.Persistence), zap.Int("entries", q.Len()))
	return nil
}

func (s *runtimeStack) openRemote(ctx context.Context) error {
	if s.cfg.Remote.Backend != "sql" {
		s.Remote = remote.NewMemoryStore()
		s.log.Info("using in-process remote store")
		return nil
	}

	db, err := database.Open(s.cfg.Remote.Connection())
	if err != nil {
		return fmt.Errorf("open remote database: %w", err)
	}
	s.remoteDB = db

	store, err := remote.NewSQLStore(db)
	if err != nil {
		return err
	}
	if s.cfg.Remote.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure remote schema: %w", err)
		}
	}
	s.Remote = store
	s.log.Info("remote database connected", zap.String("driver", strings.ToLower(s.cfg.Remote.Driver)))
	return nil
}

func (s *runtimeStack) registerHealthChecks() {
	health := s.Monitoring.Health()
	if s.localDB != nil {
		health.Register(checks.LocalStore(s.localDB, 0))
	}
	health.Register(checks.Remote(s.Remote, s.cfg.Remote.ProbeTimeout))
	health.Register(checks.QueueBacklog(s.Queue.Len, s.cfg.Queue.BacklogLimit))
}

func (s *runtimeStack) cacheHitRatio() float64 {
	stats := s.Cache.Stats()
	if lookups := stats.Hits + stats.Misses; lookups > 0 {
		return float64(stats.Hits) / float64(lookups)
	}
	return 0
}

func (s *runtimeStack) newCleaner() *maintenance.Cleaner {
	m := s.cfg.Maintenance
	return maintenance.NewCleaner(maintenance.Targets{
		Cache:   s.Cache,
		Queue:   s.Queue,
		Backups: s.Migration,
		Prober:  s.Monitor,
	},
		maintenance.WithSchedule(maintenance.JobCacheSweep, m.CacheSweep),
		maintenance.WithSchedule(maintenance.JobQueuePrune, m.QueuePrune),
		maintenance.WithSchedule(maintenance.JobBackupPrune, m.BackupPrune),
		maintenance.WithSchedule(maintenance.JobConnectivityProbe, m.ConnectivityProbe),
		maintenance.WithBackupRetention(s.cfg.Migration.BackupRetention),
	)
}

// apiDeps describes the HTTP surface over the stack.
func (s *runtimeStack) apiDeps() (*api.Deps, error) {
	if s == nil || s.Services == nil {
		return nil, fmt.Errorf("bootstrap: runtime not initialised")
	}
	return &api.Deps{
		Services:   s.Services,
		Cache:      s.Cache,
		Queue:      s.Queue,
		Migration:  s.Migration,
		Hub:        s.Hub,
		Monitor:    s.Monitor,
		Monitoring: s.Monitoring,
		MigrationDefaults: migration.Options{
			SkipIfCompleted:  s.cfg.Migration.SkipIfCompleted,
			ClearLegacyAfter: s.cfg.Migration.ClearLegacyAfter,
			Timeout:          s.cfg.Migration.Timeout,
		},
		MetricsEndpoint: s.cfg.Monitoring.Prometheus.Endpoint,
		DisableHealth:   !s.cfg.Monitoring.Health.Enabled,
		DisableMetrics:  !s.cfg.Monitoring.Prometheus.Enabled,
	}, nil
}

// Shutdown closes the database handles opened by bootstrapRuntime.
func (s *runtimeStack) Shutdown(context.Context) error {
	if s == nil {
		return nil
	}
	var errs error
	if s.remoteDB != nil {
		errs = multierr.Append(errs, database.Close(s.remoteDB))
		s.remoteDB = nil
	}
	if s.localDB != nil {
		errs = multierr.Append(errs, database.Close(s.localDB))
		s.localDB = nil
	}
	return errs
}
