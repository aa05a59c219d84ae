package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/quotesync/internal/monitoring"
	"github.com/charlesng35/quotesync/pkg/logger"
)

const (
	JobCacheSweep        = "cache_sweep"
	JobQueuePrune        = "queue_prune"
	JobBackupPrune       = "backup_prune"
	JobConnectivityProbe = "connectivity_probe"

	defaultCacheSweepSpec  = "@every 5m"
	defaultQueuePruneSpec  = "@every 15m"
	defaultBackupPruneSpec = "@daily"
	defaultProbeSpec       = "@every 30s"

	defaultBackupRetention = 7 * 24 * time.Hour
)

// CacheSweeper drops expired cache entries.
type CacheSweeper interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// QueuePruner removes queue entries the external driver has confirmed.
type QueuePruner interface {
	PruneSynced(ctx context.Context) (int, error)
}

// BackupPruner deletes migration backups older than the retention window.
type BackupPruner interface {
	PruneBackups(ctx context.Context, retention time.Duration) (int, error)
}

// Prober refreshes the connectivity flag.
type Prober interface {
	Probe(ctx context.Context) bool
}

// Cleaner schedules housekeeping for the data layer. It never replays queued
// mutations; that belongs to the external queue driver.
type Cleaner struct {
	cron *cron.Cron
	log  *zap.Logger
	jobs []job

	retention time.Duration
	schedules map[string]string
}

type job struct {
	name string
	run  func(ctx context.Context) (int, error)
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSchedule overrides the cron specification for a job. An empty spec
// disables the job.
func WithSchedule(name, spec string) Option {
	return func(cleaner *Cleaner) {
		cleaner.schedules[name] = spec
	}
}

// WithBackupRetention adjusts how long migration backups are kept.
func WithBackupRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.retention = d
		}
	}
}

// Targets lists the components the Cleaner maintains. Nil members are skipped.
type Targets struct {
	Cache   CacheSweeper
	Queue   QueuePruner
	Backups BackupPruner
	Prober  Prober
}

// NewCleaner constructs a Cleaner with default schedules.
func NewCleaner(targets Targets, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		log:       logger.WithModule("maintenance"),
		retention: defaultBackupRetention,
		schedules: map[string]string{
			JobCacheSweep:        defaultCacheSweepSpec,
			JobQueuePrune:        defaultQueuePruneSpec,
			JobBackupPrune:       defaultBackupPruneSpec,
			JobConnectivityProbe: defaultProbeSpec,
		},
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	if targets.Cache != nil {
		cleaner.jobs = append(cleaner.jobs, job{name: JobCacheSweep, run: targets.Cache.PurgeExpired})
	}
	if targets.Queue != nil {
		cleaner.jobs = append(cleaner.jobs, job{name: JobQueuePrune, run: targets.Queue.PruneSynced})
	}
	if targets.Backups != nil {
		backups := targets.Backups
		cleaner.jobs = append(cleaner.jobs, job{name: JobBackupPrune, run: func(ctx context.Context) (int, error) {
			return backups.PruneBackups(ctx, cleaner.retention)
		}})
	}
	if targets.Prober != nil {
		prober := targets.Prober
		cleaner.jobs = append(cleaner.jobs, job{name: JobConnectivityProbe, run: func(ctx context.Context) (int, error) {
			if prober.Probe(ctx) {
				return 1, nil
			}
			return 0, nil
		}})
	}

	return cleaner
}

// Jobs returns the names of the jobs that will be scheduled.
func (c *Cleaner) Jobs() []string {
	names := make([]string, 0, len(c.jobs))
	for _, j := range c.jobs {
		if c.schedules[j.name] != "" {
			names = append(names, j.name)
		}
	}
	return names
}

// Start registers jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	scheduled := 0
	for _, j := range c.jobs {
		spec := c.schedules[j.name]
		if spec == "" {
			continue
		}
		if _, err := c.cron.AddFunc(spec, func() {
			if err := c.execute(context.Background(), j); err != nil {
				c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return err
		}
		scheduled++
	}

	if scheduled == 0 {
		return nil
	}
	c.cron.Start()
	c.log.Info("maintenance scheduler started", zap.Strings("jobs", c.Jobs()))
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured job sequentially, regardless of schedule.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs {
		errs = multierr.Append(errs, c.execute(ctx, j))
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	started := time.Now()
	affected, err := j.run(ctx)

	result := "success"
	if err != nil {
		result = "error"
	}
	monitoring.RecordMaintenanceRun(j.name, result, time.Since(started))

	if err != nil {
		return err
	}
	if affected > 0 && j.name != JobConnectivityProbe {
		c.log.Debug("maintenance job completed", zap.String("job", j.name), zap.Int("affected", affected))
	}
	return nil
}
