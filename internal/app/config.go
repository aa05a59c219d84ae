package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/charlesng35/quotesync/internal/cache"
	"github.com/charlesng35/quotesync/internal/coordinator"
	"github.com/charlesng35/quotesync/internal/database"
	"github.com/charlesng35/quotesync/internal/models"
)

// Config represents the runtime configuration for the quotesync data layer.
type Config struct {
	DataDir     string            `mapstructure:"data_dir"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Remote      RemoteConfig      `mapstructure:"remote"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Legacy      LegacyConfig      `mapstructure:"legacy"`
	Migration   MigrationConfig   `mapstructure:"migration"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the local HTTP surface.
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	// LogFormat is "json" or "console".
	LogFormat string `mapstructure:"log_format"`
}

// Address returns the listen address for the HTTP server.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig describes the durable local store. Disabling it leaves the
// services remote-only.
type DatabaseConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Driver    string        `mapstructure:"driver"`
	Path      string        `mapstructure:"path"`
	DSN       string        `mapstructure:"dsn"`
	TxTimeout time.Duration `mapstructure:"tx_timeout"`
}

// Connection converts the section into database.Config.
func (d DatabaseConfig) Connection() database.Config {
	return database.Config{Driver: d.Driver, Path: d.Path, DSN: d.DSN}
}

// RemoteConfig selects the backend the services synchronise with.
type RemoteConfig struct {
	// Backend is "sql" for a gorm-backed database or "memory" for an
	// in-process store.
	Backend      string        `mapstructure:"backend"`
	Driver       string        `mapstructure:"driver"`
	DSN          string        `mapstructure:"dsn"`
	Path         string        `mapstructure:"path"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Name         string        `mapstructure:"name"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	EnsureSchema bool          `mapstructure:"ensure_schema"`
	StartOnline  bool          `mapstructure:"start_online"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// Connection converts the section into database.Config for the SQL backend.
func (r RemoteConfig) Connection() database.Config {
	return database.Config{
		Driver:   r.Driver,
		DSN:      r.DSN,
		Path:     r.Path,
		Host:     r.Host,
		Port:     r.Port,
		Name:     r.Name,
		User:     r.User,
		Password: r.Password,

		MaxOpenConns: r.MaxOpenConns,
	}
}

// CacheConfig describes the volatile cache.
type CacheConfig struct {
	// Backend is "memory" (ttlcache) or "database" (rows in the local store).
	Backend       string                       `mapstructure:"backend"`
	Capacity      uint64                       `mapstructure:"capacity"`
	SchemaVersion int                          `mapstructure:"schema_version"`
	Entities      map[string]CacheEntityConfig `mapstructure:"entities"`
}

// CacheEntityConfig overrides the built-in settings for one entity.
type CacheEntityConfig struct {
	TTL      time.Duration `mapstructure:"ttl"`
	Priority string        `mapstructure:"priority"`
	Preload  *bool         `mapstructure:"preload"`
	Strategy string        `mapstructure:"strategy"`
}

// EntityConfigs merges configured overrides onto cache.DefaultEntityConfigs.
// Unknown entity names are rejected.
func (c CacheConfig) EntityConfigs() (map[models.EntityType]cache.EntityConfig, error) {
	configs := cache.DefaultEntityConfigs()
	for name, override := range c.Entities {
		entity := models.EntityType(strings.ToLower(strings.TrimSpace(name)))
		if !entity.Valid() {
			return nil, fmt.Errorf("config: cache.entities: unknown entity %q", name)
		}
		cfg := configs[entity]
		if override.TTL > 0 {
			cfg.TTL = override.TTL
		}
		if p := strings.TrimSpace(override.Priority); p != "" {
			cfg.Priority = cache.Priority(p)
		}
		if override.Preload != nil {
			cfg.Preload = *override.Preload
		}
		if s := strings.TrimSpace(override.Strategy); s != "" {
			cfg.Strategy = cache.Strategy(s)
		}
		configs[entity] = cfg
	}
	return configs, nil
}

// CoordinatorConfig tunes outbound admission and deduplication.
type CoordinatorConfig struct {
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	MaxAge         time.Duration `mapstructure:"max_age"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Options converts the section into coordinator.Options.
func (c CoordinatorConfig) Options() coordinator.Options {
	return coordinator.Options{
		MaxConcurrent:  c.MaxConcurrent,
		MaxAge:         c.MaxAge,
		RequestTimeout: c.RequestTimeout,
	}
}

// QueueConfig controls where the offline mutation queue is persisted.
type QueueConfig struct {
	// Persistence is "kvstore" (legacy flat store) or "durable" (local database).
	Persistence string `mapstructure:"persistence"`
	Key         string `mapstructure:"key"`
	// BacklogLimit degrades health once more changes than this await sync.
	BacklogLimit int `mapstructure:"backlog_limit"`
}

// LegacyConfig locates the flat key/value store written by earlier releases.
type LegacyConfig struct {
	Dir string `mapstructure:"dir"`
}

// MigrationConfig sets defaults for legacy data migration.
type MigrationConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	SkipIfCompleted  bool          `mapstructure:"skip_if_completed"`
	ClearLegacyAfter bool          `mapstructure:"clear_legacy_after"`
	BackupRetention  time.Duration `mapstructure:"backup_retention"`
}

// MaintenanceConfig schedules housekeeping jobs using cron expressions.
// An empty schedule disables the job.
type MaintenanceConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CacheSweep        string `mapstructure:"cache_sweep"`
	QueuePrune        string `mapstructure:"queue_prune"`
	BackupPrune       string `mapstructure:"backup_prune"`
	ConnectivityProbe string `mapstructure:"connectivity_probe"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Namespace string `mapstructure:"namespace"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("QUOTESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "")
	v.SetDefault("database.tx_timeout", "10s")

	v.SetDefault("remote.backend", "memory")
	v.SetDefault("remote.driver", "postgres")
	v.SetDefault("remote.max_open_conns", 4)
	v.SetDefault("remote.ensure_schema", false)
	v.SetDefault("remote.start_online", true)
	v.SetDefault("remote.probe_timeout", "5s")

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.capacity", 0)
	v.SetDefault("cache.schema_version", cache.DefaultSchemaVersion)

	v.SetDefault("coordinator.max_concurrent", coordinator.DefaultMaxConcurrent)
	v.SetDefault("coordinator.max_age", coordinator.DefaultMaxAge.String())
	v.SetDefault("coordinator.request_timeout", coordinator.DefaultRequestTimeout.String())

	v.SetDefault("queue.persistence", "kvstore")
	v.SetDefault("queue.key", "sync_queue")
	v.SetDefault("queue.backlog_limit", 500)

	v.SetDefault("legacy.dir", "")

	v.SetDefault("migration.timeout", "60s")
	v.SetDefault("migration.skip_if_completed", true)
	v.SetDefault("migration.clear_legacy_after", false)
	v.SetDefault("migration.backup_retention", "168h") // 7 days

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.cache_sweep", "@every 5m")
	v.SetDefault("maintenance.queue_prune", "@every 15m")
	v.SetDefault("maintenance.backup_prune", "@daily")
	v.SetDefault("maintenance.connectivity_probe", "@every 30s")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.prometheus.namespace", "quotesync")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
