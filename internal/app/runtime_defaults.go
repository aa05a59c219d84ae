package app

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	defaultDatabaseFile = "quotesync.sqlite"
	defaultLegacyDir    = "legacy"
)

// ApplyRuntimeDefaults fills paths derived from the data directory and normalises
// enum-like settings. It returns the keys that were derived so callers can log them.
func ApplyRuntimeDefaults(cfg *Config) (map[string]string, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	derived := make(map[string]string)
	dataDir := strings.TrimSpace(cfg.DataDir)
	if dataDir == "" {
		dataDir = "."
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Enabled && (driver == "" || strings.HasPrefix(driver, "sqlite")) && strings.TrimSpace(cfg.Database.Path) == "" && cfg.Database.DSN == "" {
		cfg.Database.Path = filepath.Join(dataDir, defaultDatabaseFile)
		derived["database.path"] = cfg.Database.Path
	}
	if strings.TrimSpace(cfg.Legacy.Dir) == "" {
		cfg.Legacy.Dir = filepath.Join(dataDir, defaultLegacyDir)
		derived["legacy.dir"] = cfg.Legacy.Dir
	}

	cfg.Remote.Backend = strings.ToLower(strings.TrimSpace(cfg.Remote.Backend))
	switch cfg.Remote.Backend {
	case "":
		cfg.Remote.Backend = "memory"
		derived["remote.backend"] = cfg.Remote.Backend
	case "memory", "sql":
	default:
		return nil, fmt.Errorf("config: unsupported remote backend %q", cfg.Remote.Backend)
	}

	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	switch cfg.Cache.Backend {
	case "":
		cfg.Cache.Backend = "memory"
		derived["cache.backend"] = cfg.Cache.Backend
	case "memory":
	case "database":
		if !cfg.Database.Enabled {
			return nil, fmt.Errorf("config: cache backend %q requires database.enabled", cfg.Cache.Backend)
		}
	default:
		return nil, fmt.Errorf("config: unsupported cache backend %q", cfg.Cache.Backend)
	}

	cfg.Queue.Persistence = strings.ToLower(strings.TrimSpace(cfg.Queue.Persistence))
	switch cfg.Queue.Persistence {
	case "":
		cfg.Queue.Persistence = "kvstore"
		derived["queue.persistence"] = cfg.Queue.Persistence
	case "kvstore":
	case "durable":
		if !cfg.Database.Enabled {
			return nil, fmt.Errorf("config: queue persistence %q requires database.enabled", cfg.Queue.Persistence)
		}
	default:
		return nil, fmt.Errorf("config: unsupported queue persistence %q", cfg.Queue.Persistence)
	}
	if strings.TrimSpace(cfg.Queue.Key) == "" {
		cfg.Queue.Key = "sync_queue"
		derived["queue.key"] = cfg.Queue.Key
	}

	return derived, nil
}
