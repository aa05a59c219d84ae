package cache

import (
	"time"

	"github.com/charlesng35/quotesync/internal/models"
)

// Priority ranks entity types for warm-up ordering.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Strategy tells callers how an entity type prefers to be read.
type Strategy string

const (
	StrategyCacheFirst           Strategy = "cache-first"
	StrategyNetworkFirst         Strategy = "network-first"
	StrategyStaleWhileRevalidate Strategy = "stale-while-revalidate"
)

// DefaultSchemaVersion is bumped whenever cached payload shapes change.
const DefaultSchemaVersion = 3

// EntityConfig tunes caching for one entity type.
type EntityConfig struct {
	TTL      time.Duration `json:"ttl"`
	Priority Priority      `json:"priority"`
	Preload  bool          `json:"preload"`
	Strategy Strategy      `json:"strategy"`
}

// DefaultEntityConfigs returns the built-in per-entity settings.
func DefaultEntityConfigs() map[models.EntityType]EntityConfig {
	return map[models.EntityType]EntityConfig{
		models.EntityCustomers: {TTL: 10 * time.Minute, Priority: PriorityHigh, Preload: true, Strategy: StrategyCacheFirst},
		models.EntityItems:     {TTL: 15 * time.Minute, Priority: PriorityMedium, Preload: true, Strategy: StrategyStaleWhileRevalidate},
		models.EntityQuotes:    {TTL: 5 * time.Minute, Priority: PriorityHigh, Preload: false, Strategy: StrategyNetworkFirst},
		models.EntitySettings:  {TTL: 30 * time.Minute, Priority: PriorityLow, Preload: true, Strategy: StrategyCacheFirst},
	}
}

const fallbackTTL = 5 * time.Minute
