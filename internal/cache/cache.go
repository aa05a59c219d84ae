package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/quotesync/internal/models"
	"github.com/charlesng35/quotesync/internal/monitoring"
	"github.com/charlesng35/quotesync/pkg/logger"
)

const listSuffix = "list"

// Entry wraps a cached payload with the bookkeeping used to validate it.
type Entry[T any] struct {
	Data          T         `json:"data"`
	Timestamp     time.Time `json:"timestamp"`
	SchemaVersion int       `json:"version"`
	HitCount      int64     `json:"hitCount"`
	LastAccess    time.Time `json:"lastAccess"`
}

// Stats is a snapshot of the cache counters. AvgResponseTime is in milliseconds.
type Stats struct {
	Hits            int64   `json:"hits"`
	Misses          int64   `json:"misses"`
	Errors          int64   `json:"errors"`
	AvgResponseTime float64 `json:"avgResponseTime"`
	TotalRequests   int64   `json:"totalRequests"`
}

// Coalescer collapses concurrent identical fetches.
type Coalescer interface {
	Coalesce(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error)
}

// Cache is the volatile, versioned, TTL-bound tier in front of local and remote storage.
type Cache struct {
	store     Store
	version   int
	configs   map[models.EntityType]EntityConfig
	now       func() time.Time
	coalescer Coalescer
	log       *zap.Logger

	// mu orders backend writes so hit bookkeeping never rewrites an entry that
	// was replaced or invalidated after it was read.
	mu sync.Mutex

	hits      atomic.Int64
	misses    atomic.Int64
	errors    atomic.Int64
	requests  atomic.Int64
	latencyNs atomic.Int64
}

// Option customises a Cache.
type Option func(*Cache)

// WithSchemaVersion sets the version stamped on, and required of, every entry.
func WithSchemaVersion(version int) Option {
	return func(c *Cache) {
		if version > 0 {
			c.version = version
		}
	}
}

// WithEntityConfig overrides the settings for one entity type.
func WithEntityConfig(entity models.EntityType, cfg EntityConfig) Option {
	return func(c *Cache) {
		c.configs[entity] = cfg
	}
}

// WithClock overrides the time source used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCoalescer routes Coalesce through the request coordinator.
func WithCoalescer(coalescer Coalescer) Option {
	return func(c *Cache) {
		c.coalescer = coalescer
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Cache) {
		if log != nil {
			c.log = log
		}
	}
}

// New constructs a Cache over store.
func New(store Store, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, errors.New("cache: store is required")
	}
	c := &Cache{
		store:   store,
		version: DefaultSchemaVersion,
		configs: DefaultEntityConfigs(),
		now:     time.Now,
		log:     logger.WithModule("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Key returns the cache key for an entity record, or for the entity's list when id is empty.
func Key(entity models.EntityType, id string) string {
	if id == "" {
		id = listSuffix
	}
	return string(entity) + ":" + id
}

// ListID returns the id under which one owner's list of entity records is cached.
// Owner lists share the entity list prefix, so invalidating a record drops them too.
func ListID(ownerID string) string {
	if ownerID == "" {
		return listSuffix
	}
	return listSuffix + ":" + ownerID
}

func prefix(entity models.EntityType) string {
	return string(entity) + ":"
}

// Config returns the effective settings for entity.
func (c *Cache) Config(entity models.EntityType) EntityConfig {
	cfg, ok := c.configs[entity]
	if !ok || cfg.TTL <= 0 {
		cfg.TTL = fallbackTTL
	}
	return cfg
}

// Configs returns a copy of every entity configuration.
func (c *Cache) Configs() map[models.EntityType]EntityConfig {
	out := make(map[models.EntityType]EntityConfig, len(c.configs))
	for entity := range c.configs {
		out[entity] = c.Config(entity)
	}
	return out
}

// SchemaVersion returns the version entries must carry to be served.
func (c *Cache) SchemaVersion() int { return c.version }

// Get returns the cached value for entity/id (the entity list when id is empty).
// Expired or version-mismatched entries are removed and reported as misses.
// Backend failures are counted as errors and also reported as misses.
func Get[T any](ctx context.Context, c *Cache, entity models.EntityType, id string) (T, bool) {
	var zero T
	start := time.Now()
	key := Key(entity, id)
	result := "miss"
	defer func() {
		c.finish(entity, result, time.Since(start))
	}()

	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		result = "error"
		c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	if !found {
		return zero, false
	}

	var entry Entry[T]
	if err := json.Unmarshal(raw, &entry); err != nil {
		result = "error"
		c.log.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		c.drop(ctx, key)
		return zero, false
	}

	now := c.now()
	cfg := c.Config(entity)
	age := now.Sub(entry.Timestamp)
	if entry.SchemaVersion != c.version || age >= cfg.TTL {
		c.drop(ctx, key)
		return zero, false
	}

	entry.HitCount++
	entry.LastAccess = now
	if encoded, err := json.Marshal(entry); err == nil {
		c.touch(ctx, key, raw, encoded, cfg.TTL-age)
	}

	result = "hit"
	return entry.Data, true
}

// Peek returns the entry for entity/id while the backend still holds it, ignoring
// its age. Entries from another schema version are never served. Peek leaves the
// counters and hit bookkeeping untouched.
func Peek[T any](ctx context.Context, c *Cache, entity models.EntityType, id string) (T, bool) {
	var zero T
	raw, found, err := c.store.Get(ctx, Key(entity, id))
	if err != nil || !found {
		return zero, false
	}
	var entry Entry[T]
	if err := json.Unmarshal(raw, &entry); err != nil || entry.SchemaVersion != c.version {
		return zero, false
	}
	return entry.Data, true
}

// Set stores data for entity/id (the entity list when id is empty) with the entity's TTL.
func Set[T any](ctx context.Context, c *Cache, entity models.EntityType, data T, id string) {
	key := Key(entity, id)
	now := c.now()
	entry := Entry[T]{
		Data:          data,
		Timestamp:     now,
		SchemaVersion: c.version,
		LastAccess:    now,
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		c.errors.Add(1)
		c.log.Warn("cache entry unencodable", zap.String("key", key), zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Set(ctx, key, encoded, c.Config(entity).TTL); err != nil {
		c.errors.Add(1)
		c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate removes the entry for id together with the entity's list entry, then
// drops every entity type that depends on it. Invalidating settings clears the cache.
func (c *Cache) Invalidate(ctx context.Context, entity models.EntityType, id string) {
	if clearsEverything(entity) {
		c.ClearAll(ctx)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, target := range cascade(entity).ToSlice() {
		var err error
		if target == entity && id != "" {
			err = c.store.Delete(ctx, Key(target, id))
			if err == nil {
				err = c.store.DeletePrefix(ctx, Key(target, ""))
			}
		} else {
			err = c.store.DeletePrefix(ctx, prefix(target))
		}
		if err != nil {
			c.errors.Add(1)
			c.log.Warn("cache invalidation failed", zap.String("entity", string(target)), zap.Error(err))
			continue
		}
		monitoring.RecordCacheInvalidation(string(target))
	}
}

// ClearAll drops every cached entity.
func (c *Cache) ClearAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entity := range models.EntityTypes {
		if err := c.store.DeletePrefix(ctx, prefix(entity)); err != nil {
			c.errors.Add(1)
			c.log.Warn("cache clear failed", zap.String("entity", string(entity)), zap.Error(err))
			continue
		}
		monitoring.RecordCacheInvalidation(string(entity))
	}
}

// Coalesce runs fn once for concurrent callers sharing key.
func (c *Cache) Coalesce(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	if c.coalescer == nil {
		return fn(ctx)
	}
	return c.coalescer.Coalesce(ctx, key, fn)
}

// PurgeExpired asks the backend to drop expired entries.
func (c *Cache) PurgeExpired(ctx context.Context) (int, error) {
	removed, err := c.store.PurgeExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("cache: purge expired: %w", err)
	}
	return removed, nil
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	total := c.requests.Load()
	stats := Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Errors:        c.errors.Load(),
		TotalRequests: total,
	}
	if total > 0 {
		stats.AvgResponseTime = float64(c.latencyNs.Load()) / float64(total) / float64(time.Millisecond)
	}
	return stats
}

// ResetMetrics zeroes every counter.
func (c *Cache) ResetMetrics() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.errors.Store(0)
	c.requests.Store(0)
	c.latencyNs.Store(0)
}

func (c *Cache) finish(entity models.EntityType, result string, elapsed time.Duration) {
	c.requests.Add(1)
	c.latencyNs.Add(int64(elapsed))
	switch result {
	case "hit":
		c.hits.Add(1)
	case "error":
		c.errors.Add(1)
		c.misses.Add(1)
	default:
		c.misses.Add(1)
	}
	monitoring.RecordCacheLookup(string(entity), result, elapsed)
}

// touch stores the updated hit bookkeeping only while the backend still holds
// the bytes that were read.
func (c *Cache) touch(ctx context.Context, key string, read, updated []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, found, err := c.store.Get(ctx, key)
	if err != nil || !found || !bytes.Equal(current, read) {
		return
	}
	if err := c.store.Set(ctx, key, updated, ttl); err != nil {
		c.log.Debug("cache hit bookkeeping failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) drop(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Delete(ctx, key); err != nil {
		c.log.Debug("cache delete failed", zap.String("key", key), zap.Error(err))
	}
}
