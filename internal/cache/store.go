package cache

import (
	"context"
	"time"
)

// Store is the byte-oriented backend behind the volatile cache.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
	// PurgeExpired drops expired entries and reports how many were removed.
	PurgeExpired(ctx context.Context) (int, error)
}
