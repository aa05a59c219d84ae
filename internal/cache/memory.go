package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore keeps cache entries in process memory.
type MemoryStore struct {
	items *ttlcache.Cache[string, []byte]
}

// NewMemoryStore constructs an in-memory Store. A zero capacity means unbounded.
func NewMemoryStore(capacity uint64) *MemoryStore {
	opts := []ttlcache.Option[string, []byte]{
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []byte](capacity))
	}
	return &MemoryStore{items: ttlcache.New(opts...)}
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return errors.New("cache: memory store not initialised")
	}
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	s.items.Set(key, value, ttl)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, errors.New("cache: memory store not initialised")
	}
	item := s.items.Get(key)
	if item == nil {
		return nil, false, nil
	}
	return item.Value(), true, nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	if s == nil {
		return errors.New("cache: memory store not initialised")
	}
	for _, key := range keys {
		s.items.Delete(key)
	}
	return nil
}

func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	if s == nil {
		return errors.New("cache: memory store not initialised")
	}
	for _, key := range s.items.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.items.Delete(key)
		}
	}
	return nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context) (int, error) {
	if s == nil {
		return 0, errors.New("cache: memory store not initialised")
	}
	before := s.items.Len()
	s.items.DeleteExpired()
	return before - s.items.Len(), nil
}

// Len reports the number of stored entries, including expired ones not yet purged.
func (s *MemoryStore) Len() int {
	if s == nil {
		return 0
	}
	return s.items.Len()
}
