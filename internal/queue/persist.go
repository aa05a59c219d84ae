package queue

import (
	"context"

	"github.com/charlesng35/quotesync/internal/kvstore"
	"github.com/charlesng35/quotesync/internal/models"
)

// DefaultQueueKey is the key-value store key holding the serialised queue.
const DefaultQueueKey = "offline_queue"

// Persister loads and saves the ordered queue.
type Persister interface {
	Load(ctx context.Context) ([]models.SyncQueueEntry, error)
	Save(ctx context.Context, entries []models.SyncQueueEntry) error
}

// KVPersister stores the queue as one JSON list in a key-value store, independent
// of the durable local database.
type KVPersister struct {
	store kvstore.Store
	key   string
}

// NewKVPersister binds queue persistence to store. An empty key selects DefaultQueueKey.
func NewKVPersister(store kvstore.Store, key string) *KVPersister {
	if key == "" {
		key = DefaultQueueKey
	}
	return &KVPersister{store: store, key: key}
}

func (p *KVPersister) Load(ctx context.Context) ([]models.SyncQueueEntry, error) {
	entries, _, err := kvstore.GetJSON[[]models.SyncQueueEntry](ctx, p.store, p.key)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (p *KVPersister) Save(ctx context.Context, entries []models.SyncQueueEntry) error {
	if entries == nil {
		entries = []models.SyncQueueEntry{}
	}
	return kvstore.SetJSON(ctx, p.store, p.key, entries)
}

// nopPersister keeps the queue in memory only.
type nopPersister struct{}

func (nopPersister) Load(context.Context) ([]models.SyncQueueEntry, error) { return nil, nil }
func (nopPersister) Save(context.Context, []models.SyncQueueEntry) error   { return nil }
