package durable

import (
	"context"

	"gorm.io/gorm"

	"github.com/charlesng35/quotesync/internal/models"
)

// QueueStore persists the offline mutation queue in the sync_queue table.
type QueueStore struct {
	store *Store
}

// NewQueueStore binds queue persistence to the durable store.
func NewQueueStore(store *Store) *QueueStore {
	return &QueueStore{store: store}
}

// Load returns every persisted entry in insertion order.
func (q *QueueStore) Load(ctx context.Context) ([]models.SyncQueueEntry, error) {
	entries := make([]models.SyncQueueEntry, 0)
	err := q.store.run(ctx, "load", "sync_queue", func(tx *gorm.DB) error {
		return tx.Order("id").Find(&entries).Error
	})
	return entries, err
}

// Save replaces the persisted queue with entries.
func (q *QueueStore) Save(ctx context.Context, entries []models.SyncQueueEntry) error {
	return q.store.run(ctx, "save", "sync_queue", func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM sync_queue").Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.CreateInBatches(&entries, 100).Error
	})
}
