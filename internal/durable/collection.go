package durable

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/quotesync/internal/models"
)

// secondary indexes that GetByIndex may query, per collection.
var indexedColumns = map[models.EntityType][]string{
	models.EntityCustomers: {"name", "created_at"},
	models.EntityItems:     {"category", "created_at"},
	models.EntityQuotes:    {"customer_id", "status", "created_at", "quote_number"},
}

// Collection is a typed view over one entity table.
type Collection[T models.Record] struct {
	store  *Store
	entity models.EntityType
	key    string
}

// NewCollection binds a typed collection to the store.
func NewCollection[T models.Record](store *Store, entity models.EntityType) *Collection[T] {
	return &Collection[T]{store: store, entity: entity, key: keyColumn(entity)}
}

// Entity returns the collection name.
func (c *Collection[T]) Entity() models.EntityType { return c.entity }

// Available reports whether the backing store is usable.
func (c *Collection[T]) Available() bool { return c != nil && c.store.Available() }

// Add inserts a new record, failing with ErrDuplicateKey if the key or a unique column exists.
func (c *Collection[T]) Add(ctx context.Context, record T) error {
	return c.store.run(ctx, "add", c.table(), func(tx *gorm.DB) error {
		return tx.Create(&record).Error
	})
}

// Get loads a record by key. A miss is reported as found == false with a nil error.
func (c *Collection[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var (
		out   T
		found bool
	)
	err := c.store.run(ctx, "get", c.table(), func(tx *gorm.DB) error {
		err := tx.Where(c.key+" = ?", key).Take(&out).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return out, found, err
}

// Update writes record, inserting it when the key is absent.
func (c *Collection[T]) Update(ctx context.Context, record T) error {
	return c.store.run(ctx, "update", c.table(), func(tx *gorm.DB) error {
		return upsert(tx, &record)
	})
}

// Delete removes ownerID's record with key. Deleting a missing key, or one held
// by another owner, is not an error and leaves the table unchanged.
func (c *Collection[T]) Delete(ctx context.Context, ownerID, key string) error {
	return c.store.run(ctx, "delete", c.table(), func(tx *gorm.DB) error {
		return tx.Where(c.key+" = ?", key).Where("owner_id = ?", ownerID).Delete(new(T)).Error
	})
}

// GetAll returns every record owned by ownerID in creation order.
func (c *Collection[T]) GetAll(ctx context.Context, ownerID string) ([]T, error) {
	out := make([]T, 0)
	err := c.store.run(ctx, "get all", c.table(), func(tx *gorm.DB) error {
		return tx.Where("owner_id = ?", ownerID).Order("created_at").Find(&out).Error
	})
	return out, err
}

// GetByIndex returns owned records whose indexed column equals value.
func (c *Collection[T]) GetByIndex(ctx context.Context, ownerID, column string, value any) ([]T, error) {
	if !c.indexed(column) {
		return nil, fmt.Errorf("durable: %s has no index on %q", c.entity, column)
	}
	out := make([]T, 0)
	err := c.store.run(ctx, "get by index", c.table(), func(tx *gorm.DB) error {
		return tx.Where("owner_id = ?", ownerID).
			Where(column+" = ?", value).
			Order("created_at").
			Find(&out).Error
	})
	return out, err
}

// Count returns the number of records owned by ownerID.
func (c *Collection[T]) Count(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	err := c.store.run(ctx, "count", c.table(), func(tx *gorm.DB) error {
		return tx.Model(new(T)).Where("owner_id = ?", ownerID).Count(&count).Error
	})
	return count, err
}

// Clear deletes every record owned by ownerID inside a single transaction and
// returns how many were removed.
func (c *Collection[T]) Clear(ctx context.Context, ownerID string) (int, error) {
	removed := 0
	err := c.store.run(ctx, "clear", c.table(), func(tx *gorm.DB) error {
		var records []T
		if err := tx.Where("owner_id = ?", ownerID).Find(&records).Error; err != nil {
			return err
		}
		for _, record := range records {
			if err := tx.Where(c.key+" = ?", record.RecordKey()).Delete(new(T)).Error; err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// ReplaceAll makes records the complete owned contents of the collection.
func (c *Collection[T]) ReplaceAll(ctx context.Context, ownerID string, records []T) error {
	return c.store.run(ctx, "replace all", c.table(), func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ?", ownerID).Delete(new(T)).Error; err != nil {
			return err
		}
		for i := range records {
			if err := upsert(tx, &records[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Collection[T]) table() string { return string(c.entity) }

func (c *Collection[T]) indexed(column string) bool {
	for _, candidate := range indexedColumns[c.entity] {
		if candidate == column {
			return true
		}
	}
	return false
}

func upsert(tx *gorm.DB, value any) error {
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(value).Error
}
