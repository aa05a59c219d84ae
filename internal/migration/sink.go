package migration

import (
	"context"
	"fmt"

	"github.com/charlesng35/quotesync/internal/durable"
	"github.com/charlesng35/quotesync/internal/models"
)

// Sink receives migrated records.
type Sink interface {
	Available() bool
	Count(ctx context.Context, entity models.EntityType, ownerID string) (int64, error)
	Insert(ctx context.Context, entity models.EntityType, fields map[string]any) (string, error)
	Remove(ctx context.Context, entity models.EntityType, key string) error
}

// DurableSink writes migrated records into the durable local store.
type DurableSink struct {
	store     *durable.Store
	customers *durable.Collection[models.Customer]
	items     *durable.Collection[models.Item]
	quotes    *durable.Collection[models.Quote]
	settings  *durable.Collection[models.Settings]
}

// NewDurableSink wraps store. A nil store yields an unavailable sink.
func NewDurableSink(store *durable.Store) *DurableSink {
	if store == nil {
		store = durable.New(nil)
	}
	return &DurableSink{
		store:     store,
		customers: durable.NewCollection[models.Customer](store, models.EntityCustomers),
		items:     durable.NewCollection[models.Item](store, models.EntityItems),
		quotes:    durable.NewCollection[models.Quote](store, models.EntityQuotes),
		settings:  durable.NewCollection[models.Settings](store, models.EntitySettings),
	}
}

func (s *DurableSink) Available() bool { return s.store.Available() }

func (s *DurableSink) Count(ctx context.Context, entity models.EntityType, ownerID string) (int64, error) {
	return s.store.Count(ctx, entity, ownerID)
}

func (s *DurableSink) Insert(ctx context.Context, entity models.EntityType, fields map[string]any) (string, error) {
	switch entity {
	case models.EntityCustomers:
		return insert(ctx, s.customers, fields)
	case models.EntityItems:
		return insert(ctx, s.items, fields)
	case models.EntityQuotes:
		return insert(ctx, s.quotes, fields)
	case models.EntitySettings:
		return insert(ctx, s.settings, fields)
	}
	return "", fmt.Errorf("migration: unknown entity %q", entity)
}

func (s *DurableSink) Remove(ctx context.Context, entity models.EntityType, key string) error {
	return s.store.Remove(ctx, entity, key)
}

func insert[T models.Record](ctx context.Context, collection *durable.Collection[T], fields map[string]any) (string, error) {
	record, err := models.Decode[T](fields)
	if err != nil {
		return "", err
	}
	if err := collection.Add(ctx, record); err != nil {
		return "", err
	}
	return record.RecordKey(), nil
}
