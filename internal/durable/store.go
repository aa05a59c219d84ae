package durable

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/quotesync/internal/models"
	"github.com/charlesng35/quotesync/pkg/logger"
)

const defaultTxTimeout = 5 * time.Second

// Store is the durable local database shared by every collection.
// A Store built without a database handle reports Available() == false and
// rejects every call with ErrStorageUnsupported.
type Store struct {
	db        *gorm.DB
	txTimeout time.Duration
	log       *zap.Logger

	unsupportedOnce sync.Once
}

// Option customises a Store.
type Option func(*Store)

// WithTxTimeout bounds every local transaction.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// New wraps an upgraded database handle. db may be nil when local storage could not be opened.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:        db,
		txTimeout: defaultTxTimeout,
		log:       logger.WithModule("durable"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available reports whether local storage is usable.
func (s *Store) Available() bool {
	return s != nil && s.db != nil
}

// DB exposes the underlying handle for maintenance jobs.
func (s *Store) DB() *gorm.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// Count returns the number of records owned by ownerID in an entity collection.
func (s *Store) Count(ctx context.Context, entity models.EntityType, ownerID string) (int64, error) {
	var count int64
	err := s.run(ctx, "count", string(entity), func(tx *gorm.DB) error {
		return tx.Table(string(entity)).Where("owner_id = ?", ownerID).Count(&count).Error
	})
	return count, err
}

// Remove deletes a single record by key from an entity collection.
func (s *Store) Remove(ctx context.Context, entity models.EntityType, key string) error {
	if !entity.Valid() {
		return fmt.Errorf("durable: unknown collection %q", entity)
	}
	return s.run(ctx, "remove", string(entity), func(tx *gorm.DB) error {
		return tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", entity, keyColumn(entity)), key).Error
	})
}

// run executes fn inside a bounded transaction and maps failures onto the package errors.
func (s *Store) run(ctx context.Context, op, table string, fn func(tx *gorm.DB) error) error {
	if !s.Available() {
		if s != nil {
			s.unsupportedOnce.Do(func() {
				s.log.Warn("durable storage unavailable, operating remote-only")
			})
		}
		return ErrStorageUnsupported
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(fn)
	if err == nil {
		return nil
	}
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s %s", ErrDuplicateKey, op, table)
	}
	s.log.Warn("transaction aborted",
		zap.String("op", op),
		zap.String("table", table),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s %s: %w", ErrTransactionAborted, op, table, err)
}

func keyColumn(entity models.EntityType) string {
	if entity == models.EntitySettings {
		return "owner_id"
	}
	return "id"
}
