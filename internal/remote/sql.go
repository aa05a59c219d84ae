package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charlesng35/quotesync/internal/models"
	"gorm.io/gorm"
)

// SQLStore talks to a hosted relational backend through gorm. The backend owns
// created_at/updated_at; values sent by the client for those columns are replaced.
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSQLStore wraps an open gorm connection.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("remote: db is required")
	}
	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// EnsureSchema creates the remote tables. Hosted backends manage their own
// schema; this is used for local development databases.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(schemaModels()...); err != nil {
		return fmt.Errorf("remote: ensure schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Select(ctx context.Context, table models.EntityType, ownerID string) ([]map[string]any, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	var rows []map[string]any
	err := s.db.WithContext(ctx).
		Table(table.String()).
		Where(OwnerColumn+" = ?", ownerID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("remote: select %s: %w", table, err)
	}
	return rows, nil
}

func (s *SQLStore) Insert(ctx context.Context, table models.EntityType, row map[string]any) (map[string]any, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	values, err := encodeRow(row)
	if err != nil {
		return nil, err
	}
	key, _ := values[KeyColumn(table)].(string)
	if key == "" {
		return nil, fmt.Errorf("remote: insert %s: missing %s", table, KeyColumn(table))
	}
	now := s.now()
	if _, ok := values["created_at"]; !ok {
		values["created_at"] = now
	}
	values["updated_at"] = now

	if err := s.db.WithContext(ctx).Table(table.String()).Create(values).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("remote: insert %s: %w", table, ErrConflict)
		}
		return nil, fmt.Errorf("remote: insert %s: %w", table, err)
	}
	return s.fetch(ctx, table, key)
}

func (s *SQLStore) Update(ctx context.Context, table models.EntityType, key, ownerID string, row map[string]any) (map[string]any, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	values, err := encodeRow(row)
	if err != nil {
		return nil, err
	}
	delete(values, KeyColumn(table))
	delete(values, OwnerColumn)
	delete(values, "created_at")
	values["updated_at"] = s.now()

	res := s.db.WithContext(ctx).
		Table(table.String()).
		Where(KeyColumn(table)+" = ? AND "+OwnerColumn+" = ?", key, ownerID).
		Updates(values)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("remote: update %s: %w", table, ErrConflict)
		}
		return nil, fmt.Errorf("remote: update %s: %w", table, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("remote: update %s %s: %w", table, key, ErrNotFound)
	}
	return s.fetch(ctx, table, key)
}

// Delete is idempotent: removing a missing row succeeds.
func (s *SQLStore) Delete(ctx context.Context, table models.EntityType, key, ownerID string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).
		Exec("DELETE FROM "+table.String()+" WHERE "+KeyColumn(table)+" = ? AND "+OwnerColumn+" = ?", key, ownerID).
		Error
	if err != nil {
		return fmt.Errorf("remote: delete %s: %w", table, err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("remote: ping: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("remote: ping: %w", err)
	}
	return nil
}

func (s *SQLStore) fetch(ctx context.Context, table models.EntityType, key string) (map[string]any, error) {
	out := map[string]any{}
	err := s.db.WithContext(ctx).
		Table(table.String()).
		Where(KeyColumn(table)+" = ?", key).
		Take(&out).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("remote: read back %s %s: %w", table, key, ErrNotFound)
		}
		return nil, fmt.Errorf("remote: read back %s: %w", table, err)
	}
	return out, nil
}

// encodeRow stores nested values (line items, maps) as JSON text.
func encodeRow(row map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(row))
	for key, value := range row {
		switch value.(type) {
		case map[string]any, []any, []map[string]any:
			raw, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("remote: encode %s: %w", key, err)
			}
			out[key] = string(raw)
		default:
			out[key] = value
		}
	}
	return out, nil
}
