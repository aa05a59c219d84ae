package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/charlesng35/quotesync/internal/models"
)

var (
	// ErrNotFound is returned when an update targets a row the remote store does not have.
	ErrNotFound = errors.New("remote: record not found")
	// ErrConflict is returned when an insert collides with an existing key.
	ErrConflict = errors.New("remote: record already exists")
)

// OwnerColumn is the remote column scoping every row to a user.
const OwnerColumn = "user_id"

// Store is the authoritative remote backend. Rows use remote (snake_case) column names.
type Store interface {
	Select(ctx context.Context, table models.EntityType, ownerID string) ([]map[string]any, error)
	Insert(ctx context.Context, table models.EntityType, row map[string]any) (map[string]any, error)
	Update(ctx context.Context, table models.EntityType, key, ownerID string, row map[string]any) (map[string]any, error)
	Delete(ctx context.Context, table models.EntityType, key, ownerID string) error
	Ping(ctx context.Context) error
}

// KeyColumn returns the remote column identifying a row of table.
func KeyColumn(table models.EntityType) string {
	if table == models.EntitySettings {
		return OwnerColumn
	}
	return "id"
}

func checkTable(table models.EntityType) error {
	if !table.Valid() {
		return fmt.Errorf("remote: unknown table %q", table)
	}
	return nil
}
