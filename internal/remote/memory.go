package remote

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/charlesng35/quotesync/internal/models"
)

// MemoryStore is an in-process remote used for offline development and tests.
// It mimics the hosted backend: rows keep insertion order and carry
// server-assigned timestamps.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[models.EntityType]*memTable
	now    func() time.Time
	err    error
	calls  map[string]int

	// OnWrite lets callers add server-computed columns to inserted or updated rows.
	OnWrite func(table models.EntityType, row map[string]any)
}

type memTable struct {
	order []string
	rows  map[string]map[string]any
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[models.EntityType]*memTable),
		now:    func() time.Time { return time.Now().UTC() },
		calls:  make(map[string]int),
	}
}

// SetClock overrides the server clock.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now != nil {
		m.now = now
	}
}

// SetFailure makes every subsequent call fail with err until cleared with nil.
func (m *MemoryStore) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls reports how many times op ("select", "insert", "update", "delete", "ping") ran.
func (m *MemoryStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Seed stores rows as-is, without stamping timestamps.
func (m *MemoryStore) Seed(table models.EntityType, rows ...map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tableLocked(table)
	for _, row := range rows {
		key := fmt.Sprint(row[KeyColumn(table)])
		if _, ok := t.rows[key]; !ok {
			t.order = append(t.order, key)
		}
		t.rows[key] = maps.Clone(row)
	}
}

// Row returns a copy of a stored row.
func (m *MemoryStore) Row(table models.EntityType, key string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.tableLocked(table).rows[key]
	if !ok {
		return nil, false
	}
	return maps.Clone(row), true
}

func (m *MemoryStore) Select(_ context.Context, table models.EntityType, ownerID string) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.beginLocked("select", table); err != nil {
		return nil, err
	}
	t := m.tableLocked(table)
	out := make([]map[string]any, 0, len(t.order))
	for _, key := range t.order {
		row := t.rows[key]
		if row[OwnerColumn] == ownerID {
			out = append(out, maps.Clone(row))
		}
	}
	return out, nil
}

func (m *MemoryStore) Insert(_ context.Context, table models.EntityType, row map[string]any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.beginLocked("insert", table); err != nil {
		return nil, err
	}
	key, _ := row[KeyColumn(table)].(string)
	if key == "" {
		return nil, fmt.Errorf("remote: insert %s: missing %s", table, KeyColumn(table))
	}
	t := m.tableLocked(table)
	if _, exists := t.rows[key]; exists {
		return nil, fmt.Errorf("remote: insert %s: %w", table, ErrConflict)
	}
	if table == models.EntityQuotes {
		if err := m.checkUniqueLocked(t, "quote_number", row["quote_number"], key); err != nil {
			return nil, err
		}
	}
	stored := maps.Clone(row)
	now := m.now()
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = now
	}
	stored["updated_at"] = now
	if m.OnWrite != nil {
		m.OnWrite(table, stored)
	}
	t.rows[key] = stored
	t.order = append(t.order, key)
	return maps.Clone(stored), nil
}

func (m *MemoryStore) Update(_ context.Context, table models.EntityType, key, ownerID string, row map[string]any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.beginLocked("update", table); err != nil {
		return nil, err
	}
	t := m.tableLocked(table)
	stored, ok := t.rows[key]
	if !ok || stored[OwnerColumn] != ownerID {
		return nil, fmt.Errorf("remote: update %s %s: %w", table, key, ErrNotFound)
	}
	if table == models.EntityQuotes {
		if number, ok := row["quote_number"]; ok {
			if err := m.checkUniqueLocked(t, "quote_number", number, key); err != nil {
				return nil, err
			}
		}
	}
	next := maps.Clone(stored)
	for column, value := range row {
		switch column {
		case KeyColumn(table), OwnerColumn, "created_at":
			continue
		}
		next[column] = value
	}
	next["updated_at"] = m.now()
	if m.OnWrite != nil {
		m.OnWrite(table, next)
	}
	t.rows[key] = next
	return maps.Clone(next), nil
}

func (m *MemoryStore) Delete(_ context.Context, table models.EntityType, key, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.beginLocked("delete", table); err != nil {
		return err
	}
	t := m.tableLocked(table)
	stored, ok := t.rows[key]
	if !ok || stored[OwnerColumn] != ownerID {
		return nil
	}
	delete(t.rows, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["ping"]++
	if m.err != nil {
		return m.err
	}
	return nil
}

func (m *MemoryStore) beginLocked(op string, table models.EntityType) error {
	m.calls[op]++
	if m.err != nil {
		return m.err
	}
	return checkTable(table)
}

func (m *MemoryStore) tableLocked(table models.EntityType) *memTable {
	t, ok := m.tables[table]
	if !ok {
		t = &memTable{rows: make(map[string]map[string]any)}
		m.tables[table] = t
	}
	return t
}

func (m *MemoryStore) checkUniqueLocked(t *memTable, column string, value any, selfKey string) error {
	if value == nil || value == "" {
		return nil
	}
	for key, row := range t.rows {
		if key != selfKey && row[column] == value {
			return fmt.Errorf("remote: %s %v: %w", column, value, ErrConflict)
		}
	}
	return nil
}
