package queue

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/charlesng35/quotesync/internal/models"
	"github.com/charlesng35/quotesync/internal/monitoring"
	"github.com/charlesng35/quotesync/pkg/logger"
)

// ErrEntryNotFound is returned by state transitions for unknown entry ids.
var ErrEntryNotFound = errors.New("queue: entry not found")

// Change is a local mutation offered to the queue.
type Change struct {
	Type      string
	Table     string
	RecordID  string
	OwnerID   string
	Data      map[string]any
	Timestamp time.Time
}

// Outcome describes what AddChange did with a change.
type Outcome string

const (
	OutcomeQueued    Outcome = "queued"
	OutcomeCollapsed Outcome = "collapsed"
)

// Queue is the ordered log of local mutations awaiting the remote store.
// All methods are safe for concurrent use.
type Queue struct {
	mu        sync.Mutex
	entries   []models.SyncQueueEntry
	persister Persister
	entropy   *ulid.MonotonicEntropy
	lastID    time.Time
	now       func() time.Time
	log       *zap.Logger
}

// Option customises a Queue.
type Option func(*Queue)

// WithClock overrides the time source for entry timestamps and ids.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(q *Queue) {
		if log != nil {
			q.log = log
		}
	}
}

// New loads the persisted queue. A nil persister keeps the queue in memory.
func New(ctx context.Context, persister Persister, opts ...Option) (*Queue, error) {
	if persister == nil {
		persister = nopPersister{}
	}
	q := &Queue{
		persister: persister,
		entropy:   ulid.Monotonic(crand.Reader, 0),
		now:       time.Now,
		log:       logger.WithModule("queue"),
	}
	for _, opt := range opts {
		opt(q)
	}

	entries, err := persister.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: load: %w", err)
	}
	q.entries = entries
	if n := len(entries); n > 0 {
		if last, err := ulid.ParseStrict(entries[n-1].ID); err == nil {
			q.lastID = ulid.Time(last.Time())
		}
	}
	monitoring.SetQueueDepth(q.pendingLocked())
	return q, nil
}

// AddChange records a mutation. A delete for a record whose create has not yet
// reached the remote store cancels that create and every later change of the
// record, and is itself dropped. A create already being synced is left alone.
func (q *Queue) AddChange(ctx context.Context, change Change) (Outcome, error) {
	change, err := normalise(change, q.now)
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if change.Type == models.ChangeDelete {
		if idx := q.unsentCreateLocked(change.Table, change.RecordID, change.OwnerID); idx >= 0 {
			kept := q.entries[:idx:idx]
			for _, entry := range q.entries[idx+1:] {
				if entry.Table == change.Table && entry.RecordID == change.RecordID {
					continue
				}
				kept = append(kept, entry)
			}
			q.entries = kept
			monitoring.RecordQueueChange(change.Table, change.Type, string(OutcomeCollapsed))
			q.log.Debug("delete cancelled unsent create",
				zap.String("table", change.Table),
				zap.String("record_id", change.RecordID),
			)
			return OutcomeCollapsed, q.persistLocked(ctx)
		}
	}

	q.entries = append(q.entries, models.SyncQueueEntry{
		ID:        q.nextIDLocked(),
		Type:      change.Type,
		Table:     change.Table,
		RecordID:  change.RecordID,
		OwnerID:   change.OwnerID,
		Data:      datatypes.JSONMap(change.Data),
		Timestamp: change.Timestamp,
		Status:    models.SyncStatusPending,
	})
	monitoring.RecordQueueChange(change.Table, change.Type, string(OutcomeQueued))
	return OutcomeQueued, q.persistLocked(ctx)
}

// HasPendingChange reports whether any unsynced change exists for table/id.
func (q *Queue) HasPendingChange(table, id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, entry := range q.entries {
		if entry.Pending() && entry.Table == table && entry.RecordID == id {
			return true
		}
	}
	return false
}

// GetPendingChanges returns unsynced entries for table (every table when empty) in queue order.
func (q *Queue) GetPendingChanges(table string) []models.SyncQueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.SyncQueueEntry, 0, len(q.entries))
	for _, entry := range q.entries {
		if entry.Pending() && (table == "" || entry.Table == table) {
			out = append(out, cloneEntry(entry))
		}
	}
	return out
}

// Entries returns a copy of every entry, including synced ones not yet pruned.
func (q *Queue) Entries() []models.SyncQueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.SyncQueueEntry, 0, len(q.entries))
	for _, entry := range q.entries {
		out = append(out, cloneEntry(entry))
	}
	return out
}

// Len returns the number of unsynced entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pendingLocked()
}

// MarkSyncing flags an entry as handed to the remote store.
func (q *Queue) MarkSyncing(ctx context.Context, id string) error {
	return q.transition(ctx, id, func(entry *models.SyncQueueEntry) {
		entry.Status = models.SyncStatusSyncing
		entry.Error = ""
	})
}

// MarkSynced removes an entry confirmed by the remote store.
func (q *Queue) MarkSynced(ctx context.Context, id string) error {
	return q.Remove(ctx, id)
}

// MarkFailed returns an entry to the retryable state and records the cause.
func (q *Queue) MarkFailed(ctx context.Context, id, cause string) error {
	return q.transition(ctx, id, func(entry *models.SyncQueueEntry) {
		entry.Status = models.SyncStatusFailed
		entry.RetryCount++
		entry.Error = cause
	})
}

// Remove deletes an entry by id.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, entry := range q.entries {
		if entry.ID == id {
			q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
			return q.persistLocked(ctx)
		}
	}
	return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
}

// PruneSynced drops entries already marked synced and reports how many were removed.
func (q *Queue) PruneSynced(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := make([]models.SyncQueueEntry, 0, len(q.entries))
	for _, entry := range q.entries {
		if entry.Pending() {
			kept = append(kept, entry)
		}
	}
	removed := len(q.entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	q.entries = kept
	return removed, q.persistLocked(ctx)
}

func (q *Queue) transition(ctx context.Context, id string, apply func(entry *models.SyncQueueEntry)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		if q.entries[i].ID == id {
			apply(&q.entries[i])
			return q.persistLocked(ctx)
		}
	}
	return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
}

// nextIDLocked never lets the id timestamp move backwards, keeping ids sorted by insertion.
func (q *Queue) nextIDLocked() string {
	ts := q.now()
	if ts.Before(q.lastID) {
		ts = q.lastID
	}
	q.lastID = ts
	return ulid.MustNew(ulid.Timestamp(ts), q.entropy).String()
}

// unsentCreateLocked finds the create of table/id that has not reached the
// remote store. A create recorded for a different owner never matches.
func (q *Queue) unsentCreateLocked(table, id, ownerID string) int {
	for i, entry := range q.entries {
		if entry.Table != table || entry.RecordID != id || entry.Type != models.ChangeCreate {
			continue
		}
		if entry.OwnerID != "" && ownerID != "" && entry.OwnerID != ownerID {
			continue
		}
		if entry.Status == models.SyncStatusPending || entry.Status == models.SyncStatusFailed {
			return i
		}
	}
	return -1
}

func (q *Queue) persistLocked(ctx context.Context) error {
	monitoring.SetQueueDepth(q.pendingLocked())
	if err := q.persister.Save(ctx, q.entries); err != nil {
		q.log.Warn("queue persist failed", zap.Int("entries", len(q.entries)), zap.Error(err))
		return fmt.Errorf("queue: persist: %w", err)
	}
	return nil
}

func (q *Queue) pendingLocked() int {
	count := 0
	for _, entry := range q.entries {
		if entry.Pending() {
			count++
		}
	}
	return count
}

func normalise(change Change, now func() time.Time) (Change, error) {
	switch change.Type {
	case models.ChangeCreate, models.ChangeUpdate, models.ChangeDelete:
	default:
		return change, fmt.Errorf("queue: unknown change type %q", change.Type)
	}
	if change.Table == "" {
		return change, errors.New("queue: table is required")
	}

	data := make(map[string]any, len(change.Data))
	for k, v := range change.Data {
		data[k] = v
	}
	change.Data = data

	if change.RecordID == "" {
		if id, ok := data[models.EntityType(change.Table).KeyField()].(string); ok {
			change.RecordID = id
		}
	}
	if change.RecordID == "" {
		return change, errors.New("queue: record id is required")
	}
	if change.OwnerID == "" {
		if owner, ok := data["ownerId"].(string); ok {
			change.OwnerID = owner
		}
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = now().UTC()
	}
	return change, nil
}

func cloneEntry(entry models.SyncQueueEntry) models.SyncQueueEntry {
	if entry.Data != nil {
		data := make(datatypes.JSONMap, len(entry.Data))
		for k, v := range entry.Data {
			data[k] = v
		}
		entry.Data = data
	}
	return entry
}
