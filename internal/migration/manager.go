package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/quotesync/internal/database"
	"github.com/charlesng35/quotesync/internal/durable"
	"github.com/charlesng35/quotesync/internal/kvstore"
	"github.com/charlesng35/quotesync/internal/models"
	"github.com/charlesng35/quotesync/internal/monitoring"
	"github.com/charlesng35/quotesync/pkg/logger"
)

const (
	// DefaultTimeout bounds a whole migration attempt.
	DefaultTimeout = 60 * time.Second
	// SettingsKey is the legacy singleton holding company settings.
	SettingsKey = "settings"

	statusPrefix    = "migration_status_"
	backupPrefix    = "migration_backup_"
	rollbackTimeout = 30 * time.Second
)

var (
	// ErrMigrationFailure reports that a failed migration could not be rolled back.
	ErrMigrationFailure = errors.New("migration: rollback failed")
	// ErrOwnerRequired indicates Migrate was called without an owner.
	ErrOwnerRequired = errors.New("migration: owner is required")
)

// recordEntities are migrated in order before settings.
var recordEntities = []models.EntityType{models.EntityCustomers, models.EntityItems, models.EntityQuotes}

// LegacyKey returns the legacy flat-store key holding entity records for ownerID.
func LegacyKey(entity models.EntityType, ownerID string) string {
	if entity == models.EntitySettings {
		return SettingsKey
	}
	return entity.String() + "_" + ownerID
}

// StatusKey returns the key under which the migration status of ownerID is kept.
func StatusKey(ownerID string) string { return statusPrefix + ownerID }

// Options control one migration attempt.
type Options struct {
	SkipIfCompleted  bool
	ClearLegacyAfter bool
	Timeout          time.Duration
}

// Result summarises a migration attempt.
type Result struct {
	Success bool                   `json:"success"`
	Skipped bool                   `json:"skipped,omitempty"`
	Summary string                 `json:"summary"`
	Status  models.MigrationStatus `json:"status"`
}

// Manager moves legacy flat-store data into the durable store.
type Manager struct {
	legacy  kvstore.Store
	sink    Sink
	version int
	now     func() time.Time
	log     *zap.Logger

	mu sync.Mutex
}

// Option customises a Manager.
type Option func(*Manager)

// WithSink overrides the destination of migrated records.
func WithSink(sink Sink) Option {
	return func(m *Manager) {
		if sink != nil {
			m.sink = sink
		}
	}
}

// WithSchemaVersion sets the version recorded in statuses.
func WithSchemaVersion(version int) Option {
	return func(m *Manager) { m.version = version }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewManager constructs a manager reading legacy data from legacy and writing into store.
func NewManager(legacy kvstore.Store, store *durable.Store, opts ...Option) (*Manager, error) {
	if legacy == nil {
		return nil, errors.New("migration: legacy store is required")
	}
	m := &Manager{
		legacy:  legacy,
		sink:    NewDurableSink(store),
		version: database.SchemaVersion,
		now:     func() time.Time { return time.Now().UTC() },
		log:     logger.WithModule("migration"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Status returns the last recorded status for ownerID.
func (m *Manager) Status(ctx context.Context, ownerID string) (models.MigrationStatus, bool, error) {
	status, found, err := kvstore.GetJSON[models.MigrationStatus](ctx, m.legacy, StatusKey(ownerID))
	if err != nil {
		return models.MigrationStatus{}, false, fmt.Errorf("migration: read status: %w", err)
	}
	return status, found, nil
}

// Migrate runs one migration attempt for ownerID. Failures are reported through
// the returned status; the error is non-nil only for caller mistakes or when a
// failed attempt could not be rolled back (ErrMigrationFailure).
func (m *Manager) Migrate(ctx context.Context, ownerID string, opts Options) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return Result{}, ErrOwnerRequired
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.log.With(zap.String("owner_id", ownerID))

	if opts.SkipIfCompleted {
		if status, found, err := m.Status(ctx, ownerID); err == nil && found && status.Completed {
			monitoring.RecordMigrationRun("skipped")
			return Result{Success: true, Skipped: true, Summary: "migration already completed", Status: status}, nil
		}
	}

	status := models.MigrationStatus{
		OwnerID:       ownerID,
		Timestamp:     m.now(),
		SchemaVersion: m.version,
	}

	if !m.sink.Available() {
		status.Errors = []string{durable.ErrStorageUnsupported.Error()}
		log.Warn("migration skipped, durable storage unavailable")
		return m.finish(ctx, status, "failure", "durable storage unavailable")
	}

	entries, err := m.snapshot(ctx, ownerID)
	if err != nil {
		status.Errors = []string{err.Error()}
		return m.finish(ctx, status, "failure", "could not read legacy data")
	}
	if len(entries) == 0 {
		status.Completed = true
		log.Info("no legacy data to migrate")
		return m.finish(ctx, status, "empty", "no legacy data found")
	}

	baseline := make(map[models.EntityType]int64, len(models.EntityTypes))
	for _, entity := range models.EntityTypes {
		count, err := m.sink.Count(ctx, entity, ownerID)
		if err != nil {
			status.Errors = []string{fmt.Sprintf("count existing %s: %v", entity, err)}
			return m.finish(ctx, status, "failure", "could not inspect durable storage")
		}
		baseline[entity] = count
	}

	backup := models.MigrationBackup{OwnerID: ownerID, CreatedAt: m.now(), Entries: entries}
	backupKey := backupPrefix + ownerID + "_" + strconv.FormatInt(backup.CreatedAt.UnixNano(), 10)
	if err := kvstore.SetJSON(ctx, m.legacy, backupKey, backup); err != nil {
		status.Errors = []string{fmt.Sprintf("write backup: %v", err)}
		return m.finish(ctx, status, "failure", "could not back up legacy data")
	}
	status.BackupKey = backupKey

	attempt := &attempt{owner: ownerID, sink: m.sink, status: &status}
	pipelineCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	failure := attempt.run(pipelineCtx, entries, baseline)
	// A run that finished cleanly stands even if the deadline passed meanwhile.
	if err := pipelineCtx.Err(); failure != nil && err != nil {
		failure = fmt.Errorf("migration cancelled: %w", err)
		if errors.Is(err, context.DeadlineExceeded) {
			failure = fmt.Errorf("migration timed out after %s", opts.Timeout)
		}
	}
	cancel()

	if failure != nil {
		log.Warn("migration failed, rolling back", zap.Error(failure))
		return m.rollback(ctx, status, backup, attempt, failure)
	}

	status.Completed = true
	summary := fmt.Sprintf("migrated %d customers, %d items, %d quotes; settings migrated: %t",
		status.CustomersCount, status.ItemsCount, status.QuotesCount, status.SettingsMigrated)
	if len(status.Errors) > 0 {
		summary += fmt.Sprintf(" (%d records failed)", len(status.Errors))
	} else if opts.ClearLegacyAfter {
		if err := m.legacy.Delete(ctx, sortedKeys(entries)...); err != nil {
			log.Warn("failed to clear legacy data", zap.Error(err))
		}
	}
	log.Info("migration completed",
		zap.Int("customers", status.CustomersCount),
		zap.Int("items", status.ItemsCount),
		zap.Int("quotes", status.QuotesCount),
		zap.Int("errors", len(status.Errors)),
	)
	return m.finish(ctx, status, "success", summary)
}

// rollback restores the legacy entries and removes the records this attempt inserted.
func (m *Manager) rollback(ctx context.Context, status models.MigrationStatus, backup models.MigrationBackup, a *attempt, failure error) (Result, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	var rollbackErr error
	for _, key := range sortedKeys(backup.Entries) {
		rollbackErr = multierr.Append(rollbackErr, m.legacy.Set(ctx, key, backup.Entries[key]))
	}
	for i := len(a.inserted) - 1; i >= 0; i-- {
		ins := a.inserted[i]
		if err := m.sink.Remove(ctx, ins.entity, ins.key); err != nil {
			rollbackErr = multierr.Append(rollbackErr, fmt.Errorf("remove %s %s: %w", ins.entity, ins.key, err))
		}
	}

	status.Completed = false
	status.Errors = append(status.Errors, failure.Error())
	if rollbackErr != nil {
		status.Errors = append(status.Errors, "rollback failed: "+rollbackErr.Error())
	} else {
		status.RolledBack = true
		status.Errors = append(status.Errors, "rollback succeeded")
	}

	result, err := m.finish(ctx, status, "rolled_back", "migration failed: "+failure.Error())
	if rollbackErr != nil {
		monitoring.RecordMigrationRun("rollback_failed")
		m.log.Error("migration rollback failed", zap.String("owner_id", status.OwnerID), zap.Error(rollbackErr))
		return result, fmt.Errorf("%w: %w", ErrMigrationFailure, multierr.Append(rollbackErr, err))
	}
	return result, err
}

// finish persists status and builds the result.
func (m *Manager) finish(ctx context.Context, status models.MigrationStatus, outcome, summary string) (Result, error) {
	monitoring.RecordMigrationRun(outcome)
	result := Result{Success: status.Completed, Summary: summary, Status: status}
	if err := kvstore.SetJSON(ctx, m.legacy, StatusKey(status.OwnerID), status); err != nil {
		m.log.Warn("failed to persist migration status", zap.String("owner_id", status.OwnerID), zap.Error(err))
	}
	return result, nil
}

// snapshot reads every legacy entry belonging to ownerID.
func (m *Manager) snapshot(ctx context.Context, ownerID string) (map[string][]byte, error) {
	entries := make(map[string][]byte)
	for _, entity := range models.EntityTypes {
		key := LegacyKey(entity, ownerID)
		raw, found, err := m.legacy.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read legacy %s: %w", key, err)
		}
		if found && len(strings.TrimSpace(string(raw))) > 0 {
			entries[key] = raw
		}
	}
	return entries, nil
}

// Backups lists backup keys for ownerID, oldest first.
func (m *Manager) Backups(ctx context.Context, ownerID string) ([]string, error) {
	keys, err := m.legacy.Keys(ctx, backupPrefix+ownerID+"_")
	if err != nil {
		return nil, fmt.Errorf("migration: list backups: %w", err)
	}
	return keys, nil
}

// PruneBackups deletes backups created before now minus retention.
func (m *Manager) PruneBackups(ctx context.Context, retention time.Duration) (int, error) {
	keys, err := m.legacy.Keys(ctx, backupPrefix)
	if err != nil {
		return 0, fmt.Errorf("migration: list backups: %w", err)
	}
	cutoff := m.now().Add(-retention).UnixNano()
	var stale []string
	for _, key := range keys {
		sep := strings.LastIndexByte(key, '_')
		if sep < 0 {
			continue
		}
		created, err := strconv.ParseInt(key[sep+1:], 10, 64)
		if err != nil || created >= cutoff {
			continue
		}
		stale = append(stale, key)
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := m.legacy.Delete(ctx, stale...); err != nil {
		return 0, fmt.Errorf("migration: prune backups: %w", err)
	}
	return len(stale), nil
}

type insertion struct {
	entity models.EntityType
	key    string
}

// attempt is the state of one pipeline run. inserted is read only after run returns.
type attempt struct {
	owner    string
	sink     Sink
	status   *models.MigrationStatus
	inserted []insertion
}

func (a *attempt) run(ctx context.Context, entries map[string][]byte, baseline map[models.EntityType]int64) error {
	migrated := make(map[models.EntityType]int64, len(models.EntityTypes))
	for _, entity := range recordEntities {
		raw, ok := entries[LegacyKey(entity, a.owner)]
		if !ok {
			continue
		}
		var records []map[string]any
		if err := json.Unmarshal(raw, &records); err != nil {
			a.status.Errors = append(a.status.Errors, fmt.Sprintf("%s: unreadable legacy data: %v", entity, err))
			continue
		}
		for i, fields := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			key, err := a.sink.Insert(ctx, entity, a.prepare(entity, fields))
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				a.status.Errors = append(a.status.Errors, fmt.Sprintf("%s[%d]: %v", entity, i, err))
				continue
			}
			a.inserted = append(a.inserted, insertion{entity: entity, key: key})
			migrated[entity]++
		}
	}
	a.status.CustomersCount = int(migrated[models.EntityCustomers])
	a.status.ItemsCount = int(migrated[models.EntityItems])
	a.status.QuotesCount = int(migrated[models.EntityQuotes])

	if raw, ok := entries[SettingsKey]; ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			a.status.Errors = append(a.status.Errors, fmt.Sprintf("settings: unreadable legacy data: %v", err))
		} else if key, err := a.sink.Insert(ctx, models.EntitySettings, a.prepare(models.EntitySettings, fields)); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			a.status.Errors = append(a.status.Errors, fmt.Sprintf("settings: %v", err))
		} else {
			a.inserted = append(a.inserted, insertion{entity: models.EntitySettings, key: key})
			a.status.SettingsMigrated = true
			migrated[models.EntitySettings]++
		}
	}

	for _, entity := range models.EntityTypes {
		count, err := a.sink.Count(ctx, entity, a.owner)
		if err != nil {
			return fmt.Errorf("verify %s: %w", entity, err)
		}
		if want := baseline[entity] + migrated[entity]; count != want {
			return fmt.Errorf("verify %s: durable store holds %d records, expected %d", entity, count, want)
		}
	}
	return nil
}

// prepare scopes a legacy record to the owner and fills the fields older app
// versions did not write.
func (a *attempt) prepare(entity models.EntityType, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		out[k] = v
	}
	out["ownerId"] = a.owner
	if entity != models.EntitySettings {
		switch id := out["id"].(type) {
		case nil:
			out["id"] = uuid.NewString()
		case string:
			if strings.TrimSpace(id) == "" {
				out["id"] = uuid.NewString()
			}
		}
	}
	created := out["createdAt"]
	if created == nil || created == "" {
		created = a.status.Timestamp.Format(time.RFC3339Nano)
		out["createdAt"] = created
	}
	if updated := out["updatedAt"]; updated == nil || updated == "" {
		out["updatedAt"] = created
	}
	if entity == models.EntityQuotes {
		if status, _ := out["status"].(string); status == "" {
			out["status"] = models.QuoteStatusDraft
		}
	}
	return out
}

func sortedKeys(entries map[string][]byte) []string {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
