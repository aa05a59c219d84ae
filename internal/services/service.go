package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/quotesync/internal/cache"
	"github.com/charlesng35/quotesync/internal/coordinator"
	"github.com/charlesng35/quotesync/internal/durable"
	"github.com/charlesng35/quotesync/internal/models"
	"github.com/charlesng35/quotesync/internal/monitoring"
	"github.com/charlesng35/quotesync/internal/queue"
	"github.com/charlesng35/quotesync/internal/remote"
	"github.com/charlesng35/quotesync/pkg/logger"
	"github.com/charlesng35/quotesync/pkg/validator"
)

// DefaultRequestTimeout bounds every remote call made by a service.
const DefaultRequestTimeout = 15 * time.Second

var (
	// ErrOwnerRequired indicates a read was attempted without an owner.
	ErrOwnerRequired = errors.New("sync service: owner is required")
	// ErrRecordIDRequired indicates a write did not identify its record.
	ErrRecordIDRequired = errors.New("sync service: record id is required")
	// ErrInvalidRecord wraps input validation failures.
	ErrInvalidRecord = errors.New("sync service: invalid record")
	// ErrRecordNotFound indicates the record to patch does not exist.
	ErrRecordNotFound = errors.New("sync service: record not found")
	// ErrNotInitialised is returned by methods called on a nil service.
	ErrNotInitialised = errors.New("sync service: service not initialised")
)

// Connectivity reports whether remote calls should be attempted.
type Connectivity interface {
	Online() bool
}

// ChangeNotifier is told when a write has been confirmed by the remote store.
type ChangeNotifier interface {
	NotifyChanged(ownerID string, entity models.EntityType)
}

// Deps are the collaborators shared by every entity service. Durable, Remote,
// Connectivity and Notifier are optional.
type Deps struct {
	Durable        *durable.Store
	Cache          *cache.Cache
	Queue          *queue.Queue
	Coordinator    *coordinator.Coordinator
	Remote         remote.Store
	Connectivity   Connectivity
	Notifier       ChangeNotifier
	RequestTimeout time.Duration
	Now            func() time.Time
	Logger         *zap.Logger
}

func (d Deps) check() error {
	switch {
	case d.Cache == nil:
		return errors.New("sync service: cache is required")
	case d.Queue == nil:
		return errors.New("sync service: queue is required")
	case d.Coordinator == nil:
		return errors.New("sync service: coordinator is required")
	}
	return nil
}

// Service orchestrates the cache, the durable store, the offline queue and the
// remote store for one entity type.
type Service[T models.Entity[T]] struct {
	entity   models.EntityType
	local    *durable.Collection[T]
	cache    *cache.Cache
	queue    *queue.Queue
	coord    *coordinator.Coordinator
	remote   remote.Store
	conn     Connectivity
	notifier ChangeNotifier
	timeout  time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewService wires a service for entity.
func NewService[T models.Entity[T]](entity models.EntityType, deps Deps) (*Service[T], error) {
	if !entity.Valid() {
		return nil, fmt.Errorf("sync service: unknown entity %q", entity)
	}
	if err := deps.check(); err != nil {
		return nil, err
	}
	store := deps.Durable
	if store == nil {
		store = durable.New(nil)
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	log := deps.Logger
	if log == nil {
		log = logger.WithModule("sync")
	}
	return &Service[T]{
		entity:   entity,
		local:    durable.NewCollection[T](store, entity),
		cache:    deps.Cache,
		queue:    deps.Queue,
		coord:    deps.Coordinator,
		remote:   deps.Remote,
		conn:     deps.Connectivity,
		notifier: deps.Notifier,
		timeout:  timeout,
		now:      now,
		log:      log.With(zap.String("entity", entity.String())),
	}, nil
}

func ensuredContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// Entity returns the collection this service manages.
func (s *Service[T]) Entity() models.EntityType { return s.entity }

// List returns the owner's records. Unless force is set it answers from the
// cache, then from the durable store, and only then from the remote store.
// Remote failures degrade to local data; the only errors are caller errors.
func (s *Service[T]) List(ctx context.Context, ownerID string, force bool) ([]T, error) {
	if s == nil {
		return nil, ErrNotInitialised
	}
	ctx = ensuredContext(ctx)
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	listID := cache.ListID(ownerID)

	if !force {
		if cached, ok := cache.Get[[]T](ctx, s.cache, s.entity, listID); ok {
			s.record("list", "cache")
			return cached, nil
		}
		if local := s.localList(ctx, ownerID); len(local) > 0 {
			cache.Set(ctx, s.cache, s.entity, local, listID)
			s.record("list", "local")
			return local, nil
		}
		if !s.online() {
			s.record("list", "empty")
			return []T{}, nil
		}
	} else if !s.online() {
		return s.fallback(ctx, ownerID), nil
	}

	records, err := s.fetch(ctx, ownerID)
	if err != nil {
		s.log.Warn("remote list failed, serving local data", zap.String("owner_id", ownerID), zap.Error(err))
		return s.fallback(ctx, ownerID), nil
	}
	s.record("list", "remote")
	return records, nil
}

// Get returns one record by key.
func (s *Service[T]) Get(ctx context.Context, ownerID, id string) (T, bool, error) {
	var zero T
	if s == nil {
		return zero, false, ErrNotInitialised
	}
	ctx = ensuredContext(ctx)
	id = strings.TrimSpace(id)
	if id == "" {
		return zero, false, ErrRecordIDRequired
	}

	if cached, ok := cache.Get[T](ctx, s.cache, s.entity, id); ok && ownedBy(cached, ownerID) {
		return cached, true, nil
	}
	record, found, err := s.local.Get(ctx, id)
	if err != nil {
		s.localFailed("get", err)
	}
	if found && ownedBy(record, ownerID) {
		cache.Set(ctx, s.cache, s.entity, record, id)
		return record, true, nil
	}
	if ownerID == "" {
		return zero, false, nil
	}

	records, err := s.List(ctx, ownerID, false)
	if err != nil {
		return zero, false, err
	}
	for _, candidate := range records {
		if candidate.RecordKey() == id {
			cache.Set(ctx, s.cache, s.entity, candidate, id)
			return candidate, true, nil
		}
	}
	return zero, false, nil
}

// Create stores a new record locally and pushes it to the remote store when
// possible, queueing it otherwise. The returned record is the server-confirmed
// version when the push succeeded.
func (s *Service[T]) Create(ctx context.Context, ownerID string, record T) (T, error) {
	var zero T
	if s == nil {
		return zero, ErrNotInitialised
	}
	ctx = ensuredContext(ctx)
	ownerID = strings.TrimSpace(ownerID)

	record = record.Stamped(ownerID, s.now(), true)
	if err := validate(record); err != nil {
		return zero, err
	}
	if key := record.RecordKey(); key != "" && s.heldByOther(ctx, ownerID, key) {
		return zero, fmt.Errorf("sync service: %s %s: %w", s.entity, key, durable.ErrDuplicateKey)
	}
	if err := s.local.Add(ctx, record); err != nil {
		if errors.Is(err, durable.ErrDuplicateKey) {
			return zero, err
		}
		s.localFailed("create", err)
	}
	key := record.RecordKey()
	s.cache.Invalidate(ctx, s.entity, key)

	fields, err := models.ToMap(record)
	if err != nil {
		return zero, fmt.Errorf("sync service: encode %s: %w", s.entity, err)
	}
	if !s.canPush(ownerID, key) {
		s.enqueue(ctx, models.ChangeCreate, ownerID, key, fields)
		return record, nil
	}

	row, err := write(ctx, s, "insert", func(ctx context.Context) (map[string]any, error) {
		return s.remote.Insert(ctx, s.entity, remote.ToRemote(fields))
	})
	if err != nil {
		s.log.Warn("remote create failed, queueing", zap.String("id", key), zap.Error(err))
		s.enqueue(ctx, models.ChangeCreate, ownerID, key, fields)
		return record, nil
	}
	return s.confirm(ctx, ownerID, "create", record, row), nil
}

// Update replaces a stored record. The record must carry its key.
func (s *Service[T]) Update(ctx context.Context, ownerID string, record T) (T, error) {
	var zero T
	if s == nil {
		return zero, ErrNotInitialised
	}
	if s.entity != models.EntitySettings && record.RecordKey() == "" {
		return zero, ErrRecordIDRequired
	}
	return s.save(ensuredContext(ctx), strings.TrimSpace(ownerID), record, models.ChangeUpdate)
}

// Patch merges fields into the current version of a record and saves the result.
func (s *Service[T]) Patch(ctx context.Context, ownerID, id string, fields map[string]any) (T, error) {
	var zero T
	if s == nil {
		return zero, ErrNotInitialised
	}
	ctx = ensuredContext(ctx)
	current, found, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return zero, err
	}
	if !found {
		return zero, fmt.Errorf("sync service: %s %s: %w", s.entity, id, ErrRecordNotFound)
	}
	keyField := s.entity.KeyField()
	patch := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case keyField, "ownerId", "createdAt", "updatedAt":
			continue
		}
		patch[k] = v
	}
	merged, err := models.Merge(current, patch)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return s.Update(ctx, ownerID, merged)
}

// Delete removes a record locally and remotely, queueing the delete when the
// remote store cannot be reached. Deleting a record whose create is still
// queued simply cancels that create.
func (s *Service[T]) Delete(ctx context.Context, ownerID, id string) error {
	if s == nil {
		return ErrNotInitialised
	}
	ctx = ensuredContext(ctx)
	ownerID = strings.TrimSpace(ownerID)
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrRecordIDRequired
	}

	if s.heldByOther(ctx, ownerID, id) {
		return fmt.Errorf("sync service: %s %s: %w", s.entity, id, ErrRecordNotFound)
	}

	if err := s.local.Delete(ctx, ownerID, id); err != nil {
		s.localFailed("delete", err)
	}
	s.cache.Invalidate(ctx, s.entity, id)

	fields := map[string]any{s.entity.KeyField(): id, "ownerId": ownerID}
	if !s.canPush(ownerID, id) {
		s.enqueue(ctx, models.ChangeDelete, ownerID, id, fields)
		return nil
	}

	_, err := write(ctx, s, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.remote.Delete(ctx, s.entity, id, ownerID)
	})
	if err != nil {
		s.log.Warn("remote delete failed, queueing", zap.String("id", id), zap.Error(err))
		s.enqueue(ctx, models.ChangeDelete, ownerID, id, fields)
		return nil
	}
	s.record("delete", "remote")
	s.notify(ownerID)
	return nil
}

// save writes record as an upsert. kind decides which change is queued when the
// remote store is unreachable; a remote row that does not exist yet is inserted.
func (s *Service[T]) save(ctx context.Context, ownerID string, record T, kind string) (T, error) {
	var zero T
	if key := record.RecordKey(); key != "" && s.heldByOther(ctx, ownerID, key) {
		return zero, fmt.Errorf("sync service: %s %s: %w", s.entity, key, ErrRecordNotFound)
	}
	record = record.Stamped(ownerID, s.now(), false)
	if err := validate(record); err != nil {
		return zero, err
	}
	if err := s.local.Update(ctx, record); err != nil {
		if errors.Is(err, durable.ErrDuplicateKey) {
			return zero, err
		}
		s.localFailed("update", err)
	}
	key := record.RecordKey()
	s.cache.Invalidate(ctx, s.entity, key)

	fields, err := models.ToMap(record)
	if err != nil {
		return zero, fmt.Errorf("sync service: encode %s: %w", s.entity, err)
	}
	if !s.canPush(ownerID, key) {
		s.enqueue(ctx, kind, ownerID, key, fields)
		return record, nil
	}

	row, err := write(ctx, s, "update", func(ctx context.Context) (map[string]any, error) {
		row, err := s.remote.Update(ctx, s.entity, key, ownerID, remote.ToRemote(fields))
		if errors.Is(err, remote.ErrNotFound) && kind == models.ChangeCreate {
			return s.remote.Insert(ctx, s.entity, remote.ToRemote(fields))
		}
		return row, err
	})
	if err != nil {
		s.log.Warn("remote update failed, queueing", zap.String("id", key), zap.Error(err))
		s.enqueue(ctx, kind, ownerID, key, fields)
		return record, nil
	}
	return s.confirm(ctx, ownerID, "update", record, row), nil
}

// fetch pulls the owner's rows once for every concurrent caller.
func (s *Service[T]) fetch(ctx context.Context, ownerID string) ([]T, error) {
	key := "remote:" + s.entity.String() + ":" + ownerID
	return coordinator.As[[]T](s.cache.Coalesce(ctx, key, coordinator.Typed(func(ctx context.Context) ([]T, error) {
		return coordinator.WithTimeout(ctx, s.timeout, func(ctx context.Context) ([]T, error) {
			return s.pull(ctx, ownerID)
		})
	})))
}

// pull reads remote rows, protects pending local changes, and refreshes the
// durable store and the cache with the result.
func (s *Service[T]) pull(ctx context.Context, ownerID string) ([]T, error) {
	start := time.Now()
	rows, err := s.remote.Select(ctx, s.entity, ownerID)
	monitoring.ObserveRemoteCall(s.entity.String(), "select", err, time.Since(start))
	if err != nil {
		return nil, err
	}

	latest, err := s.latestRows(remote.FromRemoteRows(rows))
	if err != nil {
		return nil, err
	}
	merged := s.queue.ApplyPendingChanges(latest, s.entity.String(), queue.ForOwner(ownerID))
	records := s.decodeRows(merged, "skipping undecodable protected row")

	if err := s.local.ReplaceAll(ctx, ownerID, records); err != nil {
		s.localFailed("replace all", err)
	}
	cache.Set(ctx, s.cache, s.entity, records, cache.ListID(ownerID))
	return records, nil
}

// latestRows keeps the most recently updated row per key, so protection
// overlays pending changes onto the newest server state.
func (s *Service[T]) latestRows(rows []map[string]any) ([]map[string]any, error) {
	records := mergeByRecency(s.decodeRows(rows, "skipping undecodable remote row"))
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		fields, err := models.ToMap(record)
		if err != nil {
			return nil, fmt.Errorf("sync service: encode %s: %w", s.entity, err)
		}
		out = append(out, fields)
	}
	return out, nil
}

func (s *Service[T]) decodeRows(rows []map[string]any, msg string) []T {
	records := make([]T, 0, len(rows))
	for _, fields := range rows {
		record, err := models.Decode[T](fields)
		if err != nil {
			s.log.Warn(msg, zap.Any("key", fields[s.entity.KeyField()]), zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records
}

// fallback serves durable data, then any cached list still held, then nothing.
func (s *Service[T]) fallback(ctx context.Context, ownerID string) []T {
	if local := s.localList(ctx, ownerID); len(local) > 0 {
		s.record("list", "local")
		return local
	}
	if cached, ok := cache.Peek[[]T](ctx, s.cache, s.entity, cache.ListID(ownerID)); ok {
		s.record("list", "stale_cache")
		return cached
	}
	s.record("list", "empty")
	return []T{}
}

func (s *Service[T]) localList(ctx context.Context, ownerID string) []T {
	records, err := s.local.GetAll(ctx, ownerID)
	if err != nil {
		s.localFailed("get all", err)
		return nil
	}
	return records
}

// confirm folds server-assigned fields into the local copy.
func (s *Service[T]) confirm(ctx context.Context, ownerID, op string, local T, row map[string]any) T {
	confirmed, err := models.Merge(local, remote.FromRemote(row))
	if err != nil {
		s.log.Warn("server row undecodable, keeping local copy", zap.String("id", local.RecordKey()), zap.Error(err))
		confirmed = local
	}
	if err := s.local.Update(ctx, confirmed); err != nil {
		s.localFailed("confirm", err)
	}
	s.record(op, "remote")
	s.notify(ownerID)
	return confirmed
}

// heldByOther reports whether key belongs to a different owner, either in the
// durable store or through a change still waiting in the queue.
func (s *Service[T]) heldByOther(ctx context.Context, ownerID, key string) bool {
	if ownerID == "" {
		return false
	}
	current, found, err := s.local.Get(ctx, key)
	if err != nil {
		s.localFailed("get", err)
	}
	if found && current.RecordOwner() != ownerID {
		return true
	}
	for _, entry := range s.queue.GetPendingChanges(s.entity.String()) {
		if entry.RecordID == key && entry.OwnerID != "" && entry.OwnerID != ownerID {
			return true
		}
	}
	return false
}

// canPush reports whether a write may go straight to the remote store. Records
// with queued changes stay on the queue so the remote sees changes in order.
func (s *Service[T]) canPush(ownerID, key string) bool {
	return ownerID != "" && s.online() && !s.queue.HasPendingChange(s.entity.String(), key)
}

func (s *Service[T]) online() bool {
	return s.remote != nil && (s.conn == nil || s.conn.Online())
}

func (s *Service[T]) enqueue(ctx context.Context, kind, ownerID, key string, fields map[string]any) {
	outcome, err := s.queue.AddChange(ctx, queue.Change{
		Type:     kind,
		Table:    s.entity.String(),
		RecordID: key,
		OwnerID:  ownerID,
		Data:     fields,
	})
	if err != nil {
		s.log.Error("failed to persist queued change", zap.String("type", kind), zap.String("id", key), zap.Error(err))
		return
	}
	s.record(kind, "queue_"+string(outcome))
}

func (s *Service[T]) notify(ownerID string) {
	if s.notifier != nil && ownerID != "" {
		s.notifier.NotifyChanged(ownerID, s.entity)
	}
}

func (s *Service[T]) localFailed(op string, err error) {
	if errors.Is(err, durable.ErrStorageUnsupported) {
		return
	}
	s.log.Warn("local store operation failed", zap.String("op", op), zap.Error(err))
}

func (s *Service[T]) record(op, source string) {
	monitoring.RecordSyncOperation(s.entity.String(), op, source)
}

// write sends one mutation to the remote store under admission control and the
// per-call timeout.
func write[T models.Entity[T], R any](ctx context.Context, s *Service[T], op string, fn func(ctx context.Context) (R, error)) (R, error) {
	start := time.Now()
	val, err := coordinator.WithTimeout(ctx, s.timeout, func(ctx context.Context) (R, error) {
		return coordinator.As[R](s.coord.Do(ctx, coordinator.Typed(fn)))
	})
	monitoring.ObserveRemoteCall(s.entity.String(), op, err, time.Since(start))
	return val, err
}

func validate(record any) error {
	if err := validator.ValidateStruct(record); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return nil
}

func ownedBy(record models.Record, ownerID string) bool {
	return ownerID == "" || record.RecordOwner() == ownerID
}
