package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/quotesync/internal/cache"
	"github.com/charlesng35/quotesync/internal/connectivity"
	"github.com/charlesng35/quotesync/internal/kvstore"
	"github.com/charlesng35/quotesync/internal/models"
	"github.com/charlesng35/quotesync/internal/queue"
)

type stubPruner struct {
	calls     int
	retention time.Duration
	err       error
}

func (s *stubPruner) PruneBackups(_ context.Context, retention time.Duration) (int, error) {
	s.calls++
	s.retention = retention
	return 2, s.err
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestCleanerRunOnce(t *testing.T) {
	ctx := context.Background()

	now := time.Date(2024, 2, 10, 15, 0, 0, 0, time.UTC)
	store := cache.NewMemoryStore(0)
	c, err := cache.New(store, cache.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	cache.Set(ctx, c, models.EntityCustomers, []string{"a"}, cache.ListID("owner-1"))

	q, err := queue.New(ctx, queue.NewKVPersister(kvstore.NewMemoryStore(), "sync_queue"))
	require.NoError(t, err)
	outcome, err := q.AddChange(ctx, queue.Change{Type: models.ChangeCreate, Table: "customers", RecordID: "c1", Data: map[string]any{"id": "c1"}})
	require.NoError(t, err)
	require.Equal(t, queue.OutcomeQueued, outcome)
	require.NoError(t, q.MarkSynced(ctx, q.Entries()[0].ID))

	backups := &stubPruner{}
	monitor := connectivity.NewMonitor(false, connectivity.WithPinger(stubPinger{}))

	cleaner := NewCleaner(Targets{Cache: c, Queue: q, Backups: backups, Prober: monitor}, WithBackupRetention(48*time.Hour))
	require.ElementsMatch(t, []string{JobCacheSweep, JobQueuePrune, JobBackupPrune, JobConnectivityProbe}, cleaner.Jobs())

	require.NoError(t, cleaner.RunOnce(ctx))
	require.Zero(t, q.Len())
	require.Equal(t, 1, backups.calls)
	require.Equal(t, 48*time.Hour, backups.retention)
	require.True(t, monitor.Online())
}

func TestCleanerRunOnceAggregatesErrors(t *testing.T) {
	backups := &stubPruner{err: errors.New("disk full")}
	cleaner := NewCleaner(Targets{Backups: backups, Prober: connectivity.NewMonitor(true, connectivity.WithPinger(stubPinger{err: errors.New("down")}))})

	err := cleaner.RunOnce(context.Background())
	require.ErrorContains(t, err, "disk full")
}

func TestCleanerSkipsDisabledSchedules(t *testing.T) {
	cleaner := NewCleaner(Targets{Backups: &stubPruner{}}, WithSchedule(JobBackupPrune, ""))
	require.Empty(t, cleaner.Jobs())
	require.NoError(t, cleaner.Start())
	<-cleaner.Stop().Done()
}

func TestCleanerStartRejectsInvalidSchedule(t *testing.T) {
	cleaner := NewCleaner(Targets{Backups: &stubPruner{}}, WithSchedule(JobBackupPrune, "not a schedule"))
	require.Error(t, cleaner.Start())
}

func TestCleanerStartAndStop(t *testing.T) {
	cleaner := NewCleaner(Targets{Backups: &stubPruner{}})
	require.NoError(t, cleaner.Start())
	<-cleaner.Stop().Done()
}
