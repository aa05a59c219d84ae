package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/quotesync/internal/database/testutil"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "customers:c1", []byte("one"), time.Minute))
	require.NoError(t, store.Set(ctx, "customers:list", []byte("list"), time.Minute))
	require.NoError(t, store.Set(ctx, "quotes:q1", []byte("quote"), time.Minute))

	value, found, err := store.Get(ctx, "customers:c1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("one"), value)

	require.NoError(t, store.Set(ctx, "customers:c1", []byte("uno"), time.Minute))
	value, _, err = store.Get(ctx, "customers:c1")
	require.NoError(t, err)
	require.Equal(t, []byte("uno"), value)

	require.NoError(t, store.DeletePrefix(ctx, "customers:"))
	_, found, err = store.Get(ctx, "customers:list")
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = store.Get(ctx, "quotes:q1")
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, store.Delete(ctx, "quotes:q1"))
	_, found, err = store.Get(ctx, "quotes:q1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(0))
}

func TestDatabaseStore(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	exerciseStore(t, NewDatabaseStore(db))
}

func TestDatabaseStorePurgesExpired(t *testing.T) {
	ctx := context.Background()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "items:a", []byte("a"), time.Minute))
	require.NoError(t, store.Set(ctx, "items:b", []byte("b"), time.Hour))
	require.NoError(t, store.Set(ctx, "items:c", []byte("c"), 0))

	now = now.Add(2 * time.Minute)
	_, found, err := store.Get(ctx, "items:a")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Set(ctx, "items:d", []byte("d"), time.Second))
	now = now.Add(time.Minute)

	removed, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, found, err = store.Get(ctx, "items:c")
	require.NoError(t, err)
	require.True(t, found, "entries without expiry are kept")
}

func TestNilStoresReportErrors(t *testing.T) {
	var db *DatabaseStore
	_, _, err := db.Get(context.Background(), "k")
	require.Error(t, err)

	var mem *MemoryStore
	require.Error(t, mem.Set(context.Background(), "k", nil, time.Second))
}
