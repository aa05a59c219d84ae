package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/quotesync/internal/database/testutil"
	"github.com/charlesng35/quotesync/internal/models"
)

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLStore(testutil.MustOpenTestDB(t))
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func exerciseStore(t *testing.T, store Store, now time.Time) {
	ctx := context.Background()

	inserted, err := store.Insert(ctx, models.EntityCustomers, map[string]any{
		"id": "c1", "user_id": "u1", "name": "Acme", "phone": "",
	})
	require.NoError(t, err)
	require.Equal(t, "Acme", inserted["name"])
	require.NotNil(t, inserted["updated_at"])

	_, err = store.Insert(ctx, models.EntityCustomers, map[string]any{"id": "c1", "user_id": "u1", "name": "Dup"})
	require.ErrorIs(t, err, ErrConflict)

	_, err = store.Insert(ctx, models.EntityCustomers, map[string]any{"id": "c2", "user_id": "u2", "name": "Other"})
	require.NoError(t, err)

	rows, err := store.Select(ctx, models.EntityCustomers, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "c1", rows[0]["id"])

	updated, err := store.Update(ctx, models.EntityCustomers, "c1", "u1", map[string]any{"phone": "555", "user_id": "hijack"})
	require.NoError(t, err)
	require.Equal(t, "555", updated["phone"])
	require.Equal(t, "u1", updated["user_id"])

	_, err = store.Update(ctx, models.EntityCustomers, "c1", "u2", map[string]any{"phone": "1"})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, models.EntityCustomers, "c1", "u1"))
	require.NoError(t, store.Delete(ctx, models.EntityCustomers, "c1", "u1"))
	rows, err = store.Select(ctx, models.EntityCustomers, "u1")
	require.NoError(t, err)
	require.Empty(t, rows)

	_, err = store.Select(ctx, models.EntityType("bogus"), "u1")
	require.Error(t, err)

	require.NoError(t, store.Ping(ctx))
}

func TestMemoryStoreContract(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })
	exerciseStore(t, store, now)
	require.Equal(t, 2, store.Calls("select"))
}

func TestSQLStoreContract(t *testing.T) {
	exerciseStore(t, newSQLStore(t), time.Now())
}

func TestSQLStoreQuoteRowDecodesIntoModel(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)

	local := map[string]any{
		"id":          "q1",
		"ownerId":     "u1",
		"quoteNumber": "Q-100",
		"status":      "draft",
		"total":       42.5,
		"lineItems":   []any{map[string]any{"name": "Paint", "quantity": 2.0, "price": 21.25, "total": 42.5}},
	}
	_, err := store.Insert(ctx, models.EntityQuotes, ToRemote(local))
	require.NoError(t, err)

	_, err = store.Insert(ctx, models.EntityQuotes, ToRemote(map[string]any{"id": "q2", "ownerId": "u1", "quoteNumber": "Q-100"}))
	require.ErrorIs(t, err, ErrConflict)

	rows, err := store.Select(ctx, models.EntityQuotes, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	quote, err := models.Decode[models.Quote](FromRemote(rows[0]))
	require.NoError(t, err)
	require.Equal(t, "q1", quote.ID)
	require.Equal(t, "u1", quote.OwnerID)
	require.Equal(t, "Q-100", quote.QuoteNumber)
	require.Len(t, quote.LineItems, 1)
	require.Equal(t, "Paint", quote.LineItems[0].Name)
	require.False(t, quote.UpdatedAt.IsZero())
}

func TestSQLStoreSettingsKeyedByOwner(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)

	_, err := store.Insert(ctx, models.EntitySettings, ToRemote(map[string]any{"ownerId": "u1", "companyName": "Acme"}))
	require.NoError(t, err)

	row, err := store.Update(ctx, models.EntitySettings, "u1", "u1", ToRemote(map[string]any{"logoUrl": "https://x/logo.png"}))
	require.NoError(t, err)
	require.Equal(t, "https://x/logo.png", row["logo_url"])

	settings, err := models.Decode[models.Settings](FromRemote(row))
	require.NoError(t, err)
	require.Equal(t, "u1", settings.OwnerID)
	require.Equal(t, "Acme", settings.CompanyName)
}

func TestMemoryStoreFailureAndHooks(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.OnWrite = func(table models.EntityType, row map[string]any) {
		if table == models.EntityQuotes {
			row["share_token"] = "tok-" + row["id"].(string)
		}
	}

	row, err := store.Insert(ctx, models.EntityQuotes, map[string]any{"id": "q1", "user_id": "u1", "quote_number": "Q-1"})
	require.NoError(t, err)
	require.Equal(t, "tok-q1", row["share_token"])

	_, err = store.Insert(ctx, models.EntityQuotes, map[string]any{"id": "q2", "user_id": "u1", "quote_number": "Q-1"})
	require.ErrorIs(t, err, ErrConflict)

	offline := errors.New("network down")
	store.SetFailure(offline)
	_, err = store.Select(ctx, models.EntityQuotes, "u1")
	require.ErrorIs(t, err, offline)
	require.ErrorIs(t, store.Ping(ctx), offline)

	store.SetFailure(nil)
	rows, err := store.Select(ctx, models.EntityQuotes, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows[0]["quote_number"] = "mutated"
	stored, ok := store.Row(models.EntityQuotes, "q1")
	require.True(t, ok)
	require.Equal(t, "Q-1", stored["quote_number"])
}
