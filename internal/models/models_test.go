package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)
}

func TestStampedAssignsOwnerAndTimestamps(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	customer := Customer{Name: "Acme"}.Stamped("owner-1", now, true)
	require.NotEmpty(t, customer.ID)
	require.Equal(t, "owner-1", customer.OwnerID)
	require.Equal(t, now, customer.CreatedAt)
	require.Equal(t, now, customer.UpdatedAt)

	later := now.Add(time.Hour)
	updated := customer.Stamped("", later, false)
	require.Equal(t, customer.ID, updated.ID)
	require.Equal(t, now, updated.CreatedAt)
	require.Equal(t, later, updated.UpdatedAt)

	quote := Quote{QuoteNumber: "Q-1"}.Stamped("owner-1", now, true)
	require.Equal(t, QuoteStatusDraft, quote.Status)

	settings := Settings{}.Stamped("owner-1", now, true)
	require.Equal(t, "owner-1", settings.RecordKey())
}

func TestEntityKeyField(t *testing.T) {
	require.Equal(t, "id", EntityCustomers.KeyField())
	require.Equal(t, "ownerId", EntitySettings.KeyField())
	require.True(t, EntityQuotes.Valid())
	require.False(t, EntityType("invoices").Valid())
}

func TestToMapUsesCamelCaseFields(t *testing.T) {
	quote := Quote{
		BaseModel:   BaseModel{ID: "q1", OwnerID: "u1"},
		QuoteNumber: "Q-100",
		LineItems:   []LineItem{{Name: "Labour", Quantity: 2, Price: 50, Total: 100}},
	}
	fields, err := ToMap(quote)
	require.NoError(t, err)
	require.Equal(t, "q1", fields["id"])
	require.Equal(t, "u1", fields["ownerId"])
	require.Equal(t, "Q-100", fields["quoteNumber"])
	require.Len(t, fields["lineItems"], 1)
}

func TestDecodeAcceptsDriverShapes(t *testing.T) {
	fields := map[string]any{
		"id":          "q1",
		"ownerId":     "u1",
		"quoteNumber": "Q-7",
		"lineItems":   `[{"name":"Paint","quantity":3,"price":10,"total":30}]`,
		"total":       int64(30),
		"updatedAt":   "2024-03-01T10:00:00Z",
		"createdAt":   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	quote, err := Decode[Quote](fields)
	require.NoError(t, err)
	require.Equal(t, "q1", quote.ID)
	require.Equal(t, "u1", quote.OwnerID)
	require.Len(t, quote.LineItems, 1)
	require.Equal(t, "Paint", quote.LineItems[0].Name)
	require.Equal(t, float64(30), quote.Total)
	require.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), quote.UpdatedAt.UTC())
	require.Equal(t, 2024, quote.CreatedAt.Year())
}

func TestMergeOverlaysFields(t *testing.T) {
	base := Customer{BaseModel: BaseModel{ID: "c1", OwnerID: "u1"}, Name: "Before", Phone: "123"}

	merged, err := Merge(base, map[string]any{"name": "After", "email": "a@example.com"})
	require.NoError(t, err)
	require.Equal(t, "After", merged.Name)
	require.Equal(t, "123", merged.Phone)
	require.Equal(t, "a@example.com", merged.Email)
}

func TestSyncQueueEntryPending(t *testing.T) {
	require.True(t, SyncQueueEntry{Status: SyncStatusPending}.Pending())
	require.True(t, SyncQueueEntry{Status: SyncStatusFailed}.Pending())
	require.False(t, SyncQueueEntry{Status: SyncStatusSynced}.Pending())
}
