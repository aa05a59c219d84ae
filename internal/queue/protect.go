package queue

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/charlesng35/quotesync/internal/models"
)

// Filter selects which pending entries take part in ApplyPendingChanges.
type Filter func(entry models.SyncQueueEntry) bool

// ForOwner keeps entries recorded for ownerID. Entries without an owner match nobody.
func ForOwner(ownerID string) Filter {
	return func(entry models.SyncQueueEntry) bool {
		return ownerID != "" && entry.OwnerID == ownerID
	}
}

// ApplyPendingChanges overlays unsynced local mutations onto rows fetched from the
// remote store so a refresh never resurrects a pending delete or loses a pending
// create or update. Changes apply in queue order: a delete removes the record,
// a create or update merges its fields over the current record. The result keeps
// the remote order followed by locally created records in queue order.
func (q *Queue) ApplyPendingChanges(remote []map[string]any, table string, filters ...Filter) []map[string]any {
	keyField := models.EntityType(table).KeyField()

	order := make([]string, 0, len(remote))
	ordered := mapset.NewThreadUnsafeSet[string]()
	rows := make(map[string]map[string]any, len(remote))
	for i, row := range remote {
		key, ok := row[keyField].(string)
		if !ok || key == "" {
			key = fmt.Sprintf("#%d", i)
		}
		if ordered.Add(key) {
			order = append(order, key)
		}
		rows[key] = row
	}

	for _, entry := range q.GetPendingChanges(table) {
		if !accept(entry, filters) {
			continue
		}
		switch entry.Type {
		case models.ChangeDelete:
			delete(rows, entry.RecordID)
		case models.ChangeCreate, models.ChangeUpdate:
			merged := make(map[string]any, len(entry.Data))
			for k, v := range rows[entry.RecordID] {
				merged[k] = v
			}
			for k, v := range entry.Data {
				merged[k] = v
			}
			rows[entry.RecordID] = merged
			if ordered.Add(entry.RecordID) {
				order = append(order, entry.RecordID)
			}
		}
	}

	out := make([]map[string]any, 0, len(rows))
	for _, key := range order {
		if row, ok := rows[key]; ok {
			out = append(out, row)
		}
	}
	return out
}

func accept(entry models.SyncQueueEntry, filters []Filter) bool {
	for _, filter := range filters {
		if !filter(entry) {
			return false
		}
	}
	return true
}
