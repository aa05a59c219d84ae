package services

import "github.com/charlesng35/quotesync/internal/models"

// mergeByRecency collapses records sharing a key into the one with the later
// UpdatedAt, keeping the position of the first occurrence. Ties keep the first.
func mergeByRecency[T models.Record](records []T) []T {
	index := make(map[string]int, len(records))
	out := make([]T, 0, len(records))
	for _, record := range records {
		key := record.RecordKey()
		pos, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, record)
			continue
		}
		if record.RecordUpdatedAt().After(out[pos].RecordUpdatedAt()) {
			out[pos] = record
		}
	}
	return out
}
