package cache

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/charlesng35/quotesync/internal/models"
)

// dependents lists the entity types whose cached views embed another type's data.
// Quotes carry customer and item snapshots.
var dependents = map[models.EntityType][]models.EntityType{
	models.EntityCustomers: {models.EntityQuotes},
	models.EntityItems:     {models.EntityQuotes},
}

// cascade returns entity plus every type transitively depending on it.
func cascade(entity models.EntityType) mapset.Set[models.EntityType] {
	seen := mapset.NewThreadUnsafeSet[models.EntityType]()
	pending := []models.EntityType{entity}
	for len(pending) > 0 {
		next := pending[0]
		pending = pending[1:]
		if !seen.Add(next) {
			continue
		}
		pending = append(pending, dependents[next]...)
	}
	return seen
}

// clearsEverything reports whether invalidating entity must drop the whole cache.
// Settings influence how every other entity is rendered.
func clearsEverything(entity models.EntityType) bool {
	return entity == models.EntitySettings
}
