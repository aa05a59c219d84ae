package models

import "time"

// EntityType names a record collection. The value doubles as the durable table
// name, the remote table name and the cache key prefix.
type EntityType string

const (
	EntityCustomers EntityType = "customers"
	EntityItems     EntityType = "items"
	EntityQuotes    EntityType = "quotes"
	EntitySettings  EntityType = "settings"
)

// EntityTypes lists every synchronised collection in dependency order.
var EntityTypes = []EntityType{EntityCustomers, EntityItems, EntityQuotes, EntitySettings}

func (e EntityType) String() string { return string(e) }

// Valid reports whether e is one of the known collections.
func (e EntityType) Valid() bool {
	switch e {
	case EntityCustomers, EntityItems, EntityQuotes, EntitySettings:
		return true
	}
	return false
}

// KeyField returns the in-process field name holding a record's key.
func (e EntityType) KeyField() string {
	if e == EntitySettings {
		return "ownerId"
	}
	return "id"
}

// Record is implemented by every locally stored entity.
type Record interface {
	RecordKey() string
	RecordOwner() string
	RecordUpdatedAt() time.Time
}

// Entity is a Record that can produce a copy stamped for a write.
type Entity[T any] interface {
	Record
	Stamped(ownerID string, now time.Time, creating bool) T
}
