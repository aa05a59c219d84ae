package models

import (
	"time"

	"gorm.io/datatypes"
)

// Change types recorded by the offline mutation queue.
const (
	ChangeCreate = "create"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
)

// Queue entry lifecycle.
const (
	SyncStatusPending = "pending"
	SyncStatusSyncing = "syncing"
	SyncStatusSynced  = "synced"
	SyncStatusFailed  = "failed"
)

// SyncQueueEntry is the persisted form of a queued local mutation.
// IDs are ULIDs so lexical order matches insertion order.
type SyncQueueEntry struct {
	ID         string            `gorm:"primaryKey;size:26" json:"id"`
	Type       string            `gorm:"size:16;not null" json:"type"`
	Table      string            `gorm:"column:table_name;size:32;not null;index" json:"table"`
	RecordID   string            `gorm:"size:64;index" json:"recordId"`
	OwnerID    string            `gorm:"size:64;index" json:"ownerId,omitempty"`
	Data       datatypes.JSONMap `json:"data"`
	Timestamp  time.Time         `gorm:"index" json:"timestamp"`
	Status     string            `gorm:"size:16;not null;index" json:"status"`
	RetryCount int               `json:"retryCount"`
	Error      string            `json:"error,omitempty"`
}

func (SyncQueueEntry) TableName() string { return "sync_queue" }

// Pending reports whether the entry has not yet been confirmed by the remote store.
func (e SyncQueueEntry) Pending() bool {
	return e.Status != SyncStatusSynced
}
