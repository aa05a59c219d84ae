package models

import "time"

// MigrationStatus describes the outcome of moving legacy data into the durable store.
type MigrationStatus struct {
	OwnerID          string    `json:"ownerId"`
	Completed        bool      `json:"completed"`
	Timestamp        time.Time `json:"timestamp"`
	SchemaVersion    int       `json:"schemaVersion"`
	CustomersCount   int       `json:"customersCount"`
	ItemsCount       int       `json:"itemsCount"`
	QuotesCount      int       `json:"quotesCount"`
	SettingsMigrated bool      `json:"settingsMigrated"`
	Errors           []string  `json:"errors,omitempty"`
	BackupKey        string    `json:"backupKey,omitempty"`
	RolledBack       bool      `json:"rolledBack,omitempty"`
}

// MigrationBackup captures the raw legacy entries present before a migration attempt.
type MigrationBackup struct {
	OwnerID   string            `json:"ownerId"`
	CreatedAt time.Time         `json:"createdAt"`
	Entries   map[string][]byte `json:"entries"`
}
