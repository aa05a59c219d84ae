package models

import "time"

// SchemaMeta records the schema version applied to the durable local store.
type SchemaMeta struct {
	ID        uint `gorm:"primaryKey"`
	Version   int  `gorm:"not null"`
	UpdatedAt time.Time
}

func (SchemaMeta) TableName() string { return "schema_meta" }
