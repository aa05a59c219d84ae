package models

import (
	"time"
)

// CacheEntry represents a cached value stored in the database-backed cache tier.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Value     []byte    `gorm:"type:blob"`
	ExpiresAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (CacheEntry) TableName() string { return "cache_entries" }
