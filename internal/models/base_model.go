package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel provides the identity, ownership and timestamps shared by owner-scoped records.
// Timestamps are assigned by the sync services so that server-confirmed values survive upserts.
type BaseModel struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	OwnerID   string    `gorm:"size:64;not null;index" json:"ownerId"`
	CreatedAt time.Time `gorm:"index;autoCreateTime:false" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updatedAt"`
}

// BeforeCreate ensures UUID identifiers are generated automatically.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

func (m BaseModel) RecordKey() string          { return m.ID }
func (m BaseModel) RecordOwner() string        { return m.OwnerID }
func (m BaseModel) RecordUpdatedAt() time.Time { return m.UpdatedAt }

func (m BaseModel) stamped(ownerID string, now time.Time, creating bool) BaseModel {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if ownerID != "" {
		m.OwnerID = ownerID
	}
	if creating || m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	return m
}
