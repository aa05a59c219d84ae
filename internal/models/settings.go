package models

import "time"

// Settings holds the per-owner company profile. There is at most one row per owner.
type Settings struct {
	OwnerID     string    `gorm:"primaryKey;size:64" json:"ownerId" validate:"required"`
	CompanyName string    `gorm:"size:255" json:"companyName,omitempty"`
	ContactName string    `gorm:"size:255" json:"contactName,omitempty"`
	Email       string    `gorm:"size:255" json:"email,omitempty" validate:"omitempty,email"`
	Phone       string    `gorm:"size:64" json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	LogoURL     string    `json:"logoUrl,omitempty"`
	Currency    string    `gorm:"size:8" json:"currency,omitempty" validate:"omitempty,currency"`
	TaxRate     float64   `json:"taxRate" validate:"gte=0"`
	Terms       string    `json:"terms,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false" json:"updatedAt"`
}

func (Settings) TableName() string { return string(EntitySettings) }

func (s Settings) RecordKey() string          { return s.OwnerID }
func (s Settings) RecordOwner() string        { return s.OwnerID }
func (s Settings) RecordUpdatedAt() time.Time { return s.UpdatedAt }

func (s Settings) Stamped(ownerID string, now time.Time, creating bool) Settings {
	if ownerID != "" {
		s.OwnerID = ownerID
	}
	if creating || s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return s
}
