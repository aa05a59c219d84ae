package models

import "time"

const (
	MarkupPercentage = "percentage"
	MarkupFixed      = "fixed"
)

// Item is a catalog entry that can be placed on a quote.
type Item struct {
	BaseModel

	Name        string  `gorm:"size:255;not null" json:"name" validate:"required,max=255"`
	Description string  `json:"description,omitempty"`
	Category    string  `gorm:"size:128;index" json:"category,omitempty"`
	BasePrice   float64 `json:"basePrice" validate:"gte=0"`
	MarkupType  string  `gorm:"size:16" json:"markupType,omitempty" validate:"omitempty,oneof=percentage fixed"`
	Markup      float64 `json:"markup"`
	FinalPrice  float64 `json:"finalPrice"`
	Units       string  `gorm:"size:32" json:"units,omitempty"`
}

func (Item) TableName() string { return string(EntityItems) }

func (i Item) Stamped(ownerID string, now time.Time, creating bool) Item {
	i.BaseModel = i.BaseModel.stamped(ownerID, now, creating)
	return i
}
