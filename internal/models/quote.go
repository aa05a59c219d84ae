package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	QuoteStatusDraft    = "draft"
	QuoteStatusSent     = "sent"
	QuoteStatusAccepted = "accepted"
	QuoteStatusDeclined = "declined"
)

// LineItem is one priced row of a quote.
type LineItem struct {
	ItemID   string  `json:"itemId,omitempty"`
	Name     string  `json:"name" validate:"required"`
	Quantity float64 `json:"quantity" validate:"gte=0"`
	Price    float64 `json:"price" validate:"gte=0"`
	Units    string  `json:"units,omitempty"`
	Total    float64 `json:"total"`
}

// Quote is a priced offer addressed to a customer. Quote numbers are globally unique.
type Quote struct {
	BaseModel

	QuoteNumber  string                        `gorm:"size:64;not null;uniqueIndex" json:"quoteNumber" validate:"required,max=64,quote_number"`
	CustomerID   string                        `gorm:"size:64;index" json:"customerId,omitempty"`
	CustomerName string                        `gorm:"size:255" json:"customerName,omitempty"`
	Title        string                        `gorm:"size:255" json:"title,omitempty"`
	LineItems    datatypes.JSONSlice[LineItem] `json:"lineItems" validate:"dive"`
	Subtotal     float64                       `json:"subtotal"`
	TaxRate      float64                       `json:"taxRate" validate:"gte=0"`
	Total        float64                       `json:"total"`
	Status       string                        `gorm:"size:32;index" json:"status" validate:"omitempty,oneof=draft sent accepted declined"`
	Notes        string                        `json:"notes,omitempty"`
	ShareToken   string                        `gorm:"size:128" json:"shareToken,omitempty"`
	SentAt       *time.Time                    `json:"sentAt,omitempty"`
}

func (Quote) TableName() string { return string(EntityQuotes) }

func (q Quote) Stamped(ownerID string, now time.Time, creating bool) Quote {
	q.BaseModel = q.BaseModel.stamped(ownerID, now, creating)
	if q.Status == "" {
		q.Status = QuoteStatusDraft
	}
	return q
}
