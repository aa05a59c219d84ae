package models

import "time"

// Customer is a client of the quoting business.
type Customer struct {
	BaseModel

	Name    string `gorm:"size:255;not null;index" json:"name" validate:"required,max=255"`
	Email   string `gorm:"size:255" json:"email,omitempty" validate:"omitempty,email"`
	Phone   string `gorm:"size:64" json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

func (Customer) TableName() string { return string(EntityCustomers) }

func (c Customer) Stamped(ownerID string, now time.Time, creating bool) Customer {
	c.BaseModel = c.BaseModel.stamped(ownerID, now, creating)
	return c
}
