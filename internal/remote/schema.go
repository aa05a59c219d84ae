package remote

import "time"

// Row shapes of the remote tables, used to create a development schema.

type customerRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"size:64;not null;index"`
	Name      string `gorm:"size:255"`
	Email     string `gorm:"size:255"`
	Phone     string `gorm:"size:64"`
	Address   string
	Notes     string
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (customerRow) TableName() string { return "customers" }

type itemRow struct {
	ID          string `gorm:"primaryKey;size:64"`
	UserID      string `gorm:"size:64;not null;index"`
	Name        string `gorm:"size:255"`
	Description string
	Category    string `gorm:"size:128"`
	BasePrice   float64
	MarkupType  string `gorm:"size:16"`
	Markup      float64
	FinalPrice  float64
	Units       string    `gorm:"size:32"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (itemRow) TableName() string { return "items" }

type quoteRow struct {
	ID           string `gorm:"primaryKey;size:64"`
	UserID       string `gorm:"size:64;not null;index"`
	QuoteNumber  string `gorm:"size:64;uniqueIndex"`
	CustomerID   string `gorm:"size:64"`
	CustomerName string `gorm:"size:255"`
	Title        string `gorm:"size:255"`
	LineItems    string
	Subtotal     float64
	TaxRate      float64
	Total        float64
	Status       string `gorm:"size:32"`
	Notes        string
	ShareToken   string `gorm:"size:128"`
	SentAt       *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

func (quoteRow) TableName() string { return "quotes" }

type settingsRow struct {
	UserID      string `gorm:"primaryKey;size:64"`
	CompanyName string `gorm:"size:255"`
	ContactName string `gorm:"size:255"`
	Email       string `gorm:"size:255"`
	Phone       string `gorm:"size:64"`
	Address     string
	LogoURL     string `gorm:"column:logo_url"`
	Currency    string `gorm:"size:8"`
	TaxRate     float64
	Terms       string
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (settingsRow) TableName() string { return "settings" }

func schemaModels() []any {
	return []any{&customerRow{}, &itemRow{}, &quoteRow{}, &settingsRow{}}
}
