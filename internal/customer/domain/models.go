// Package domain contains the loyalty customer records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Customer is a loyalty-program member. Most customers arrive through the
// Telegram bot; the rest are created on first sighting in a 1C receipt.
type Customer struct {
	ID                  snowflake.ID    `json:"id" gorm:"primaryKey"`
	TelegramID          *int64          `json:"telegram_id" gorm:"uniqueIndex:ux_customers_telegram_id"`
	FullName            string          `json:"full_name" gorm:"type:text"`
	Bonuses             decimal.Decimal `json:"bonuses" gorm:"type:numeric(10,2);not null;default:0"`
	TotalSpent          decimal.Decimal `json:"total_spent" gorm:"type:numeric(10,2);not null;default:0"`
	PurchaseCount       int             `json:"purchase_count" gorm:"not null;default:0"`
	LastPurchaseDate    *time.Time      `json:"last_purchase_date"`
	ReferrerTelegramID  *int64          `json:"referrer_telegram_id"`
	PersonalDataConsent *bool           `json:"personal_data_consent"`
	CreatedAt           time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }

// ClientMapping associates a durable 1C customer GUID with a Customer.
// The GUID is unique; re-pointing it to another customer is last-write-wins.
type ClientMapping struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	OneCGUID   string       `json:"one_c_guid" gorm:"column:one_c_guid;type:text;not null;uniqueIndex:ux_client_mappings_guid"`
	CustomerID snowflake.ID `json:"customer_id" gorm:"not null;index"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ClientMapping) TableName() string { return "client_mappings" }

// Snapshot is the customer state echoed back to 1C.
type Snapshot struct {
	TelegramID         *int64   `json:"telegram_id"`
	OneCGUID           *string  `json:"one_c_guid"`
	BonusBalance       float64  `json:"bonus_balance"`
	TotalSpent         float64  `json:"total_spent"`
	PurchaseCount      int      `json:"purchase_count"`
	LastPurchaseDate   *string  `json:"last_purchase_date,omitempty"`
	ReferrerTelegramID *int64   `json:"referrer_telegram_id,omitempty"`
}
