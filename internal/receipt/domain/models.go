// Package domain contains the receipt ledger records and allocation math.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Transaction is one receipt line persisted as an immutable ledger entry.
// The (receipt_guid, receipt_line) pair is the durable de-duplication key;
// the idempotency key is recorded on the first line only as a fast path.
type Transaction struct {
	ID            snowflake.ID    `json:"id" gorm:"primaryKey"`
	CustomerID    snowflake.ID    `json:"customer_id" gorm:"not null;index"`
	ProductID     *snowflake.ID   `json:"product_id" gorm:"index"`
	Quantity      decimal.Decimal `json:"quantity" gorm:"type:numeric(10,3);not null;default:1"`
	TotalAmount   decimal.Decimal `json:"total_amount" gorm:"type:numeric(10,2);not null"`
	BonusEarned   decimal.Decimal `json:"bonus_earned" gorm:"type:numeric(10,2);not null;default:0"`
	PurchaseDate  time.Time       `json:"purchase_date" gorm:"type:date;not null"`
	PurchaseTime  string          `json:"purchase_time" gorm:"type:time;not null"`
	StoreID       string          `json:"store_id" gorm:"type:text"`
	IsPromotional bool            `json:"is_promotional" gorm:"not null;default:false"`

	ReceiptGUID *string `json:"receipt_guid" gorm:"type:text;uniqueIndex:ux_transactions_receipt_line,priority:1"`
	ReceiptLine int     `json:"receipt_line" gorm:"not null;default:0;uniqueIndex:ux_transactions_receipt_line,priority:2"`

	ReceiptTotalAmount   *decimal.Decimal `json:"receipt_total_amount" gorm:"type:numeric(10,2)"`
	ReceiptDiscountTotal *decimal.Decimal `json:"receipt_discount_total" gorm:"type:numeric(10,2)"`
	ReceiptBonusSpent    *decimal.Decimal `json:"receipt_bonus_spent" gorm:"type:numeric(10,2)"`
	ReceiptBonusEarned   *decimal.Decimal `json:"receipt_bonus_earned" gorm:"type:numeric(10,2)"`

	IdempotencyKey *string   `json:"idempotency_key" gorm:"uniqueIndex:ux_transactions_idempotency_key"`
	CreatedAt      time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "transactions" }
