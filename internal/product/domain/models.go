// Package domain contains the product catalog records.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a catalog entry keyed by the merchant-assigned product code.
type Product struct {
	ID            snowflake.ID    `json:"id" gorm:"primaryKey"`
	ProductCode   string          `json:"product_code" gorm:"type:text;not null;uniqueIndex:ux_products_code"`
	Name          string          `json:"name" gorm:"type:text;not null"`
	Price         decimal.Decimal `json:"price" gorm:"type:numeric(10,2);not null;default:0"`
	Category      string          `json:"category" gorm:"type:text"`
	StoreID       string          `json:"store_id" gorm:"type:text"`
	IsPromotional bool            `json:"is_promotional" gorm:"not null;default:false"`
	OneCGUID      *string         `json:"one_c_guid" gorm:"column:one_c_guid;uniqueIndex:ux_products_guid"`
	CreatedAt     time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Product) TableName() string { return "products" }

// SyncRequest is the 1C product-sync upsert payload.
type SyncRequest struct {
	ProductCode   string
	OneCGUID      *string
	Name          string
	Price         decimal.Decimal
	Category      string
	IsPromotional bool
	UpdatedAt     *time.Time
}

// SyncResult reports whether the upsert created or updated the product.
type SyncResult struct {
	Product *Product
	Created bool
}

// Seed carries line-item data used to lazily create an unseen product during
// receipt ingestion. Existing products are never overwritten from receipts.
type Seed struct {
	ProductCode   string
	Name          string
	Price         decimal.Decimal
	Category      string
	StoreID       string
	IsPromotional bool
}

// Service maintains the product catalog.
type Service interface {
	// Sync upserts a product by its code from the 1C catalog feed.
	Sync(ctx context.Context, req SyncRequest) (*SyncResult, error)

	// EnsureByCode returns the product with the given code, creating it from
	// the seed when unseen. Runs inside tx when tx is non-nil.
	EnsureByCode(ctx context.Context, tx *gorm.DB, seed Seed) (*Product, error)
}

var (
	ErrInvalidCode = errors.New("invalid_product_code")
	ErrInvalidName = errors.New("invalid_product_name")
)
