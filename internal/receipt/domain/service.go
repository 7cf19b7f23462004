package domain

import (
	"context"
	"errors"
	"time"

	customerdomain "github.com/retailware/bonusgate/internal/customer/domain"
	"github.com/shopspring/decimal"
)

// CustomerRef identifies the customer on a 1C receipt. At least one of the
// identifiers must resolve; an entirely empty block falls back to the guest
// customer.
type CustomerRef struct {
	TelegramID *int64 `json:"telegram_id"`
	OneCGUID   string `json:"one_c_guid"`
}

// Position is one line item of a receipt as delivered by 1C. Monetary fields
// arrive as decimal strings.
type Position struct {
	ProductCode    string          `json:"product_code" binding:"required"`
	Name           string          `json:"name"`
	Quantity       decimal.Decimal `json:"quantity" binding:"required"`
	Price          decimal.Decimal `json:"price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Category       string          `json:"category"`
	IsPromotional  bool            `json:"is_promotional"`
	LineNumber     int             `json:"line_number" binding:"required"`
}

// Totals are the receipt-level figures stated by 1C. The allocator trusts
// TotalAmount as the proportional base; it does not reconcile it against the
// recomputed line sums.
type Totals struct {
	TotalAmount   decimal.Decimal `json:"total_amount"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	BonusSpent    decimal.Decimal `json:"bonus_spent"`
	BonusEarned   decimal.Decimal `json:"bonus_earned"`
}

// IngestRequest is the receipt webhook payload.
type IngestRequest struct {
	ReceiptGUID string      `json:"receipt_guid" binding:"required"`
	DateTime    time.Time   `json:"datetime" binding:"required"`
	StoreID     string      `json:"store_id"`
	Customer    CustomerRef `json:"customer"`
	Positions   []Position  `json:"positions" binding:"required,min=1,dive"`
	Totals      Totals      `json:"totals"`
}

// Allocation echoes one newly created line back to 1C.
type Allocation struct {
	ProductCode string  `json:"product_code"`
	Quantity    float64 `json:"quantity"`
	TotalAmount float64 `json:"total_amount"`
	BonusEarned float64 `json:"bonus_earned"`
}

// TotalsEcho mirrors the stated totals as floats in the response.
type TotalsEcho struct {
	TotalAmount   float64 `json:"total_amount"`
	DiscountTotal float64 `json:"discount_total"`
	BonusSpent    float64 `json:"bonus_spent"`
	BonusEarned   float64 `json:"bonus_earned"`
}

// IngestResponse is the receipt webhook reply. Status is "ok" when at least
// one line was created this delivery, "already exists" on a full replay.
type IngestResponse struct {
	Status       string                  `json:"status"`
	ReceiptGUID  string                  `json:"receipt_guid"`
	CreatedCount int                     `json:"created_count"`
	Allocations  []Allocation            `json:"allocations"`
	Customer     customerdomain.Snapshot `json:"customer"`
	Totals       TotalsEcho              `json:"totals"`
}

// Replayed reports whether the delivery was a pure replay (nothing created).
func (r *IngestResponse) Replayed() bool { return r.CreatedCount == 0 }

// LegacyPurchaseRequest is the single-line purchase webhook kept for older
// 1C deployments. The customer must already exist and the bonus balance is
// set absolutely rather than accrued.
type LegacyPurchaseRequest struct {
	TelegramID    int64           `json:"telegram_id" binding:"required"`
	ProductCode   string          `json:"product_code" binding:"required"`
	ProductName   string          `json:"product_name" binding:"required"`
	Category      string          `json:"category"`
	Quantity      decimal.Decimal `json:"quantity" binding:"required"`
	Price         decimal.Decimal `json:"price"`
	Total         decimal.Decimal `json:"total"`
	PurchaseDate  string          `json:"purchase_date" binding:"required"`
	PurchaseTime  string          `json:"purchase_time" binding:"required"`
	StoreID       string          `json:"store_id"`
	IsPromotional bool            `json:"is_promotional"`
	BonusEarned   decimal.Decimal `json:"bonus_earned"`
	TotalBonuses  decimal.Decimal `json:"total_bonuses"`
}

// LegacyPurchaseResponse mirrors the historical reply shape.
type LegacyPurchaseResponse struct {
	Msg             string  `json:"msg"`
	TransactionID   int64   `json:"transaction_id"`
	BonusEarned     float64 `json:"bonus_earned"`
	TotalBonuses    float64 `json:"total_bonuses"`
	IsFirstPurchase bool    `json:"is_first_purchase"`
	Referrer        *int64  `json:"referrer"`
}

// Service ingests receipts from 1C.
type Service interface {
	// Ingest processes one receipt delivery. idempotencyKey must be non-empty;
	// replays are answered with CreatedCount == 0.
	Ingest(ctx context.Context, idempotencyKey string, req IngestRequest) (*IngestResponse, error)

	// LegacyPurchase processes the single-line purchase webhook.
	LegacyPurchase(ctx context.Context, req LegacyPurchaseRequest) (*LegacyPurchaseResponse, error)
}

var (
	ErrMissingIdempotencyKey = errors.New("missing_idempotency_key")
	ErrCustomerUnresolvable  = errors.New("customer_unresolvable")
	ErrCustomerNotFound      = errors.New("customer_not_found")
	ErrInvalidPurchaseDate   = errors.New("invalid_purchase_date")
	ErrInvalidPurchaseTime   = errors.New("invalid_purchase_time")
)
