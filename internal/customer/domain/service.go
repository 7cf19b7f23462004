package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ResolvePath reports how a customer identity was resolved.
type ResolvePath string

const (
	ResolvePathMapping    ResolvePath = "mapping"
	ResolvePathTelegramID ResolvePath = "telegram_id"
	ResolvePathCreated    ResolvePath = "created"
	ResolvePathGuest      ResolvePath = "guest"
)

// ResolveRequest identifies a customer from a 1C receipt.
type ResolveRequest struct {
	OneCGUID   string
	TelegramID *int64
	// AllowGuest substitutes the configured guest customer when no identity
	// is present at all.
	AllowGuest bool
}

// SyncRequest is the 1C customer-sync upsert payload.
type SyncRequest struct {
	TelegramID         int64
	OneCGUID           string
	BonusBalance       *decimal.Decimal
	CreatedAt          *time.Time
	ReferrerTelegramID *int64
}

// SyncResult reports the customer-sync outcome.
type SyncResult struct {
	Customer  *Customer
	OneCGUID  *string
	WriteMode bool
}

// Service resolves and synchronizes customer identities.
type Service interface {
	// Resolve maps (one_c_guid?, telegram_id?) to a customer, creating one by
	// telegram_id when unknown, and upserts the GUID mapping last-write-wins.
	// Runs inside tx when tx is non-nil.
	Resolve(ctx context.Context, tx *gorm.DB, req ResolveRequest) (*Customer, ResolvePath, error)

	// Sync applies a 1C customer-sync upsert.
	Sync(ctx context.Context, req SyncRequest) (*SyncResult, error)

	// GetByTelegramID returns the customer with the given chat identifier.
	GetByTelegramID(ctx context.Context, telegramID int64) (*Customer, error)

	// GUIDFor returns the active 1C GUID mapped to the customer, if any.
	GUIDFor(ctx context.Context, customer *Customer) (*string, error)
}

var (
	ErrUnresolvable    = errors.New("customer_unresolvable")
	ErrNotFound        = errors.New("customer_not_found")
	ErrInvalidTelegram = errors.New("invalid_telegram_id")
	ErrGuestUnset      = errors.New("guest_customer_not_configured")
)
