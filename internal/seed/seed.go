// Package seed prepares baseline rows the service relies on at runtime.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/retailware/bonusgate/internal/config"
	customerdomain "github.com/retailware/bonusgate/internal/customer/domain"
)

// EnsureGuestCustomer creates the configured guest customer when it does not
// exist yet. Receipts without any customer identity land on this row.
func EnsureGuestCustomer(ctx context.Context, db *gorm.DB, genID *snowflake.Node, cfg config.Config, log *zap.Logger) error {
	if cfg.GuestTelegramID == 0 {
		log.Info("guest customer not configured, anonymous receipts will be rejected")
		return nil
	}

	var existing customerdomain.Customer
	err := db.WithContext(ctx).
		First(&existing, "telegram_id = ?", cfg.GuestTelegramID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	tid := cfg.GuestTelegramID
	guest := customerdomain.Customer{
		ID:         genID.Generate(),
		TelegramID: &tid,
		FullName:   "Guest",
	}
	if err := db.WithContext(ctx).Create(&guest).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return err
	}
	log.Info("guest customer created", zap.Int64("telegram_id", tid))
	return nil
}
