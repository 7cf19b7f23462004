package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/retailware/bonusgate/internal/config"
	customerdomain "github.com/retailware/bonusgate/internal/customer/domain"
	"github.com/retailware/bonusgate/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Cfg     config.Config
	Metrics *metrics.LoyaltyMetrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	cfg     config.Config
	metrics *metrics.LoyaltyMetrics
}

func NewService(p ServiceParam) customerdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("customer.service"),
		genID:   p.GenID,
		cfg:     p.Cfg,
		metrics: p.Metrics,
	}
}

func (s *Service) Resolve(ctx context.Context, tx *gorm.DB, req customerdomain.ResolveRequest) (*customerdomain.Customer, customerdomain.ResolvePath, error) {
	exec := s.exec(tx)

	var resolved *customerdomain.Customer
	path := customerdomain.ResolvePathMapping

	if req.OneCGUID != "" {
		mapped, err := s.findByMapping(ctx, exec, req.OneCGUID)
		if err != nil {
			return nil, "", err
		}
		resolved = mapped
	}

	if resolved == nil && req.TelegramID != nil {
		found, err := findByTelegramID(ctx, exec, *req.TelegramID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", err
		}
		if found != nil {
			resolved = found
			path = customerdomain.ResolvePathTelegramID
		}
	}

	if resolved == nil {
		switch {
		case req.TelegramID != nil:
			created, err := s.create(ctx, exec, *req.TelegramID)
			if err != nil {
				return nil, "", err
			}
			resolved = created
			path = customerdomain.ResolvePathCreated
		case req.AllowGuest:
			guest, err := s.guest(ctx, exec)
			if err != nil {
				return nil, "", err
			}
			resolved = guest
			path = customerdomain.ResolvePathGuest
		default:
			return nil, "", customerdomain.ErrUnresolvable
		}
	}

	// The guest account never owns a GUID mapping.
	if req.OneCGUID != "" && path != customerdomain.ResolvePathGuest {
		if err := s.upsertMapping(ctx, exec, req.OneCGUID, resolved); err != nil {
			return nil, "", err
		}
	}

	if s.metrics != nil {
		s.metrics.CustomersResolved.WithLabelValues(string(path)).Inc()
	}
	return resolved, path, nil
}

func (s *Service) Sync(ctx context.Context, req customerdomain.SyncRequest) (*customerdomain.SyncResult, error) {
	if req.TelegramID == 0 {
		return nil, customerdomain.ErrInvalidTelegram
	}

	writeMode := req.BonusBalance != nil || req.ReferrerTelegramID != nil || req.OneCGUID != ""

	var result *customerdomain.SyncResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cust, err := findByTelegramID(ctx, tx, req.TelegramID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			cust, err = s.create(ctx, tx, req.TelegramID)
		}
		if err != nil {
			return err
		}

		if req.BonusBalance != nil {
			cust.Bonuses = *req.BonusBalance
		}
		if req.ReferrerTelegramID != nil {
			s.assignReferrer(ctx, tx, cust, *req.ReferrerTelegramID)
		}
		if req.CreatedAt != nil && cust.CreatedAt.After(*req.CreatedAt) {
			cust.CreatedAt = req.CreatedAt.UTC()
		}

		if writeMode {
			cust.UpdatedAt = time.Now().UTC()
			if err := tx.WithContext(ctx).Save(cust).Error; err != nil {
				return err
			}
		}

		if req.OneCGUID != "" {
			if err := s.upsertMapping(ctx, tx, req.OneCGUID, cust); err != nil {
				return err
			}
		}

		guid, err := s.guidFor(ctx, tx, cust)
		if err != nil {
			return err
		}
		if guid == nil && req.OneCGUID != "" {
			guid = &req.OneCGUID
		}

		result = &customerdomain.SyncResult{
			Customer:  cust,
			OneCGUID:  guid,
			WriteMode: writeMode,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) GetByTelegramID(ctx context.Context, telegramID int64) (*customerdomain.Customer, error) {
	cust, err := findByTelegramID(ctx, s.db, telegramID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, customerdomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cust, nil
}

func (s *Service) GUIDFor(ctx context.Context, customer *customerdomain.Customer) (*string, error) {
	return s.guidFor(ctx, s.db, customer)
}

func (s *Service) exec(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *Service) findByMapping(ctx context.Context, db *gorm.DB, guid string) (*customerdomain.Customer, error) {
	var mapping customerdomain.ClientMapping
	err := db.WithContext(ctx).Where("one_c_guid = ?", guid).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cust customerdomain.Customer
	if err := db.WithContext(ctx).First(&cust, "id = ?", mapping.CustomerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Dangling mapping; treat the GUID as unmapped.
			return nil, nil
		}
		return nil, err
	}
	return &cust, nil
}

func findByTelegramID(ctx context.Context, db *gorm.DB, telegramID int64) (*customerdomain.Customer, error) {
	var cust customerdomain.Customer
	if err := db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&cust).Error; err != nil {
		return nil, err
	}
	return &cust, nil
}

func (s *Service) create(ctx context.Context, db *gorm.DB, telegramID int64) (*customerdomain.Customer, error) {
	now := time.Now().UTC()
	cust := &customerdomain.Customer{
		ID:         s.genID.Generate(),
		TelegramID: &telegramID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.WithContext(ctx).Create(cust).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a create race; the winner's row is what we want.
			return findByTelegramID(ctx, db, telegramID)
		}
		return nil, err
	}
	s.log.Info("customer created", zap.Int64("telegram_id", telegramID))
	return cust, nil
}

func (s *Service) guest(ctx context.Context, db *gorm.DB) (*customerdomain.Customer, error) {
	if s.cfg.GuestTelegramID == 0 {
		return nil, customerdomain.ErrGuestUnset
	}
	guest, err := findByTelegramID(ctx, db, s.cfg.GuestTelegramID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.create(ctx, db, s.cfg.GuestTelegramID)
	}
	if err != nil {
		return nil, err
	}
	return guest, nil
}

func (s *Service) upsertMapping(ctx context.Context, db *gorm.DB, guid string, cust *customerdomain.Customer) error {
	var existing customerdomain.ClientMapping
	err := db.WithContext(ctx).Where("one_c_guid = ?", guid).First(&existing).Error
	if err == nil && existing.CustomerID != cust.ID {
		s.log.Warn("remapping 1C GUID to another customer",
			zap.String("one_c_guid", guid),
			zap.Int64("previous_customer_id", int64(existing.CustomerID)),
			zap.Int64("customer_id", int64(cust.ID)),
		)
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "one_c_guid"}},
		DoUpdates: clause.Assignments(map[string]any{"customer_id": cust.ID, "updated_at": now}),
	}).Create(&customerdomain.ClientMapping{
		ID:         s.genID.Generate(),
		OneCGUID:   guid,
		CustomerID: cust.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error
}

func (s *Service) guidFor(ctx context.Context, db *gorm.DB, cust *customerdomain.Customer) (*string, error) {
	var mapping customerdomain.ClientMapping
	err := db.WithContext(ctx).Where("customer_id = ?", cust.ID).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping.OneCGUID, nil
}

// assignReferrer sets the referrer at most once, ignoring self-referrals and
// unknown referrer accounts.
func (s *Service) assignReferrer(ctx context.Context, db *gorm.DB, cust *customerdomain.Customer, referrerTID int64) {
	if referrerTID == 0 || cust.ReferrerTelegramID != nil {
		return
	}
	if cust.TelegramID != nil && *cust.TelegramID == referrerTID {
		return
	}
	if _, err := findByTelegramID(ctx, db, referrerTID); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("referrer lookup failed", zap.Int64("referrer_telegram_id", referrerTID), zap.Error(err))
		}
		return
	}
	cust.ReferrerTelegramID = &referrerTID
}
