package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/retailware/bonusgate/internal/observability/metrics"
	productdomain "github.com/retailware/bonusgate/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Metrics *metrics.LoyaltyMetrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	metrics *metrics.LoyaltyMetrics
}

func NewService(p ServiceParam) productdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("product.service"),
		genID:   p.GenID,
		metrics: p.Metrics,
	}
}

func (s *Service) Sync(ctx context.Context, req productdomain.SyncRequest) (*productdomain.SyncResult, error) {
	code := strings.TrimSpace(req.ProductCode)
	if code == "" {
		return nil, productdomain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, productdomain.ErrInvalidName
	}

	updatedAt := time.Now().UTC()
	if req.UpdatedAt != nil {
		updatedAt = req.UpdatedAt.UTC()
	}

	var result *productdomain.SyncResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing productdomain.Product
		err := tx.WithContext(ctx).Where("product_code = ?", code).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created := &productdomain.Product{
				ID:            s.genID.Generate(),
				ProductCode:   code,
				Name:          name,
				Price:         req.Price,
				Category:      req.Category,
				IsPromotional: req.IsPromotional,
				OneCGUID:      req.OneCGUID,
				CreatedAt:     updatedAt,
				UpdatedAt:     updatedAt,
			}
			if err := tx.WithContext(ctx).Create(created).Error; err != nil {
				return err
			}
			result = &productdomain.SyncResult{Product: created, Created: true}
			return nil
		case err != nil:
			return err
		}

		existing.Name = name
		existing.Price = req.Price
		existing.Category = req.Category
		existing.IsPromotional = req.IsPromotional
		existing.OneCGUID = req.OneCGUID
		existing.UpdatedAt = updatedAt
		if err := tx.WithContext(ctx).Save(&existing).Error; err != nil {
			return err
		}
		result = &productdomain.SyncResult{Product: &existing, Created: false}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ProductsSynced.Inc()
	}
	return result, nil
}

func (s *Service) EnsureByCode(ctx context.Context, tx *gorm.DB, seed productdomain.Seed) (*productdomain.Product, error) {
	code := strings.TrimSpace(seed.ProductCode)
	if code == "" {
		return nil, productdomain.ErrInvalidCode
	}
	db := tx
	if db == nil {
		db = s.db
	}

	var existing productdomain.Product
	err := db.WithContext(ctx).Where("product_code = ?", code).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	name := strings.TrimSpace(seed.Name)
	if name == "" {
		name = "UNKNOWN"
	}
	now := time.Now().UTC()
	created := &productdomain.Product{
		ID:            s.genID.Generate(),
		ProductCode:   code,
		Name:          name,
		Price:         seed.Price,
		Category:      seed.Category,
		StoreID:       seed.StoreID,
		IsPromotional: seed.IsPromotional,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	// Savepoint keeps a duplicate-key race from aborting the enclosing
	// receipt transaction.
	err = db.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
		return sp.Create(created).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Concurrent receipt created it first.
			var winner productdomain.Product
			if ferr := db.WithContext(ctx).Where("product_code = ?", code).First(&winner).Error; ferr != nil {
				return nil, ferr
			}
			return &winner, nil
		}
		return nil, err
	}
	s.log.Info("product created from receipt line", zap.String("product_code", code))
	return created, nil
}
