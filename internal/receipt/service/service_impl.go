package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/retailware/bonusgate/internal/cache"
	"github.com/retailware/bonusgate/internal/config"
	customerdomain "github.com/retailware/bonusgate/internal/customer/domain"
	"github.com/retailware/bonusgate/internal/events"
	"github.com/retailware/bonusgate/internal/observability/metrics"
	productdomain "github.com/retailware/bonusgate/internal/product/domain"
	receiptdomain "github.com/retailware/bonusgate/internal/receipt/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	statusOK            = "ok"
	statusAlreadyExists = "already exists"

	legacyDateLayout = "02-01-2006"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Cfg       config.Config
	Customers customerdomain.Service
	Products  productdomain.Service
	Outbox    *events.Outbox
	Metrics   *metrics.LoyaltyMetrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	cfg       config.Config
	customers customerdomain.Service
	products  productdomain.Service
	outbox    *events.Outbox
	metrics   *metrics.LoyaltyMetrics

	// replays holds recently served replay responses keyed by idempotency
	// key. The unique constraints on transactions stay authoritative; this
	// only spares the common retry a round of queries.
	replays cache.Cache[string, *receiptdomain.IngestResponse]
}

func NewService(p ServiceParam) receiptdomain.Service {
	var replays cache.Cache[string, *receiptdomain.IngestResponse]
	if p.Cfg.ReplayCacheTTL > 0 {
		replays = cache.NewTTLCache[string, *receiptdomain.IngestResponse]()
	} else {
		replays = cache.NoopCache[string, *receiptdomain.IngestResponse]{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("receipt.service"),
		genID:     p.GenID,
		cfg:       p.Cfg,
		customers: p.Customers,
		products:  p.Products,
		outbox:    p.Outbox,
		metrics:   p.Metrics,
		replays:   replays,
	}
}

func (s *Service) Ingest(ctx context.Context, idempotencyKey string, req receiptdomain.IngestRequest) (*receiptdomain.IngestResponse, error) {
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		s.reject("missing_idempotency_key")
		return nil, receiptdomain.ErrMissingIdempotencyKey
	}

	if cached, ok := s.replays.Get(key); ok {
		s.replayed()
		return cached, nil
	}

	if resp, err := s.replayByKey(ctx, key, req); err != nil {
		return nil, err
	} else if resp != nil {
		s.replays.Set(key, resp, s.cfg.ReplayCacheTTL)
		s.replayed()
		return resp, nil
	}

	allocations := receiptdomain.Allocate(req.Positions, req.Totals)

	var (
		created  = make([]receiptdomain.Allocation, 0, len(allocations))
		customer *customerdomain.Customer
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolved, _, err := s.customers.Resolve(ctx, tx, customerdomain.ResolveRequest{
			OneCGUID:   req.Customer.OneCGUID,
			TelegramID: req.Customer.TelegramID,
			// Guest only applies to anonymous receipts; a GUID the mapping
			// does not know must fail resolution, not land on the guest.
			AllowGuest: req.Customer.OneCGUID == "" && req.Customer.TelegramID == nil,
		})
		if err != nil {
			if errors.Is(err, customerdomain.ErrUnresolvable) || errors.Is(err, customerdomain.ErrGuestUnset) {
				s.reject("customer_unresolvable")
				return receiptdomain.ErrCustomerUnresolvable
			}
			return err
		}
		customer = resolved

		created = created[:0]
		for _, alloc := range allocations {
			ok, err := s.persistLine(ctx, tx, customer, req, key, alloc, len(created) == 0)
			if err != nil {
				return err
			}
			if ok {
				created = append(created, receiptdomain.Allocation{
					ProductCode: alloc.Position.ProductCode,
					Quantity:    alloc.Position.Quantity.InexactFloat64(),
					TotalAmount: alloc.LineTotal.InexactFloat64(),
					BonusEarned: alloc.BonusEarned.InexactFloat64(),
				})
			}
		}

		if len(created) == 0 {
			return nil
		}

		if err := s.applyAggregates(ctx, tx, customer, req); err != nil {
			return err
		}

		payload := events.ReceiptIngestedPayload{
			ReceiptGUID:  req.ReceiptGUID,
			CustomerID:   customer.ID.String(),
			TelegramID:   customer.TelegramID,
			CreatedCount: len(created),
			TotalAmount:  req.Totals.TotalAmount.InexactFloat64(),
			BonusEarned:  req.Totals.BonusEarned.InexactFloat64(),
			BonusSpent:   req.Totals.BonusSpent.InexactFloat64(),
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type:      events.EventReceiptIngested,
			Payload:   payload.ToMap(),
			DedupeKey: "receipt:" + req.ReceiptGUID,
		})
	})
	if err != nil {
		return nil, err
	}

	snapshot, err := s.snapshotOf(ctx, customer)
	if err != nil {
		return nil, err
	}

	resp := &receiptdomain.IngestResponse{
		Status:       statusOK,
		ReceiptGUID:  req.ReceiptGUID,
		CreatedCount: len(created),
		Allocations:  created,
		Customer:     snapshot,
		Totals:       echoTotals(req.Totals),
	}
	if len(created) == 0 {
		resp.Status = statusAlreadyExists
		s.replayed()
	} else {
		if s.metrics != nil {
			s.metrics.ReceiptsIngested.Inc()
			s.metrics.LinesCreated.Add(float64(len(created)))
		}
		s.log.Info("receipt ingested",
			zap.String("receipt_guid", req.ReceiptGUID),
			zap.Int("created_count", len(created)),
			zap.Int("positions", len(req.Positions)),
		)
	}

	// The cache must answer retries of this key as replays, never as a
	// second creation.
	s.replays.Set(key, &receiptdomain.IngestResponse{
		Status:       statusAlreadyExists,
		ReceiptGUID:  req.ReceiptGUID,
		CreatedCount: 0,
		Allocations:  []receiptdomain.Allocation{},
		Customer:     snapshot,
		Totals:       resp.Totals,
	}, s.cfg.ReplayCacheTTL)
	return resp, nil
}

// replayByKey is the idempotency-key fast path: a transaction already carries
// this key, so the delivery was fully processed before.
func (s *Service) replayByKey(ctx context.Context, key string, req receiptdomain.IngestRequest) (*receiptdomain.IngestResponse, error) {
	var existing receiptdomain.Transaction
	err := s.db.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var customer customerdomain.Customer
	if err := s.db.WithContext(ctx).First(&customer, "id = ?", existing.CustomerID).Error; err != nil {
		return nil, err
	}
	snapshot, err := s.snapshotOf(ctx, &customer)
	if err != nil {
		return nil, err
	}

	guid := req.ReceiptGUID
	if existing.ReceiptGUID != nil {
		guid = *existing.ReceiptGUID
	}
	return &receiptdomain.IngestResponse{
		Status:       statusAlreadyExists,
		ReceiptGUID:  guid,
		CreatedCount: 0,
		Allocations:  []receiptdomain.Allocation{},
		Customer:     snapshot,
		Totals:       echoTotals(req.Totals),
	}, nil
}

// persistLine writes one receipt line, reporting false when the
// (receipt_guid, receipt_line) pair already exists. The create runs in a
// savepoint so a duplicate does not poison the enclosing transaction.
func (s *Service) persistLine(
	ctx context.Context,
	tx *gorm.DB,
	customer *customerdomain.Customer,
	req receiptdomain.IngestRequest,
	key string,
	alloc receiptdomain.LineAllocation,
	first bool,
) (bool, error) {
	product, err := s.products.EnsureByCode(ctx, tx, productdomain.Seed{
		ProductCode:   alloc.Position.ProductCode,
		Name:          alloc.Position.Name,
		Price:         alloc.Position.Price,
		Category:      alloc.Position.Category,
		StoreID:       req.StoreID,
		IsPromotional: alloc.Position.IsPromotional,
	})
	if err != nil {
		return false, err
	}

	guid := req.ReceiptGUID
	row := receiptdomain.Transaction{
		ID:            s.genID.Generate(),
		CustomerID:    customer.ID,
		ProductID:     &product.ID,
		Quantity:      alloc.Position.Quantity,
		TotalAmount:   alloc.LineTotal,
		BonusEarned:   alloc.BonusEarned,
		PurchaseDate:  req.DateTime.UTC().Truncate(24 * time.Hour),
		PurchaseTime:  req.DateTime.UTC().Format("15:04:05"),
		StoreID:       req.StoreID,
		IsPromotional: alloc.Position.IsPromotional,
		ReceiptGUID:   &guid,
		ReceiptLine:   alloc.Position.LineNumber,
		CreatedAt:     time.Now().UTC(),
	}
	if first {
		row.IdempotencyKey = &key
		total := req.Totals.TotalAmount
		discount := req.Totals.DiscountTotal
		spent := req.Totals.BonusSpent
		earned := req.Totals.BonusEarned
		row.ReceiptTotalAmount = &total
		row.ReceiptDiscountTotal = &discount
		row.ReceiptBonusSpent = &spent
		row.ReceiptBonusEarned = &earned
	}

	err = tx.Transaction(func(sp *gorm.DB) error {
		return sp.Create(&row).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// applyAggregates moves the customer counters exactly once per receipt:
// they run only when this delivery created at least one line.
func (s *Service) applyAggregates(ctx context.Context, tx *gorm.DB, customer *customerdomain.Customer, req receiptdomain.IngestRequest) error {
	bonusDelta := req.Totals.BonusEarned.Sub(req.Totals.BonusSpent)
	purchasedAt := req.DateTime.UTC()

	err := tx.WithContext(ctx).Model(&customerdomain.Customer{}).
		Where("id = ?", customer.ID).
		Updates(map[string]any{
			"total_spent":        gorm.Expr("total_spent + ?", req.Totals.TotalAmount),
			"bonuses":            gorm.Expr("bonuses + ?", bonusDelta),
			"purchase_count":     gorm.Expr("purchase_count + 1"),
			"last_purchase_date": purchasedAt,
			"updated_at":         time.Now().UTC(),
		}).Error
	if err != nil {
		return err
	}

	customer.TotalSpent = customer.TotalSpent.Add(req.Totals.TotalAmount)
	customer.Bonuses = customer.Bonuses.Add(bonusDelta)
	customer.PurchaseCount++
	customer.LastPurchaseDate = &purchasedAt
	return nil
}

func (s *Service) LegacyPurchase(ctx context.Context, req receiptdomain.LegacyPurchaseRequest) (*receiptdomain.LegacyPurchaseResponse, error) {
	purchaseDate, err := time.Parse(legacyDateLayout, req.PurchaseDate)
	if err != nil {
		s.reject("invalid_purchase_date")
		return nil, receiptdomain.ErrInvalidPurchaseDate
	}
	purchaseTime := strings.TrimSpace(req.PurchaseTime)
	if _, err := time.Parse("15:04:05", purchaseTime); err != nil {
		if _, err := time.Parse("15:04", purchaseTime); err != nil {
			s.reject("invalid_purchase_time")
			return nil, receiptdomain.ErrInvalidPurchaseTime
		}
		purchaseTime += ":00"
	}

	customer, err := s.customers.GetByTelegramID(ctx, req.TelegramID)
	if err != nil {
		if errors.Is(err, customerdomain.ErrNotFound) {
			s.reject("customer_not_found")
			return nil, receiptdomain.ErrCustomerNotFound
		}
		return nil, err
	}
	isFirst := customer.PurchaseCount == 0

	var row receiptdomain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, err := s.products.EnsureByCode(ctx, tx, productdomain.Seed{
			ProductCode:   req.ProductCode,
			Name:          req.ProductName,
			Price:         req.Price,
			Category:      req.Category,
			StoreID:       req.StoreID,
			IsPromotional: req.IsPromotional,
		})
		if err != nil {
			return err
		}

		row = receiptdomain.Transaction{
			ID:            s.genID.Generate(),
			CustomerID:    customer.ID,
			ProductID:     &product.ID,
			Quantity:      req.Quantity,
			TotalAmount:   req.Total,
			BonusEarned:   req.BonusEarned,
			PurchaseDate:  purchaseDate,
			PurchaseTime:  purchaseTime,
			StoreID:       req.StoreID,
			IsPromotional: req.IsPromotional,
			CreatedAt:     time.Now().UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		// The depot states the resulting balance, so it is set, not accrued.
		purchasedAt := purchaseDate
		if err := tx.Model(&customerdomain.Customer{}).
			Where("id = ?", customer.ID).
			Updates(map[string]any{
				"total_spent":        gorm.Expr("total_spent + ?", req.Total),
				"bonuses":            req.TotalBonuses,
				"purchase_count":     gorm.Expr("purchase_count + 1"),
				"last_purchase_date": purchasedAt,
				"updated_at":         time.Now().UTC(),
			}).Error; err != nil {
			return err
		}

		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type: events.EventPurchaseRecorded,
			Payload: map[string]any{
				"transaction_id": row.ID.String(),
				"telegram_id":    req.TelegramID,
				"total_amount":   req.Total.InexactFloat64(),
				"bonus_earned":   req.BonusEarned.InexactFloat64(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.LinesCreated.Inc()
	}
	s.log.Info("legacy purchase recorded",
		zap.Int64("telegram_id", req.TelegramID),
		zap.String("product_code", req.ProductCode),
		zap.Bool("is_first_purchase", isFirst),
	)

	return &receiptdomain.LegacyPurchaseResponse{
		Msg:             "Purchase recorded",
		TransactionID:   int64(row.ID),
		BonusEarned:     req.BonusEarned.InexactFloat64(),
		TotalBonuses:    req.TotalBonuses.InexactFloat64(),
		IsFirstPurchase: isFirst,
		Referrer:        customer.ReferrerTelegramID,
	}, nil
}

func (s *Service) snapshotOf(ctx context.Context, customer *customerdomain.Customer) (customerdomain.Snapshot, error) {
	guid, err := s.customers.GUIDFor(ctx, customer)
	if err != nil {
		return customerdomain.Snapshot{}, err
	}
	snap := customerdomain.Snapshot{
		TelegramID:         customer.TelegramID,
		OneCGUID:           guid,
		BonusBalance:       customer.Bonuses.InexactFloat64(),
		TotalSpent:         customer.TotalSpent.InexactFloat64(),
		PurchaseCount:      customer.PurchaseCount,
		ReferrerTelegramID: customer.ReferrerTelegramID,
	}
	if customer.LastPurchaseDate != nil {
		formatted := customer.LastPurchaseDate.UTC().Format("2006-01-02 15:04:05")
		snap.LastPurchaseDate = &formatted
	}
	return snap, nil
}

func echoTotals(t receiptdomain.Totals) receiptdomain.TotalsEcho {
	return receiptdomain.TotalsEcho{
		TotalAmount:   t.TotalAmount.InexactFloat64(),
		DiscountTotal: t.DiscountTotal.InexactFloat64(),
		BonusSpent:    t.BonusSpent.InexactFloat64(),
		BonusEarned:   t.BonusEarned.InexactFloat64(),
	}
}

func (s *Service) reject(reason string) {
	if s.metrics != nil {
		s.metrics.ReceiptsRejected.WithLabelValues(reason).Inc()
	}
}

func (s *Service) replayed() {
	if s.metrics != nil {
		s.metrics.ReceiptsReplayed.Inc()
	}
}
