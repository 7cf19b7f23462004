package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/retailware/bonusgate/internal/config"
	customerdomain "github.com/retailware/bonusgate/internal/customer/domain"
)

func newTestService(t *testing.T, cfg config.Config) (customerdomain.Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&customerdomain.Customer{}, &customerdomain.ClientMapping{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})
	node, err := snowflake.NewNode(5)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	svc := NewService(ServiceParam{DB: db, Log: zap.NewNop(), GenID: node, Cfg: cfg})
	return svc, db
}

func TestResolveCreatesByTelegramID(t *testing.T) {
	svc, db := newTestService(t, config.Config{})
	ctx := context.Background()

	tid := int64(100)
	cust, path, err := svc.Resolve(ctx, nil, customerdomain.ResolveRequest{TelegramID: &tid})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if path != customerdomain.ResolvePathCreated {
		t.Fatalf("path = %q, want created", path)
	}

	// second resolve finds the same row
	again, path, err := svc.Resolve(ctx, nil, customerdomain.ResolveRequest{TelegramID: &tid})
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if path != customerdomain.ResolvePathTelegramID {
		t.Fatalf("path = %q, want telegram_id", path)
	}
	if again.ID != cust.ID {
		t.Fatalf("resolved different customers: %v vs %v", again.ID, cust.ID)
	}

	var count int64
	if err := db.Model(&customerdomain.Customer{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("customers = %d, want 1", count)
	}
}

func TestResolveMappingTakesPrecedence(t *testing.T) {
	svc, _ := newTestService(t, config.Config{})
	ctx := context.Background()

	tidA := int64(100)
	a, _, err := svc.Resolve(ctx, nil, customerdomain.ResolveRequest{TelegramID: &tidA, OneCGUID: "g-1"})
	if err != nil {
		t.Fatalf("seed resolve: %v", err)
	}

	// a different telegram_id with the mapped GUID still resolves to A
	tidB := int64(200)
	got, path, err := svc.Resolve(ctx, nil, customerdomain.ResolveRequest{TelegramID: &tidB, OneCGUID: "g-1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if path != customerdomain.ResolvePathMapping {
		t.Fatalf("path = %q, want mapping", path)
	}
	if got.ID != a.ID {
		t.Fatalf("resolved %v, want %v", got.ID, a.ID)
	}
}

func TestResolveRemapsGUIDLastWriteWins(t *testing.T) {
	svc, db := newTestService(t, config.Config{})
	ctx := context.Background()

	tidA := int64(100)
	if _, _, err := svc.Resolve(ctx, nil, customerdomain.ResolveRequest{TelegramID: &tidA, OneCGUID: "g-1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// a sync for customer B claiming the same GUID re-points the mapping
	result, err := svc.Sync(ctx, customerdomain.SyncRequest{TelegramID: 200, OneCGUID: "g-1"})
	if err != nil {
		t.Fatalf("remap sync: %v", err)
	}
	b := result.Customer

	var mapping customerdomain.ClientMapping
	if err := db.First(&mapping, "one_c_guid = ?", "g-1").Error; err != nil {
		t.Fatalf("load mapping: %v", err)
	}
	if mapping.CustomerID != b.ID {
		t.Fatalf("mapping points at %v, want %v", mapping.CustomerID, b.ID)
	}
}

func TestResolveUnresolvable(t *testing.T) {
	svc, _ := newTestService(t, config.Config{})

	_, _, err := svc.Resolve(context.Background(), nil, customerdomain.ResolveRequest{})
	if !errors.Is(err, customerdomain.ErrUnresolvable) {
		t.Fatalf("err = %v, want ErrUnresolvable", err)
	}
}

func TestResolveGuestNeverClaimsGUID(t *testing.T) {
	svc, db := newTestService(t, config.Config{GuestTelegramID: -1})
	ctx := context.Background()

	cust, path, err := svc.Resolve(ctx, nil, customerdomain.ResolveRequest{
		OneCGUID:   "g-orphan",
		AllowGuest: true,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if path != customerdomain.ResolvePathGuest {
		t.Fatalf("path = %q, want guest", path)
	}
	if cust.TelegramID == nil || *cust.TelegramID != -1 {
		t.Fatalf("telegram_id = %v, want guest (-1)", cust.TelegramID)
	}

	var count int64
	if err := db.Model(&customerdomain.ClientMapping{}).Count(&count).Error; err != nil {
		t.Fatalf("count mappings: %v", err)
	}
	if count != 0 {
		t.Fatalf("mappings = %d, want 0", count)
	}
}

func TestSyncLookupAndWrite(t *testing.T) {
	svc, _ := newTestService(t, config.Config{})
	ctx := context.Background()

	// telegram_id only: creates the row but reports lookup mode
	result, err := svc.Sync(ctx, customerdomain.SyncRequest{TelegramID: 300})
	if err != nil {
		t.Fatalf("lookup sync: %v", err)
	}
	if result.WriteMode {
		t.Fatal("telegram_id-only sync should be lookup mode")
	}

	balance := decimal.RequireFromString("55.50")
	result, err = svc.Sync(ctx, customerdomain.SyncRequest{
		TelegramID:   300,
		OneCGUID:     "g-300",
		BonusBalance: &balance,
	})
	if err != nil {
		t.Fatalf("write sync: %v", err)
	}
	if !result.WriteMode {
		t.Fatal("balance write should be write mode")
	}
	if !result.Customer.Bonuses.Equal(balance) {
		t.Fatalf("bonuses = %s, want 55.50", result.Customer.Bonuses)
	}
	if result.OneCGUID == nil || *result.OneCGUID != "g-300" {
		t.Fatalf("one_c_guid = %v, want g-300", result.OneCGUID)
	}
}

func TestSyncReferrerSetOnce(t *testing.T) {
	svc, _ := newTestService(t, config.Config{})
	ctx := context.Background()

	if _, err := svc.Sync(ctx, customerdomain.SyncRequest{TelegramID: 400}); err != nil {
		t.Fatalf("seed referrer: %v", err)
	}

	ref := int64(400)
	result, err := svc.Sync(ctx, customerdomain.SyncRequest{TelegramID: 401, ReferrerTelegramID: &ref})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Customer.ReferrerTelegramID == nil || *result.Customer.ReferrerTelegramID != 400 {
		t.Fatalf("referrer = %v, want 400", result.Customer.ReferrerTelegramID)
	}

	// a second referrer is ignored
	other := int64(999)
	if _, err := svc.Sync(ctx, customerdomain.SyncRequest{TelegramID: 999}); err != nil {
		t.Fatalf("seed other: %v", err)
	}
	result, err = svc.Sync(ctx, customerdomain.SyncRequest{TelegramID: 401, ReferrerTelegramID: &other})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if *result.Customer.ReferrerTelegramID != 400 {
		t.Fatalf("referrer changed to %v, want 400", *result.Customer.ReferrerTelegramID)
	}

	// self-referral is ignored
	self := int64(402)
	result, err = svc.Sync(ctx, customerdomain.SyncRequest{TelegramID: 402, ReferrerTelegramID: &self})
	if err != nil {
		t.Fatalf("self sync: %v", err)
	}
	if result.Customer.ReferrerTelegramID != nil {
		t.Fatalf("self-referral should be ignored, got %v", *result.Customer.ReferrerTelegramID)
	}
}

func TestSyncRejectsZeroTelegramID(t *testing.T) {
	svc, _ := newTestService(t, config.Config{})

	_, err := svc.Sync(context.Background(), customerdomain.SyncRequest{})
	if !errors.Is(err, customerdomain.ErrInvalidTelegram) {
		t.Fatalf("err = %v, want ErrInvalidTelegram", err)
	}
}

func TestSyncBackdatesCreatedAt(t *testing.T) {
	svc, db := newTestService(t, config.Config{})
	ctx := context.Background()

	earlier := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	_, err := svc.Sync(ctx, customerdomain.SyncRequest{
		TelegramID: 500,
		OneCGUID:   "g-500",
		CreatedAt:  &earlier,
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	var cust customerdomain.Customer
	if err := db.First(&cust, "telegram_id = ?", 500).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cust.CreatedAt.Equal(earlier) {
		t.Fatalf("created_at = %v, want %v", cust.CreatedAt, earlier)
	}
}
