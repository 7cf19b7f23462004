package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	productdomain "github.com/retailware/bonusgate/internal/product/domain"
)

func newTestService(t *testing.T) (productdomain.Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&productdomain.Product{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})
	node, err := snowflake.NewNode(6)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	svc := NewService(ServiceParam{DB: db, Log: zap.NewNop(), GenID: node})
	return svc, db
}

func TestSyncCreateThenUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Sync(ctx, productdomain.SyncRequest{
		ProductCode: "SKU-1",
		Name:        "Americano",
		Price:       decimal.RequireFromString("100"),
		Category:    "coffee",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !result.Created {
		t.Fatal("first sync should create")
	}

	result, err = svc.Sync(ctx, productdomain.SyncRequest{
		ProductCode: "SKU-1",
		Name:        "Americano L",
		Price:       decimal.RequireFromString("120"),
		Category:    "coffee",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if result.Created {
		t.Fatal("second sync should update")
	}
	if result.Product.Name != "Americano L" {
		t.Fatalf("name = %q", result.Product.Name)
	}
	if !result.Product.Price.Equal(decimal.RequireFromString("120")) {
		t.Fatalf("price = %s, want 120", result.Product.Price)
	}
}

func TestSyncRejectsMissingFields(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Sync(ctx, productdomain.SyncRequest{Name: "x"}); !errors.Is(err, productdomain.ErrInvalidCode) {
		t.Fatalf("err = %v, want ErrInvalidCode", err)
	}
	if _, err := svc.Sync(ctx, productdomain.SyncRequest{ProductCode: "SKU-1"}); !errors.Is(err, productdomain.ErrInvalidName) {
		t.Fatalf("err = %v, want ErrInvalidName", err)
	}
}

func TestEnsureByCodeCreatesWithSeed(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	product, err := svc.EnsureByCode(ctx, nil, productdomain.Seed{
		ProductCode: "SKU-2",
		Price:       decimal.RequireFromString("60"),
	})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	// nameless line items get the placeholder
	if product.Name != "UNKNOWN" {
		t.Fatalf("name = %q, want UNKNOWN", product.Name)
	}

	var count int64
	if err := db.Model(&productdomain.Product{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("products = %d, want 1", count)
	}
}

func TestEnsureByCodeNeverOverwrites(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Sync(ctx, productdomain.SyncRequest{
		ProductCode: "SKU-3",
		Name:        "Catalog Name",
		Price:       decimal.RequireFromString("200"),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	product, err := svc.EnsureByCode(ctx, nil, productdomain.Seed{
		ProductCode: "SKU-3",
		Name:        "Receipt Name",
		Price:       decimal.RequireFromString("1"),
	})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if product.Name != "Catalog Name" {
		t.Fatalf("name = %q, receipt data must not overwrite catalog", product.Name)
	}
	if !product.Price.Equal(decimal.RequireFromString("200")) {
		t.Fatalf("price = %s, want 200", product.Price)
	}
}
