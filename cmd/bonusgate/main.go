package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/retailware/bonusgate/internal/clock"
	"github.com/retailware/bonusgate/internal/config"
	"github.com/retailware/bonusgate/internal/customer"
	"github.com/retailware/bonusgate/internal/events"
	"github.com/retailware/bonusgate/internal/migration"
	"github.com/retailware/bonusgate/internal/notify"
	"github.com/retailware/bonusgate/internal/observability"
	"github.com/retailware/bonusgate/internal/product"
	"github.com/retailware/bonusgate/internal/receipt"
	"github.com/retailware/bonusgate/internal/seed"
	"github.com/retailware/bonusgate/internal/server"
	"github.com/retailware/bonusgate/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		clock.Module,
		observability.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		db.Module,
		fx.Invoke(func(conn *gorm.DB, genID *snowflake.Node, cfg config.Config, log *zap.Logger) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			return seed.EnsureGuestCustomer(context.Background(), conn, genID, cfg, log)
		}),
		customer.Module,
		product.Module,
		receipt.Module,
		events.Module,
		notify.Module,
		server.Module,
	)
	app.Run()
}
