// Package server exposes the 1C integration webhooks and the bot-facing API
// over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/retailware/bonusgate/internal/clock"
	"github.com/retailware/bonusgate/internal/config"
	customerdomain "github.com/retailware/bonusgate/internal/customer/domain"
	"github.com/retailware/bonusgate/internal/notify"
	"github.com/retailware/bonusgate/internal/observability/logger"
	"github.com/retailware/bonusgate/internal/observability/metrics"
	"github.com/retailware/bonusgate/internal/observability/tracing"
	productdomain "github.com/retailware/bonusgate/internal/product/domain"
	receiptdomain "github.com/retailware/bonusgate/internal/receipt/domain"
)

var Module = fx.Module("server",
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

type ServerParam struct {
	fx.In

	Cfg         config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	ReceiptSvc  receiptdomain.Service
	CustomerSvc customerdomain.Service
	ProductSvc  productdomain.Service
	Notifier    notify.Notifier      `optional:"true"`
	Registry    *prometheus.Registry `optional:"true"`
	HTTPMetrics *metrics.HTTPMetrics `optional:"true"`
}

type Server struct {
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	receiptSvc  receiptdomain.Service
	customerSvc customerdomain.Service
	productSvc  productdomain.Service
	notifier    notify.Notifier
	registry    *prometheus.Registry
	httpMetrics *metrics.HTTPMetrics
	limiter     *rateLimiter
}

func NewServer(p ServerParam) *Server {
	return &Server{
		cfg:         p.Cfg,
		db:          p.DB,
		log:         p.Log.Named("server"),
		clock:       p.Clock,
		receiptSvc:  p.ReceiptSvc,
		customerSvc: p.CustomerSvc,
		productSvc:  p.ProductSvc,
		notifier:    p.Notifier,
		registry:    p.Registry,
		httpMetrics: p.HTTPMetrics,
		limiter:     newRateLimiter(p.Cfg.RateLimitPerMinute, time.Minute, p.Clock),
	}
}

// Router assembles the gin engine with the full middleware chain and routes.
func (s *Server) Router() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(tracing.GinMiddleware())
	r.Use(metrics.GinMiddleware(s.httpMetrics))
	r.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	r.GET("/healthz", s.Liveness)
	if s.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	onec := r.Group("/onec", s.AuthGate(), s.RateLimit())
	{
		onec.POST("/receipt", s.IngestReceipt)
		onec.POST("/customer", s.SyncCustomer)
		onec.POST("/product", s.SyncProduct)
		onec.POST("/health", s.IntegrationHealth)
	}

	api := r.Group("/api", s.AuthGate(), s.RateLimit())
	{
		api.POST("/purchase", s.LegacyPurchase)
		api.POST("/send-message", s.SendMessage)
	}

	return r
}

// RunHTTP binds the HTTP listener to the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.log.Info("http server starting", zap.String("addr", s.cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Error("http server terminated", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// RateLimit enforces the per-IP request budget on the integration routes.
func (s *Server) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		if !s.limiter.Allow(clientIP(c)) {
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
