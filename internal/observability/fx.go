// Package observability assembles logging, tracing, and metrics.
package observability

import (
	"github.com/retailware/bonusgate/internal/observability/logger"
	"github.com/retailware/bonusgate/internal/observability/metrics"
	"github.com/retailware/bonusgate/internal/observability/tracing"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	logger.Module,
	metrics.Module,
	fx.Invoke(tracing.NewProvider),
)
