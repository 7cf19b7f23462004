package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
)

// Module wires the Prometheus registry, the OTel meter provider backed by it,
// and the metric instruments.
var Module = fx.Module("metrics",
	fx.Provide(NewRegistry),
	fx.Provide(NewMeterProvider),
	fx.Provide(NewHTTPMetrics),
	fx.Provide(func(reg *prometheus.Registry) *LoyaltyMetrics {
		return NewLoyaltyMetrics(reg)
	}),
)

// NewRegistry builds the process Prometheus registry with the standard
// runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// NewMeterProvider exposes OTel instruments through the Prometheus registry.
func NewMeterProvider(reg *prometheus.Registry) (metric.MeterProvider, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)), nil
}
