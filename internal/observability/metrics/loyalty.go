package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LoyaltyMetrics counts the financially relevant outcomes of the 1C webhooks.
type LoyaltyMetrics struct {
	ReceiptsIngested  prometheus.Counter
	ReceiptsReplayed  prometheus.Counter
	ReceiptsRejected  *prometheus.CounterVec
	LinesCreated      prometheus.Counter
	CustomersResolved *prometheus.CounterVec
	ProductsSynced    prometheus.Counter
}

// NewLoyaltyMetrics registers the loyalty counters on the given registry.
func NewLoyaltyMetrics(reg prometheus.Registerer) *LoyaltyMetrics {
	m := &LoyaltyMetrics{
		ReceiptsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bonusgate_receipts_ingested_total",
			Help: "Receipts that created at least one transaction line.",
		}),
		ReceiptsReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bonusgate_receipts_replayed_total",
			Help: "Receipt deliveries answered as idempotent replays.",
		}),
		ReceiptsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bonusgate_receipts_rejected_total",
			Help: "Receipt deliveries rejected before persistence.",
		}, []string{"reason"}),
		LinesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bonusgate_receipt_lines_created_total",
			Help: "Transaction lines persisted from receipts.",
		}),
		CustomersResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bonusgate_customers_resolved_total",
			Help: "Customer resolutions by path (mapping, telegram_id, created, guest).",
		}, []string{"path"}),
		ProductsSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bonusgate_products_synced_total",
			Help: "Product sync upserts accepted.",
		}),
	}
	reg.MustRegister(
		m.ReceiptsIngested,
		m.ReceiptsReplayed,
		m.ReceiptsRejected,
		m.LinesCreated,
		m.CustomersResolved,
		m.ProductsSynced,
	)
	return m
}
