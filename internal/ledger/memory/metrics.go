package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the in-memory ledger.
type Metrics struct {
	Transactions *prometheus.CounterVec
	BlockHeight  prometheus.Gauge
}

// NewMetrics registers ledger collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consentis_ledger_transactions_total",
			Help: "Transactions processed by the local ledger, labeled by function and outcome",
		}, []string{"function", "result"}),
		BlockHeight: f.NewGauge(prometheus.GaugeOpts{
			Name: "consentis_ledger_block_height",
			Help: "Number of committed transactions",
		}),
	}
}

func (m *Metrics) observeTx(fn, result string) {
	if m == nil {
		return
	}
	m.Transactions.WithLabelValues(fn, result).Inc()
}

func (m *Metrics) setHeight(h uint64) {
	if m == nil {
		return
	}
	m.BlockHeight.Set(float64(h))
}
