package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for consent operations.
type Metrics struct {
	PoliciesUpserted  *prometheus.CounterVec
	AnchorsCreated    prometheus.Counter
	AnchorsRevoked    prometheus.Counter
	AccessDecisions   *prometheus.CounterVec
	PrecheckDecisions *prometheus.CounterVec
	DIDOperations     *prometheus.CounterVec

	// Performance metrics
	LedgerCallLatency     *prometheus.HistogramVec
	StoreOperationLatency *prometheus.HistogramVec
}

// New registers consent metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		PoliciesUpserted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consentis_policies_upserted_total",
			Help: "Total number of policy upserts, labeled by template version and whether the hash existed",
		}, []string{"template_version", "existed"}),
		AnchorsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "consentis_anchors_created_total",
			Help: "Total number of consent anchors created",
		}),
		AnchorsRevoked: f.NewCounter(prometheus.CounterOpts{
			Name: "consentis_anchors_revoked_total",
			Help: "Total number of consent anchors revoked by their holder",
		}),
		AccessDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consentis_access_decisions_total",
			Help: "Total number of logged access checks, labeled by result and reason",
		}, []string{"result", "reason"}),
		PrecheckDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consentis_precheck_decisions_total",
			Help: "Total number of off-ledger prechecks, labeled by reason",
		}, []string{"reason"}),
		DIDOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consentis_did_operations_total",
			Help: "Total number of DID registry writes, labeled by operation",
		}, []string{"operation"}),

		LedgerCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consentis_ledger_call_latency_seconds",
			Help:    "Latency of ledger submit and evaluate calls in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"kind", "transaction", "outcome"}),
		StoreOperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consentis_policy_store_operation_latency_seconds",
			Help:    "Latency of policy store operations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementPolicyUpserted(templateVersion string, existed bool) {
	label := "false"
	if existed {
		label = "true"
	}
	m.PoliciesUpserted.WithLabelValues(templateVersion, label).Inc()
}

func (m *Metrics) IncrementAnchorsCreated() {
	m.AnchorsCreated.Inc()
}

func (m *Metrics) IncrementAnchorsRevoked() {
	m.AnchorsRevoked.Inc()
}

// IncrementAccessDecision records an access check. Allowed checks use the
// reason "ok".
func (m *Metrics) IncrementAccessDecision(allowed bool, reason string) {
	result := "deny"
	if allowed {
		result = "allow"
		reason = "ok"
	}
	m.AccessDecisions.WithLabelValues(result, reason).Inc()
}

func (m *Metrics) IncrementPrecheck(reason string) {
	m.PrecheckDecisions.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementDIDOperation(operation string) {
	m.DIDOperations.WithLabelValues(operation).Inc()
}

// ObserveLedgerCall records a ledger round trip. kind is "submit" or
// "evaluate"; outcome is "ok" or the error code.
func (m *Metrics) ObserveLedgerCall(kind, transaction, outcome string, durationSeconds float64) {
	m.LedgerCallLatency.WithLabelValues(kind, transaction, outcome).Observe(durationSeconds)
}

// ObserveStoreOperationLatency records the latency of a store operation.
func (m *Metrics) ObserveStoreOperationLatency(operation string, durationSeconds float64) {
	m.StoreOperationLatency.WithLabelValues(operation).Observe(durationSeconds)
}
