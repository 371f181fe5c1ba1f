package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the engine's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	ledgerEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "entries",
			Name:      "recorded_total",
			Help:      "Ledger entries recorded, by kind and status.",
		},
		[]string{"kind", "status"},
	)

	ledgerSettlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "entries",
			Name:      "settled_total",
			Help:      "Ledger entry settlements, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	balanceRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "balance",
			Name:      "insufficient_funds_total",
			Help:      "Balance adjustments refused because the result would be negative.",
		},
	)

	workflowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Committed workflow status transitions.",
		},
		[]string{"entity", "to"},
	)

	workflowFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "workflow",
			Name:      "failures_total",
			Help:      "Workflow operations that returned an error, by error code.",
		},
		[]string{"entity", "op", "code"},
	)

	scopeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ledger",
			Subsystem: "workflow",
			Name:      "scope_duration_seconds",
			Help:      "Duration of atomic workflow scopes.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"entity", "op"},
	)

	referralOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "referral",
			Name:      "bonuses_total",
			Help:      "Referral cascade outcomes (applied, duplicate, skipped, failed).",
		},
		[]string{"outcome"},
	)

	reconciliationItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "reconciliation",
			Name:      "items_total",
			Help:      "Reconciliation queue activity, by result.",
		},
		[]string{"result"},
	)

	eventDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "events",
			Name:      "deliveries_total",
			Help:      "Post-commit event deliveries, by channel and result.",
		},
		[]string{"channel", "result"},
	)

	maturitySweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "maturity",
			Name:      "investments_total",
			Help:      "Matured investments processed by the sweeper, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		ledgerEntries,
		ledgerSettlements,
		balanceRejections,
		workflowTransitions,
		workflowFailures,
		scopeDuration,
		referralOutcomes,
		reconciliationItems,
		eventDeliveries,
		maturitySweeps,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordEntry(kind, status string) {
	ledgerEntries.WithLabelValues(kind, status).Inc()
}

func RecordSettlement(kind, outcome string) {
	ledgerSettlements.WithLabelValues(kind, outcome).Inc()
}

func RecordInsufficientFunds() {
	balanceRejections.Inc()
}

func RecordTransition(entity, to string) {
	workflowTransitions.WithLabelValues(entity, to).Inc()
}

// RecordScope records the duration of an atomic scope and, when code is not
// empty, a failure with that error code.
func RecordScope(entity, op string, duration time.Duration, code string) {
	if duration <= 0 {
		duration = time.Microsecond
	}
	scopeDuration.WithLabelValues(entity, op).Observe(duration.Seconds())
	if code != "" {
		workflowFailures.WithLabelValues(entity, op, code).Inc()
	}
}

func RecordReferral(outcome string) {
	referralOutcomes.WithLabelValues(outcome).Inc()
}

func RecordReconciliation(result string) {
	reconciliationItems.WithLabelValues(result).Inc()
}

func RecordDelivery(channel string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	eventDeliveries.WithLabelValues(channel, result).Inc()
}

func RecordMaturity(result string) {
	maturitySweeps.WithLabelValues(result).Inc()
}
