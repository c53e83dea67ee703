package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics счётчики движения денег и фоновых проходов.
type EscrowMetrics struct {
	ledgerMutations  *prometheus.CounterVec
	holdTransitions  *prometheus.CounterVec
	sweepItems       *prometheus.CounterVec
	sweepDuration    *prometheus.HistogramVec
	sideEffectErrors *prometheus.CounterVec
}

var (
	escrowOnce     sync.Once
	escrowRegistry *EscrowMetrics
)

func Escrow() *EscrowMetrics {
	escrowOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			ledgerMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "tasknory_ledger_mutations_total",
				Help: "Count of committed ledger mutations by journal type.",
			}, []string{"type"}),
			holdTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "tasknory_hold_transitions_total",
				Help: "Count of hold status transitions by target status.",
			}, []string{"status"}),
			sweepItems: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "tasknory_sweep_items_total",
				Help: "Holds processed by background sweeps by policy and outcome.",
			}, []string{"policy", "outcome"}),
			sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "tasknory_sweep_duration_seconds",
				Help:    "Wall time of a single sweep run.",
				Buckets: prometheus.DefBuckets,
			}, []string{"policy"}),
			sideEffectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "tasknory_side_effect_failures_total",
				Help: "Swallowed failures of notifications and proof uploads.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			escrowRegistry.ledgerMutations,
			escrowRegistry.holdTransitions,
			escrowRegistry.sweepItems,
			escrowRegistry.sweepDuration,
			escrowRegistry.sideEffectErrors,
		)
	})
	return escrowRegistry
}

func (m *EscrowMetrics) ObserveLedgerMutation(txType string) {
	if m == nil {
		return
	}
	if txType == "" {
		txType = "unknown"
	}
	m.ledgerMutations.WithLabelValues(txType).Inc()
}

func (m *EscrowMetrics) ObserveHoldTransition(status string) {
	if m == nil {
		return
	}
	m.holdTransitions.WithLabelValues(status).Inc()
}

// ObserveSweep фиксирует итог прохода.
func (m *EscrowMetrics) ObserveSweep(policy string, succeeded, failed int, seconds float64) {
	if m == nil {
		return
	}
	m.sweepItems.WithLabelValues(policy, "succeeded").Add(float64(succeeded))
	m.sweepItems.WithLabelValues(policy, "failed").Add(float64(failed))
	m.sweepDuration.WithLabelValues(policy).Observe(seconds)
}

func (m *EscrowMetrics) ObserveSideEffectFailure(kind string) {
	if m == nil {
		return
	}
	m.sideEffectErrors.WithLabelValues(kind).Inc()
}
