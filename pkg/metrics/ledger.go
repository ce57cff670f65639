package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks ledger write outcomes and lock contention.
type LedgerMetrics struct {
	operations *prometheus.CounterVec
	lockWait   prometheus.Histogram
}

// NewLedgerMetrics registers ledger metrics on reg. A nil registerer yields a no-op value.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "operations_total",
		Help:      "Ledger operations by kind and outcome.",
	}, []string{"operation", "outcome"})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "lock_wait_seconds",
		Help:      "Time spent waiting for account locks.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})
	reg.MustRegister(operations, lockWait)
	return &LedgerMetrics{operations: operations, lockWait: lockWait}
}

// IncOperation counts one ledger operation with its outcome code.
func (m *LedgerMetrics) IncOperation(operation, outcome string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// ObserveLockWait records how long lock acquisition took.
func (m *LedgerMetrics) ObserveLockWait(d time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}
