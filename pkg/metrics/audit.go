package metrics

import "github.com/prometheus/client_golang/prometheus"

// AuditMetrics exposes audit trail write failures, which never surface to callers.
type AuditMetrics struct {
	writeFailures prometheus.Counter
	archived      prometheus.Counter
}

// NewAuditMetrics registers audit metrics on reg.
func NewAuditMetrics(reg prometheus.Registerer) *AuditMetrics {
	if reg == nil {
		return &AuditMetrics{}
	}
	writeFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "write_failures_total",
		Help:      "Audit records that could not be persisted.",
	})
	archived := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "archived_records_total",
		Help:      "Audit records moved to cold storage.",
	})
	reg.MustRegister(writeFailures, archived)
	return &AuditMetrics{writeFailures: writeFailures, archived: archived}
}

// IncWriteFailure counts one dropped audit record.
func (m *AuditMetrics) IncWriteFailure() {
	if m == nil || m.writeFailures == nil {
		return
	}
	m.writeFailures.Inc()
}

// AddArchived counts records archived in one batch.
func (m *AuditMetrics) AddArchived(n int) {
	if m == nil || m.archived == nil || n <= 0 {
		return
	}
	m.archived.Add(float64(n))
}
