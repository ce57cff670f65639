package metrics

import "github.com/prometheus/client_golang/prometheus"

// MonitoringMetrics tracks alerts, verdicts and rule failures.
type MonitoringMetrics struct {
	alerts     *prometheus.CounterVec
	ruleErrors *prometheus.CounterVec
	blocked    prometheus.Counter
}

// NewMonitoringMetrics registers monitoring metrics on reg.
func NewMonitoringMetrics(reg prometheus.Registerer) *MonitoringMetrics {
	if reg == nil {
		return &MonitoringMetrics{}
	}
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitoring",
		Name:      "alerts_total",
		Help:      "Alerts raised by type and severity.",
	}, []string{"type", "severity"})
	ruleErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitoring",
		Name:      "rule_errors_total",
		Help:      "Rule evaluations that failed and were treated as non-matching.",
	}, []string{"rule"})
	blocked := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitoring",
		Name:      "blocked_total",
		Help:      "Transactions blocked by the monitoring verdict.",
	})
	reg.MustRegister(alerts, ruleErrors, blocked)
	return &MonitoringMetrics{alerts: alerts, ruleErrors: ruleErrors, blocked: blocked}
}

// IncAlert counts one raised alert.
func (m *MonitoringMetrics) IncAlert(alertType, severity string) {
	if m == nil || m.alerts == nil {
		return
	}
	m.alerts.WithLabelValues(normalizeLabel(alertType), normalizeLabel(severity)).Inc()
}

// IncRuleError counts a failed rule evaluation.
func (m *MonitoringMetrics) IncRuleError(rule string) {
	if m == nil || m.ruleErrors == nil {
		return
	}
	m.ruleErrors.WithLabelValues(normalizeLabel(rule)).Inc()
}

// IncBlocked counts a blocking verdict.
func (m *MonitoringMetrics) IncBlocked() {
	if m == nil || m.blocked == nil {
		return
	}
	m.blocked.Inc()
}
