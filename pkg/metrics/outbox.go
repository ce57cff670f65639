package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts publish outcomes per event type and tracks the dead
// letter backlog the retention job observes.
type OutboxMetrics struct {
	publishes    *prometheus.CounterVec
	deadLettered prometheus.Gauge
	pruned       prometheus.Counter
}

// NewOutboxMetrics registers the outbox metrics on reg.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "publishes_total",
			Help:      "Outbox publish attempts by event type and outcome (published, retry, dead_letter).",
		}, []string{"event_type", "outcome"}),
		deadLettered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "dead_lettered_events",
			Help:      "Unpublished outbox rows that exhausted their attempts and need manual replay.",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "pruned_total",
			Help:      "Published outbox rows removed by retention.",
		}),
	}
	reg.MustRegister(m.publishes, m.deadLettered, m.pruned)
	return m
}

// IncPublish counts one publish attempt.
func (m *OutboxMetrics) IncPublish(eventType, outcome string) {
	if m == nil || m.publishes == nil {
		return
	}
	m.publishes.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) SetDeadLettered(n int64) {
	if m == nil || m.deadLettered == nil {
		return
	}
	m.deadLettered.Set(float64(n))
}

func (m *OutboxMetrics) AddPruned(n int64) {
	if m == nil || m.pruned == nil || n <= 0 {
		return
	}
	m.pruned.Add(float64(n))
}
