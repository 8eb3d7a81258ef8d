package usage

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes usage counters to Prometheus.
type Metrics struct {
	tokens   *prometheus.CounterVec
	calls    *prometheus.CounterVec
	dropouts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics registers the usage collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mnemo",
			Name:      "tokens_total",
			Help:      "Tokens consumed by generator calls.",
		}, []string{"operation", "direction"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mnemo",
			Name:      "generator_calls_total",
			Help:      "Generator calls with recorded usage.",
		}, []string{"operation"}),
		dropouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mnemo",
			Name:      "usage_dropped_total",
			Help:      "Usage records dropped before persistence.",
		}, []string{"operation"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mnemo",
			Name:      "generator_duration_seconds",
			Help:      "Generator response time.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"operation"}),
	}
	reg.MustRegister(m.tokens, m.calls, m.dropouts, m.latency)
	return m
}

func (m *Metrics) observe(r Record) {
	if m == nil {
		return
	}
	op := string(r.Operation)
	m.tokens.WithLabelValues(op, "input").Add(float64(r.InputTokens))
	m.tokens.WithLabelValues(op, "output").Add(float64(r.OutputTokens))
	m.calls.WithLabelValues(op).Inc()
	m.latency.WithLabelValues(op).Observe(r.ResponseTime.Seconds())
}

func (m *Metrics) dropped(op Operation) {
	if m == nil {
		return
	}
	m.dropouts.WithLabelValues(string(op)).Inc()
}
