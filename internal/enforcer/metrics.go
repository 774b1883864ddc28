package enforcer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the check endpoints. A nil Metrics is
// valid and records nothing.
type Metrics struct {
	// Decisions by endpoint, outcome and source
	Decisions *prometheus.CounterVec

	// Engine call latency by endpoint
	EngineLatency *prometheus.HistogramVec

	// Cache lookups by result
	CacheLookups *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pdp_decisions_total",
			Help: "Total authorization decisions by endpoint, outcome and source",
		}, []string{"endpoint", "outcome", "source"}), // source: "engine", "cache", "fallback"

		EngineLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pdp_engine_call_duration_seconds",
			Help:    "Duration of policy engine calls by endpoint",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"endpoint"}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pdp_decision_cache_lookups_total",
			Help: "Total decision cache lookups by result",
		}, []string{"result"}), // result: "hit", "miss", "error"
	}
}

// IncrementDecision records a served decision.
func (m *Metrics) IncrementDecision(endpoint, outcome, source string) {
	if m != nil {
		m.Decisions.WithLabelValues(endpoint, outcome, source).Inc()
	}
}

// ObserveEngineLatency records the duration of one engine call.
func (m *Metrics) ObserveEngineLatency(endpoint string, d time.Duration) {
	if m != nil {
		m.EngineLatency.WithLabelValues(endpoint).Observe(d.Seconds())
	}
}

// IncrementCacheLookup records a cache lookup result.
func (m *Metrics) IncrementCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}
