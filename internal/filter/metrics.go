package filter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the compile pipeline. A nil Metrics is
// valid and records nothing.
type Metrics struct {
	// Compile outcomes by residual policy type or error kind
	CompileOutcome *prometheus.CounterVec

	// Full pipeline latency
	CompileLatency prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		CompileOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pdp_filter_compile_total",
			Help: "Total compile pipeline runs by outcome",
		}, []string{"outcome"}), // outcome: policy type or engine/parse/translation error

		CompileLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pdp_filter_compile_duration_seconds",
			Help:    "Duration of the compile pipeline including the engine call",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// ObserveCompile records a pipeline outcome.
func (m *Metrics) ObserveCompile(outcome string) {
	if m != nil {
		m.CompileOutcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveLatency records the pipeline duration.
func (m *Metrics) ObserveLatency(d time.Duration) {
	if m != nil {
		m.CompileLatency.Observe(d.Seconds())
	}
}
