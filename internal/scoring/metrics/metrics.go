package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for score computation.
type Metrics struct {
	ComputeLatency prometheus.Histogram
	Calculations   prometheus.Counter
	Possessions    prometheus.Histogram
}

// New registers the scoring metrics. Call once per process.
func New() *Metrics {
	return &Metrics{
		ComputeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "benefits_score_compute_duration_seconds",
			Help:    "Duration of a live score computation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		Calculations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "benefits_score_calculations_total",
			Help: "Calculation records written",
		}),
		Possessions: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "benefits_score_active_possessions",
			Help:    "Active possessions per computed score",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
	}
}

func (m *Metrics) ObserveCompute(d time.Duration, possessions int) {
	if m != nil {
		m.ComputeLatency.Observe(d.Seconds())
		m.Possessions.Observe(float64(possessions))
	}
}

func (m *Metrics) IncrementCalculations() {
	if m != nil {
		m.Calculations.Inc()
	}
}
