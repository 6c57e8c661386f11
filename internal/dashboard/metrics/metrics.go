package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for dashboard assembly.
type Metrics struct {
	// Per-section read latencies
	SectionLatency *prometheus.HistogramVec

	// Whole dashboard latency by view
	BuildLatency *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		SectionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "benefits_dashboard_section_duration_seconds",
			Help:    "Duration of the individual reads behind a dashboard",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"section"}),

		BuildLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "benefits_dashboard_build_duration_seconds",
			Help:    "Duration of a full dashboard build",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"view"}),
	}
}

func (m *Metrics) ObserveSectionLatency(section string, d time.Duration) {
	if m != nil {
		m.SectionLatency.WithLabelValues(section).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveBuildLatency(view string, d time.Duration) {
	if m != nil {
		m.BuildLatency.WithLabelValues(view).Observe(d.Seconds())
	}
}
