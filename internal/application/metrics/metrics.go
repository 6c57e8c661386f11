package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks application intake and review.
type Metrics struct {
	Created  *prometheus.CounterVec
	Reviewed *prometheus.CounterVec
	Refused  *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "benefits_applications_created_total",
			Help: "Applications created by program and initial status",
		}, []string{"program", "status"}),
		Reviewed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "benefits_applications_reviewed_total",
			Help: "Application reviews by program and outcome",
		}, []string{"program", "decision"}),
		Refused: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "benefits_applications_refused_total",
			Help: "Application attempts refused by a business rule",
		}, []string{"reason"}),
	}
}

func (m *Metrics) IncrementCreated(program, status string) {
	if m != nil {
		m.Created.WithLabelValues(program, status).Inc()
	}
}

func (m *Metrics) IncrementReviewed(program, decision string) {
	if m != nil {
		m.Reviewed.WithLabelValues(program, decision).Inc()
	}
}

func (m *Metrics) IncrementRefused(reason string) {
	if m != nil {
		m.Refused.WithLabelValues(reason).Inc()
	}
}
