package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the reclamation workflow.
type Metrics struct {
	Filed       prometheus.Counter
	Resolutions *prometheus.CounterVec
	AssignRaces prometheus.Counter
	FinesPaid   prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Filed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "benefits_reclamations_filed_total",
			Help: "Reclamations filed by citizens",
		}),
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "benefits_reclamations_resolved_total",
			Help: "Investigation outcomes by decision",
		}, []string{"decision"}),
		AssignRaces: promauto.NewCounter(prometheus.CounterOpts{
			Name: "benefits_reclamation_assign_lost_total",
			Help: "Assignment attempts that found the reclamation already taken",
		}),
		FinesPaid: promauto.NewCounter(prometheus.CounterOpts{
			Name: "benefits_fines_paid_total",
			Help: "Fines marked as paid",
		}),
	}
}

func (m *Metrics) IncrementFiled() {
	if m != nil {
		m.Filed.Inc()
	}
}

func (m *Metrics) IncrementResolution(decision string) {
	if m != nil {
		m.Resolutions.WithLabelValues(decision).Inc()
	}
}

func (m *Metrics) IncrementAssignLost() {
	if m != nil {
		m.AssignRaces.Inc()
	}
}

func (m *Metrics) IncrementFinePaid() {
	if m != nil {
		m.FinesPaid.Inc()
	}
}
