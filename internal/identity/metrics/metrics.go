package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks logins and account administration.
type Metrics struct {
	CodesIssued  prometheus.Counter
	Logins       *prometheus.CounterVec
	LoginFailure *prometheus.CounterVec
	Logouts      prometheus.Counter
	Registered   *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		CodesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "benefits_login_codes_issued_total",
			Help: "One-time login codes issued",
		}),
		Logins: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "benefits_logins_total",
			Help: "Completed logins by role",
		}, []string{"role"}),
		LoginFailure: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "benefits_login_failures_total",
			Help: "Refused login attempts by reason",
		}, []string{"reason"}),
		Logouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "benefits_logouts_total",
			Help: "Access tokens revoked at logout",
		}),
		Registered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "benefits_accounts_registered_total",
			Help: "Accounts registered by role",
		}, []string{"role"}),
	}
}

func (m *Metrics) IncrementCodesIssued() {
	if m != nil {
		m.CodesIssued.Inc()
	}
}

func (m *Metrics) IncrementLogin(role string) {
	if m != nil {
		m.Logins.WithLabelValues(role).Inc()
	}
}

func (m *Metrics) IncrementLoginFailure(reason string) {
	if m != nil {
		m.LoginFailure.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncrementLogout() {
	if m != nil {
		m.Logouts.Inc()
	}
}

func (m *Metrics) IncrementRegistered(role string) {
	if m != nil {
		m.Registered.WithLabelValues(role).Inc()
	}
}
