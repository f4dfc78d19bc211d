package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts login outcomes and profile administration.
type Metrics struct {
	Logins          *prometheus.CounterVec
	ProfilesCreated prometheus.Counter
	PasswordResets  prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Logins: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by role and outcome",
		}, []string{"role", "outcome"}),
		ProfilesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auth_dealer_profiles_created_total",
			Help: "Total number of dealer profiles created",
		}),
		PasswordResets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auth_password_resets_total",
			Help: "Total number of admin-initiated password resets",
		}),
	}
}

func (m *Metrics) IncrementLogin(role, outcome string) {
	m.Logins.WithLabelValues(role, outcome).Inc()
}

func (m *Metrics) IncrementProfileCreated() {
	m.ProfilesCreated.Inc()
}

func (m *Metrics) IncrementPasswordReset() {
	m.PasswordResets.Inc()
}
