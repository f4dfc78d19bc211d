package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the affiliation registry.
type Metrics struct {
	EmployeesRegistered prometheus.Counter
	ClientsRegistered   prometheus.Counter
	Conflicts           *prometheus.CounterVec
	EmploymentsEnded    prometheus.Counter
	SearchDuration      *prometheus.HistogramVec
}

// New creates and registers the registry metrics.
func New() *Metrics {
	return &Metrics{
		EmployeesRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "registry_employees_registered_total",
			Help: "Employments created by RegisterEmployee",
		}),
		ClientsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "registry_clients_registered_total",
			Help: "Successful RegisterClient calls",
		}),
		Conflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_affiliation_conflicts_total",
			Help: "Registrations refused because the subject is active at another dealer",
		}, []string{"kind"}),
		EmploymentsEnded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "registry_employments_ended_total",
			Help: "Employments moved to INACTIVE",
		}),
		SearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registry_search_duration_seconds",
			Help:    "Duration of person and client searches including enrichment",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncrementEmployeeRegistered() {
	m.EmployeesRegistered.Inc()
}

func (m *Metrics) IncrementClientRegistered() {
	m.ClientsRegistered.Inc()
}

// IncrementConflict records a conflict; kind is "employee" or "client".
func (m *Metrics) IncrementConflict(kind string) {
	m.Conflicts.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementEmploymentEnded() {
	m.EmploymentsEnded.Inc()
}

// ObserveSearch records the duration of a search. Call with time.Now() at the start.
func (m *Metrics) ObserveSearch(kind string, start time.Time) {
	m.SearchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
