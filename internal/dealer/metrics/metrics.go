package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts dealer directory changes.
type Metrics struct {
	DealersCreated prometheus.Counter
	StatusChanges  *prometheus.CounterVec
}

// New creates and registers the dealer metrics.
func New() *Metrics {
	return &Metrics{
		DealersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "registry_dealers_created_total",
			Help: "Total number of dealers created",
		}),
		StatusChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_dealer_status_changes_total",
			Help: "Dealer status changes by resulting status",
		}, []string{"status"}),
	}
}

func (m *Metrics) IncrementDealerCreated() {
	m.DealersCreated.Inc()
}

func (m *Metrics) IncrementStatusChange(status string) {
	m.StatusChanges.WithLabelValues(status).Inc()
}
