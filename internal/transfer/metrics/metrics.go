package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the transfer workflow.
type Metrics struct {
	Requests  prometheus.Counter
	Decisions *prometheus.CounterVec
}

// New creates and registers the transfer metrics.
func New() *Metrics {
	return &Metrics{
		Requests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transfer_requests_total",
			Help: "Transfer requests created",
		}),
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transfer_decisions_total",
			Help: "Transfer requests moved out of PENDING, by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncrementRequested() {
	m.Requests.Inc()
}

// IncrementDecision records a decision; outcome is the lower-cased terminal status.
func (m *Metrics) IncrementDecision(outcome string) {
	m.Decisions.WithLabelValues(outcome).Inc()
}
