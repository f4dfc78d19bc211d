package recorder

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "unionregistry/pkg/platform/audit"
)

// Metrics holds Prometheus metrics for audit writes.
type Metrics struct {
	Recorded        *prometheus.CounterVec
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with audit metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		Recorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_audit_entries_total",
			Help: "Total number of audit entries written, by entity type",
		}, []string{"entity_type"}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "registry_audit_persist_failures_total",
			Help: "Total number of audit writes that failed and aborted their operation",
		}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "registry_audit_persist_duration_seconds",
			Help:    "Duration of audit entry writes",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
}

// IncRecorded counts a written entry.
func (m *Metrics) IncRecorded(entityType audit.EntityType) {
	m.Recorded.WithLabelValues(string(entityType)).Inc()
}

// IncPersistFailures increments the persist failures counter.
func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}

// ObservePersistDuration records the duration of a write started at start.
func (m *Metrics) ObservePersistDuration(start time.Time) {
	m.PersistDuration.Observe(time.Since(start).Seconds())
}
