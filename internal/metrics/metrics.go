// Package metrics records store telemetry in Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/systmms/securekv/pkg/securekv"
)

// Metrics implements securekv.Observer on top of Prometheus collectors.
type Metrics struct {
	operations      *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	softFailures    *prometheus.CounterVec
	backendSelected *prometheus.CounterVec
}

// New registers the securekv collectors on reg. Registering twice on the
// same registry panics, so build one Metrics per registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "securekv_operations_total",
				Help: "Total number of store operations by outcome",
			},
			[]string{"op", "backend", "result"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "securekv_operation_duration_seconds",
				Help:    "Duration of store operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"op", "backend"},
		),
		softFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "securekv_soft_failures_total",
				Help: "Reads that returned null or a raw string instead of failing",
			},
			[]string{"reason"},
		),
		backendSelected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "securekv_backend_selected_total",
				Help: "Number of times each backend was selected",
			},
			[]string{"backend"},
		),
	}
}

// ObserveOperation records one completed operation.
func (m *Metrics) ObserveOperation(op string, backend securekv.BackendKind, result string, elapsed time.Duration) {
	b := backend.String()
	m.operations.WithLabelValues(op, b, result).Inc()
	m.duration.WithLabelValues(op, b).Observe(elapsed.Seconds())
}

// ObserveSoftFailure records a read that degraded instead of failing.
func (m *Metrics) ObserveSoftFailure(reason string) {
	m.softFailures.WithLabelValues(reason).Inc()
}

// ObserveBackendSelected records a backend selection.
func (m *Metrics) ObserveBackendSelected(backend securekv.BackendKind) {
	m.backendSelected.WithLabelValues(backend.String()).Inc()
}

// SoftFailures returns the soft failure counter for reason.
func (m *Metrics) SoftFailures(reason string) prometheus.Counter {
	return m.softFailures.WithLabelValues(reason)
}

// BackendSelected returns the selection counter for backend.
func (m *Metrics) BackendSelected(backend securekv.BackendKind) prometheus.Counter {
	return m.backendSelected.WithLabelValues(backend.String())
}

var _ securekv.Observer = (*Metrics)(nil)
