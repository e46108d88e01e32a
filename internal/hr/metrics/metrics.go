package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the record engine.
// Tracks dispatch outcomes and critical path durations.
type Metrics struct {
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
	AssembleDuration prometheus.Histogram
}

// New creates a Metrics instance with all engine metrics registered.
func New() *Metrics {
	return &Metrics{
		DispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dossier_dispatch_total",
			Help: "Dispatched actions by action key and outcome",
		}, []string{"action_key", "outcome"}),
		DispatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dossier_dispatch_duration_seconds",
			Help:    "Duration of action dispatches (mutation critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		AssembleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dossier_employee_file_duration_seconds",
			Help:    "Duration of employee file assembly (read and snapshot path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// Outcome labels for DispatchTotal.
const (
	OutcomeApplied = "applied"
	OutcomeReplay  = "replay"
	OutcomeError   = "error"
)

// IncrementDispatch records one dispatch outcome.
func (m *Metrics) IncrementDispatch(actionKey, outcome string) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(actionKey, outcome).Inc()
}

// ObserveDispatch records the duration of a dispatch.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveDispatch(start time.Time) {
	if m == nil {
		return
	}
	m.DispatchDuration.Observe(time.Since(start).Seconds())
}

// ObserveAssemble records the duration of an employee file assembly.
func (m *Metrics) ObserveAssemble(start time.Time) {
	if m == nil {
		return
	}
	m.AssembleDuration.Observe(time.Since(start).Seconds())
}
