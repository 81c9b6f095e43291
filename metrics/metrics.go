/*
Package metrics exposes Prometheus counters for the clan battle engine.

COUNTERS:
  clanbattle_runs_recorded_total{flag}           Run records appended
  clanbattle_corrections_total{note}             Adjustments made to submissions
  clanbattle_queue_transitions_total{flag}       Entries created or moved to a flag
  clanbattle_storage_failures_total{op}          Store faults seen by the manager

All recording methods are safe on a nil *Metrics, so components can run
without instrumentation in tests.
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	runs        *prometheus.CounterVec
	corrections *prometheus.CounterVec
	transitions *prometheus.CounterVec
	storage     *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clanbattle",
			Name:      "runs_recorded_total",
			Help:      "Run records appended, by record flag.",
		}, []string{"flag"}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clanbattle",
			Name:      "corrections_total",
			Help:      "Adjustments applied to damage submissions, by note.",
		}, []string{"note"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clanbattle",
			Name:      "queue_transitions_total",
			Help:      "Subscription entries written, by resulting flag.",
		}, []string{"flag"}),
		storage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clanbattle",
			Name:      "storage_failures_total",
			Help:      "Storage failures surfaced to callers, by operation.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.runs, m.corrections, m.transitions, m.storage)
	return m
}

func (m *Metrics) RunRecorded(flag string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(flag).Inc()
}

func (m *Metrics) Correction(note string) {
	if m == nil {
		return
	}
	m.corrections.WithLabelValues(note).Inc()
}

func (m *Metrics) QueueTransition(flag string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(flag).Inc()
}

func (m *Metrics) StorageFailure(op string) {
	if m == nil {
		return
	}
	m.storage.WithLabelValues(op).Inc()
}
