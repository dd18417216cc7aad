// Package metrics provides Prometheus observability for the ledger and the
// policy engine. A nil *Metrics is safe to use everywhere, so tests can
// pass nil without registering collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Ledger appends by event type
	EventsAppended *prometheus.CounterVec

	// Append latency including chain-head read and persistence
	AppendLatency prometheus.Histogram

	// Detected concurrent-append conflicts (retried internally)
	ChainConflicts prometheus.Counter

	// Chain verification runs that found at least one invalid event
	VerifyFailures prometheus.Counter

	// Policy evaluation outcomes by decision
	EvaluationOutcome *prometheus.CounterVec

	// Full evaluate_action latency
	EvaluationLatency prometheus.Histogram
}

// New registers all collectors on the default registry.
func New() *Metrics {
	return &Metrics{
		EventsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vorpal_audit_events_appended_total",
			Help: "Total audit events appended to the ledger by event type",
		}, []string{"event_type"}),

		AppendLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vorpal_audit_append_duration_seconds",
			Help:    "Duration of ledger appends including chain-head resolution",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		ChainConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vorpal_audit_chain_conflicts_total",
			Help: "Concurrent appends that observed a moved chain head and retried",
		}),

		VerifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vorpal_audit_verify_failures_total",
			Help: "Chain verification runs that reported invalid events",
		}),

		EvaluationOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vorpal_policy_evaluations_total",
			Help: "Policy evaluation outcomes by decision (allowed/blocked)",
		}, []string{"decision"}),

		EvaluationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vorpal_policy_evaluate_duration_seconds",
			Help:    "Duration of full policy evaluation across matching policies",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

// ObserveAppend records one successful ledger append.
func (m *Metrics) ObserveAppend(eventType string, d time.Duration) {
	if m != nil {
		m.EventsAppended.WithLabelValues(eventType).Inc()
		m.AppendLatency.Observe(d.Seconds())
	}
}

// IncChainConflict records a retried concurrent-append conflict.
func (m *Metrics) IncChainConflict() {
	if m != nil {
		m.ChainConflicts.Inc()
	}
}

// IncVerifyFailure records a verification run that found invalid events.
func (m *Metrics) IncVerifyFailure() {
	if m != nil {
		m.VerifyFailures.Inc()
	}
}

// ObserveEvaluation records one policy evaluation outcome.
func (m *Metrics) ObserveEvaluation(allowed bool, d time.Duration) {
	if m != nil {
		decision := "allowed"
		if !allowed {
			decision = "blocked"
		}
		m.EvaluationOutcome.WithLabelValues(decision).Inc()
		m.EvaluationLatency.Observe(d.Seconds())
	}
}
