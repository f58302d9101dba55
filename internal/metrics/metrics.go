// Package metrics provides Prometheus metrics for the recurring content pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RuleOutcomes counts processed rules by outcome.
	RuleOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reelsip",
			Name:      "rule_outcomes_total",
			Help:      "Recurring rules processed, by outcome status and error kind",
		},
		[]string{"status", "kind"},
	)

	// StepDuration measures pipeline step duration.
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reelsip",
			Name:      "step_duration_seconds",
			Help:      "Duration of pipeline steps in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 900},
		},
		[]string{"step", "status"},
	)

	// CycleDuration measures a full evaluation cycle.
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reelsip",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of recurring evaluation cycles in seconds",
			Buckets:   []float64{1, 10, 60, 300, 600, 1200, 1800},
		},
	)

	// DueRules observes how many rules were due per cycle.
	DueRules = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "reelsip",
			Name:      "due_rules",
			Help:      "Number of due rules per cycle",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	// CyclesSkipped counts cycles rejected because another was running.
	CyclesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reelsip",
			Name:      "cycles_skipped_total",
			Help:      "Cycles not started because a previous cycle was still running",
		},
	)
)

// ObserveStep records a pipeline step.
func ObserveStep(step string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StepDuration.WithLabelValues(step, status).Observe(d.Seconds())
}

// RecordOutcome records the outcome of one rule.
func RecordOutcome(status, kind string) {
	RuleOutcomes.WithLabelValues(status, kind).Inc()
}

// RecordCycle records a finished cycle.
func RecordCycle(due int, d time.Duration) {
	DueRules.Observe(float64(due))
	CycleDuration.Observe(d.Seconds())
}
