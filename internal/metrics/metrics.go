// Package metrics declares the agent's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scheduler metrics
var (
	// SchedulerCycles counts scheduler cycles by the state they ended in
	SchedulerCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yoinker_scheduler_cycles_total",
			Help: "Scheduler cycles by terminal state",
		},
		[]string{"state"},
	)

	// SchedulerState is 1 for the current state and 0 for all others
	SchedulerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "yoinker_scheduler_state",
			Help: "Current scheduler state (1 = active)",
		},
		[]string{"state"},
	)

	// SchedulerErrors counts recovered cycle failures by kind
	SchedulerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yoinker_scheduler_errors_total",
			Help: "Recovered scheduler cycle errors by kind",
		},
		[]string{"kind"},
	)

	// Escalations counts actions forced by the impatience deadline
	Escalations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yoinker_escalations_total",
			Help: "Actions forced because the impatience deadline passed",
		},
	)

	// Decisions counts strategy answers
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yoinker_strategy_decisions_total",
			Help: "Strategy decisions by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)
)

// Action metrics
var (
	// Actions counts yoink attempts by classified result
	Actions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yoinker_actions_total",
			Help: "Yoink attempts by result",
		},
		[]string{"result"},
	)

	// ActionDuration tracks action call latency in seconds
	ActionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "yoinker_action_duration_seconds",
			Help:    "Frame action call duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
)

// Fetch metrics
var (
	// Fetches counts upstream fetches by endpoint and status
	Fetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yoinker_fetches_total",
			Help: "Upstream game fetches by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	// StatsCacheHits counts stats reads served from the local cache
	StatsCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yoinker_stats_cache_hits_total",
			Help: "Stats reads served from the local TTL cache",
		},
	)

	// SnapshotsForwarded counts snapshots handed to the scheduler
	SnapshotsForwarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yoinker_snapshots_forwarded_total",
			Help: "Snapshots forwarded from the fetch task to the scheduler",
		},
	)

	// WindowChanges counts pushes that changed the rolling window
	WindowChanges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yoinker_window_changes_total",
			Help: "Snapshot pushes that changed the rolling window",
		},
	)
)
