// Package metrics holds the engine's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Metrics struct {
	EventsProcessed      prometheus.Counter
	ExecutionsProcessed  prometheus.Counter
	RetriesProcessed     prometheus.Counter
	TimeoutsCleaned      prometheus.Counter
	ExecutionsSuccessful prometheus.Counter
	ExecutionsFailed     prometheus.Counter
	ReactionDuration     *prometheus.HistogramVec
}

// New builds the collectors and registers them with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "area_worker_events_processed_total",
			Help: "Event bus entries consumed by the worker",
		}),
		ExecutionsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "area_worker_executions_processed_total",
			Help: "Executions moved to RUNNING and dispatched",
		}),
		RetriesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "area_worker_retries_processed_total",
			Help: "RETRY executions picked up by the retry sweep",
		}),
		TimeoutsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "area_worker_timeouts_cleaned_total",
			Help: "RUNNING executions failed by the timeout sweep",
		}),
		ExecutionsSuccessful: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "area_worker_executions_successful_total",
			Help: "Executions that finished OK",
		}),
		ExecutionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "area_worker_executions_failed_total",
			Help: "Executions that ended in RETRY or FAILED",
		}),
		ReactionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "area_reaction_execution_duration_seconds",
			Help:    "Reaction dispatch duration by outcome",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.EventsProcessed,
			m.ExecutionsProcessed,
			m.RetriesProcessed,
			m.TimeoutsCleaned,
			m.ExecutionsSuccessful,
			m.ExecutionsFailed,
			m.ReactionDuration,
		)
	}

	return m
}

func (m *Metrics) ObserveReaction(success bool, duration time.Duration) {
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}

	m.ReactionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}
