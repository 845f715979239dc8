// Package metrics exposes Prometheus counters for the orchestrator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the orchestrator's Prometheus collectors. A nil *Metrics is
// safe to use; every method is a no-op, so tests can pass nil.
type Metrics struct {
	registry *prometheus.Registry

	jobsSubmitted    *prometheus.CounterVec
	jobsRejected     *prometheus.CounterVec
	jobsCompleted    prometheus.Counter
	jobsFailed       *prometheus.CounterVec
	creditsReserved  prometheus.Counter
	creditsRefunded  prometheus.Counter
	creditsCommitted prometheus.Counter
	pollCycles       prometheus.Counter
}

// New creates and registers the orchestrator collectors on a private
// registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "videogen_jobs_submitted_total",
				Help: "Jobs accepted by the dispatcher",
			},
			[]string{"quality"},
		),
		jobsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "videogen_jobs_rejected_total",
				Help: "Submissions rejected before a job was created",
			},
			[]string{"reason"},
		),
		jobsCompleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "videogen_jobs_completed_total",
				Help: "Jobs that reached COMPLETED",
			},
		),
		jobsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "videogen_jobs_failed_total",
				Help: "Jobs that reached FAILED",
			},
			[]string{"reason"},
		),
		creditsReserved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "videogen_credits_reserved_total",
				Help: "Credits debited by reservations",
			},
		),
		creditsRefunded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "videogen_credits_refunded_total",
				Help: "Credits restored by refunds",
			},
		),
		creditsCommitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "videogen_credits_committed_total",
				Help: "Credits settled as consumed",
			},
		),
		pollCycles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "videogen_poll_cycles_total",
				Help: "Status poller cycles executed",
			},
		),
	}

	m.registry.MustRegister(
		m.jobsSubmitted,
		m.jobsRejected,
		m.jobsCompleted,
		m.jobsFailed,
		m.creditsReserved,
		m.creditsRefunded,
		m.creditsCommitted,
		m.pollCycles,
	)

	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) JobSubmitted(quality string, cost int) {
	if m == nil {
		return
	}
	m.jobsSubmitted.WithLabelValues(quality).Inc()
	m.creditsReserved.Add(float64(cost))
}

func (m *Metrics) JobRejected(reason string) {
	if m == nil {
		return
	}
	m.jobsRejected.WithLabelValues(reason).Inc()
}

// JobCompleted records a job reaching COMPLETED and the credits the
// settlement committed. Credits is zero when the reservation was already
// resolved, so duplicated settlements do not inflate the credit counters.
func (m *Metrics) JobCompleted(credits int) {
	if m == nil {
		return
	}
	m.jobsCompleted.Inc()
	m.creditsCommitted.Add(float64(credits))
}

// JobFailed records a job reaching FAILED and the credits the settlement
// restored.
func (m *Metrics) JobFailed(reason string, credits int) {
	if m == nil {
		return
	}
	m.jobsFailed.WithLabelValues(reason).Inc()
	m.creditsRefunded.Add(float64(credits))
}

func (m *Metrics) PollCycle() {
	if m == nil {
		return
	}
	m.pollCycles.Inc()
}
