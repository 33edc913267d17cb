// Package metrics wires the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors the gateway and coordinator report to.
type Metrics struct {
	Registry *prometheus.Registry

	// Decisions counts accepted decisions and advances per graph.
	Decisions *prometheus.CounterVec

	// Conflicts counts optimistic-concurrency conflicts surfaced to clients
	// as stale state. A persistently high rate means clients are racing.
	Conflicts prometheus.Counter

	// SessionsStarted / SessionsFinished track session lifecycle.
	SessionsStarted  prometheus.Counter
	SessionsFinished prometheus.Counter

	// RequestDuration observes gateway handler latency.
	RequestDuration *prometheus.HistogramVec

	// StoreOps counts session store operations by op and outcome.
	StoreOps *prometheus.CounterVec
}

// New creates a Metrics set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tribunal_decisions_total",
			Help: "Accepted decisions and narrative advances.",
		}, []string{"graph", "kind"}),
		Conflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "tribunal_conflicts_total",
			Help: "Decisions rejected as stale after the bounded retry.",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "tribunal_sessions_started_total",
			Help: "Sessions moved from scheduled to started.",
		}),
		SessionsFinished: factory.NewCounter(prometheus.CounterOpts{
			Name: "tribunal_sessions_finished_total",
			Help: "Sessions that reached a terminal node or branch.",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tribunal_request_duration_seconds",
			Help:    "Gateway handler latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		StoreOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tribunal_store_ops_total",
			Help: "Session store operations by outcome.",
		}, []string{"op", "outcome"}),
	}
}
