// Package metrics exposes Prometheus instrumentation for the duel server:
// connection and session gauges, queue depth per bucket, and counters for
// match throughput and persistence failures.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connections tracks identities with a live connection.
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "duel_connections",
		Help: "Current number of connected identities",
	})

	// QueueSize tracks waiting players per bucket.
	QueueSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "duel_queue_size",
		Help: "Players waiting in each matchmaking bucket",
	}, []string{"bucket"})

	// ActiveSessions tracks sessions that have not been torn down.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "duel_active_sessions",
		Help: "Current number of registered sessions",
	})

	// MatchesStarted counts sessions created, labeled by mode.
	MatchesStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "duel_matches_started_total",
		Help: "Sessions created after both stakes were debited",
	}, []string{"mode"})

	// MatchesSettled counts settled matches by mode and how they ended.
	MatchesSettled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "duel_matches_settled_total",
		Help: "Matches settled",
	}, []string{"mode", "result"}) // result = "completed", "forfeit"

	// RoundsResolved counts resolved rounds by outcome.
	RoundsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "duel_rounds_resolved_total",
		Help: "Rounds resolved",
	}, []string{"outcome"}) // outcome = "decisive", "tie"

	// PairingFailures counts pairings abandoned before a session started.
	PairingFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "duel_pairing_failures_total",
		Help: "Pairings that did not produce a session",
	}, []string{"reason"}) // reason = "insufficient_funds", "disconnect", "store"

	// PersistFailures counts best-effort writes that failed.
	PersistFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "duel_persist_failures_total",
		Help: "Failed settlement, refund or publish calls",
	}, []string{"op"})

	// MatchWait records time from findMatch to matchFound.
	MatchWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "duel_match_wait_seconds",
		Help:    "Time from match request to match found",
		Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120},
	})

	// AuthFailures counts rejected connection attempts.
	AuthFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duel_auth_failures_total",
		Help: "Connection attempts rejected by the identity gate",
	})
)

func init() {
	prometheus.MustRegister(
		Connections,
		QueueSize,
		ActiveSessions,
		MatchesStarted,
		MatchesSettled,
		RoundsResolved,
		PairingFailures,
		PersistFailures,
		MatchWait,
		AuthFailures,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
