// Package metrics provides Prometheus instrumentation for the ChatXP client.
// It exposes counters for API traffic and message outcomes, a gauge for the
// current reconnect attempt, and histograms for request latency and time spent
// waiting for a match.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequestsTotal counts remote API calls labeled by endpoint and outcome:
	// "ok", "network", "server", "bad_response" or "canceled".
	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatxp_api_requests_total",
		Help: "Total number of remote API requests",
	}, []string{"endpoint", "outcome"})

	// APIRequestDuration records remote API latency in seconds, including retries.
	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatxp_api_request_duration_seconds",
		Help:    "Remote API request latency in seconds",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"endpoint"})

	// APIRetriesTotal counts transport retries after a connection failure.
	APIRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatxp_api_retries_total",
		Help: "Total number of transport-level retries",
	})

	// PollFailuresTotal counts failed chat room polls.
	PollFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatxp_poll_failures_total",
		Help: "Total number of failed chat room polls",
	})

	// ReconnectAttempts tracks the current consecutive poll failure count.
	ReconnectAttempts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatxp_reconnect_attempts",
		Help: "Current number of consecutive chat poll failures",
	})

	// ConnectionLostTotal counts sessions that gave up reconnecting.
	ConnectionLostTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatxp_connection_lost_total",
		Help: "Total number of terminal connection losses",
	})

	// MatchWait records the time from joining matchmaking to being matched.
	MatchWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatxp_match_wait_seconds",
		Help:    "Time from joining matchmaking to match found",
		Buckets: []float64{1, 2, 5, 10, 15, 20, 30, 60, 120},
	})

	// MessagesTotal counts chat messages labeled by type: "sent", "failed"
	// or "received".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatxp_messages_total",
		Help: "Total number of chat messages",
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(
		APIRequestsTotal,
		APIRequestDuration,
		APIRetriesTotal,
		PollFailuresTotal,
		ReconnectAttempts,
		ConnectionLostTotal,
		MatchWait,
		MessagesTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
