// Package metrics defines all custom Prometheus metrics for the auth portal.
// It is the single source of truth for metric names, labels, and help
// strings; metrics register themselves with the default registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "portal"

// Shared label values for result-labelled counters.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// LoginsTotal counts login attempts by outcome.
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// RegistrationsTotal counts account registrations by outcome.
var RegistrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of registration attempts, by result.",
	},
	[]string{"result"},
)

// TokenRefreshTotal counts access-token refresh calls against the backend.
// Deduplicated waiters do not count: one label increment per actual call.
var TokenRefreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refresh_total",
		Help:      "Total number of token refresh calls issued, by result.",
	},
	[]string{"result"},
)

// RefreshWaitersFlushed counts requests that piggybacked on another request's
// in-flight refresh instead of issuing their own.
var RefreshWaitersFlushed = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_waiters_flushed_total",
		Help:      "Total number of queued requests resumed after a shared token refresh.",
	},
)

// UpstreamResponsesTotal counts backend responses by status class ("2xx",
// "4xx", "5xx") so dashboards can spot backend degradation.
var UpstreamResponsesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_responses_total",
		Help:      "Total number of responses received from the auth backend, by status class.",
	},
	[]string{"class"},
)

// ActiveSessions tracks the number of browser sessions held in the registry.
var ActiveSessions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Current number of live browser sessions in the registry.",
	},
)
