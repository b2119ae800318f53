package apiclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleet_client",
			Name:      "requests_total",
			Help:      "Requests dispatched, by method and status code.",
		},
		[]string{"method", "code"},
	)

	tokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fleet_client",
			Name:      "token_refresh_total",
			Help:      "Token refresh attempts by outcome (success, failure, skipped).",
		},
		[]string{"outcome"},
	)

	requestRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fleet_client",
			Name:      "request_retries_total",
			Help:      "Requests replayed after a token refresh.",
		},
	)
)
