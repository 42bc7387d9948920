package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesRequested = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_requested_total", Help: "Total rides requested"})
	OffersSent     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "offers_sent_total", Help: "Total ride offers delivered to captains"})
	ClaimsWon      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "claims_won_total", Help: "Total successful ride claims"})
	ClaimConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "claim_conflicts_total", Help: "Total claim attempts that lost the race or hit a wrong state"})
	NoCandidates   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "dispatch_no_candidates_total", Help: "Dispatches that found zero eligible captains"})
	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "notify_failures_total", Help: "Best-effort notifications that could not be delivered"})

	CaptainsOnline = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "captains_online", Help: "Captains currently bound to a channel"})
	WSConnections  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "ws_connections", Help: "Open websocket connections"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
