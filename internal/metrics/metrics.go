package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reachpoint_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reachpoint_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	SendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reachpoint_sends_total",
			Help: "Total recipients handed to a provider, by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	SendsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reachpoint_sends_rejected_total",
			Help: "Dispatch units rejected before reaching a provider, by reason.",
		},
		[]string{"reason"},
	)

	BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reachpoint_batches_total",
			Help: "Provider batches dispatched, by scheduling mode.",
		},
		[]string{"mode"},
	)

	CircuitBreakerTripsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reachpoint_circuit_breaker_trips_total",
			Help: "Tenant circuit breakers tripped by consecutive provider failures.",
		},
	)

	BudgetAlertsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reachpoint_budget_alerts_total",
			Help: "Budget alert-threshold crossings observed during spend checks.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SendsTotal,
		SendsRejectedTotal,
		BatchesTotal,
		CircuitBreakerTripsTotal,
		BudgetAlertsTotal,
	)
}
