package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postbox_events_ingested_total",
			Help: "Total number of webhook events accepted for delivery.",
		},
		[]string{"mailbox_id"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postbox_deliveries_total",
			Help: "Total number of delivery cycles by terminal status.",
		},
		[]string{"status"}, // delivered, failed
	)

	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postbox_attempts_total",
			Help: "Total number of HTTP delivery attempts by outcome.",
		},
		[]string{"outcome"}, // success, failed
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postbox_retries_total",
			Help: "Total number of in-cycle retries by failure reason.",
		},
		[]string{"reason"}, // e.g. http_5xx, timeout, network, other
	)

	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "postbox_delivery_duration_seconds",
			Help:    "Wall time of a full delivery cycle including backoff.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postbox_http_requests_total",
			Help: "Total number of HTTP requests handled by the API.",
		},
		[]string{"method", "route", "code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postbox_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		EventsIngestedTotal,
		DeliveriesTotal,
		AttemptsTotal,
		RetriesTotal,
		DeliveryDuration,
		httpRequestsTotal,
		httpRequestDuration,
	)
}

// RecordIngested increments the ingestion counter for a mailbox.
func RecordIngested(mailboxID string) {
	EventsIngestedTotal.WithLabelValues(mailboxID).Inc()
}

// RecordDelivery records a finished delivery cycle.
func RecordDelivery(status string, elapsed time.Duration) {
	DeliveriesTotal.WithLabelValues(status).Inc()
	DeliveryDuration.Observe(elapsed.Seconds())
}

// RecordAttempt records one HTTP attempt outcome.
func RecordAttempt(outcome string) {
	AttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordRetry records a retry with its classified failure reason.
func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

// ObserveHTTPRequest records one handled API request.
func ObserveHTTPRequest(method, route, code string, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, code).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
