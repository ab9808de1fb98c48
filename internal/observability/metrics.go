package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tours_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tours_bookings_total",
			Help: "Booking attempts by final state and reason",
		},
		[]string{"state", "reason"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tours_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	DBTxRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tours_db_tx_retries_total",
			Help: "Transactions retried after a serialization failure",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tours_outbox_lag_seconds",
			Help: "Age of the oldest outbox record published in the last batch",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tours_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tours_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tours_notifications_total",
			Help: "Booking notifications handled by the notifier",
		},
		[]string{"result"},
	)
)
