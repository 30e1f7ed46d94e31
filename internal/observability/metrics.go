package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundres_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	ReservationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fundres_reservations_created_total",
			Help: "Reservations created",
		},
	)

	BidValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundres_bid_validations_total",
			Help: "Bid validations by outcome",
		},
		[]string{"outcome"},
	)

	ReservationsSettled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fundres_reservations_settled_total",
			Help: "Winning reservations settled",
		},
	)

	ReservationsReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundres_reservations_released_total",
			Help: "Reservations released or expired",
		},
		[]string{"status"},
	)

	AmountReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fundres_amount_released_total",
			Help: "Total funds returned to available balance",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fundres_sweep_seconds",
			Help:    "Duration of expiry sweeps",
			Buckets: prometheus.DefBuckets,
		},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fundres_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fundres_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
