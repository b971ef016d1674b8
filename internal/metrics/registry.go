package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric definitions for the auction exchange. Everything registers on the
// default registry; /metrics serves it via Handler.

var (
	// Gateway metrics
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "auction",
			Subsystem: "gateway",
			Name:      "active_sessions",
			Help:      "Number of open websocket sessions",
		},
	)

	FramesIn = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "gateway",
			Name:      "frames_in_total",
			Help:      "Total inbound frames by action",
		},
		[]string{"action"},
	)

	FramesOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "gateway",
			Name:      "frames_out_total",
			Help:      "Total outbound frames by type",
		},
		[]string{"type"},
	)

	UpgradesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "gateway",
			Name:      "upgrades_rejected_total",
			Help:      "Websocket upgrades refused before a session started",
		},
		[]string{"reason"},
	)

	SlowConsumerDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "gateway",
			Name:      "slow_consumer_drops_total",
			Help:      "Sessions torn down because their outbound buffer filled",
		},
	)

	// Bid domain metrics
	BidOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "bid",
			Name:      "outcomes_total",
			Help:      "Arbitration outcomes by result",
		},
		[]string{"outcome"},
	)

	ArbitrationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "auction",
			Subsystem: "bid",
			Name:      "arbitration_duration_seconds",
			Help:      "Wall time of one bid arbitration round trip",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
	)

	// Closer metrics
	SweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "closer",
			Name:      "sweeps_total",
			Help:      "Total sweep passes",
		},
	)

	AuctionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "closer",
			Name:      "closed_total",
			Help:      "Auctions moved to a terminal status by the sweep",
		},
		[]string{"status"},
	)

	NotificationsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "closer",
			Name:      "notifications_enqueued_total",
			Help:      "Winner notifications handed to the queue",
		},
	)

	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "closer",
			Name:      "notification_failures_total",
			Help:      "Winner notifications dropped after retries ran out",
		},
	)
)

// Outcome labels for BidOutcomes.
const (
	OutcomeAccepted     = "accepted"
	OutcomeRejected     = "rejected"
	OutcomeError        = "error"
	OutcomeBuyNowClosed = "buy_now_closed"
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
