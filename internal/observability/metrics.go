package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for StarLedger.
type Metrics struct {
	// --- Ledger ---
	TransfersTotal *prometheus.CounterVec
	TradesTotal    *prometheus.CounterVec
	PriceQueries   prometheus.Counter

	// --- Trading ---
	OffersCreated   *prometheus.CounterVec
	OffersAccepted  *prometheus.CounterVec
	OffersCancelled *prometheus.CounterVec
	ActiveOffers    prometheus.Gauge

	// --- Progression ---
	MissionsCompleted     *prometheus.CounterVec
	AchievementsCompleted *prometheus.CounterVec

	// --- Store ---
	StoreTxDuration *prometheus.HistogramVec
	StoreTxErrors   *prometheus.CounterVec

	// --- HTTP ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics. Call at most once
// per process; components tolerate a nil *Metrics.
func NewMetrics() *Metrics {
	txBuckets := []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}

	return &Metrics{
		TransfersTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "star_ledger_transfers_total",
			Help: "Resource transfers by outcome",
		}, []string{"outcome"}),

		TradesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "star_ledger_trades_total",
			Help: "Buy/sell trades by kind and outcome",
		}, []string{"kind", "outcome"}),

		PriceQueries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "star_ledger_price_queries_total",
			Help: "Price lookups served",
		}),

		OffersCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "star_trading_offers_created_total",
			Help: "Trade offers created by outcome",
		}, []string{"outcome"}),

		OffersAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "star_trading_offers_accepted_total",
			Help: "Offer acceptance attempts by outcome",
		}, []string{"outcome"}),

		OffersCancelled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "star_trading_offers_cancelled_total",
			Help: "Offer cancellation attempts by outcome",
		}, []string{"outcome"}),

		ActiveOffers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "star_trading_active_offers",
			Help: "Offers currently active",
		}),

		MissionsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "star_progression_missions_completed_total",
			Help: "Mission completion attempts by outcome",
		}, []string{"outcome"}),

		AchievementsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "star_progression_achievements_completed_total",
			Help: "Achievement completion attempts by outcome",
		}, []string{"outcome"}),

		StoreTxDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "star_store_tx_duration_seconds",
			Help:    "Store transaction duration",
			Buckets: txBuckets,
		}, []string{"op"}),

		StoreTxErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "star_store_tx_errors_total",
			Help: "Store transaction failures",
		}, []string{"op"}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "star_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"route", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "star_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"route"}),
	}
}
