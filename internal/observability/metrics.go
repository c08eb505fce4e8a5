package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sitaware"

// Metrics holds the Prometheus counters, histograms, and gauges for the feed engine.
type Metrics struct {
	// Feed refresh metrics.
	FeedRefreshes       *prometheus.CounterVec   // labels: feed, outcome={ok,error}
	FeedRefreshDuration *prometheus.HistogramVec // labels: feed
	FeedRecords         *prometheus.GaugeVec     // labels: feed, set={raw,filtered}

	// Upstream transport metrics.
	UpstreamRequests *prometheus.CounterVec // labels: feed, outcome={success,error,circuit_open}

	// Status synthesis.
	StatusLevel      prometheus.Gauge // 0 success, 1 warning, 2 danger
	NeedsActionItems prometheus.Gauge

	SessionCacheClears *prometheus.CounterVec // labels: reason={corrupt,quota}
	SchedulerRunning   prometheus.Gauge
	ManualRefreshes    *prometheus.CounterVec // labels: outcome={ok,partial,throttled}
	SnapshotsPublished *prometheus.CounterVec // labels: outcome={ok,error,dropped}
}

// NewMetrics creates and registers all engine metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FeedRefreshes,
		m.FeedRefreshDuration,
		m.FeedRecords,
		m.UpstreamRequests,
		m.StatusLevel,
		m.NeedsActionItems,
		m.SessionCacheClears,
		m.SchedulerRunning,
		m.ManualRefreshes,
		m.SnapshotsPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FeedRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_refreshes_total",
			Help:      "Feed refresh attempts by feed and outcome.",
		}, []string{"feed", "outcome"}),
		FeedRefreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_refresh_duration_seconds",
			Help:      "Duration of a feed fetch-normalize-filter cycle.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"feed"}),
		FeedRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_records",
			Help:      "Records held per feed, before and after scope filtering.",
		}, []string{"feed", "set"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream HTTP requests by feed and outcome.",
		}, []string{"feed", "outcome"}),
		StatusLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status_level",
			Help:      "Aggregate status: 0 success, 1 warning, 2 danger.",
		}),
		NeedsActionItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "needs_action_items",
			Help:      "Number of surfaced needs-action items.",
		}),
		SessionCacheClears: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_cache_clears_total",
			Help:      "Wholesale session cache clears by reason.",
		}, []string{"reason"}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      "1 when the per-feed scheduler is active, 0 when stopped.",
		}),
		ManualRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_refreshes_total",
			Help:      "Consumer-triggered refresh requests by outcome.",
		}, []string{"outcome"}),
		SnapshotsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Data-ready snapshots handed to Kafka by outcome.",
		}, []string{"outcome"}),
	}
}
