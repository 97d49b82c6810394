package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// exposure-site pipeline.
type Metrics struct {
	RecordsFetched   *prometheus.CounterVec // labels: feed
	MalformedRecords *prometheus.CounterVec // labels: feed
	FoldedSites      *prometheus.GaugeVec   // labels: feed

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,no_match,error}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram

	// Publish metrics.
	PublishRuns        *prometheus.CounterVec   // labels: feed, outcome={success,incomplete,fetch_error,empty}
	PublishDuration    *prometheus.HistogramVec // labels: feed
	SnapshotSites      *prometheus.GaugeVec     // labels: feed
	LastPublishSuccess *prometheus.GaugeVec     // labels: feed (unix seconds)
	PipelineRunning    prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsFetched,
		m.MalformedRecords,
		m.FoldedSites,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.PublishRuns,
		m.PublishDuration,
		m.SnapshotSites,
		m.LastPublishSuccess,
		m.PipelineRunning,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can construct
// them repeatedly without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exposure_etl",
			Name:      "records_fetched_total",
			Help:      "Raw records retrieved from the upstream feeds.",
		}, []string{"feed"}),
		MalformedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exposure_etl",
			Name:      "malformed_records_total",
			Help:      "Records skipped during normalization.",
		}, []string{"feed"}),
		FoldedSites: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "exposure_etl",
			Name:      "folded_sites",
			Help:      "Unique sites after folding, per most recent run.",
		}, []string{"feed"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exposure_etl",
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exposure_etl",
			Name:      "geocode_cache_total",
			Help:      "Geocode cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "exposure_etl",
			Name:      "geocode_api_duration_seconds",
			Help:      "Geocoding API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		PublishRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exposure_etl",
			Name:      "publish_runs_total",
			Help:      "Refresh runs by feed and outcome.",
		}, []string{"feed", "outcome"}),
		PublishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "exposure_etl",
			Name:      "publish_duration_seconds",
			Help:      "Duration of a complete fetch-fold-geocode-publish run.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"feed"}),
		SnapshotSites: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "exposure_etl",
			Name:      "snapshot_sites",
			Help:      "Sites in the most recently published snapshot.",
		}, []string{"feed"}),
		LastPublishSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "exposure_etl",
			Name:      "last_publish_success_timestamp_seconds",
			Help:      "Unix time of the last successful hot/cold flip.",
		}, []string{"feed"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "exposure_etl",
			Name:      "pipeline_running",
			Help:      "1 while a refresh run is in progress, 0 otherwise.",
		}),
	}
}
