// Package metrics provides Prometheus metrics for the aggregation engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SourceFetchesTotal is a counter of provider fetches by outcome.
	SourceFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetches_total",
			Help: "Total number of fetches issued to market data sources",
		},
		[]string{"source", "status"},
	)

	// SourceFetchDuration is a histogram of provider fetch latency.
	SourceFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_fetch_duration_seconds",
			Help:    "Duration of market data source fetches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// SourceHealth is a gauge of the health status of sources.
	SourceHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_health",
			Help: "Health status of market data sources (1=healthy, 0=unhealthy)",
		},
		[]string{"source"},
	)

	// GovernorRejectionsTotal counts acquire rejections by the rate governor.
	GovernorRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_rejections_total",
			Help: "Total number of source calls rejected by the rate governor",
		},
		[]string{"source", "reason"},
	)

	// MergeDuration is a histogram of merge pass duration.
	MergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "merge_pass_duration_seconds",
			Help:    "Duration of priority merge passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CacheHitsTotal counts cache hits by tier.
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits by tier",
		},
		[]string{"tier"},
	)

	// CacheMissesTotal counts lookups that missed every tier.
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache lookups that missed all tiers",
		},
	)

	// RefreshJobsTotal counts refresh jobs by terminal status.
	RefreshJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_jobs_total",
			Help: "Total number of refresh jobs by terminal status",
		},
		[]string{"status"},
	)

	// RefreshJobsInflight is a gauge of non-terminal refresh jobs.
	RefreshJobsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "refresh_jobs_inflight",
			Help: "Number of refresh jobs currently pending or running",
		},
	)

	// RefreshJobDuration is a histogram of refresh job wall time.
	RefreshJobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "refresh_job_duration_seconds",
			Help:    "Wall-clock duration of refresh jobs",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	// StaleServedTotal counts responses served past their freshness threshold.
	StaleServedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stale_served_total",
			Help: "Total number of responses served with data past the freshness threshold",
		},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)
)

// Init initializes Prometheus metrics registry.
func Init() {
	// Register all metrics
	prometheus.MustRegister(
		SourceFetchesTotal,
		SourceFetchDuration,
		SourceHealth,
		GovernorRejectionsTotal,
		MergeDuration,
		CacheHitsTotal,
		CacheMissesTotal,
		RefreshJobsTotal,
		RefreshJobsInflight,
		RefreshJobDuration,
		StaleServedTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// ServeHTTP serves Prometheus metrics on the specified address.
func ServeHTTP(addr string) error {
	http.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         addr,
		Handler:      http.DefaultServeMux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordSourceFetch records a fetch against a source.
func RecordSourceFetch(source, status string, duration time.Duration) {
	SourceFetchesTotal.WithLabelValues(source, status).Inc()
	SourceFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordSourceHealth records the health status of a source.
func RecordSourceHealth(source string, healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
	}
	SourceHealth.WithLabelValues(source).Set(val)
}

// RecordGovernorRejection records a rejected acquire.
func RecordGovernorRejection(source, reason string) {
	GovernorRejectionsTotal.WithLabelValues(source, reason).Inc()
}

// RecordMerge records a merge pass.
func RecordMerge(duration time.Duration) {
	MergeDuration.Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit on a tier.
func RecordCacheHit(tier string) {
	CacheHitsTotal.WithLabelValues(tier).Inc()
}

// RecordCacheMiss records a full cache miss.
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordRefreshJob records a refresh job reaching a terminal status.
func RecordRefreshJob(status string, duration time.Duration) {
	RefreshJobsTotal.WithLabelValues(status).Inc()
	RefreshJobDuration.Observe(duration.Seconds())
}

// RecordStaleServed records a response served past its freshness threshold.
func RecordStaleServed() {
	StaleServedTotal.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
