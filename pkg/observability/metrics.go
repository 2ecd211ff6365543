package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes used as the "outcome" label on StagingRunsTotal
const (
	OutcomeSuccess         = "success"
	OutcomeValidationError = "validation_error"
	OutcomeStageFailure    = "stage_failure"
	OutcomeCacheHit        = "cache_hit"
	OutcomeError           = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Staging run metrics
	StagingRunsTotal    *prometheus.CounterVec
	StagingRunDuration  prometheus.Histogram
	StagingInFlight     prometheus.Gauge
	PluginStageDuration *prometheus.HistogramVec
	PluginStageFailures *prometheus.CounterVec

	// Validation metrics
	ValidationFailuresTotal *prometheus.CounterVec
	PluginNotFoundTotal     prometheus.Counter

	// Droplet and cache metrics
	DropletSizeBytes prometheus.Histogram
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Task store metrics
	TaskStoreOperationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stager_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stager_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		StagingRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stager_staging_runs_total",
				Help: "Total number of staging runs by outcome",
			},
			[]string{"outcome"},
		),
		StagingRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stager_staging_run_duration_seconds",
				Help:    "Staging run duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
			},
		),
		StagingInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stager_staging_in_flight",
				Help: "Number of staging tasks currently running",
			},
		),
		PluginStageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stager_plugin_stage_duration_seconds",
				Help:    "Duration of a single plugin stage call in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
			},
			[]string{"plugin", "type"},
		),
		PluginStageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stager_plugin_stage_failures_total",
				Help: "Total number of plugin stage failures",
			},
			[]string{"plugin", "type"},
		),

		ValidationFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stager_validation_failures_total",
				Help: "Total number of plugin set validation failures",
			},
			[]string{"reason"},
		),
		PluginNotFoundTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stager_plugin_not_found_total",
				Help: "Total number of plugin references that could not be resolved",
			},
		),

		DropletSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stager_droplet_size_bytes",
				Help:    "Compressed droplet size in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stager_cache_hits_total",
				Help: "Total number of staging cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stager_cache_misses_total",
				Help: "Total number of staging cache misses",
			},
		),

		TaskStoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stager_task_store_operations_total",
				Help: "Total number of task store operations",
			},
			[]string{"operation", "backend", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.StagingRunsTotal,
		m.StagingRunDuration,
		m.StagingInFlight,
		m.PluginStageDuration,
		m.PluginStageFailures,
		m.ValidationFailuresTotal,
		m.PluginNotFoundTotal,
		m.DropletSizeBytes,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.TaskStoreOperationsTotal,
	)

	return m
}

// The Record helpers below are safe to call on a nil *Metrics so that
// callers constructed without metrics need no guards.

// RecordRun records the outcome and duration of a staging run
func (m *Metrics) RecordRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StagingRunsTotal.WithLabelValues(outcome).Inc()
	m.StagingRunDuration.Observe(d.Seconds())
}

// RecordPluginStage records one plugin stage call
func (m *Metrics) RecordPluginStage(plugin, pluginType string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.PluginStageDuration.WithLabelValues(plugin, pluginType).Observe(d.Seconds())
	if err != nil {
		m.PluginStageFailures.WithLabelValues(plugin, pluginType).Inc()
	}
}

// RecordValidationFailure counts a rejected plugin set by reason
func (m *Metrics) RecordValidationFailure(reason string) {
	if m == nil || reason == "" {
		return
	}
	if reason == "plugin_not_found" {
		m.PluginNotFoundTotal.Inc()
	}
	m.ValidationFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordCache counts a staging cache lookup
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

// RecordDroplet observes the size of a packed droplet
func (m *Metrics) RecordDroplet(size int64) {
	if m == nil {
		return
	}
	m.DropletSizeBytes.Observe(float64(size))
}

// RecordTaskStoreOp counts a task store operation
func (m *Metrics) RecordTaskStoreOp(operation, backend string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.TaskStoreOperationsTotal.WithLabelValues(operation, backend, status).Inc()
}

// TrackInFlight increments the in-flight gauge and returns the matching decrement
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.StagingInFlight.Inc()
	return m.StagingInFlight.Dec
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled by their mux route template so ids do not explode
// label cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
