package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for processed enrollment records.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeRejected  = "rejected"
)

// MetricsService encapsulates Prometheus instrumentation for the API
// surface, the cache and the asynchronous confirmation pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	enrollmentOutcomes *prometheus.CounterVec
	processingDuration *prometheus.HistogramVec
	eventsPublished    prometheus.Counter
	publishFailures    prometheus.Counter
	poolWorkers        prometheus.Gauge
	poolBusy           prometheus.Gauge
	poolQueued         prometheus.Gauge

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	enrollmentOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_outcomes_total",
		Help: "Enrollment records driven to a terminal status, by outcome",
	}, []string{"outcome"})

	processingDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enrollment_processing_seconds",
		Help:    "Time from request intake to terminal status",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	eventsPublished := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_events_published_total",
		Help: "Enrollment request events published to the stream",
	})

	publishFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_event_publish_failures_total",
		Help: "Enrollment request events that failed to publish after commit",
	})

	poolWorkers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_pool_size",
		Help: "Number of live workers in the confirmation pool",
	})

	poolBusy := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_pool_busy",
		Help: "Workers currently processing a task",
	})

	poolQueued := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_pool_queued",
		Help: "Tasks waiting for an idle worker",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		enrollmentOutcomes, processingDuration, eventsPublished, publishFailures, poolWorkers, poolBusy, poolQueued, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		enrollmentOutcomes: enrollmentOutcomes,
		processingDuration: processingDuration,
		eventsPublished:    eventsPublished,
		publishFailures:    publishFailures,
		poolWorkers:        poolWorkers,
		poolBusy:           poolBusy,
		poolQueued:         poolQueued,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache set operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordEnrollmentOutcome counts a record reaching a terminal status and
// observes how long it spent in flight since intake.
func (m *MetricsService) RecordEnrollmentOutcome(outcome string, inFlight time.Duration) {
	if m == nil {
		return
	}
	m.enrollmentOutcomes.WithLabelValues(outcome).Inc()
	if inFlight > 0 {
		m.processingDuration.WithLabelValues(outcome).Observe(inFlight.Seconds())
	}
}

// RecordEventPublish counts a stream publish attempt made after the intake
// transaction committed.
func (m *MetricsService) RecordEventPublish(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.eventsPublished.Inc()
	} else {
		m.publishFailures.Inc()
	}
}

// SetPoolStats mirrors pool occupancy into gauges.
func (m *MetricsService) SetPoolStats(workers, busy, queued int) {
	if m == nil {
		return
	}
	m.poolWorkers.Set(float64(workers))
	m.poolBusy.Set(float64(busy))
	m.poolQueued.Set(float64(queued))
}
