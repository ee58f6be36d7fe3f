// Package metrics provides Prometheus metrics for the points service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Award kinds used as label values.
const (
	KindAward      = "award"
	KindAction     = "action"
	KindDailyLogin = "daily_login"
	KindFirstTime  = "first_time"
	KindBatch      = "batch"
	KindSubmission = "submission"
)

// Cache lookup results used as label values.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metric name prefix.
const (
	namespace = "points"
	subsystem = "board"
)

// Manager manages all Prometheus metrics for the points service.
type Manager struct {
	registry prometheus.Registerer

	// Ledger
	awardsTotal     *prometheus.CounterVec
	awardDuplicates *prometheus.CounterVec
	awardErrors     *prometheus.CounterVec
	awardDropped    prometheus.Counter
	pointsAwarded   prometheus.Counter
	totalUsers      prometheus.Gauge

	// Leaderboard cache
	cacheRequests        *prometheus.CounterVec
	cacheInvalidations   *prometheus.CounterVec
	leaderboardCompute   *prometheus.HistogramVec
	leaderboardRankReads prometheus.Counter

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter
	workerRetryCount        prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{registry: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: prometheus.DefBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.awardsTotal = m.counterVec("awards_total", "Total number of committed point awards", "kind")
	m.awardDuplicates = m.counterVec("award_duplicates_total",
		"Awards skipped because they were already applied (daily login, first time, resubmission)", "kind")
	m.awardErrors = m.counterVec("award_errors_total", "Total number of failed awards", "kind")
	m.awardDropped = m.counter("award_dropped_total", "Queued awards abandoned after exhausting retries")
	m.pointsAwarded = m.counter("points_awarded_total", "Sum of points committed to the ledger")
	m.totalUsers = m.gauge("total_users", "Number of registered users")

	m.cacheRequests = m.counterVec("cache_requests_total", "Leaderboard cache lookups by scope and result", "scope", "result")
	m.cacheInvalidations = m.counterVec("cache_invalidations_total", "Cache invalidations by scope", "scope")
	m.leaderboardCompute = m.histogramVec("leaderboard_compute_milliseconds",
		"Time to compute a leaderboard from the store", "scope")
	m.leaderboardRankReads = m.counter("rank_reads_total", "Total number of single user rank lookups")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Store operation latency in milliseconds", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Store operation failures", "op")

	m.queueSize = m.gauge("queue_size", "Current size of the award queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum award queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of awards enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of awards dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds",
		"Queue processing latency in milliseconds", prometheus.DefBuckets)

	m.workerCount = m.gauge("worker_count", "Configured number of award workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of running award workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Worker processing latency in milliseconds", prometheus.DefBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")
	m.workerRetryCount = m.counter("worker_retries_total", "Total number of award retries")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Total number of errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordAward counts a committed award of the given kind and its points.
func RecordAward(kind string, points int64) {
	globalManager.awardsTotal.WithLabelValues(kind).Inc()
	if points > 0 {
		globalManager.pointsAwarded.Add(float64(points))
	}
}

// RecordAwardDuplicate counts an award skipped as already applied.
func RecordAwardDuplicate(kind string) {
	globalManager.awardDuplicates.WithLabelValues(kind).Inc()
}

// RecordAwardError counts a failed award.
func RecordAwardError(kind string) {
	globalManager.awardErrors.WithLabelValues(kind).Inc()
}

// RecordAwardDropped counts a queued award abandoned after retries.
func RecordAwardDropped() {
	globalManager.awardDropped.Inc()
}

// UpdateTotalUsers sets the registered user count.
func UpdateTotalUsers(count int) {
	globalManager.totalUsers.Set(float64(count))
}

// RecordCacheResult counts a leaderboard cache lookup.
func RecordCacheResult(scope, result string) {
	globalManager.cacheRequests.WithLabelValues(scope, result).Inc()
}

// RecordCacheInvalidation counts a cache invalidation for scope.
func RecordCacheInvalidation(scope string) {
	globalManager.cacheInvalidations.WithLabelValues(scope).Inc()
}

// RecordLeaderboardCompute records how long a store recompute took.
func RecordLeaderboardCompute(scope string, latencyMs float64) {
	globalManager.leaderboardCompute.WithLabelValues(scope).Observe(latencyMs)
}

// RecordRankRead counts a single user rank lookup.
func RecordRankRead() {
	globalManager.leaderboardRankReads.Inc()
}

// RecordStoreLatency records a store operation latency.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(op string) {
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordWorkerRetry increments the worker retry counter.
func RecordWorkerRetry() {
	globalManager.workerRetryCount.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
