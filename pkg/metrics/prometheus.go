// Package metrics provides Prometheus metrics for the credence reputation service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// latencyBuckets spans 0.1ms to roughly 3s for the millisecond histograms.
var latencyBuckets = prometheus.ExponentialBuckets(0.1, 2, 16) //nolint:gochecknoglobals // shared bucket layout

// Manager manages all Prometheus metrics for the credence service.
type Manager struct {
	namespace       string
	subsystem       string
	enabled         bool
	refreshInterval time.Duration
	registry        prometheus.Registerer

	// Ledger and aggregator
	deltasApplied   *prometheus.CounterVec
	deltaPoints     *prometheus.CounterVec
	deltasClamped   prometheus.Counter
	eventsRejected  *prometheus.CounterVec
	eventsDuplicate prometheus.Counter
	ledgerRetries   prometheus.Counter
	applyLatency    prometheus.Histogram
	usersTotal      prometheus.Gauge

	// Producers
	endorsements   *prometheus.CounterVec
	verifications  *prometheus.CounterVec
	jobTransitions *prometheus.CounterVec
	peerVotes      *prometheus.CounterVec

	// Rank index and stores
	rankIndexSize          prometheus.Gauge
	repositoryQueryLatency *prometheus.HistogramVec

	// Retry queue and workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueues      prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	queueDequeues      prometheus.Counter
	workerActiveCount  prometheus.Gauge
	workerLatency      prometheus.Histogram
	workerResults      *prometheus.CounterVec

	// Collaborators
	chainRequests *prometheus.CounterVec
	mirrorPushes  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// Errors
	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Init replaces the global manager with one built from opts on a fresh
// registry, which GetRegistry then returns. Call it once at startup, before
// handlers capture the registry.
func Init(opts ...Option) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(reg))...)
	customRegistry = reg
	return reg
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "credence",
		subsystem:       "reputation",
		enabled:         true,
		refreshInterval: defaultRefreshInterval,
		registry:        prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	m.deltasApplied = auto.NewCounterVec(m.counterOpts("deltas_applied_total",
		"Reputation events appended to the ledger by reason"), []string{"reason"})
	m.deltaPoints = auto.NewCounterVec(m.counterOpts("delta_points_total",
		"Sum of absolute applied deltas by reason and direction"), []string{"reason", "direction"})
	m.deltasClamped = auto.NewCounter(m.counterOpts("deltas_clamped_total",
		"Deltas reduced by the score floor"))
	m.eventsRejected = auto.NewCounterVec(m.counterOpts("events_rejected_total",
		"Aggregator events that ended Rejected, by error kind"), []string{"kind"})
	m.eventsDuplicate = auto.NewCounter(m.counterOpts("events_duplicate_total",
		"Events short-circuited by the source-key guard"))
	m.ledgerRetries = auto.NewCounter(m.counterOpts("ledger_retries_total",
		"Ledger application attempts retried after a transient failure"))
	m.applyLatency = auto.NewHistogram(m.histogramOpts("apply_latency_milliseconds",
		"Latency of a ledger application including retries", latencyBuckets))
	m.usersTotal = auto.NewGauge(m.gaugeOpts("users_total",
		"Registered users"))

	m.endorsements = auto.NewCounterVec(m.counterOpts("endorsements_total",
		"Endorsements created by ledger status"), []string{"ledger_status"})
	m.verifications = auto.NewCounterVec(m.counterOpts("verifications_total",
		"Verification results processed by type and outcome"), []string{"type", "outcome"})
	m.jobTransitions = auto.NewCounterVec(m.counterOpts("job_transitions_total",
		"Job lifecycle transitions by target status"), []string{"status"})
	m.peerVotes = auto.NewCounterVec(m.counterOpts("peer_votes_total",
		"Peer verification votes by decision"), []string{"decision"})

	m.rankIndexSize = auto.NewGauge(m.gaugeOpts("rank_index_size",
		"Users tracked in the rank index"))
	m.repositoryQueryLatency = auto.NewHistogramVec(m.histogramOpts("repository_query_latency_milliseconds",
		"Store operation latency in milliseconds", latencyBuckets), []string{"store", "operation"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("retry_queue_size",
		"Pending ledger retries waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("retry_queue_capacity",
		"Maximum retry queue capacity"))
	m.queueEnqueues = auto.NewCounter(m.counterOpts("retry_queue_enqueue_total",
		"Retries enqueued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("retry_queue_enqueue_errors_total",
		"Retries dropped because the queue was full or closed"))
	m.queueDequeues = auto.NewCounter(m.counterOpts("retry_queue_dequeue_total",
		"Retries handed to workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count",
		"Running retry workers"))
	m.workerLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Retry processing latency in milliseconds", latencyBuckets))
	m.workerResults = auto.NewCounterVec(m.counterOpts("worker_results_total",
		"Retry outcomes"), []string{"result"})

	m.chainRequests = auto.NewCounterVec(m.counterOpts("chain_requests_total",
		"Chain view calls by result"), []string{"result"})
	m.mirrorPushes = auto.NewCounterVec(m.counterOpts("mirror_pushes_total",
		"Score mirror pushes by result"), []string{"result"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", latencyBuckets), []string{"endpoint", "method", "status_code"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"Total number of errors by endpoint"), []string{"endpoint", "method", "error_type"})

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Total number of errors by component"), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes",
		"System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count",
		"Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds",
		"GC pause time in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

func on() bool { return globalManager != nil && globalManager.enabled }

// RecordDeltaApplied counts one appended event and its magnitude.
func RecordDeltaApplied(reason string, applied int64) {
	if !on() {
		return
	}
	globalManager.deltasApplied.WithLabelValues(reason).Inc()
	direction := "up"
	if applied < 0 {
		direction = "down"
		applied = -applied
	}
	globalManager.deltaPoints.WithLabelValues(reason, direction).Add(float64(applied))
}

// RecordDeltaClamped counts a delta reduced by the score floor.
func RecordDeltaClamped() {
	if on() {
		globalManager.deltasClamped.Inc()
	}
}

// RecordEventRejected counts an aggregator rejection by error kind.
func RecordEventRejected(kind string) {
	if on() {
		globalManager.eventsRejected.WithLabelValues(kind).Inc()
	}
}

// RecordEventDuplicate counts an event dropped by the in-flight guard.
func RecordEventDuplicate() {
	if on() {
		globalManager.eventsDuplicate.Inc()
	}
}

// RecordLedgerRetry counts one retried ledger attempt.
func RecordLedgerRetry() {
	if on() {
		globalManager.ledgerRetries.Inc()
	}
}

// RecordApplyLatency records ledger application latency in milliseconds.
func RecordApplyLatency(latencyMs float64) {
	if on() {
		globalManager.applyLatency.Observe(latencyMs)
	}
}

// UpdateUsersTotal sets the registered user gauge.
func UpdateUsersTotal(count int) {
	if on() {
		globalManager.usersTotal.Set(float64(count))
	}
}

// RecordEndorsement counts an endorsement by its ledger status.
func RecordEndorsement(ledgerStatus string) {
	if on() {
		globalManager.endorsements.WithLabelValues(ledgerStatus).Inc()
	}
}

// RecordVerification counts a processed verification result.
func RecordVerification(verificationType, outcome string) {
	if on() {
		globalManager.verifications.WithLabelValues(verificationType, outcome).Inc()
	}
}

// RecordJobTransition counts a job moving into status.
func RecordJobTransition(status string) {
	if on() {
		globalManager.jobTransitions.WithLabelValues(status).Inc()
	}
}

// RecordPeerVote counts a peer vote.
func RecordPeerVote(approved bool) {
	if !on() {
		return
	}
	decision := "reject"
	if approved {
		decision = "approve"
	}
	globalManager.peerVotes.WithLabelValues(decision).Inc()
}

// UpdateRankIndexSize sets the rank index gauge.
func UpdateRankIndexSize(count int) {
	if on() {
		globalManager.rankIndexSize.Set(float64(count))
	}
}

// RecordRepositoryQueryLatency records a store operation latency in milliseconds.
func RecordRepositoryQueryLatency(store, operation string, latencyMs float64) {
	if on() {
		globalManager.repositoryQueryLatency.WithLabelValues(store, operation).Observe(latencyMs)
	}
}

// UpdateQueueSize sets the retry queue size gauge.
func UpdateQueueSize(size int) {
	if on() {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the retry queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	if on() {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// RecordQueueEnqueue counts an accepted retry.
func RecordQueueEnqueue() {
	if on() {
		globalManager.queueEnqueues.Inc()
	}
}

// RecordQueueEnqueueError counts a dropped retry.
func RecordQueueEnqueueError() {
	if on() {
		globalManager.queueEnqueueErrors.Inc()
	}
}

// RecordQueueDequeue counts a retry handed to a worker.
func RecordQueueDequeue() {
	if on() {
		globalManager.queueDequeues.Inc()
	}
}

// UpdateWorkerActiveCount sets the running worker gauge.
func UpdateWorkerActiveCount(count int) {
	if on() {
		globalManager.workerActiveCount.Set(float64(count))
	}
}

// RecordWorkerProcessingLatency records retry processing latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if on() {
		globalManager.workerLatency.Observe(latencyMs)
	}
}

// RecordWorkerResult counts a retry outcome: applied, requeued or dropped.
func RecordWorkerResult(result string) {
	if on() {
		globalManager.workerResults.WithLabelValues(result).Inc()
	}
}

// RecordChainRequest counts a chain view call.
func RecordChainRequest(result string) {
	if on() {
		globalManager.chainRequests.WithLabelValues(result).Inc()
	}
}

// RecordMirrorPush counts a score mirror push.
func RecordMirrorPush(result string) {
	if on() {
		globalManager.mirrorPushes.WithLabelValues(result).Inc()
	}
}

// RecordHTTPRequest increments the HTTP requests counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if on() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if on() {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByEndpoint records errors by endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if on() {
		globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// RecordErrorByComponent records errors by component.
func RecordErrorByComponent(component, errorType string) {
	if on() {
		globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// UpdateSystemMemoryUsage updates system memory usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	if on() {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount updates goroutine count.
func UpdateSystemGoroutineCount(count int) {
	if on() {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if on() {
		globalManager.systemGCPauseTime.Observe(pauseMs)
	}
}

// RefreshInterval returns how often gauge samplers should run.
func RefreshInterval() time.Duration {
	if globalManager == nil {
		return defaultRefreshInterval
	}
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
