// Package metrics provides Prometheus metrics for the platewatch service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the platewatch service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Capture and pipeline
	framesCaptured  prometheus.Counter
	framesDropped   *prometheus.CounterVec
	framesProcessed prometheus.Counter
	frameLatency    prometheus.Histogram
	candidates      prometheus.Counter

	// OCR
	ocrAttempts   prometheus.Counter
	ocrReads      prometheus.Counter
	ocrUnreadable *prometheus.CounterVec
	ocrLatency    prometheus.Histogram

	// Validation
	platesAccepted *prometheus.CounterVec
	platesRejected prometheus.Counter

	// Ledger
	observations    prometheus.Counter
	recordsCreated  prometheus.Counter
	bestImprovement prometheus.Counter
	ledgerRecords   prometheus.Gauge
	reviewActions   *prometheus.CounterVec

	// Durable flush
	flushes      *prometheus.CounterVec
	flushLatency *prometheus.HistogramVec
	flushLag     *prometheus.GaugeVec

	// Side channels
	archiveUploads *prometheus.CounterVec
	publishes      *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics - frame hand-off between capture and pipeline
	queueCapacity      prometheus.Gauge
	queueSize          prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Enhanced Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
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

// Init rebuilds the global manager on a fresh registry with the given
// options. Call it once at startup, before anything records or serves
// metrics.
func Init(opts ...Option) {
	customRegistry = prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(customRegistry)}, opts...)...)
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "platewatch",
		subsystem:        "anpr",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.framesCaptured = m.counter("frames_captured_total", "Frames read from the camera source")
	m.framesDropped = m.counterVec("frames_dropped_total", "Frames discarded before processing", "reason")
	m.framesProcessed = m.counter("frames_processed_total", "Frames that went through detection and recognition")
	m.frameLatency = m.histogram("frame_latency_milliseconds", "End-to-end processing time of one frame", m.histogramBuckets)
	m.candidates = m.counter("candidates_total", "Plate regions surviving non-maximum suppression")

	m.ocrAttempts = m.counter("ocr_attempts_total", "Regions submitted to the OCR engine")
	m.ocrReads = m.counter("ocr_reads_total", "Regions that produced readable text")
	m.ocrUnreadable = m.counterVec("ocr_unreadable_total", "Regions that produced no usable text", "reason")
	m.ocrLatency = m.histogram("ocr_latency_milliseconds", "OCR engine call latency", m.histogramBuckets)

	m.platesAccepted = m.counterVec("plates_accepted_total", "Readings accepted by the plate grammar", "kind")
	m.platesRejected = m.counter("plates_rejected_total", "Readings no plate grammar accepted")

	m.observations = m.counter("ledger_observations_total", "Observations merged into the ledger")
	m.recordsCreated = m.counter("ledger_records_created_total", "New plate records")
	m.bestImprovement = m.counter("ledger_best_improvements_total", "Observations that raised a record's best confidence")
	m.ledgerRecords = m.gauge("ledger_records", "Plate records held in memory")
	m.reviewActions = m.counterVec("review_actions_total", "Reviewer actions applied to records", "action")

	m.flushes = m.counterVec("flush_total", "Durable flush attempts by backend and outcome", "backend", "outcome")
	m.flushLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("flush_latency_milliseconds"),
		Help:        "Durable flush latency by backend",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"backend"})
	m.flushLag = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("flush_lag_versions"),
		Help:        "Ledger versions not yet durable per backend",
		ConstLabels: m.customLabels,
	}, []string{"backend"})

	m.archiveUploads = m.counterVec("archive_uploads_total", "Evidence crop uploads by outcome", "outcome")
	m.publishes = m.counterVec("publish_total", "Detection events published by outcome", "outcome")

	// HTTP Performance Metrics - User experience indicators
	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.queueCapacity = m.gauge("queue_capacity", "Maximum frames waiting for the pipeline")
	m.queueSize = m.gauge("queue_size", "Frames waiting for the pipeline")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size divided by capacity")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Frames handed to the pipeline queue")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Frames taken by the pipeline worker")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Frames rejected by the queue")

	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time the pipeline worker spends per frame", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Pipeline worker errors")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type",
		"component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity",
		"error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint",
		"endpoint", "method", "error_type")
	m.errorLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("error_latency_milliseconds"),
		Help:        "Latency of requests that ended in an error",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordFrameCaptured counts a frame read from the source.
func RecordFrameCaptured() {
	globalManager.framesCaptured.Inc()
}

// RecordFrameDropped counts a frame discarded before processing.
func RecordFrameDropped(reason string) {
	globalManager.framesDropped.WithLabelValues(reason).Inc()
}

// RecordFrameProcessed counts a processed frame and its latency in milliseconds.
func RecordFrameProcessed(latencyMs float64) {
	globalManager.framesProcessed.Inc()
	globalManager.frameLatency.Observe(latencyMs)
}

// RecordCandidates adds n surviving candidate regions.
func RecordCandidates(n int) {
	globalManager.candidates.Add(float64(n))
}

// RecordOCRAttempt counts a region submitted for recognition.
func RecordOCRAttempt() {
	globalManager.ocrAttempts.Inc()
}

// RecordOCRRead counts a successful recognition.
func RecordOCRRead() {
	globalManager.ocrReads.Inc()
}

// RecordOCRUnreadable counts an unreadable region by reason.
func RecordOCRUnreadable(reason string) {
	globalManager.ocrUnreadable.WithLabelValues(reason).Inc()
}

// RecordOCRLatency records engine latency in milliseconds.
func RecordOCRLatency(latencyMs float64) {
	globalManager.ocrLatency.Observe(latencyMs)
}

// RecordPlateAccepted counts a reading accepted under the given grammar kind.
func RecordPlateAccepted(kind string) {
	globalManager.platesAccepted.WithLabelValues(kind).Inc()
}

// RecordPlateRejected counts a reading no grammar accepted.
func RecordPlateRejected() {
	globalManager.platesRejected.Inc()
}

// RecordObservation counts a merged observation.
func RecordObservation(created, improved bool) {
	globalManager.observations.Inc()
	if created {
		globalManager.recordsCreated.Inc()
	}
	if improved {
		globalManager.bestImprovement.Inc()
	}
}

// UpdateLedgerRecords sets the number of records in memory.
func UpdateLedgerRecords(count int) {
	globalManager.ledgerRecords.Set(float64(count))
}

// RecordReviewAction counts a verify, flag or delete action.
func RecordReviewAction(action string) {
	globalManager.reviewActions.WithLabelValues(action).Inc()
}

// RecordFlush records one backend flush attempt.
func RecordFlush(backend, outcome string, latencyMs float64) {
	globalManager.flushes.WithLabelValues(backend, outcome).Inc()
	globalManager.flushLatency.WithLabelValues(backend).Observe(latencyMs)
}

// UpdateFlushLag sets how many ledger versions a backend is behind.
func UpdateFlushLag(backend string, versions uint64) {
	globalManager.flushLag.WithLabelValues(backend).Set(float64(versions))
}

// RecordArchiveUpload counts an evidence upload by outcome.
func RecordArchiveUpload(outcome string) {
	globalManager.archiveUploads.WithLabelValues(outcome).Inc()
}

// RecordPublish counts a published detection event by outcome.
func RecordPublish(outcome string) {
	globalManager.publishes.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
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

// RecordWorkerProcessingLatency records per-frame worker latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordErrorByComponent records an error for a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an HTTP error by endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an errored operation.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// UpdateSystemMemoryUsage sets heap bytes in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
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
