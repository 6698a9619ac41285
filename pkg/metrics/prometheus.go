// Package metrics provides Prometheus metrics for the CVM registry service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Event log
	eventsAppended    *prometheus.CounterVec
	mutationsRejected *prometheus.CounterVec

	// Projections
	projectionRecomputes     *prometheus.CounterVec
	projectionRecomputeMs    prometheus.Histogram
	projectionStaleFallbacks prometheus.Counter

	// Registry size
	trackedCvms       prometheus.Gauge
	trackedIdentities prometheus.Gauge

	// Refresh queue and workers
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueEnqueues prometheus.Counter
	queueDequeues prometheus.Counter
	queueDrops    prometheus.Counter
	workerCount   prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Map queries
	clusterQueryMs prometheus.Histogram
}

// Global manager on a custom registry to avoid default Go metrics.
var globalManager *Manager                    //nolint:gochecknoglobals // singleton metrics manager
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "cvmap",
		subsystem:        "registry",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.eventsAppended = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_appended_total",
		Help:      "Karma events appended to the log, by kind.",
	}, []string{"kind"})

	m.mutationsRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mutations_rejected_total",
		Help:      "Rejected vote/report/registration attempts, by error code.",
	}, []string{"code"})

	m.projectionRecomputes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "projection_recomputes_total",
		Help:      "Projection recomputations, by subject type.",
	}, []string{"subject"})

	m.projectionRecomputeMs = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "projection_recompute_duration_ms",
		Help:      "Projection recomputation latency in milliseconds.",
		Buckets:   m.histogramBuckets,
	})

	m.projectionStaleFallbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "projection_stale_fallbacks_total",
		Help:      "Appends that only marked a projection stale because the refresh queue was full.",
	})

	m.trackedCvms = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cvms_tracked",
		Help:      "CVMs known to the registry, including removed ones.",
	})

	m.trackedIdentities = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "identities_tracked",
		Help:      "Registered identities.",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_queue_size",
		Help:      "Subjects waiting for projection refresh.",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_queue_capacity",
		Help:      "Capacity of the projection refresh queue.",
	})

	m.queueEnqueues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_queue_enqueues_total",
		Help:      "Subjects enqueued for refresh.",
	})

	m.queueDequeues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_queue_dequeues_total",
		Help:      "Subjects dequeued by refresh workers.",
	})

	m.queueDrops = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_queue_drops_total",
		Help:      "Refresh enqueues dropped due to backpressure.",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "refresh_workers",
		Help:      "Number of projection refresh workers.",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests, by endpoint, method and status code.",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method"})

	m.clusterQueryMs = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cluster_query_duration_ms",
		Help:      "Viewport clustering latency in milliseconds.",
		Buckets:   m.histogramBuckets,
	})
}

// Package-level recording helpers operating on the global manager.

// RecordEventAppended counts an appended event by kind.
func RecordEventAppended(kind string) {
	globalManager.eventsAppended.WithLabelValues(kind).Inc()
}

// RecordMutationRejected counts a rejected mutation by error code.
func RecordMutationRejected(code string) {
	globalManager.mutationsRejected.WithLabelValues(code).Inc()
}

// RecordProjectionRecompute counts a recomputation for a subject type.
func RecordProjectionRecompute(subject string) {
	globalManager.projectionRecomputes.WithLabelValues(subject).Inc()
}

// RecordProjectionRecomputeLatency observes a recompute latency sample.
func RecordProjectionRecomputeLatency(ms float64) {
	globalManager.projectionRecomputeMs.Observe(ms)
}

// RecordStaleFallback counts an append that could not enqueue a refresh.
func RecordStaleFallback() {
	globalManager.projectionStaleFallbacks.Inc()
}

// UpdateTrackedCvms sets the number of known CVMs.
func UpdateTrackedCvms(n int) {
	globalManager.trackedCvms.Set(float64(n))
}

// UpdateTrackedIdentities sets the number of registered identities.
func UpdateTrackedIdentities(n int) {
	globalManager.trackedIdentities.Set(float64(n))
}

// UpdateQueueSize sets the refresh queue depth.
func UpdateQueueSize(n int) {
	globalManager.queueSize.Set(float64(n))
}

// UpdateQueueCapacity sets the refresh queue capacity.
func UpdateQueueCapacity(n int) {
	globalManager.queueCapacity.Set(float64(n))
}

// RecordQueueEnqueue counts a successful refresh enqueue.
func RecordQueueEnqueue() {
	globalManager.queueEnqueues.Inc()
}

// RecordQueueDequeue counts a refresh dequeue.
func RecordQueueDequeue() {
	globalManager.queueDequeues.Inc()
}

// RecordQueueDrop counts a refresh enqueue rejected by backpressure.
func RecordQueueDrop() {
	globalManager.queueDrops.Inc()
}

// UpdateWorkerCount sets the refresh worker count.
func UpdateWorkerCount(n int) {
	globalManager.workerCount.Set(float64(n))
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP latency sample.
func RecordHTTPRequestDuration(endpoint, method string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method).Observe(ms)
}

// RecordClusterQueryLatency observes a clustering latency sample.
func RecordClusterQueryLatency(ms float64) {
	globalManager.clusterQueryMs.Observe(ms)
}

// GetRegistry returns the custom registry for serving /healthz metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
