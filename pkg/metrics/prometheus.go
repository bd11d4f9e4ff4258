// Package metrics provides Prometheus metrics for the scoring service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultRefreshInterval = 10 * time.Second

// Manager owns every collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Lifecycle
	submissionsCreated  prometheus.Counter
	transitionsApplied  *prometheus.CounterVec
	transitionsRejected *prometheus.CounterVec

	// Scoring
	scoresRecorded   *prometheus.CounterVec
	scoresRejected   *prometheus.CounterVec
	revisionsClamped prometheus.Counter

	// Community
	votesRecorded *prometheus.CounterVec

	// Leaderboard
	leaderboardRecomputeLatency prometheus.Histogram
	leaderboardSize             prometheus.Gauge

	// Transition notifier
	notifyQueueSize  prometheus.Gauge
	notifyDropped    prometheus.Counter
	notifyPublished  prometheus.Counter
	notifyFailed     prometheus.Counter
	notifyWorkers    prometheus.Gauge
	notifyPublishLag prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// Store
	storeQueryLatency *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // service registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "clanktank",
		subsystem:        "scoring",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.customLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.submissionsCreated = m.counter("submissions_created_total", "Submissions accepted from intake")
	m.transitionsApplied = m.counterVec("transitions_applied_total", "Status transitions applied", "from", "to")
	m.transitionsRejected = m.counterVec("transitions_rejected_total", "Status transitions refused by the ledger", "from", "to")

	m.scoresRecorded = m.counterVec("scores_recorded_total", "Judge score rows upserted", "round")
	m.scoresRejected = m.counterVec("scores_rejected_total", "Judge score writes rejected", "round", "reason")
	m.revisionsClamped = m.counter("revisions_clamped_total", "Round-2 adjustments clamped to the configured bound")

	m.votesRecorded = m.counterVec("votes_recorded_total", "Community votes ingested by outcome", "kind", "outcome")

	m.leaderboardRecomputeLatency = m.histogram("leaderboard_recompute_milliseconds", "Time to recompute the leaderboard from source rows")
	m.leaderboardSize = m.gauge("leaderboard_size", "Rankable submissions at the last recompute")

	m.notifyQueueSize = m.gauge("notify_queue_size", "Transition events waiting to be published")
	m.notifyDropped = m.counter("notify_dropped_total", "Transition events dropped on backpressure")
	m.notifyPublished = m.counter("notify_published_total", "Transition events published")
	m.notifyFailed = m.counter("notify_failed_total", "Transition events whose publish failed")
	m.notifyWorkers = m.gauge("notify_workers", "Notifier workers running")
	m.notifyPublishLag = m.histogram("notify_publish_lag_milliseconds", "Delay between a transition and its publication")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.storeQueryLatency = m.histogramVec("store_query_milliseconds", "Store operation latency", "op")
}

// RecordSubmissionCreated counts an accepted submission.
func RecordSubmissionCreated() {
	if globalManager.enabled {
		globalManager.submissionsCreated.Inc()
	}
}

// RecordTransition counts an applied status transition.
func RecordTransition(from, to string) {
	if globalManager.enabled {
		globalManager.transitionsApplied.WithLabelValues(from, to).Inc()
	}
}

// RecordTransitionRejected counts a refused status transition.
func RecordTransitionRejected(from, to string) {
	if globalManager.enabled {
		globalManager.transitionsRejected.WithLabelValues(from, to).Inc()
	}
}

// RecordScore counts an upserted judge score for round ("1" or "2").
func RecordScore(round string) {
	if globalManager.enabled {
		globalManager.scoresRecorded.WithLabelValues(round).Inc()
	}
}

// RecordScoreRejected counts a rejected judge score.
func RecordScoreRejected(round, reason string) {
	if globalManager.enabled {
		globalManager.scoresRejected.WithLabelValues(round, reason).Inc()
	}
}

// RecordRevisionClamped counts a clamped round-2 adjustment.
func RecordRevisionClamped() {
	if globalManager.enabled {
		globalManager.revisionsClamped.Inc()
	}
}

// RecordVote counts an ingested vote.
func RecordVote(kind, outcome string) {
	if globalManager.enabled {
		globalManager.votesRecorded.WithLabelValues(kind, outcome).Inc()
	}
}

// RecordLeaderboardRecompute observes one recompute.
func RecordLeaderboardRecompute(latencyMs float64, size int) {
	if globalManager.enabled {
		globalManager.leaderboardRecomputeLatency.Observe(latencyMs)
		globalManager.leaderboardSize.Set(float64(size))
	}
}

// UpdateNotifyQueueSize sets the notifier backlog gauge.
func UpdateNotifyQueueSize(size int) {
	if globalManager.enabled {
		globalManager.notifyQueueSize.Set(float64(size))
	}
}

// RecordNotifyDropped counts a dropped transition event.
func RecordNotifyDropped() {
	if globalManager.enabled {
		globalManager.notifyDropped.Inc()
	}
}

// RecordNotifyPublished counts a published transition event and its lag.
func RecordNotifyPublished(lagMs float64) {
	if globalManager.enabled {
		globalManager.notifyPublished.Inc()
		globalManager.notifyPublishLag.Observe(lagMs)
	}
}

// RecordNotifyFailed counts a failed publish.
func RecordNotifyFailed() {
	if globalManager.enabled {
		globalManager.notifyFailed.Inc()
	}
}

// UpdateNotifyWorkers sets the number of running notifier workers.
func UpdateNotifyWorkers(count int) {
	if globalManager.enabled {
		globalManager.notifyWorkers.Set(float64(count))
	}
}

// RecordHTTPRequest counts an HTTP request and observes its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

// RecordErrorByComponent counts an error in a component.
func RecordErrorByComponent(component, errorType string) {
	if globalManager.enabled {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordStoreLatency observes a store operation.
func RecordStoreLatency(op string, latencyMs float64) {
	if globalManager.enabled {
		globalManager.storeQueryLatency.WithLabelValues(op).Observe(latencyMs)
	}
}

// GetRegistry returns the service registry.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Handler serves the service registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}

// Since returns the elapsed milliseconds since start.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
