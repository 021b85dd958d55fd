package metrics

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

var (
	// defaultRegistry is the default Prometheus registry
	defaultRegistry = prometheus.DefaultRegisterer
)

// Config holds metrics configuration.
type Config struct {
	EnableSourceLabel bool
}

// Metrics holds all application metrics.
type Metrics struct {
	config                      Config
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDuration         *prometheus.HistogramVec
	httpRequestBytes            *prometheus.CounterVec
	fetchOperationsTotal        *prometheus.CounterVec
	fetchOperationDuration      *prometheus.HistogramVec
	fetchOperationErrors        *prometheus.CounterVec
	cacheDecisionsTotal         *prometheus.CounterVec
	cacheDecisionDuration       *prometheus.HistogramVec
	cacheDecisionErrors         *prometheus.CounterVec
	cacheDecisionBytes          *prometheus.CounterVec
	rotatedReads                *prometheus.CounterVec
	activeConnections           prometheus.Gauge
	goroutines                  prometheus.Gauge
	memoryAllocBytes            prometheus.Gauge
	memorySysBytes              prometheus.Gauge
	hardwareAccelerationEnabled *prometheus.GaugeVec
}

// NewMetrics creates a new metrics instance with default configuration.
func NewMetrics() *Metrics {
	return NewMetricsWithConfig(Config{EnableSourceLabel: true})
}

// NewMetricsWithConfig creates a new metrics instance with the provided configuration.
func NewMetricsWithConfig(cfg Config) *Metrics {
	return newMetricsWithRegistry(defaultRegistry, cfg)
}

// NewMetricsWithRegistry creates a new metrics instance with a custom registry.
// This is useful for testing to avoid metric registration conflicts.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetricsWithRegistry(reg, Config{EnableSourceLabel: true})
}

// newMetricsWithRegistry creates a new metrics instance with a custom registry (for testing).
func newMetricsWithRegistry(reg prometheus.Registerer, cfg Config) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		config: cfg,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		httpRequestBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_request_bytes_total",
				Help: "Total bytes transferred in HTTP requests",
			},
			[]string{"method", "path"},
		),
		fetchOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_operations_total",
				Help: "Total number of origin fetch operations",
			},
			[]string{"operation", "source"},
		),
		fetchOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fetch_operation_duration_seconds",
				Help:    "Origin fetch operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "source"},
		),
		fetchOperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_operation_errors_total",
				Help: "Total number of origin fetch operation errors",
			},
			[]string{"operation", "source", "error_type"},
		),
		cacheDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_decisions_total",
				Help: "Total number of cache decisions reached per entry",
			},
			[]string{"decision"}, // "hit", "miss", or "stale"
		),
		cacheDecisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cache_decision_duration_seconds",
				Help:    "Time spent resolving a cache decision, including any write-back",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"decision"},
		),
		cacheDecisionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_decision_errors_total",
				Help: "Total number of cache decision failures (fetch, encrypt, or store errors)",
			},
			[]string{"decision", "error_type"},
		),
		cacheDecisionBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_decision_bytes_total",
				Help: "Total payload bytes written to or read from the cache",
			},
			[]string{"decision"},
		),
		rotatedReads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kms_rotated_reads_total",
				Help: "Total number of decryption operations using rotated (non-active) key versions",
			},
			[]string{"key_version", "active_version"},
		),
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_connections",
				Help: "Number of active HTTP connections",
			},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "goroutines_total",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
		memorySysBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_sys_bytes",
				Help: "Total bytes of memory obtained from OS",
			},
		),
		hardwareAccelerationEnabled: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hardware_acceleration_enabled",
				Help: "Hardware acceleration status (1=enabled, 0=disabled)",
			},
			[]string{"type"},
		),
	}
}

// SetHardwareAccelerationStatus sets the hardware acceleration status metric.
func (m *Metrics) SetHardwareAccelerationStatus(accelType string, enabled bool) {
	val := 0.0
	if enabled {
		val = 1.0
	}
	m.hardwareAccelerationEnabled.WithLabelValues(accelType).Set(val)
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration, bytes int64) {
	label := sanitizePathLabel(path)
	labels := prometheus.Labels{"method": method, "path": label, "status": http.StatusText(status)}

	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.httpRequestsTotal.With(labels).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.httpRequestsTotal.With(labels).Inc()
		}

		if observer, ok := m.httpRequestDuration.With(labels).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.httpRequestDuration.With(labels).Observe(duration.Seconds())
		}
	} else {
		m.httpRequestsTotal.With(labels).Inc()
		m.httpRequestDuration.With(labels).Observe(duration.Seconds())
	}

	// No exemplars for byte counters usually
	m.httpRequestBytes.WithLabelValues(method, label).Add(float64(bytes))
}

// sanitizePathLabel reduces high-cardinality paths to stable labels.
// Examples:
// "/metrics" => "/metrics"
// "/bucket/key/long/path" => "/bucket/*"
func sanitizePathLabel(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	// Trim query if any (defensive; callers typically pass Path only)
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	// Split into segments
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segs) <= 1 {
		return "/" + segs[0]
	}
	return "/" + segs[0] + "/*"
}

// RecordFetchOperation records an origin fetch (HTTP or S3 GET) metric.
// source is the URL scheme ("http", "https", or "s3"), collapsed to "*"
// when per-source cardinality is disabled.
func (m *Metrics) RecordFetchOperation(ctx context.Context, operation, source string, duration time.Duration) {
	sourceLabel := source
	if !m.config.EnableSourceLabel {
		sourceLabel = "*"
	}

	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.fetchOperationsTotal.WithLabelValues(operation, sourceLabel).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.fetchOperationsTotal.WithLabelValues(operation, sourceLabel).Inc()
		}

		if observer, ok := m.fetchOperationDuration.WithLabelValues(operation, sourceLabel).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.fetchOperationDuration.WithLabelValues(operation, sourceLabel).Observe(duration.Seconds())
		}
	} else {
		m.fetchOperationsTotal.WithLabelValues(operation, sourceLabel).Inc()
		m.fetchOperationDuration.WithLabelValues(operation, sourceLabel).Observe(duration.Seconds())
	}
}

// RecordFetchError records an origin fetch error.
func (m *Metrics) RecordFetchError(ctx context.Context, operation, source, errorType string) {
	sourceLabel := source
	if !m.config.EnableSourceLabel {
		sourceLabel = "*"
	}

	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.fetchOperationErrors.WithLabelValues(operation, sourceLabel, errorType).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.fetchOperationErrors.WithLabelValues(operation, sourceLabel, errorType).Inc()
		}
	} else {
		m.fetchOperationErrors.WithLabelValues(operation, sourceLabel, errorType).Inc()
	}
}

// RecordCacheDecision records the outcome of the coordinator's per-entry
// cache decision (hit, miss, or stale), including how long resolving it
// took and how many payload bytes moved as a result.
func (m *Metrics) RecordCacheDecision(ctx context.Context, decision string, duration time.Duration, bytes int64) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.cacheDecisionsTotal.WithLabelValues(decision).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.cacheDecisionsTotal.WithLabelValues(decision).Inc()
		}

		if observer, ok := m.cacheDecisionDuration.WithLabelValues(decision).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.cacheDecisionDuration.WithLabelValues(decision).Observe(duration.Seconds())
		}
	} else {
		m.cacheDecisionsTotal.WithLabelValues(decision).Inc()
		m.cacheDecisionDuration.WithLabelValues(decision).Observe(duration.Seconds())
	}

	m.cacheDecisionBytes.WithLabelValues(decision).Add(float64(bytes))
}

// RecordCacheDecisionError records a failed cache decision (e.g. the
// origin fetch failed, encryption failed, or the store write failed).
func (m *Metrics) RecordCacheDecisionError(ctx context.Context, decision, errorType string) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.cacheDecisionErrors.WithLabelValues(decision, errorType).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.cacheDecisionErrors.WithLabelValues(decision, errorType).Inc()
		}
	} else {
		m.cacheDecisionErrors.WithLabelValues(decision, errorType).Inc()
	}
}

// RecordRotatedRead records a decryption operation using a rotated (non-active) key version.
func (m *Metrics) RecordRotatedRead(ctx context.Context, keyVersion, activeVersion int) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.rotatedReads.WithLabelValues(strconv.Itoa(keyVersion), strconv.Itoa(activeVersion)).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.rotatedReads.WithLabelValues(strconv.Itoa(keyVersion), strconv.Itoa(activeVersion)).Inc()
		}
	} else {
		m.rotatedReads.WithLabelValues(
			strconv.Itoa(keyVersion),
			strconv.Itoa(activeVersion),
		).Inc()
	}
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
	m.memorySysBytes.Set(float64(memStats.Sys))
}

// IncrementActiveConnections increments the active connections counter.
func (m *Metrics) IncrementActiveConnections() {
	m.activeConnections.Inc()
}

// DecrementActiveConnections decrements the active connections counter.
func (m *Metrics) DecrementActiveConnections() {
	m.activeConnections.Dec()
}

// StartSystemMetricsCollector starts a goroutine that periodically updates system metrics.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler for metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// getExemplar extracts trace ID from context and returns prometheus Labels for exemplar.
func getExemplar(ctx context.Context) prometheus.Labels {
	if ctx == nil {
		return nil
	}
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if spanContext.IsValid() {
		return prometheus.Labels{"trace_id": spanContext.TraceID().String()}
	}
	return nil
}
