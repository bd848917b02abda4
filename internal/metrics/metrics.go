// Package metrics exposes Prometheus instrumentation for the simulation
// core: propagation throughput, threat score, tick timing, catalog sizes,
// HTTP traffic, and stream connections.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	propagationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xenonite_propagation_total",
			Help: "Total object propagations by category and result.",
		},
		[]string{"category", "result"},
	)

	propagationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xenonite_propagation_duration_seconds",
			Help:    "Batch propagation duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"category"},
	)

	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "xenonite_tick_duration_seconds",
			Help:    "Scheduler tick duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
		},
	)

	catalogObjects = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "xenonite_catalog_objects",
			Help: "Element sets currently loaded per category.",
		},
		[]string{"category"},
	)

	threatScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "xenonite_threat_score",
			Help: "Current collision threat score (0-100).",
		},
	)

	activeThreats = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "xenonite_threat_active_objects",
			Help: "Debris objects currently inside the danger radius.",
		},
	)

	timeMultiplier = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "xenonite_time_multiplier",
			Help: "Current simulation time acceleration factor.",
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xenonite_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xenonite_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	streamConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xenonite_stream_connections_total",
			Help: "SSE stream connect/disconnect events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "xenonite_streams_active",
			Help: "Currently connected SSE streams.",
		},
	)

	streamMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "xenonite_stream_messages_total",
			Help: "SSE messages sent.",
		},
	)

	streamBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "xenonite_stream_bytes_total",
			Help: "SSE payload bytes sent.",
		},
	)

	streamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xenonite_stream_errors_total",
			Help: "SSE stream errors by kind.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		propagationTotal,
		propagationDuration,
		tickDuration,
		catalogObjects,
		threatScore,
		activeThreats,
		timeMultiplier,
		httpRequestsTotal,
		httpDurationSeconds,
		streamConnections,
		streamsActive,
		streamMessages,
		streamBytes,
		streamErrors,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPropagation records one batch propagation for a category.
func RecordPropagation(category string, d time.Duration, success, failed int) {
	propagationTotal.WithLabelValues(category, "ok").Add(float64(success))
	propagationTotal.WithLabelValues(category, "error").Add(float64(failed))
	propagationDuration.WithLabelValues(category).Observe(d.Seconds())
}

// ObserveTick records one scheduler tick duration.
func ObserveTick(d time.Duration) {
	tickDuration.Observe(d.Seconds())
}

// SetCatalogObjects publishes a category's catalog size.
func SetCatalogObjects(category string, n int) {
	catalogObjects.WithLabelValues(category).Set(float64(n))
}

// SetThreatScore publishes the current threat score and active threat count.
func SetThreatScore(score, active int) {
	threatScore.Set(float64(score))
	activeThreats.Set(float64(active))
}

// SetTimeMultiplier publishes the current time acceleration factor.
func SetTimeMultiplier(v float64) {
	timeMultiplier.Set(v)
}

// Stream connection lifecycle.

func IncStreamConnections(event string) { streamConnections.WithLabelValues(event).Inc() }
func IncStreamsActive()                 { streamsActive.Inc() }
func DecStreamsActive()                 { streamsActive.Dec() }
func IncStreamMessages()                { streamMessages.Inc() }
func AddStreamBytes(n int64)            { streamBytes.Add(float64(n)) }
func IncStreamErrors(kind string)       { streamErrors.WithLabelValues(kind).Inc() }

// knownRoutes are the exact paths served by the API.
var knownRoutes = map[string]bool{
	"/":                       true,
	"/healthz":                true,
	"/readyz":                 true,
	"/metrics":                true,
	"/api/v1/player":          true,
	"/api/v1/player/position": true,
	"/api/v1/player/orbit":    true,
	"/api/v1/threat":          true,
	"/api/v1/threat/history":  true,
	"/api/v1/conjunctions":    true,
	"/api/v1/sim/multiplier":  true,
	"/api/v1/sim/pause":       true,
	"/api/v1/sim/resume":      true,
	"/api/v1/sim/force-score": true,
	"/api/v1/stream/state":    true,
}

// normalizeRoute collapses parameterized paths to one label and unknown
// paths (bots, scanners) to "other" to keep metric cardinality bounded.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if strings.HasPrefix(path, "/api/v1/catalog/") {
		return "/api/v1/catalog/{category}"
	}
	if strings.HasPrefix(path, "/api/v1/positions/") {
		return "/api/v1/positions/{category}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards flushes so SSE streaming keeps working through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer for
// write-deadline control on long-lived streams.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
