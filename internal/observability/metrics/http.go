package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics holds the API server's request metrics plus the review
// pipeline counters. Each instance owns its registry so tests and multiple
// servers never collide on registration.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	documentsScoredTotal *prometheus.CounterVec
	documentsRoutedTotal *prometheus.CounterVec
	correctionsTotal     *prometheus.CounterVec
	escalationsTotal     *prometheus.CounterVec
	resolutionsTotal     *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqc",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqc",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docqc",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	documentsScoredTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqc",
			Subsystem: "pipeline",
			Name:      "documents_scored_total",
			Help:      "Total documents scored by confidence level.",
		},
		[]string{"service", "level"},
	)
	documentsRoutedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqc",
			Subsystem: "pipeline",
			Name:      "documents_routed_total",
			Help:      "Total documents routed by processing path.",
		},
		[]string{"service", "path"},
	)
	correctionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqc",
			Subsystem: "review",
			Name:      "corrections_total",
			Help:      "Total field corrections by correction type.",
		},
		[]string{"service", "type"},
	)
	escalationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqc",
			Subsystem: "review",
			Name:      "escalations_total",
			Help:      "Total escalations by reason.",
		},
		[]string{"service", "reason"},
	)
	resolutionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqc",
			Subsystem: "review",
			Name:      "resolutions_total",
			Help:      "Total escalation resolutions by decision.",
		},
		[]string{"service", "decision"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		documentsScoredTotal,
		documentsRoutedTotal,
		correctionsTotal,
		escalationsTotal,
		resolutionsTotal,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		documentsScoredTotal: documentsScoredTotal,
		documentsRoutedTotal: documentsRoutedTotal,
		correctionsTotal:     correctionsTotal,
		escalationsTotal:     escalationsTotal,
		resolutionsTotal:     resolutionsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses resource IDs so the path label stays low
// cardinality.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	case strings.HasPrefix(path, "/v1/escalations/"):
		return "/v1/escalations/{escalation_id}"
	case strings.HasPrefix(path, "/v1/rules/"):
		return "/v1/rules/{rule_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordDocumentScored(service, level string) {
	if level == "" {
		level = "unknown"
	}
	m.documentsScoredTotal.WithLabelValues(service, level).Inc()
}

func (m *HTTPServerMetrics) RecordDocumentRouted(service, path string) {
	if path == "" {
		path = "unknown"
	}
	m.documentsRoutedTotal.WithLabelValues(service, path).Inc()
}

func (m *HTTPServerMetrics) RecordCorrections(service, correctionType string, count int) {
	if count <= 0 {
		return
	}
	m.correctionsTotal.WithLabelValues(service, correctionType).Add(float64(count))
}

func (m *HTTPServerMetrics) RecordEscalation(service, reason string) {
	m.escalationsTotal.WithLabelValues(service, reason).Inc()
}

func (m *HTTPServerMetrics) RecordResolution(service, decision string) {
	m.resolutionsTotal.WithLabelValues(service, decision).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
