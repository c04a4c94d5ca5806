package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics instruments the trigger API. Pipeline metrics can share
// its registry so one scrape covers both.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	inFlight   prometheus.Gauge
	intakeRuns *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &HTTPServerMetrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "accruals",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Trigger API requests by route and status code.",
		}, []string{"service", "method", "path", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "accruals",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Trigger API latency. Intake requests include classification time.",
			Buckets:   []float64{0.01, 0.05, 0.25, 1, 5, 15, 60, 180, 600},
		}, []string{"service", "method", "path"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "accruals",
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Trigger API requests being served.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		intakeRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "accruals",
			Subsystem: "intake",
			Name:      "runs_total",
			Help:      "Intake runs triggered over HTTP by result.",
		}, []string{"service", "result"}),
	}
}

// Registry lets pipeline metrics share the API scrape endpoint.
func (m *HTTPServerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := normalizePath(r.URL.Path)
		m.requests.WithLabelValues(service, r.Method, path, strconv.Itoa(sw.status)).Inc()
		m.latency.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordIntakeRun counts a finished intake run as completed, cancelled or error.
func (m *HTTPServerMetrics) RecordIntakeRun(service string, cancelled bool, err error) {
	result := "completed"
	if err != nil {
		result = "error"
	} else if cancelled {
		result = "cancelled"
	}
	m.intakeRuns.WithLabelValues(service, result).Inc()
}

// normalizePath keeps company names out of label values.
func normalizePath(path string) string {
	const prefix = "/v1/companies/"
	rest, ok := strings.CutPrefix(path, prefix)
	if !ok {
		return path
	}
	if _, tail, found := strings.Cut(rest, "/"); found {
		return prefix + "{company}/" + tail
	}
	return prefix + "{company}"
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
