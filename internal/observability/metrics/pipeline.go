package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/accruals-router/internal/core/domain"
)

// PipelineMetrics observes intake decisions, classifier answers and lifecycle
// transitions.
type PipelineMetrics struct {
	registry *prometheus.Registry
	service  string

	intakeTotal         *prometheus.CounterVec
	classificationTotal *prometheus.CounterVec
	transitionTotal     *prometheus.CounterVec
	transitionDuration  *prometheus.HistogramVec
}

// NewPipelineMetrics registers on registry, or on a fresh one when nil.
func NewPipelineMetrics(service string, registry *prometheus.Registry) *PipelineMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	intakeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "accruals",
			Subsystem: "intake",
			Name:      "attachments_total",
			Help:      "Attachments seen by intake runs by outcome.",
		},
		[]string{"service", "outcome"},
	)
	classificationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "accruals",
			Subsystem: "classifier",
			Name:      "classifications_total",
			Help:      "Validated classifications by source and invoice status.",
		},
		[]string{"service", "source", "status"},
	)
	transitionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "accruals",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions by result.",
		},
		[]string{"service", "transition", "result"},
	)
	transitionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "accruals",
			Subsystem: "lifecycle",
			Name:      "transition_duration_seconds",
			Help:      "Lifecycle transition duration in seconds, lock wait included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"service", "transition"},
	)

	registry.MustRegister(intakeTotal, classificationTotal, transitionTotal, transitionDuration)

	return &PipelineMetrics{
		registry:            registry,
		service:             service,
		intakeTotal:         intakeTotal,
		classificationTotal: classificationTotal,
		transitionTotal:     transitionTotal,
		transitionDuration:  transitionDuration,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) ObserveIntake(outcome domain.IntakeOutcome) {
	m.intakeTotal.WithLabelValues(m.service, string(outcome)).Inc()
}

func (m *PipelineMetrics) ObserveClassification(source domain.ClassificationSource, status domain.InvoiceStatus) {
	m.classificationTotal.WithLabelValues(m.service, string(source), string(status)).Inc()
}

func (m *PipelineMetrics) ObserveTransition(transition domain.Transition, duration time.Duration, err error) {
	name := string(transition)
	if name == "" {
		name = "unknown"
	}
	m.transitionTotal.WithLabelValues(m.service, name, transitionResult(err)).Inc()
	m.transitionDuration.WithLabelValues(m.service, name).Observe(duration.Seconds())
}

func transitionResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrConsistency):
		return "inconsistent"
	case errors.Is(err, domain.ErrDocumentNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrLockTimeout):
		return "lock_timeout"
	default:
		return "error"
	}
}
