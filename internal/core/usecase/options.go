package usecase

import (
	"log/slog"
	"time"

	"github.com/kirillkom/accruals-router/internal/core/domain"
	"github.com/kirillkom/accruals-router/internal/core/ports"
)

type settings struct {
	logger   *slog.Logger
	now      func() time.Time
	metrics  ports.PipelineMetrics
	idPrefix string
	rules    domain.Rules
}

// Option customizes a use case.
type Option func(*settings)

func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func WithMetrics(metrics ports.PipelineMetrics) Option {
	return func(s *settings) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

func WithIDPrefix(prefix string) Option {
	return func(s *settings) {
		if prefix != "" {
			s.idPrefix = prefix
		}
	}
}

func WithRules(rules domain.Rules) Option {
	return func(s *settings) {
		s.rules = rules
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		metrics:  noopMetrics{},
		idPrefix: "V",
		rules:    domain.DefaultRules(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

type noopMetrics struct{}

func (noopMetrics) ObserveIntake(domain.IntakeOutcome)                                      {}
func (noopMetrics) ObserveClassification(domain.ClassificationSource, domain.InvoiceStatus) {}
func (noopMetrics) ObserveTransition(domain.Transition, time.Duration, error)               {}
