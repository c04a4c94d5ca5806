package resilience

import (
	"context"
	"errors"

	"github.com/kirillkom/accruals-router/internal/core/domain"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

var (
	// Transient failures are retried and count against the breaker.
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	// Flaky failures are retried but leave the breaker alone.
	Flaky = ErrorClassification{Retryable: true}
	// Permanent failures return at once and count against the breaker.
	Permanent = ErrorClassification{RecordFailure: true}
	// Rejected requests return at once; the dependency itself is healthy.
	Rejected = ErrorClassification{}
)

// Common classifies the failures every dependency shares: caller
// cancellation and an open breaker. ok is false for anything else.
func Common(err error) (class ErrorClassification, ok bool) {
	switch {
	case err == nil:
		return Rejected, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Rejected, true
	case IsCircuitOpen(err):
		return Transient, true
	default:
		return ErrorClassification{}, false
	}
}

// WrapTemporary marks retryable failures, including an open breaker, as
// domain.ErrTemporary so callers can tell an outage from a bad request.
func WrapTemporary(operation string, err error, classify ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if IsCircuitOpen(err) || (classify != nil && classify(err).Retryable) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
