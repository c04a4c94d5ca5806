package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/accruals-router/internal/infrastructure/resilience"
)

// classifyNATSError retries while the connection is down. Oversized or
// misaddressed messages fail at once.
func classifyNATSError(err error) resilience.ErrorClassification {
	if class, ok := resilience.Common(err); ok {
		return class
	}
	for _, target := range []error{nats.ErrMaxPayload, nats.ErrBadSubject, nats.ErrInvalidMsg} {
		if errors.Is(err, target) {
			return resilience.Rejected
		}
	}
	for _, target := range []error{nats.ErrNoServers, nats.ErrTimeout, nats.ErrConnectionClosed, nats.ErrDisconnected, nats.ErrConnectionReconnecting} {
		if errors.Is(err, target) {
			return resilience.Transient
		}
	}
	return resilience.Permanent
}
