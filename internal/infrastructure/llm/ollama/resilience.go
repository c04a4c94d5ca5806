package ollama

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/accruals-router/internal/core/domain"
	"github.com/kirillkom/accruals-router/internal/infrastructure/resilience"
)

// HTTPStatusError is a non-2xx answer from the classifier endpoint.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, body)
}

// classifyOllamaError retries overload and gateway statuses and network
// errors. A malformed answer is asked again but does not count as an outage.
func classifyOllamaError(err error) resilience.ErrorClassification {
	if class, ok := resilience.Common(err); ok {
		return class
	}
	var statusErr *HTTPStatusError
	switch {
	case errors.As(err, &statusErr):
		if retryableStatus[statusErr.StatusCode] {
			return resilience.Transient
		}
		return resilience.Rejected
	case errors.Is(err, errMalformedResponse):
		return resilience.Flaky
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Transient
	}
	return resilience.Permanent
}

var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// classifierError maps a failed classification onto the domain kinds the
// classification adapter reports: unusable answers are validation failures,
// outages are temporary.
func classifierError(operation string, err error) error {
	if errors.Is(err, errMalformedResponse) {
		return domain.WrapError(domain.ErrValidation, operation, err)
	}
	return resilience.WrapTemporary(operation, err, classifyOllamaError)
}
