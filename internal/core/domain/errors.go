package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrValidation       = errors.New("validation failed")
	ErrTemporary        = errors.New("temporary failure")
	ErrConsistency      = errors.New("log reconciliation failed")
	ErrLockTimeout      = errors.New("company lock unavailable")
	ErrDuplicate        = errors.New("duplicate document")
	ErrFolderMissing    = errors.New("folder not accessible")
	ErrUnauthorized     = errors.New("unauthorized")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ValidationError names the field that failed a rule check.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// OperationError carries the company and document an operation was acting on
// so the caller can retry it by hand.
type OperationError struct {
	Company       string
	CanonicalName string
	Operation     string
	Err           error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s (company=%q document=%q): %v", e.Operation, e.Company, e.CanonicalName, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

func NewOperationError(company, canonicalName, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Company: company, CanonicalName: canonicalName, Operation: operation, Err: err}
}
