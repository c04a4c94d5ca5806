package httpadapter

import (
	"net/http"

	"github.com/kirillkom/accruals-router/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrValidation):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrDuplicate):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrLockTimeout):
		return http.StatusLocked
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrFolderMissing):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
