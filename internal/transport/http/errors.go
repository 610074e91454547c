package http

import (
	"errors"
	"net/http"

	"github.com/cwrk-planet/plan-chat/internal/domain"
	"github.com/cwrk-planet/plan-chat/internal/postgres"
)

// ToHTTP maps a service error to a status and an error code.
func ToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrPlanNotFound):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, postgres.ErrInvalidCursor),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrMessageTooLong):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
