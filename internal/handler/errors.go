package handler

import (
	"errors"
	"net/http"

	"backend/internal/service"
)

// statusFor maps service errors onto HTTP statuses. Authorization failures
// are 403, lifecycle conflicts (bad transition, duplicate conversion,
// shortage) are 409, missing documents 404, everything else 400.
func statusFor(err error) int {
	var authErr *service.AuthorizationError
	var transitionErr *service.InvalidTransitionError
	var dupErr *service.DuplicateConversionError

	switch {
	case errors.As(err, &authErr):
		return http.StatusForbidden
	case errors.As(err, &transitionErr), errors.As(err, &dupErr):
		return http.StatusConflict
	case errors.Is(err, service.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}
