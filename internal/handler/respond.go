package handler

import (
	"errors"
	"net/http"

	"github.com/iliyamo/session-authority/internal/service"
)

// statusFor maps the authority's error taxonomy onto HTTP status
// codes. Unknown-token and bad-signature both answer 401 so the wire
// does not reveal whether a token ever existed; expired, revoked and
// mismatch stay distinguishable for clients that can react to them.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrMissingParameters),
		errors.Is(err, service.ErrInvalidExpiration):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrRevoked):
		return http.StatusForbidden
	case errors.Is(err, service.ErrDeviceMismatch):
		return http.StatusConflict
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// message strips wrapped detail: callers get the taxonomy kind, the
// logs get the rest.
func message(err error) string {
	for _, known := range []error{
		service.ErrMissingParameters, service.ErrInvalidExpiration,
		service.ErrInvalidToken, service.ErrNotFound, service.ErrExpired,
		service.ErrRevoked, service.ErrDeviceMismatch, service.ErrStoreUnavailable,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}
