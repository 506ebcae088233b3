package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/session-authority/internal/service"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrMissingParameters, http.StatusBadRequest},
		{service.ErrInvalidExpiration, http.StatusBadRequest},
		{service.ErrInvalidToken, http.StatusUnauthorized},
		{service.ErrNotFound, http.StatusUnauthorized},
		{service.ErrExpired, http.StatusGone},
		{service.ErrRevoked, http.StatusForbidden},
		{service.ErrDeviceMismatch, http.StatusConflict},
		{service.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("something else"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}

	// Wrapped errors map the same as their sentinels.
	wrapped := fmt.Errorf("%w: dial tcp refused", service.ErrStoreUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(wrapped))
}

func TestMessageStripsDetail(t *testing.T) {
	wrapped := fmt.Errorf("%w: dial tcp refused", service.ErrStoreUnavailable)
	assert.Equal(t, service.ErrStoreUnavailable.Error(), message(wrapped))
	assert.Equal(t, "internal error", message(fmt.Errorf("boom")))
}
