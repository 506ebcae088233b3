package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/session-authority/internal/service"
)

// RevocationHandler exposes the admin surface: hard delete, logout
// everywhere, and expiration extension. All three routes sit behind
// the admin-key middleware.
type RevocationHandler struct {
	Auth *service.Authority
}

func NewRevocationHandler(a *service.Authority) *RevocationHandler {
	return &RevocationHandler{Auth: a}
}

type revokeReq struct {
	Token string `json:"token"`
}
type extendReq struct {
	Token      string `json:"token"`
	Expiration string `json:"expiration"`
}

// Revoke hard-deletes a session. Irreversible; 404 when the token is
// unknown (on this admin surface, unlike verify, absence is not a
// secret).
func (h *RevocationHandler) Revoke(c echo.Context) error {
	var req revokeReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "token required"})
	}
	if err := h.Auth.Delete(c.Request().Context(), req.Token); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"message": message(err)})
		}
		return c.JSON(statusFor(err), echo.Map{"message": message(err)})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// ForceLogout soft-revokes every session of a user and pushes
// forced-logout signals at their connected devices. Reports how many
// sessions were revoked; an unknown user simply reports zero.
func (h *RevocationHandler) ForceLogout(c echo.Context) error {
	username := c.Param("username")
	count, err := h.Auth.InvalidateAll(c.Request().Context(), username)
	if err != nil {
		return c.JSON(statusFor(err), echo.Map{"message": message(err)})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "count": count})
}

// Extend rewrites a session's expiry. The only way a dead session
// comes back; the new instant must be strictly in the future.
func (h *RevocationHandler) Extend(c echo.Context) error {
	var req extendReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
	}
	out, err := h.Auth.ExtendExpiration(c.Request().Context(), req.Token, req.Expiration)
	if err != nil {
		return c.JSON(statusFor(err), echo.Map{"message": message(err)})
	}
	return c.JSON(http.StatusOK, tokenResp{
		Token:      out.Token,
		Username:   out.Username,
		DeviceID:   out.DeviceID,
		Expiration: out.ExpiresAt,
	})
}
