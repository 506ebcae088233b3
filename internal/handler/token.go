package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/session-authority/internal/service"
)

// TokenHandler bundles the issuance and verification endpoints.
type TokenHandler struct {
	Auth *service.Authority
}

func NewTokenHandler(a *service.Authority) *TokenHandler { return &TokenHandler{Auth: a} }

// ----- DTOs -----

type issueReq struct {
	Username   string `json:"username"`
	DeviceID   string `json:"device_id"`
	Expiration string `json:"expiration"`
}
type registerDeviceReq struct {
	Token    string `json:"token"`
	DeviceID string `json:"device_id"`
}
type verifyReq struct {
	DeviceID string `json:"device_id"`
}
type tokenResp struct {
	Token      string    `json:"token"`
	Username   string    `json:"username"`
	DeviceID   string    `json:"device_id,omitempty"`
	Expiration time.Time `json:"expiration"`
}
type verifyResp struct {
	Valid      bool       `json:"valid"`
	Username   string     `json:"username,omitempty"`
	Expiration *time.Time `json:"expiration,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// bearerToken pulls the credential out of the Authorization header.
func bearerToken(c echo.Context) string {
	auth := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// Issue mints a token for a username/device/expiration triple and
// records the session. 201 with the token on success, 400 with a
// message on missing or malformed input.
func (h *TokenHandler) Issue(c echo.Context) error {
	var req issueReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
	}
	out, err := h.Auth.Issue(c.Request().Context(), req.Username, req.DeviceID, req.Expiration)
	if err != nil {
		return c.JSON(statusFor(err), echo.Map{"message": message(err)})
	}
	return c.JSON(http.StatusCreated, tokenResp{
		Token:      out.Token,
		Username:   out.Username,
		DeviceID:   out.DeviceID,
		Expiration: out.ExpiresAt,
	})
}

// RegisterDevice binds a device to a token issued without one. The
// token comes from the Authorization header or, failing that, the
// body.
func (h *TokenHandler) RegisterDevice(c echo.Context) error {
	var req registerDeviceReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
	}
	token := bearerToken(c)
	if token == "" {
		token = strings.TrimSpace(req.Token)
	}
	if err := h.Auth.RegisterDevice(c.Request().Context(), token, req.DeviceID); err != nil {
		return c.JSON(statusFor(err), echo.Map{"message": message(err)})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// Verify is the read path called on every protected request. The
// token travels in the Authorization header exactly as protected
// endpoints would receive it; the calling device identifies itself in
// the body, an X-Device-ID header or a query parameter. Failures
// answer {valid:false, message} under a status that distinguishes
// unauthenticated, expired, revoked and mismatch.
func (h *TokenHandler) Verify(c echo.Context) error {
	token := bearerToken(c)
	// No credential at all is unauthenticated, same as a forged one.
	if token == "" {
		return c.JSON(statusFor(service.ErrInvalidToken),
			verifyResp{Valid: false, Message: message(service.ErrInvalidToken)})
	}

	var req verifyReq
	_ = c.Bind(&req) // device may arrive via header or query instead
	device := strings.TrimSpace(req.DeviceID)
	if device == "" {
		device = c.Request().Header.Get("X-Device-ID")
	}
	if device == "" {
		device = c.QueryParam("device_id")
	}

	res, err := h.Auth.Verify(c.Request().Context(), token, device)
	if err != nil {
		return c.JSON(statusFor(err), verifyResp{Valid: false, Message: message(err)})
	}
	return c.JSON(http.StatusOK, verifyResp{
		Valid:      true,
		Username:   res.Username,
		Expiration: &res.ExpiresAt,
	})
}
