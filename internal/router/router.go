package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/session-authority/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/session-authority/internal/middleware" // import middleware for rate limiting and the admin guard
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Load balancers and monitoring poll this to verify the service is up.
	e.GET("/healthz", handler.Health)
}

// RegisterTokens registers the issuance and verification surface. The
// verify endpoint carries the rate limiter since every protected
// request in a deployment funnels through it; issuance shares the
// same budget to blunt token-minting floods.
func RegisterTokens(e *echo.Echo, t *handler.TokenHandler, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/tokens", limiter)
	// Mint a token for a username/device/expiration triple.
	g.POST("", t.Issue)
	// Bind a device to a token issued without one.
	g.POST("/register-device", t.RegisterDevice)
	// The read path: Authorization: Bearer plus the calling device id.
	g.POST("/verify", t.Verify)
}

// RegisterRevocation registers the admin surface behind the admin-key
// guard: hard delete, force logout everywhere, expiration extension.
func RegisterRevocation(e *echo.Echo, r *handler.RevocationHandler, verify middleware.AdminKeyVerifier) {
	g := e.Group("/v1", middleware.RequireAdminKey(verify))
	g.DELETE("/tokens", r.Revoke)
	g.POST("/users/:username/force-logout", r.ForceLogout)
	g.POST("/tokens/extend", r.Extend)
}

// RegisterDevices mounts the websocket endpoint devices use to hear
// about forced logouts without polling.
func RegisterDevices(e *echo.Echo, g *handler.DeviceGateway) {
	e.GET("/v1/devices/ws", g.Serve)
}
