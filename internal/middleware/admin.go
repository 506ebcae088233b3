package middleware

// admin.go guards the revocation surface. Deleting tokens, forcing a
// user out everywhere and extending expirations are admin/owner
// actions; callers prove themselves with the deployment's admin key,
// which is kept in memory only as a bcrypt hash.

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// AdminKeyVerifier reports whether a presented key matches the
// configured admin credential. utils.VerifyAdminKey curried over the
// startup hash satisfies it.
type AdminKeyVerifier func(presented string) bool

// RequireAdminKey rejects requests that do not carry the admin key in
// the X-Admin-Key header (or an "Admin" bearer scheme). The response
// does not distinguish a missing key from a wrong one.
func RequireAdminKey(verify AdminKeyVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get("X-Admin-Key")
			if key == "" {
				if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Admin ") {
					key = strings.TrimPrefix(auth, "Admin ")
				}
			}
			if key == "" || !verify(key) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "admin key required"})
			}
			return next(c)
		}
	}
}
