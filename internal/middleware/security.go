package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders returns an Echo middleware that adds security headers
// to every response. Hop-by-hop filtering is not done here: the
// forwarding pipeline needs the inbound Connection header intact to
// derive its per-request exclusions, and strips on both legs itself.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Set before the handler runs: the proxy handler commits
			// the status while streaming, after which header writes
			// are no-ops.
			c.Response().Header().Set("X-Content-Type-Options", "nosniff")
			c.Response().Header().Set("X-Frame-Options", "DENY")

			return next(c)
		}
	}
}
