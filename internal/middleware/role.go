package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-session-service/internal/service"
)

// RequireRole lets the request through only when the user resolved by
// JWTAuth has one of roles. Anything else gets 404 so callers cannot probe
// which routes exist for other roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A missing user fails the check as well.
			u, _ := CurrentUser(c)
			if _, err := service.RequireRole(u, roles...); err != nil {
				// same body as an unknown route
				return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
			}
			// Otherwise call the next handler in the chain
			return next(c)
		}
	}
}
