package middleware

// identity.go holds the context accessors shared by the auth middleware and
// the handlers.

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-session-service/internal/model"
)

const (
	ctxUserKey  = "user"
	ctxTokenKey = "token"
)

// BearerToken returns the raw token from an "Authorization: Bearer" header.
func BearerToken(c echo.Context) (string, bool) {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	raw := strings.TrimSpace(auth[len(prefix):])
	return raw, raw != ""
}

// CurrentUser returns the user resolved by JWTAuth.
func CurrentUser(c echo.Context) (*model.User, bool) {
	u, ok := c.Get(ctxUserKey).(*model.User)
	return u, ok && u != nil
}
