package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-session-service/internal/model"
	"github.com/iliyamo/auth-session-service/internal/service"
)

// IdentityResolver turns a bearer token into a user.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, raw string) (*model.User, error)
}

// JWTAuth resolves the bearer token through r and stores the user and the
// raw token in the context. Blacklisted, expired or malformed tokens and
// unknown users are rejected with 401.
func JWTAuth(r IdentityResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Pull the token out of "Authorization: Bearer <token>".
			raw, ok := BearerToken(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			// Blacklist, signature, expiry and user lookup all happen here.
			u, err := r.ResolveIdentity(c.Request().Context(), raw)
			if err != nil {
				switch {
				case errors.Is(err, service.ErrTokenBlacklisted),
					errors.Is(err, service.ErrTokenExpired),
					errors.Is(err, service.ErrTokenMalformed),
					errors.Is(err, service.ErrInvalidToken),
					errors.Is(err, service.ErrUnauthorized):
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
				default:
					// store or cache failure: let Echo answer 500
					return err
				}
			}
			c.Set(ctxUserKey, u)    // read back with CurrentUser
			c.Set(ctxTokenKey, raw) // handlers such as logout need the raw token
			return next(c)
		}
	}
}
