// Package router wires handlers and middleware onto the Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/auth-session-service/internal/handler"
	"github.com/iliyamo/auth-session-service/internal/logging"
	"github.com/iliyamo/auth-session-service/internal/middleware"
	"github.com/iliyamo/auth-session-service/internal/model"
)

// New returns an Echo instance with the shared middleware stack. With
// trustProxy false the client IP is the TCP peer address, so X-Forwarded-For
// cannot be used to dodge the login throttle.
func New(log logging.Logger, trustProxy bool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if trustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLog(log))
	return e
}

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, health map[string]handler.Pinger) {
	e.GET("/healthz", handler.Health(health))
}

// RegisterAuth registers the /api/v1/auth routes. limiter guards every route
// in the group; change_password additionally needs a resolvable token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, gate middleware.IdentityResolver, limiter echo.MiddlewareFunc) {
	g := e.Group("/api/v1/auth", limiter)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/logout", a.Logout)
	g.POST("/refresh", a.Refresh)
	g.POST("/change_password", a.ChangePassword, middleware.JWTAuth(gate))
}

// RegisterUsers registers the profile routes for role user.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, gate middleware.IdentityResolver) {
	g := e.Group("/api/v1/users", middleware.JWTAuth(gate), middleware.RequireRole(model.RoleUser))
	g.GET("/profile/me", u.Me)
	g.PATCH("/profile/me", u.UpdateMe)
}
