package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger checks one dependency, e.g. db.PingContext.
type Pinger func(ctx context.Context) error

// Health is used by load balancers to check liveness. Every dependency
// must answer within a second; the first failure is reported with 503.
func Health(deps map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second)
		defer cancel()
		for name, ping := range deps {
			if err := ping(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": name + " unavailable"})
			}
		}
		return c.String(http.StatusOK, "ok")
	}
}
