package middleware

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/auth-session-service/internal/logging"
)

// RequestID tags every request with a UUID in X-Request-ID, keeping an
// incoming value when present.
func RequestID() echo.MiddlewareFunc {
	return echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString})
}

// RequestLog writes one structured line per request. 5xx responses are logged
// at error level, 4xx at warn.
func RequestLog(log logging.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			args := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.String(),
				"ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				args = append(args, "err", v.Error.Error())
			}
			logAt(c.Request().Context(), log, v.Status)("request", args...)
			return nil
		},
	})
}

func logAt(ctx context.Context, log logging.Logger, status int) func(string, ...any) {
	var fn func(context.Context, string, ...any)
	switch {
	case status >= 500:
		fn = log.Error
	case status >= 400:
		fn = log.Warn
	default:
		fn = log.Info
	}
	return func(msg string, args ...any) { fn(ctx, msg, args...) }
}
