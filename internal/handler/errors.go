package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-session-service/internal/logging"
	"github.com/iliyamo/auth-session-service/internal/service"
)

// statusFor maps service errors to HTTP status codes. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrDuplicateAccount):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAccountBlocked),
		errors.Is(err, service.ErrTooManyAttempts):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountDeleted),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrTokenMalformed),
		errors.Is(err, service.ErrTokenBlacklisted),
		errors.Is(err, service.ErrAlreadyBlacklisted),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotAuthorized),
		errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeError(c echo.Context, log logging.Logger, err error) error {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": ve.Err.Error(), "field": ve.Field})
	}
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Error(c.Request().Context(), "request failed", "path", c.Path(), "err", err)
		return c.JSON(code, echo.Map{"error": "internal server error"})
	}
	return c.JSON(code, echo.Map{"error": err.Error()})
}
