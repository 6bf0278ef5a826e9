package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-session-service/internal/logging"
	"github.com/iliyamo/auth-session-service/internal/middleware"
	"github.com/iliyamo/auth-session-service/internal/service"
)

// requestTimeout bounds the store and cache work of a single request.
const requestTimeout = 5 * time.Second

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Svc *service.AuthService
	Log logging.Logger
}

func NewAuthHandler(svc *service.AuthService, log logging.Logger) *AuthHandler {
	return &AuthHandler{Svc: svc, Log: log}
}

// ----- DTOs -----
// Bodies are accepted as JSON or form-encoded.

type registerReq struct {
	Email     string `json:"email" form:"email"`
	Password  string `json:"password" form:"password"`
	FirstName string `json:"first_name" form:"first_name"`
	LastName  string `json:"last_name" form:"last_name"`
}

type loginReq struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password" form:"current_password"`
	NewPassword     string `json:"new_password" form:"new_password"`
}

type tokenResp struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

func newTokenResp(p *service.TokenPair) tokenResp {
	return tokenResp{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, TokenType: "Bearer"}
}

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// Register creates an account. It does not log the user in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil { // JSON or form body
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "email/password required"})
	}

	// bound the store and cache calls
	ctx, cancel := withTimeout(c)
	defer cancel()

	// policy checks happen in the service and come back as 422
	if _, err := h.Svc.Register(ctx, service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"detail": "User successfully registered"})
}

// Login verifies credentials and returns a new access/refresh pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	// RealIP is the peer address unless TRUST_PROXY is set (see router.New)
	pair, err := h.Svc.Login(ctx, req.Email, req.Password, c.RealIP())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, newTokenResp(pair))
}

// Logout blacklists the presented bearer token. Any token type is accepted,
// expired or not.
func (h *AuthHandler) Logout(c echo.Context) error {
	// no JWTAuth in front: an expired token may still be logged out
	raw, ok := middleware.BearerToken(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Svc.Logout(ctx, raw); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"msg": "Logged out successfully"})
}

// Refresh exchanges the bearer token for the other half of a pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw, ok := middleware.BearerToken(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	pair, err := h.Svc.Refresh(ctx, raw)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	// one of the two tokens is the one presented
	return c.JSON(http.StatusOK, newTokenResp(pair))
}

// ChangePassword requires JWTAuth in front of it.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	u, ok := middleware.CurrentUser(c) // set by JWTAuth
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "current_password/new_password required"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Svc.ChangePassword(ctx, u, req.CurrentPassword, req.NewPassword); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"msg": "Password successfully changed"})
}
