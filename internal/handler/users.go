package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-session-service/internal/logging"
	"github.com/iliyamo/auth-session-service/internal/middleware"
	"github.com/iliyamo/auth-session-service/internal/model"
	"github.com/iliyamo/auth-session-service/internal/service"
)

// UserHandler serves the caller's own profile.
type UserHandler struct {
	Svc *service.AuthService
	Log logging.Logger
}

func NewUserHandler(svc *service.AuthService, log logging.Logger) *UserHandler {
	return &UserHandler{Svc: svc, Log: log}
}

type profileResp struct {
	ID             uint64    `json:"id"`
	Email          string    `json:"email"`
	FirstName      *string   `json:"first_name"`
	LastName       *string   `json:"last_name"`
	Role           string    `json:"role"`
	Balance        int64     `json:"balance"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

func newProfileResp(u *model.User) profileResp {
	return profileResp{
		ID:             u.ID,
		Email:          u.Email,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Role:           u.Role,
		Balance:        u.Balance,
		CreatedAt:      u.CreatedAt,
		LastActivityAt: u.LastActivityAt,
	}
}

// patchProfileReq distinguishes an absent field (nil) from an empty one,
// which clears the column.
type patchProfileReq struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// Me returns the authenticated user's profile.
func (h *UserHandler) Me(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	// the cached identity lacks balance and timestamps; read the row
	fresh, err := h.Svc.Profile(ctx, u)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, newProfileResp(fresh))
}

// UpdateMe applies a partial profile update.
func (h *UserHandler) UpdateMe(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req patchProfileReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	patch := model.ProfilePatch{FirstName: req.FirstName, LastName: req.LastName}
	if patch.Empty() { // {} or only unknown fields
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "nothing to update"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	// validates, merges, persists and drops the cached record
	out, err := h.Svc.UpdateProfile(ctx, u, patch)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, newProfileResp(out))
}
