package service

import (
	"context"
	"errors"

	"github.com/iliyamo/auth-session-service/internal/model"
	"github.com/iliyamo/auth-session-service/internal/repository"
)

// ResolveIdentity turns a bearer token into the user it names. Both token
// types are accepted. Soft-deleted accounts resolve to ErrUnauthorized.
func (s *AuthService) ResolveIdentity(ctx context.Context, raw string) (*model.User, error) {
	claims, err := s.checkToken(ctx, raw)
	if err != nil {
		return nil, err
	}

	if u := s.cachedUser(ctx, claims.Email); u != nil && !u.IsDeleted {
		return u, nil
	}

	u, err := s.users.FindByEmail(ctx, claims.Email)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && u.IsDeleted) {
		s.log.Warn(ctx, "token resolves to no live user", "email", claims.Email)
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if err := s.sessions.SetUser(ctx, u); err != nil {
		s.log.Warn(ctx, "user cache write failed", "email", u.Email, "err", err)
	}
	return u, nil
}

// RequireRole returns u when its role is one of roles. Callers report the
// failure as not found so the route's existence is not disclosed.
func RequireRole(u *model.User, roles ...string) (*model.User, error) {
	if u == nil {
		return nil, ErrUnauthorized
	}
	for _, r := range roles {
		if u.Role == r {
			return u, nil
		}
	}
	return nil, ErrNotAuthorized
}
