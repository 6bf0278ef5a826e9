package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/auth-session-service/internal/model"
	"github.com/iliyamo/auth-session-service/internal/repository"
	"github.com/iliyamo/auth-session-service/internal/utils"
)

// Profile reloads the caller's row so balance and timestamps are current;
// the cached projection does not carry them.
func (s *AuthService) Profile(ctx context.Context, u *model.User) (*model.User, error) {
	fresh, err := s.users.FindByID(ctx, u.ID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && fresh.IsDeleted) {
		return nil, ErrNotFound
	}
	return fresh, err
}

// UpdateProfile merges p into the caller's row and invalidates the cached
// record when anything changed.
func (s *AuthService) UpdateProfile(ctx context.Context, u *model.User, p model.ProfilePatch) (*model.User, error) {
	fields := []struct {
		name string
		v    *string
	}{{"first_name", p.FirstName}, {"last_name", p.LastName}}
	for _, f := range fields {
		if f.v == nil {
			continue
		}
		if name := strings.TrimSpace(*f.v); name != "" {
			if err := utils.ValidateName(name); err != nil {
				return nil, invalid(f.name, err)
			}
		}
	}

	var out *model.User
	err := s.users.InTx(ctx, func(ctx context.Context, st repository.UserStore) error {
		fresh, err := st.FindByID(ctx, u.ID)
		if err != nil {
			return err
		}
		if fresh.IsDeleted {
			return repository.ErrNotFound
		}
		if changed := model.MergeProfile(fresh, p); len(changed) > 0 {
			if err := st.UpdateProfile(ctx, fresh); err != nil {
				return err
			}
			s.log.Info(ctx, "profile updated", "user_id", fresh.ID, "fields", strings.Join(changed, ","))
		}
		out = fresh
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.sessions.InvalidateUser(ctx, out.Email); err != nil {
		return nil, fmt.Errorf("invalidate cached user: %w", err)
	}
	return out, nil
}
