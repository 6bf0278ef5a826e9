package repository

import (
	"context"
	"time"

	"github.com/iliyamo/auth-session-service/internal/model"
)

// UserStore is the persistence port used by the auth service.
type UserStore interface {
	// FindByEmail returns the live account for email, or the most recent
	// soft-deleted one when no live account exists.
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id uint64) (*model.User, error)
	// ExistsActive reports whether a non-deleted account owns email.
	ExistsActive(ctx context.Context, email string) (bool, error)
	// Create inserts u and fills in its ID and timestamps.
	Create(ctx context.Context, u *model.User) error
	// RecordLogin adds bonus to the balance and touches last_activity_at.
	RecordLogin(ctx context.Context, id uint64, bonus int64, at time.Time) error
	UpdatePassword(ctx context.Context, id uint64, hash string) error
	// UpdateProfile persists the name columns of u.
	UpdateProfile(ctx context.Context, u *model.User) error
}

// TxUserStore is a UserStore that can scope several calls in one transaction.
type TxUserStore interface {
	UserStore
	InTx(ctx context.Context, fn func(ctx context.Context, s UserStore) error) error
}
