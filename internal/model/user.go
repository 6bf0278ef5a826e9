package model

import (
	"strings"
	"time"
)

// Role names stored in users.role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an application user record as stored in the
// `users` table. Each field corresponds to a column in the
// database. The json tags are omitted here because these structs
// are primarily used internally by the repository and service layers;
// handlers define separate response types.
//
// Fields:
//
//	ID             – primary key identifier of the user.
//	FirstName      – optional given name (alphabetic only).
//	LastName       – optional family name (alphabetic only).
//	Email          – email address, unique among non-deleted users.
//	PasswordHash   – bcrypt hashed password.
//	Role           – RoleUser or RoleAdmin.
//	Balance        – non-negative bonus balance, meaningless for admins.
//	IsBlocked      – account blocked by an administrator.
//	IsDeleted      – soft-delete flag.
//	CreatedAt      – timestamp of creation.
//	UpdatedAt      – timestamp of last update.
//	LastActivityAt – timestamp of the last successful login.
type User struct {
	ID             uint64    // users.id
	FirstName      *string   // users.first_name (nullable)
	LastName       *string   // users.last_name (nullable)
	Email          string    // users.email
	PasswordHash   string    // users.password_hash
	Role           string    // users.role
	Balance        int64     // users.balance
	IsBlocked      bool      // users.is_blocked
	IsDeleted      bool      // users.is_deleted
	CreatedAt      time.Time // users.created_at
	UpdatedAt      time.Time // users.updated_at
	LastActivityAt time.Time // users.last_activity_at
}

// HasFullName reports whether both name columns are set and non-empty.
func (u *User) HasFullName() bool {
	return u.FirstName != nil && *u.FirstName != "" && u.LastName != nil && *u.LastName != ""
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// NormalizeEmail lower-cases and trims an email so lookups and cache keys agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
