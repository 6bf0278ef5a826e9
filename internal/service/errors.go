package service

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateAccount   = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountDeleted     = errors.New("this account has been deleted")
	ErrAccountBlocked     = errors.New("your account is blocked")
	ErrTooManyAttempts    = errors.New("too many failed login attempts, try again later")

	ErrTokenExpired       = errors.New("token expired")
	ErrTokenMalformed     = errors.New("invalid token")
	ErrTokenBlacklisted   = errors.New("token is blacklisted")
	ErrAlreadyBlacklisted = errors.New("token is already blacklisted")
	ErrInvalidToken       = errors.New("invalid token payload")

	ErrUnauthorized  = errors.New("user not found")
	ErrNotAuthorized = errors.New("not found")
	ErrNotFound      = errors.New("user not found")
)

// ValidationError reports input that failed a policy check. Field names the
// offending input.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}
