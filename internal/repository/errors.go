// Package repository holds the user store. The MySQL implementation is the
// production backend; MemoryUserRepo backs local runs and tests.
//
// Store failures are reported with the sentinels below so the service layer
// can tell an expected condition from an infrastructure error.
package repository

import "errors"

// ErrEmailExists is returned when a live account already owns the email.
var ErrEmailExists = errors.New("email already exists")

// ErrNotFound is returned when no row matches the lookup or update.
var ErrNotFound = errors.New("user not found")

// ErrConflict is returned when the database aborted the statement because of
// a concurrent writer (deadlock or lock wait timeout). The caller may retry.
var ErrConflict = errors.New("conflict")
