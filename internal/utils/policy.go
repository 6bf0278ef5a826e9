package utils

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrPasswordPolicy is returned for passwords that do not satisfy the
	// registration policy. The message is safe to show to clients.
	ErrPasswordPolicy = errors.New("password must be 8-24 characters long, contain digits, " +
		"lowercase and uppercase letters of any alphabet, " +
		"and special characters except for @, \", ', <, >, -")
	// ErrNamePolicy is returned for names containing non-alphabetic characters.
	ErrNamePolicy = errors.New("must only contain alphabetic characters")
)

const (
	minPasswordRunes = 8
	maxPasswordRunes = 24
	maxPasswordBytes = 72 // bcrypt input limit
	excludedSymbols  = "@\"'<>-"
)

var nameRe = regexp.MustCompile(`^[A-Za-z]+$`)

// ValidatePassword checks length (in characters, and in bytes against the
// bcrypt limit) and the four character classes. Any letter alphabet counts
// for the case classes.
func ValidatePassword(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < minPasswordRunes || n > maxPasswordRunes || len(pw) > maxPasswordBytes {
		return ErrPasswordPolicy
	}
	var lower, upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case isPolicySymbol(r):
			symbol = true
		}
	}
	if !lower || !upper || !digit || !symbol {
		return ErrPasswordPolicy
	}
	return nil
}

// isPolicySymbol matches anything that is not a word character, not
// whitespace and not one of the excluded symbols.
func isPolicySymbol(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
		return false
	}
	return !strings.ContainsRune(excludedSymbols, r)
}

// ValidateName accepts ASCII letters only. Callers skip empty names.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) {
		return ErrNamePolicy
	}
	return nil
}
