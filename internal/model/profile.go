package model

import "strings"

// ProfilePatch carries the optional profile fields a user may change about
// themselves. A nil field is left untouched; a field holding an empty (or
// whitespace-only) string clears the column.
type ProfilePatch struct {
	FirstName *string
	LastName  *string
}

// Empty reports whether the patch would change nothing.
func (p ProfilePatch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil
}

// MergeProfile applies p to u field by field and returns the names of the
// columns whose value actually changed. Validation is the caller's job.
func MergeProfile(u *User, p ProfilePatch) []string {
	var changed []string
	if p.FirstName != nil {
		if next := normalizeName(*p.FirstName); !sameName(u.FirstName, next) {
			u.FirstName = next
			changed = append(changed, "first_name")
		}
	}
	if p.LastName != nil {
		if next := normalizeName(*p.LastName); !sameName(u.LastName, next) {
			u.LastName = next
			changed = append(changed, "last_name")
		}
	}
	return changed
}

// normalizeName trims the value and maps blank input to nil.
func normalizeName(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func sameName(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
