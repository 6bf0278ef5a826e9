package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestMergeProfile(t *testing.T) {
	tests := []struct {
		name        string
		first, last *string
		patch       ProfilePatch
		wantChanged []string
		wantFirst   *string
		wantLast    *string
	}{
		{
			name:        "empty patch changes nothing",
			first:       strPtr("Ann"),
			patch:       ProfilePatch{},
			wantChanged: nil,
			wantFirst:   strPtr("Ann"),
		},
		{
			name:        "sets both names",
			patch:       ProfilePatch{FirstName: strPtr("Ann"), LastName: strPtr("Lee")},
			wantChanged: []string{"first_name", "last_name"},
			wantFirst:   strPtr("Ann"),
			wantLast:    strPtr("Lee"),
		},
		{
			name:        "blank clears the column",
			first:       strPtr("Ann"),
			last:        strPtr("Lee"),
			patch:       ProfilePatch{LastName: strPtr("   ")},
			wantChanged: []string{"last_name"},
			wantFirst:   strPtr("Ann"),
		},
		{
			name:        "same value is not reported",
			first:       strPtr("Ann"),
			patch:       ProfilePatch{FirstName: strPtr(" Ann ")},
			wantChanged: nil,
			wantFirst:   strPtr("Ann"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u := &User{FirstName: tc.first, LastName: tc.last}
			changed := MergeProfile(u, tc.patch)
			assert.Equal(t, tc.wantChanged, changed)
			assert.Equal(t, tc.wantFirst, u.FirstName)
			assert.Equal(t, tc.wantLast, u.LastName)
		})
	}
}

func TestUserHelpers(t *testing.T) {
	u := &User{FirstName: strPtr("Ann"), Role: RoleUser}
	require.False(t, u.HasFullName())
	u.LastName = strPtr("Lee")
	require.True(t, u.HasFullName())
	require.False(t, u.IsAdmin())

	assert.Equal(t, "a@example.com", NormalizeEmail("  A@Example.COM "))
}
