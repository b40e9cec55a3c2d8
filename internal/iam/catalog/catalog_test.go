// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/adminkit/internal/iam/catalog"
)

/*
TestCatalog_Closure verifies that every grouped permission is valid and that
unknown strings are rejected.
*/
func TestCatalog_Closure(t *testing.T) {
	for _, group := range catalog.Grouped() {
		require.NotEmpty(t, group.Permissions, "category %q has no permissions", group.Category)
		for _, permission := range group.Permissions {
			assert.True(t, catalog.Valid(permission), "permission %q should be in the registry", permission)
		}
	}

	assert.False(t, catalog.Valid("users.teleport"))
	assert.False(t, catalog.Valid(""))
	assert.False(t, catalog.Valid("USERS.VIEW"), "catalog values are exact-match, not case-folded")
}

/*
TestCatalog_AllSortedAndComplete verifies All returns each registered
permission exactly once, sorted.
*/
func TestCatalog_AllSortedAndComplete(t *testing.T) {
	all := catalog.All()

	total := 0
	for _, group := range catalog.Grouped() {
		total += len(group.Permissions)
	}
	require.Len(t, all, total)

	seen := make(map[catalog.Permission]bool)
	for i, permission := range all {
		assert.False(t, seen[permission], "duplicate permission %q", permission)
		seen[permission] = true
		if i > 0 {
			assert.Less(t, string(all[i-1]), string(permission), "All must be sorted")
		}
	}
}

/*
TestCatalog_GroupedIsACopy verifies callers cannot mutate the registry
through the slices returned by Grouped.
*/
func TestCatalog_GroupedIsACopy(t *testing.T) {
	first := catalog.Grouped()
	first[0].Permissions[0] = "tampered.value"

	second := catalog.Grouped()
	assert.NotEqual(t, catalog.Permission("tampered.value"), second[0].Permissions[0])
}

/*
TestCatalog_Ranks verifies the fixed rank model: SuperAdmin=3, Admin=2,
User=1, anything else 0, with case-insensitive resolution.
*/
func TestCatalog_Ranks(t *testing.T) {
	tests := []struct {
		name string
		role string
		rank int
	}{
		{"superadmin_exact", "SuperAdmin", 3},
		{"superadmin_lower", "superadmin", 3},
		{"superadmin_upper", "SUPERADMIN", 3},
		{"admin", "Admin", 2},
		{"admin_mixed", "aDmIn", 2},
		{"user", "User", 1},
		{"custom", "Support", 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.rank, catalog.RankOf(tt.role))
		})
	}
}

/*
TestCatalog_HighestRank verifies a user's effective rank is the maximum
across held roles, with custom roles contributing 0.
*/
func TestCatalog_HighestRank(t *testing.T) {
	assert.Equal(t, 0, catalog.HighestRank(nil))
	assert.Equal(t, 0, catalog.HighestRank([]string{"Support", "Billing"}))
	assert.Equal(t, 1, catalog.HighestRank([]string{"Support", "user"}))
	assert.Equal(t, 2, catalog.HighestRank([]string{"User", "Admin"}))
	assert.Equal(t, 3, catalog.HighestRank([]string{"Admin", "superadmin", "Support"}))
}

/*
TestCatalog_ReservedNames verifies system role names are reserved in any casing.
*/
func TestCatalog_ReservedNames(t *testing.T) {
	for _, reserved := range []string{"SuperAdmin", "SUPERADMIN", "superadmin", "Admin", "ADMIN", "admin", "User", "uSeR"} {
		assert.True(t, catalog.IsReserved(reserved), "%q should be reserved", reserved)
		assert.True(t, catalog.IsSystemRole(reserved), "%q should resolve to a system role", reserved)
	}

	for _, free := range []string{"Support", "Moderator", "Admins", "Super Admin", ""} {
		assert.False(t, catalog.IsReserved(free), "%q should not be reserved", free)
	}
}
