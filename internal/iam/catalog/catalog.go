// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

/*
Package catalog is the fixed, compile-time registry of permissions and system roles.

It is the single source of truth for:

  - Permission strings: atomic "category.action" capabilities grouped by category.
  - System roles: the built-in SuperAdmin/Admin/User roles and their numeric ranks.
  - Reserved names: role names that custom roles may never collide with.

The registry is built once at package initialization and is immutable afterwards.
Adding a permission constant to its group below is all that is required for it to
become assignable, claimable, and visible in the management UI.
*/
package catalog

import (
	"sort"

	"golang.org/x/text/cases"

	"github.com/meridianhq/adminkit/pkg/slice"
)

// Permission is an atomic capability string of the form "category.action".
type Permission string

// String returns the raw permission value.
func (p Permission) String() string { return string(p) }

// # Permission Constants

// User management permissions.
const (
	PermUsersView        Permission = "users.view"
	PermUsersManage      Permission = "users.manage"
	PermUsersLock        Permission = "users.lock"
	PermUsersDelete      Permission = "users.delete"
	PermUsersAssignRoles Permission = "users.assign_roles"
)

// Role management permissions.
const (
	PermRolesView   Permission = "roles.view"
	PermRolesManage Permission = "roles.manage"
)

// Audit trail permissions.
const (
	PermAuditView Permission = "audit.view"
)

// Application settings permissions.
const (
	PermSettingsView   Permission = "settings.view"
	PermSettingsManage Permission = "settings.manage"
)

// Dashboard permissions.
const (
	PermDashboardView Permission = "dashboard.view"
)

// Group is a category of permissions for management UI display.
type Group struct {
	Category    string       `json:"category"`
	Permissions []Permission `json:"permissions"`
}

// groups enumerates every permission in the catalog, by category.
// New permissions are registered here and nowhere else.
var groups = []Group{
	{Category: "users", Permissions: []Permission{
		PermUsersView, PermUsersManage, PermUsersLock, PermUsersDelete, PermUsersAssignRoles,
	}},
	{Category: "roles", Permissions: []Permission{
		PermRolesView, PermRolesManage,
	}},
	{Category: "audit", Permissions: []Permission{
		PermAuditView,
	}},
	{Category: "settings", Permissions: []Permission{
		PermSettingsView, PermSettingsManage,
	}},
	{Category: "dashboard", Permissions: []Permission{
		PermDashboardView,
	}},
}

// registry is the O(1) validity lookup derived from groups.
var registry = func() map[Permission]struct{} {
	set := make(map[Permission]struct{})
	for _, group := range groups {
		for _, permission := range group.Permissions {
			set[permission] = struct{}{}
		}
	}
	return set
}()

// # Catalog Queries

// Valid reports whether the permission exists in the fixed catalog.
//
// Any permission string persisted against a role must pass this check;
// assignment of an unknown string is rejected by the role service.
func Valid(p Permission) bool {
	_, ok := registry[p]
	return ok
}

// All returns every permission in the catalog, sorted, as a fresh slice.
func All() []Permission {
	all := make([]Permission, 0, len(registry))
	for permission := range registry {
		all = append(all, permission)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	return all
}

// Grouped returns the catalog grouped by category for UI rendering.
//
// The returned slices are copies; callers cannot mutate the registry.
func Grouped() []Group {
	return slice.Map(groups, func(group Group) Group {
		return Group{
			Category:    group.Category,
			Permissions: append([]Permission(nil), group.Permissions...),
		}
	})
}

// # System Roles & Ranks

// Built-in role names. These are reserved: custom roles may not use them
// under any casing, and they can never be renamed or deleted.
const (
	RoleSuperAdmin = "SuperAdmin"
	RoleAdmin      = "Admin"
	RoleUser       = "User"
)

// Numeric authority ranks for the system roles. Custom roles rank 0.
const (
	RankSuperAdmin = 3
	RankAdmin      = 2
	RankUser       = 1
	RankCustom     = 0
)

// folder performs full Unicode case folding, so that reserved-name checks
// hold for any casing a client can produce (not just ASCII upper/lower).
var folder = cases.Fold()

// Fold normalizes a role name for case-insensitive comparison.
func Fold(name string) string {
	return folder.String(name)
}

// systemRanks maps case-folded system role names to their ranks.
var systemRanks = map[string]int{
	Fold(RoleSuperAdmin): RankSuperAdmin,
	Fold(RoleAdmin):      RankAdmin,
	Fold(RoleUser):       RankUser,
}

// SystemRoles returns the built-in role names in descending rank order.
func SystemRoles() []string {
	return []string{RoleSuperAdmin, RoleAdmin, RoleUser}
}

// IsSystemRole reports whether the name matches a built-in role, any casing.
func IsSystemRole(name string) bool {
	_, ok := systemRanks[Fold(name)]
	return ok
}

// IsReserved reports whether a role name may not be used for a custom role.
//
// Currently identical to [IsSystemRole]; kept separate so that future
// reserved names do not have to be system roles.
func IsReserved(name string) bool {
	return IsSystemRole(name)
}

// RankOf returns the numeric rank of a role name. Custom roles rank 0.
func RankOf(name string) int {
	if rank, ok := systemRanks[Fold(name)]; ok {
		return rank
	}
	return RankCustom
}

// HighestRank returns a user's effective rank: the maximum rank across all
// held roles. An empty role set ranks 0.
func HighestRank(roleNames []string) int {
	highest := RankCustom
	for _, name := range roleNames {
		if rank := RankOf(name); rank > highest {
			highest = rank
		}
	}
	return highest
}
