// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

/*
Package role implements custom role management and permission assignment.

Roles bundle permission claims; users hold roles; access tokens embed the
resolved set. Changing a role's permissions therefore requires a propagation
step: every member's security stamp is rotated so outstanding access tokens
go stale, while refresh chains survive — the next rotation silently picks up
the new claim set.

# System Roles

SuperAdmin, Admin, and User are fixed: never renamed, never deleted, and
SuperAdmin's permission set is implicit in code, never persisted or editable.
*/
package role

import (
	"time"
)

// Role is a named bundle of permission claims.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsSystem    bool      `json:"is_system"`
	Rank        int       `json:"rank"`
	MemberCount int       `json:"member_count"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// # Field Identifiers

const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldPermissions = "permissions"
	FieldRoleID      = "role_id"
)
