// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

/*
Package audit records administrative actions for later review.

Every privileged mutation (role changes, user lockouts, deletions) appends an
immutable entry describing who did what to whom. Recording is best-effort from
the caller's point of view: services log a failed append but never fail the
triggering operation because of it.
*/
package audit

import (
	"context"
	"time"
)

// Entry is one immutable audit record.
type Entry struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Well-known action identifiers.
const (
	ActionRoleCreated        = "role.created"
	ActionRoleUpdated        = "role.updated"
	ActionRoleDeleted        = "role.deleted"
	ActionRolePermissionsSet = "role.permissions_set"
	ActionUserLocked         = "user.locked"
	ActionUserUnlocked       = "user.unlocked"
	ActionUserDeleted        = "user.deleted"
	ActionUserRoleAssigned   = "user.role_assigned"
	ActionUserRoleRemoved    = "user.role_removed"
)

// Target types referenced by entries.
const (
	TargetRole = "role"
	TargetUser = "user"
)

// Recorder appends audit entries.
type Recorder interface {
	Record(context context.Context, entry Entry) error
}

// Store extends Recorder with the read side used by the audit API.
type Store interface {
	Recorder

	/*
		List returns entries newest-first.

		Parameters:
		  - context: context.Context
		  - limit: int
		  - offset: int

		Returns:
		  - []Entry: Page of entries
		  - int: Total entry count
		  - error: Retrieval failures
	*/
	List(context context.Context, limit, offset int) ([]Entry, int, error)
}
