// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package role

import (
	"context"
)

// Repository defines the data access contract for roles and their
// permission claims.
type Repository interface {

	/*
		Create persists a new role with an empty permission set.

		Parameters:
		  - context: context.Context
		  - role: *Role

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, role *Role) error

	/*
		FindByID returns the role with the given ID, hydrated with its
		permission claims and member count.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Role: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, id string) (*Role, error)

	/*
		FindByName returns the role matching the name, compared
		case-insensitively.

		Parameters:
		  - context: context.Context
		  - name: string

		Returns:
		  - *Role: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByName(context context.Context, name string) (*Role, error)

	/*
		List returns every role with permission claims and member counts.

		Parameters:
		  - context: context.Context

		Returns:
		  - []Role: All roles
		  - error: Retrieval failures
	*/
	List(context context.Context) ([]Role, error)

	/*
		Update persists name and description changes.

		Parameters:
		  - context: context.Context
		  - role: *Role

		Returns:
		  - error: Persistence failures
	*/
	Update(context context.Context, role *Role) error

	/*
		Delete removes the role row. Claims and memberships are removed by
		ON DELETE CASCADE.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: Persistence failures
	*/
	Delete(context context.Context, id string) error

	/*
		MemberIDs returns the IDs of every user holding the role.

		Parameters:
		  - context: context.Context
		  - roleID: string

		Returns:
		  - []string: User IDs
		  - error: Retrieval failures
	*/
	MemberIDs(context context.Context, roleID string) ([]string, error)

	/*
		ReplacePermissions atomically replaces the role's permission claims
		and rotates each member's security stamp in the same transaction, so
		a partial failure never leaves claims changed with stale stamps.

		Parameters:
		  - context: context.Context
		  - roleID: string
		  - permissions: []string (deduplicated, catalog-validated)
		  - memberStamps: map[string]string (userID → new stamp)

		Returns:
		  - error: Transaction failures
	*/
	ReplacePermissions(context context.Context, roleID string, permissions []string, memberStamps map[string]string) error
}

// StampEvictor drops cached identity entries after a stamp rotation.
//
// Defined here so the service depends on the capability, not on the auth
// package's Redis implementation.
type StampEvictor interface {
	Evict(context context.Context, userID string) error
}
