// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

/*
Package account handles self-service profile management, console preferences,
and session transparency for the authenticated user.

It provides functionality for users to view and update their own identity
data, configure the admin console UI, and inspect or terminate their active
sign-ins.

# Architecture

  - Entities: Profile (view over auth.User), Preferences, SessionInfo (DTO).
  - Domain: This package depends on the auth package for the User entity.
  - Security: Every operation is scoped to the authenticated subject; there
    is no cross-user access here. Administration of other accounts lives in
    the admin package.
*/
package account

import (
	"context"
	"time"

	"github.com/meridianhq/adminkit/internal/iam/auth"
)

// # Domain Entities

// Profile is the private identity view returned to the account owner: the
// user record plus the roles and permissions resolved for it.
type Profile struct {
	auth.User

	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Rank        int      `json:"rank"`
}

// Preferences represents the customizable console UI settings for a user.
type Preferences struct {
	UserID      string    `json:"user_id"`
	Theme       string    `json:"theme"`  // 'system', 'light', 'dark'
	Locale      string    `json:"locale"` // BCP-47 language tag
	Timezone    string    `json:"timezone"`
	EmailAlerts bool      `json:"email_alerts"` // Security notification emails
	UpdatedAt   time.Time `json:"updated_at"`
}

// SessionInfo is a safety-mapped view of one live sign-in. It omits the
// token hash for transport.
type SessionInfo struct {
	ID         string    `json:"id"`
	Persistent bool      `json:"persistent"` // True for remember-me sign-ins
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsCurrent  bool      `json:"is_current"` // True if this session made the request
}

// # Repository Contracts

// ProfileRepository is the slice of the account store this package needs.
type ProfileRepository interface {
	/*
		FindByID retrieves a user record by its unique ID.

		Parameters:
		  - context: context.Context
		  - id: string (UUID)

		Returns:
		  - *auth.User: Loaded account entity
		  - error: apperr.NotFound or storage failures
	*/
	FindByID(context context.Context, id string) (*auth.User, error)

	/*
		Update modifies the mutable profile fields of an existing user.

		Parameters:
		  - context: context.Context
		  - user: *auth.User (Hydrated entity with changes)

		Returns:
		  - error: Storage or constraint failures
	*/
	Update(context context.Context, user *auth.User) error

	/*
		SoftDelete flags an account as logically deleted.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: Execution failures
	*/
	SoftDelete(context context.Context, id string) error

	/*
		RolesOf returns the names of every role the user holds.
	*/
	RolesOf(context context.Context, userID string) ([]string, error)

	/*
		PermissionsOf returns the deduplicated permissions resolved from
		the user's roles.
	*/
	PermissionsOf(context context.Context, userID string) ([]string, error)
}

// PreferencesRepository defines the persistence contract for UI settings.
type PreferencesRepository interface {
	/*
		FindByUserID retrieves console preferences for a specific user.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - *Preferences: Hydrated settings
		  - error: apperr.NotFound if not present
	*/
	FindByUserID(context context.Context, userID string) (*Preferences, error)

	/*
		Upsert saves or updates preferences for a user using an idempotent
		strategy.

		Parameters:
		  - context: context.Context
		  - prefs: *Preferences

		Returns:
		  - error: Storage failure errors
	*/
	Upsert(context context.Context, prefs *Preferences) error
}

// SessionRepository defines visibility and targeted revocation over the
// refresh-token ledger.
type SessionRepository interface {
	/*
		FindActiveByUserID lists every live session for a user: tokens not
		yet exchanged, not invalidated, and not expired. The session whose
		token hash equals currentHash, if any, is flagged IsCurrent.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - currentHash: string (May be empty)

		Returns:
		  - []SessionInfo: Live sessions, newest first
		  - error: Retrieval errors
	*/
	FindActiveByUserID(context context.Context, userID, currentHash string) ([]SessionInfo, error)

	/*
		Revoke invalidates one session by ID, constrained to the owner so a
		user can never terminate someone else's session.

		Parameters:
		  - context: context.Context
		  - userID: string (Owner constraint)
		  - sessionID: string

		Returns:
		  - error: apperr.NotFound or revocation failures
	*/
	Revoke(context context.Context, userID, sessionID string) error

	/*
		RevokeOthers invalidates every live session except the one whose
		token hash matches keepHash.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - keepHash: string (The whitelisted session's token hash)

		Returns:
		  - error: Revocation failures
	*/
	RevokeOthers(context context.Context, userID, keepHash string) error
}

// SessionTerminator performs a full sign-out everywhere, stamp rotation
// included. Satisfied by the auth service.
type SessionTerminator interface {
	RevokeAllForUser(context context.Context, userID string) error
}
