// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package auth

import (
	"context"
	"time"
)

// # Credential Store

// CredentialStore defines the data access contract for user accounts,
// including lockout state and the security stamp.
type CredentialStore interface {

	/*
		FindByID returns the account with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, id string) (*User, error)

	/*
		FindByEmail returns the account with the given email.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByEmail(context context.Context, email string) (*User, error)

	/*
		FindByUsername returns the account with the given username.

		Parameters:
		  - context: context.Context
		  - username: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByUsername(context context.Context, username string) (*User, error)

	/*
		FindByPhone returns the account with the given normalized phone number.

		Parameters:
		  - context: context.Context
		  - phone: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByPhone(context context.Context, phone string) (*User, error)

	/*
		Create persists a brand-new user account to the storage.

		Parameters:
		  - context: context.Context
		  - user: *User

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, user *User) error

	/*
		Update persists changes to mutable profile fields.

		Parameters:
		  - context: context.Context
		  - user: *User

		Returns:
		  - error: Persistence failures
	*/
	Update(context context.Context, user *User) error

	/*
		UpdatePassword replaces only the user's password hash.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - newHash: string

		Returns:
		  - error: Persistence failures
	*/
	UpdatePassword(context context.Context, userID, newHash string) error

	/*
		UpdateSecurityStamp replaces the user's security stamp.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - stamp: string

		Returns:
		  - error: Persistence failures
	*/
	UpdateSecurityStamp(context context.Context, userID, stamp string) error

	/*
		RecordAccessFailure increments the failed-login counter and, once the
		counter reaches the lockout threshold, sets the lockout window.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - lockoutUntil: *time.Time (nil when the threshold was not reached)

		Returns:
		  - error: Persistence failures
	*/
	RecordAccessFailure(context context.Context, userID string, lockoutUntil *time.Time) error

	/*
		ResetAccessFailures zeroes the failed-login counter after a successful login.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - error: Persistence failures
	*/
	ResetAccessFailures(context context.Context, userID string) error

	/*
		SetLockout sets or clears the explicit admin-driven lockout window.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - until: *time.Time (nil clears the lockout)

		Returns:
		  - error: Persistence failures
	*/
	SetLockout(context context.Context, userID string, until *time.Time) error

	/*
		MarkEmailConfirmed updates the user's status to emailconfirmed = true.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - error: Persistence failures
	*/
	MarkEmailConfirmed(context context.Context, userID string) error

	/*
		SoftDelete marks the account as deleted without removing the row.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: Persistence failures
	*/
	SoftDelete(context context.Context, id string) error

	/*
		AssignRole adds the user to the role with the given name. Assigning an
		already-held role is a no-op.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - roleName: string

		Returns:
		  - error: apperr.NotFound for an unknown role, or persistence failures
	*/
	AssignRole(context context.Context, userID, roleName string) error

	/*
		RolesOf returns the names of every role the user holds.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - []string: Role names
		  - error: Retrieval failures
	*/
	RolesOf(context context.Context, userID string) ([]string, error)

	/*
		PermissionsOf returns the deduplicated permission claims resolved
		transitively from every role the user holds.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - []string: Permission claim values
		  - error: Retrieval failures
	*/
	PermissionsOf(context context.Context, userID string) ([]string, error)
}

// # Refresh-Token Ledger

// TokenLedger defines the data access contract for the refresh-token
// rotation chain.
//
// # State Machine
//
// Active → Used → (Invalidated), or Active → Invalidated directly. Rows are
// never deleted; the full chain is the audit trail.
type TokenLedger interface {

	/*
		Create persists a new refresh token row.

		Parameters:
		  - context: context.Context
		  - token: *RefreshToken

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, token *RefreshToken) error

	/*
		FindByHash returns the token matching the given secret hash,
		regardless of its state.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - *RefreshToken: Hydrated entity
		  - error: dberr.ErrNotFound or retrieval failures
	*/
	FindByHash(context context.Context, tokenHash string) (*RefreshToken, error)

	/*
		MarkUsed flips used = true on the token, but only if the token is
		still active. Exactly one of any number of concurrent callers wins.

		Parameters:
		  - context: context.Context
		  - tokenID: string

		Returns:
		  - bool: true if this caller performed the transition
		  - error: Persistence failures
	*/
	MarkUsed(context context.Context, tokenID string) (bool, error)

	/*
		Invalidate marks a single token as invalidated.

		Parameters:
		  - context: context.Context
		  - tokenID: string

		Returns:
		  - error: Persistence failures
	*/
	Invalidate(context context.Context, tokenID string) error

	/*
		BurnFamily atomically invalidates the triggering token, every other
		non-invalidated token owned by the user, and rotates the user's
		security stamp. Used on the reuse-detection path.

		Parameters:
		  - context: context.Context
		  - tokenID: string
		  - userID: string
		  - newStamp: string

		Returns:
		  - error: Transaction failures
	*/
	BurnFamily(context context.Context, tokenID, userID, newStamp string) error

	/*
		InvalidateAllForUser atomically invalidates every non-invalidated
		token owned by the user and rotates the security stamp. Used on
		logout and password change.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - newStamp: string

		Returns:
		  - error: Transaction failures
	*/
	InvalidateAllForUser(context context.Context, userID, newStamp string) error
}

// # Volatile Data Access

// StampCache caches per-user security stamps so the authentication middleware
// does not hit PostgreSQL on every request.
//
// The cache stores values only, never authorization decisions: a miss or an
// eviction must never change an authorization outcome.
type StampCache interface {

	/*
		Get retrieves the cached security stamp for a user.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - string: The stamp, or "" on a miss
		  - error: Connectivity failures (a miss is not an error)
	*/
	Get(context context.Context, userID string) (string, error)

	/*
		Set caches the security stamp for a user.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - stamp: string
		  - ttl: time.Duration

		Returns:
		  - error: Persistence failures
	*/
	Set(context context.Context, userID, stamp string, ttl time.Duration) error

	/*
		Evict removes the cached stamp and cached user entry for a user.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - error: Deletion failures
	*/
	Evict(context context.Context, userID string) error
}

// ResetTokenRepository defines the contract for storing volatile password reset tokens.
type ResetTokenRepository interface {

	/*
		Set stores a reset token associated with a userID for a limited duration.

		Parameters:
		  - context: context.Context
		  - token: string
		  - userID: string
		  - ttl: time.Duration

		Returns:
		  - error: Persistence failures
	*/
	Set(context context.Context, token string, userID string, ttl time.Duration) error

	/*
		Get retrieves the userID associated with a given reset token.

		Parameters:
		  - context: context.Context
		  - token: string

		Returns:
		  - string: UserID
		  - error: Retrieval failures
	*/
	Get(context context.Context, token string) (string, error)

	/*
		Delete removes a reset token after successful use.

		Parameters:
		  - context: context.Context
		  - token: string

		Returns:
		  - error: Persistence failures
	*/
	Delete(context context.Context, token string) error
}

// VerificationTokenRepository defines the contract for storing volatile email verification tokens.
type VerificationTokenRepository interface {

	/*
		Set stores a verification token associated with a userID.

		Parameters:
		  - context: context.Context
		  - token: string
		  - userID: string
		  - ttl: time.Duration

		Returns:
		  - error: Persistence failures
	*/
	Set(context context.Context, token string, userID string, ttl time.Duration) error

	/*
		Get retrieves the userID associated with a given verification token.

		Parameters:
		  - context: context.Context
		  - token: string

		Returns:
		  - string: UserID
		  - error: Retrieval failures
	*/
	Get(context context.Context, token string) (string, error)

	/*
		Delete removes a verification token after successful use.

		Parameters:
		  - context: context.Context
		  - token: string

		Returns:
		  - error: Persistence failures
	*/
	Delete(context context.Context, token string) error
}
