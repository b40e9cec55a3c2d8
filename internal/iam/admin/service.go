// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

/*
Package admin implements privileged user administration: the paginated user
directory, account lockout, soft deletion, and role membership changes.

# Hierarchy

Every mutation is gated by role rank. The caller's effective rank (the
maximum across their roles) must be strictly greater than the target's,
so peers can never act on each other and nobody can act upwards. Role
membership changes additionally require the caller to outrank the role
being granted or revoked, which makes SuperAdmin grant-only-by-seed.

Self-directed mutations are rejected outright: an administrator cannot
lock, delete, or change the roles of their own account.
*/
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianhq/adminkit/internal/audit"
	"github.com/meridianhq/adminkit/internal/iam/auth"
	"github.com/meridianhq/adminkit/internal/iam/catalog"
	"github.com/meridianhq/adminkit/internal/platform/apperr"
	"github.com/meridianhq/adminkit/internal/platform/ctxutil"
	"github.com/meridianhq/adminkit/internal/platform/sec"
	"github.com/meridianhq/adminkit/pkg/pointer"
)

// securityStampLength is the byte length of a freshly rotated stamp.
const securityStampLength = 16

// lockoutIndefinite marks an administrative lock, as opposed to the short
// automatic lock applied after repeated failed logins.
var lockoutIndefinite = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// Directory is the slice of the account store this package needs.
type Directory interface {
	List(context context.Context, limit, offset int) ([]auth.User, int, error)
	FindByID(context context.Context, id string) (*auth.User, error)
	SetLockout(context context.Context, userID string, until *time.Time) error
	ResetAccessFailures(context context.Context, userID string) error
	SoftDelete(context context.Context, id string) error
	AssignRole(context context.Context, userID, roleName string) error
	RemoveRole(context context.Context, userID, roleName string) error
	RolesOf(context context.Context, userID string) ([]string, error)
	UpdateSecurityStamp(context context.Context, userID, stamp string) error
}

// SessionRevoker terminates every session a user holds, refresh chain included.
type SessionRevoker interface {
	RevokeAllForUser(context context.Context, userID string) error
}

// StampEvictor drops cached identity entries after a stamp rotation.
type StampEvictor interface {
	Evict(context context.Context, userID string) error
}

// Account is a directory entry: the user record plus resolved role names and
// the effective rank they grant.
type Account struct {
	auth.User

	Roles []string `json:"roles"`
	Rank  int      `json:"rank"`
}

// Service implements user administration use cases.
type Service struct {
	directory Directory
	sessions  SessionRevoker
	stamps    StampEvictor
	recorder  audit.Recorder
}

// NewService constructs a new admin [Service] with necessary dependencies.
func NewService(directory Directory, sessions SessionRevoker, stamps StampEvictor, recorder audit.Recorder) *Service {
	return &Service{directory: directory, sessions: sessions, stamps: stamps, recorder: recorder}
}

// # Directory

/*
List returns a page of accounts with their roles and effective ranks.

Parameters:
  - context: context.Context
  - limit: int
  - offset: int

Returns:
  - []Account: The page
  - int: Total active accounts
  - error: Retrieval failures
*/
func (service *Service) List(context context.Context, limit, offset int) ([]Account, int, error) {
	users, total, err := service.directory.List(context, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("admin_service_list_failed: %w", err)
	}

	accounts := make([]Account, 0, len(users))
	for _, user := range users {
		account, err := service.hydrate(context, user)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, *account)
	}

	return accounts, total, nil
}

/*
Get returns a single account with roles and effective rank.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Account: The account
  - error: NotFound or retrieval failures
*/
func (service *Service) Get(context context.Context, id string) (*Account, error) {
	user, err := service.directory.FindByID(context, id)
	if err != nil {
		return nil, err
	}
	return service.hydrate(context, *user)
}

func (service *Service) hydrate(context context.Context, user auth.User) (*Account, error) {
	roles, err := service.directory.RolesOf(context, user.ID)
	if err != nil {
		return nil, fmt.Errorf("admin_service_roles_lookup_failed: %w", err)
	}
	if roles == nil {
		roles = []string{}
	}
	return &Account{User: user, Roles: roles, Rank: catalog.HighestRank(roles)}, nil
}

// # Lockout

/*
Lock places an indefinite administrative lock on the target account and
terminates all of its sessions.

Description: Idempotent — locking an already-locked account succeeds and
re-revokes its sessions. Self-locking is rejected, as is locking any target
of equal or higher rank.

Parameters:
  - context: context.Context
  - actor: *sec.AuthClaims
  - targetID: string

Returns:
  - error: Conflict, Forbidden, NotFound, or storage errors
*/
func (service *Service) Lock(context context.Context, actor *sec.AuthClaims, targetID string) error {
	if actor.UserID() == targetID {
		return apperr.Conflict("You cannot lock your own account")
	}
	if _, err := service.authorize(context, actor, targetID); err != nil {
		return err
	}

	if err := service.directory.SetLockout(context, targetID, pointer.To(lockoutIndefinite)); err != nil {
		return fmt.Errorf("admin_service_lock_failed: %w", err)
	}
	if err := service.sessions.RevokeAllForUser(context, targetID); err != nil {
		return fmt.Errorf("admin_service_lock_revoke_failed: %w", err)
	}

	service.record(context, audit.Entry{
		ActorID:    actor.UserID(),
		Action:     audit.ActionUserLocked,
		TargetType: audit.TargetUser,
		TargetID:   targetID,
	})

	return nil
}

/*
Unlock clears any lockout on the target account and resets its failed-login
counter.

Description: Idempotent — unlocking an unlocked account succeeds.

Parameters:
  - context: context.Context
  - actor: *sec.AuthClaims
  - targetID: string

Returns:
  - error: Forbidden, NotFound, or storage errors
*/
func (service *Service) Unlock(context context.Context, actor *sec.AuthClaims, targetID string) error {
	if _, err := service.authorize(context, actor, targetID); err != nil {
		return err
	}

	if err := service.directory.SetLockout(context, targetID, nil); err != nil {
		return fmt.Errorf("admin_service_unlock_failed: %w", err)
	}
	if err := service.directory.ResetAccessFailures(context, targetID); err != nil {
		return fmt.Errorf("admin_service_unlock_reset_failed: %w", err)
	}

	service.record(context, audit.Entry{
		ActorID:    actor.UserID(),
		Action:     audit.ActionUserUnlocked,
		TargetType: audit.TargetUser,
		TargetID:   targetID,
	})

	return nil
}

// # Deletion

/*
Delete soft-deletes the target account and terminates all of its sessions.

Parameters:
  - context: context.Context
  - actor: *sec.AuthClaims
  - targetID: string

Returns:
  - error: Conflict, Forbidden, NotFound, or storage errors
*/
func (service *Service) Delete(context context.Context, actor *sec.AuthClaims, targetID string) error {
	if actor.UserID() == targetID {
		return apperr.Conflict("You cannot delete your own account")
	}
	if _, err := service.authorize(context, actor, targetID); err != nil {
		return err
	}

	if err := service.sessions.RevokeAllForUser(context, targetID); err != nil {
		return fmt.Errorf("admin_service_delete_revoke_failed: %w", err)
	}
	if err := service.directory.SoftDelete(context, targetID); err != nil {
		return fmt.Errorf("admin_service_delete_failed: %w", err)
	}

	service.record(context, audit.Entry{
		ActorID:    actor.UserID(),
		Action:     audit.ActionUserDeleted,
		TargetType: audit.TargetUser,
		TargetID:   targetID,
	})

	return nil
}

// # Role Membership

/*
AssignRole grants the named role to the target account.

Description: The caller must outrank both the target and the role being
granted. SuperAdmin therefore cannot be granted through this path at all:
rank 3 is never strictly greater than rank 3.

Parameters:
  - context: context.Context
  - actor: *sec.AuthClaims
  - targetID: string
  - roleName: string

Returns:
  - error: Conflict, Forbidden, NotFound, or storage errors
*/
func (service *Service) AssignRole(context context.Context, actor *sec.AuthClaims, targetID, roleName string) error {
	if actor.UserID() == targetID {
		return apperr.Conflict("You cannot change your own roles")
	}
	if _, err := service.authorize(context, actor, targetID); err != nil {
		return err
	}
	if catalog.HighestRank(actor.Roles) <= catalog.RankOf(roleName) {
		return apperr.Forbidden("You cannot grant a role of equal or higher rank than your own")
	}

	if err := service.directory.AssignRole(context, targetID, roleName); err != nil {
		return err
	}
	service.rotateStamp(context, targetID)

	service.record(context, audit.Entry{
		ActorID:    actor.UserID(),
		Action:     audit.ActionUserRoleAssigned,
		TargetType: audit.TargetUser,
		TargetID:   targetID,
		Detail:     map[string]any{"role": roleName},
	})

	return nil
}

/*
RemoveRole revokes the named role from the target account.

Description: Gated like [Service.AssignRole]. Removing a role the target does
not hold succeeds silently; an unknown role name is NotFound.

Parameters:
  - context: context.Context
  - actor: *sec.AuthClaims
  - targetID: string
  - roleName: string

Returns:
  - error: Conflict, Forbidden, NotFound, or storage errors
*/
func (service *Service) RemoveRole(context context.Context, actor *sec.AuthClaims, targetID, roleName string) error {
	if actor.UserID() == targetID {
		return apperr.Conflict("You cannot change your own roles")
	}
	if _, err := service.authorize(context, actor, targetID); err != nil {
		return err
	}
	if catalog.HighestRank(actor.Roles) <= catalog.RankOf(roleName) {
		return apperr.Forbidden("You cannot revoke a role of equal or higher rank than your own")
	}

	if err := service.directory.RemoveRole(context, targetID, roleName); err != nil {
		return err
	}
	service.rotateStamp(context, targetID)

	service.record(context, audit.Entry{
		ActorID:    actor.UserID(),
		Action:     audit.ActionUserRoleRemoved,
		TargetType: audit.TargetUser,
		TargetID:   targetID,
		Detail:     map[string]any{"role": roleName},
	})

	return nil
}

// # Guards

// authorize verifies the target exists and the actor strictly outranks it.
func (service *Service) authorize(context context.Context, actor *sec.AuthClaims, targetID string) (*auth.User, error) {
	target, err := service.directory.FindByID(context, targetID)
	if err != nil {
		return nil, err
	}

	targetRoles, err := service.directory.RolesOf(context, targetID)
	if err != nil {
		return nil, fmt.Errorf("admin_service_roles_lookup_failed: %w", err)
	}

	if catalog.HighestRank(actor.Roles) <= catalog.HighestRank(targetRoles) {
		return nil, apperr.Forbidden("You cannot act on a user of equal or higher rank")
	}

	return target, nil
}

// rotateStamp makes the target's outstanding access tokens stale after a role
// membership change. Refresh tokens stay valid and pick up the new claims on
// the next rotation. Failures are logged, never surfaced: the membership
// change itself has already committed.
func (service *Service) rotateStamp(context context.Context, targetID string) {
	logger := ctxutil.GetLogger(context)

	stamp, err := sec.GenerateSecureToken(securityStampLength)
	if err != nil {
		logger.ErrorContext(context, "admin_stamp_generation_failed",
			slog.String("user_id", targetID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := service.directory.UpdateSecurityStamp(context, targetID, stamp); err != nil {
		logger.ErrorContext(context, "admin_stamp_rotation_failed",
			slog.String("user_id", targetID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := service.stamps.Evict(context, targetID); err != nil {
		logger.WarnContext(context, "admin_stamp_cache_evict_failed",
			slog.String("user_id", targetID),
			slog.String("error", err.Error()),
		)
	}
}

// record appends an audit entry best-effort.
func (service *Service) record(context context.Context, entry audit.Entry) {
	if err := service.recorder.Record(context, entry); err != nil {
		ctxutil.GetLogger(context).ErrorContext(context, "admin_audit_record_failed",
			slog.String("action", entry.Action),
			slog.String("error", err.Error()),
		)
	}
}
