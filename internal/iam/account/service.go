// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package account

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridianhq/adminkit/internal/iam/catalog"
	"github.com/meridianhq/adminkit/internal/platform/apperr"
	"github.com/meridianhq/adminkit/internal/platform/ctxutil"
	"github.com/meridianhq/adminkit/internal/platform/sec"
)

// # Service Layer

// Service orchestrates business logic for self-service account management.
type Service struct {
	profiles    ProfileRepository
	preferences PreferencesRepository
	sessions    SessionRepository
	terminator  SessionTerminator
}

// NewService constructs a new account [Service] with its dependencies.
func NewService(
	profiles ProfileRepository,
	preferences PreferencesRepository,
	sessions SessionRepository,
	terminator SessionTerminator,
) *Service {
	return &Service{
		profiles:    profiles,
		preferences: preferences,
		sessions:    sessions,
		terminator:  terminator,
	}
}

// # Profile Management

/*
Me retrieves the full private identity of the authenticated user, including
resolved roles, permissions, and effective rank.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *Profile: The hydrated profile
  - error: Not found or execution failures
*/
func (service *Service) Me(context context.Context, userID string) (*Profile, error) {
	user, err := service.profiles.FindByID(context, userID)
	if err != nil {
		return nil, err
	}

	roles, err := service.profiles.RolesOf(context, userID)
	if err != nil {
		return nil, fmt.Errorf("account_service_roles_lookup_failed: %w", err)
	}
	permissions, err := service.profiles.PermissionsOf(context, userID)
	if err != nil {
		return nil, fmt.Errorf("account_service_permissions_lookup_failed: %w", err)
	}
	if roles == nil {
		roles = []string{}
	}
	if permissions == nil {
		permissions = []string{}
	}

	return &Profile{
		User:        *user,
		Roles:       roles,
		Permissions: permissions,
		Rank:        catalog.HighestRank(roles),
	}, nil
}

// UpdateProfileInput defines the mutable subset of user profile fields.
type UpdateProfileInput struct {
	DisplayName *string
	Bio         *string
	AvatarURL   *string
}

/*
UpdateProfile applies a partial set of changes to the user's account metadata.

Description: Fetches the existing user state, overrides provided fields, and
synchronizes the change to persistent storage. Identity fields (username,
email, phone) are deliberately not editable here.

Parameters:
  - context: context.Context
  - userID: string
  - input: UpdateProfileInput

Returns:
  - *Profile: The updated profile
  - error: Update or storage failures
*/
func (service *Service) UpdateProfile(context context.Context, userID string, input UpdateProfileInput) (*Profile, error) {
	user, err := service.profiles.FindByID(context, userID)
	if err != nil {
		return nil, err
	}

	if input.DisplayName != nil {
		user.DisplayName = *input.DisplayName
	}
	if input.Bio != nil {
		user.Bio = *input.Bio
	}
	if input.AvatarURL != nil {
		user.AvatarURL = *input.AvatarURL
	}

	if err := service.profiles.Update(context, user); err != nil {
		return nil, fmt.Errorf("account_service_update_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "user_profile_updated",
		slog.String("user_id", userID))

	return service.Me(context, userID)
}

/*
DeleteAccount performs an idempotent soft-deletion of the user's own account.

Description: Flags the account as deleted and immediately terminates every
session to force a global sign-out.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Execution failures
*/
func (service *Service) DeleteAccount(context context.Context, userID string) error {
	if err := service.profiles.SoftDelete(context, userID); err != nil {
		return fmt.Errorf("account_service_delete_failed: %w", err)
	}

	if err := service.terminator.RevokeAllForUser(context, userID); err != nil {
		return fmt.Errorf("account_service_delete_revoke_failed: %w", err)
	}

	ctxutil.GetLogger(context).WarnContext(context, "user_account_deleted",
		slog.String("user_id", userID))

	return nil
}

// # Preferences Management

/*
GetPreferences retrieves the console settings for a specific user ID.

Description: Attempts a database lookup. If no explicit preferences exist,
it falls back to system-wide default settings.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *Preferences: Current or default settings
  - error: Storage failures
*/
func (service *Service) GetPreferences(context context.Context, userID string) (*Preferences, error) {
	prefs, err := service.preferences.FindByUserID(context, userID)
	if err != nil {
		// Resilience: provide defaults if none are stored
		if apperr.IsNotFound(err) {
			return &Preferences{
				UserID:      userID,
				Theme:       "system",
				Locale:      "en",
				Timezone:    "UTC",
				EmailAlerts: true,
				UpdatedAt:   time.Now(),
			}, nil
		}
		return nil, fmt.Errorf("account_service_get_preferences_failed: %w", err)
	}
	return prefs, nil
}

/*
UpdatePreferences persists new console settings for the user.

Parameters:
  - context: context.Context
  - prefs: *Preferences

Returns:
  - error: Storage failures
*/
func (service *Service) UpdatePreferences(context context.Context, prefs *Preferences) error {
	prefs.UpdatedAt = time.Now()
	if err := service.preferences.Upsert(context, prefs); err != nil {
		return fmt.Errorf("account_service_update_preferences_failed: %w", err)
	}
	return nil
}

// # Session Security

/*
ListSessions enumerates every live sign-in for the user.

Description: The session carrying currentSecret, if any, is flagged
IsCurrent so clients can render "this device".

Parameters:
  - context: context.Context
  - userID: string
  - currentSecret: string (The caller's refresh token; may be empty)

Returns:
  - []SessionInfo: Live sessions
  - error: Retrieval failures
*/
func (service *Service) ListSessions(context context.Context, userID, currentSecret string) ([]SessionInfo, error) {
	currentHash := ""
	if currentSecret != "" {
		currentHash = sec.HashToken(currentSecret)
	}

	sessions, err := service.sessions.FindActiveByUserID(context, userID, currentHash)
	if err != nil {
		return nil, fmt.Errorf("account_service_list_sessions_failed: %w", err)
	}
	if sessions == nil {
		return []SessionInfo{}, nil
	}

	return sessions, nil
}

/*
RevokeSession forces a sign-out on one session identified by its ID.

Description: Scoped to the owner. The session's access token survives until
its short expiry; the refresh chain ends immediately.

Parameters:
  - context: context.Context
  - userID: string
  - sessionID: string

Returns:
  - error: apperr.NotFound or revocation failures
*/
func (service *Service) RevokeSession(context context.Context, userID, sessionID string) error {
	if err := service.sessions.Revoke(context, userID, sessionID); err != nil {
		return err
	}

	ctxutil.GetLogger(context).InfoContext(context, "user_session_revoked",
		slog.String("user_id", userID),
		slog.String("session_id", sessionID))

	return nil
}

/*
RevokeOtherSessions forces a sign-out everywhere except the calling session.

Description: Keeps the session whose refresh secret the caller presented.
Without a presented secret, every session is revoked. The security stamp is
not rotated, so the surviving session keeps working; other access tokens
ride out their short expiry.

Parameters:
  - context: context.Context
  - userID: string
  - currentSecret: string (The caller's refresh token; may be empty)

Returns:
  - error: Revocation failures
*/
func (service *Service) RevokeOtherSessions(context context.Context, userID, currentSecret string) error {
	keepHash := ""
	if currentSecret != "" {
		keepHash = sec.HashToken(currentSecret)
	}

	if err := service.sessions.RevokeOthers(context, userID, keepHash); err != nil {
		return fmt.Errorf("account_service_revoke_others_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "user_other_sessions_revoked",
		slog.String("user_id", userID))

	return nil
}
