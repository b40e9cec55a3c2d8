// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianhq/adminkit/internal/platform/apperr"
)

// # Repository Implementations
//
// The ProfileRepository side is served by the auth package's credential
// store; this file implements the two repositories specific to this domain.
//
// Schema table mapping:
//   - iam.preference: 1:1 console settings per account.
//   - iam.refresh_token: Session visibility over the rotation ledger.

// PostgresPreferencesRepository implements [PreferencesRepository] using pgx.
type PostgresPreferencesRepository struct {
	pool *pgxpool.Pool
}

// NewPreferencesRepository creates a new Postgres implementation for user settings.
func NewPreferencesRepository(pool *pgxpool.Pool) *PostgresPreferencesRepository {
	return &PostgresPreferencesRepository{pool: pool}
}

/*
FindByUserID retrieves console preferences from the iam.preference table.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *Preferences: Hydrated settings
  - error: apperr.NotFound or database execution failure
*/
func (repository *PostgresPreferencesRepository) FindByUserID(context context.Context, userID string) (*Preferences, error) {
	const query = `
		SELECT userid, theme, locale, timezone, emailalerts, updatedat
		FROM iam.preference
		WHERE userid = $1`

	prefs := &Preferences{}
	err := repository.pool.QueryRow(context, query, userID).Scan(
		&prefs.UserID,
		&prefs.Theme,
		&prefs.Locale,
		&prefs.Timezone,
		&prefs.EmailAlerts,
		&prefs.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Preferences")
		}
		return nil, fmt.Errorf("postgres_preferences_find_failed: %w", err)
	}

	return prefs, nil
}

/*
Upsert saves or updates preferences using ON CONFLICT semantics.

Parameters:
  - context: context.Context
  - prefs: *Preferences

Returns:
  - error: Storage failure errors
*/
func (repository *PostgresPreferencesRepository) Upsert(context context.Context, prefs *Preferences) error {
	const query = `
		INSERT INTO iam.preference (userid, theme, locale, timezone, emailalerts, updatedat)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (userid) DO UPDATE SET
			theme = EXCLUDED.theme,
			locale = EXCLUDED.locale,
			timezone = EXCLUDED.timezone,
			emailalerts = EXCLUDED.emailalerts,
			updatedat = EXCLUDED.updatedat`

	_, err := repository.pool.Exec(context, query,
		prefs.UserID, prefs.Theme, prefs.Locale, prefs.Timezone, prefs.EmailAlerts, prefs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres_preferences_upsert_failed: %w", err)
	}

	return nil
}

// PostgresSessionRepository implements [SessionRepository] over the
// refresh-token rotation ledger.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new Postgres implementation for session visibility.
func NewSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

/*
FindActiveByUserID lists live sessions: ledger rows neither exchanged nor
invalidated nor expired.

Parameters:
  - context: context.Context
  - userID: string
  - currentHash: string (May be empty)

Returns:
  - []SessionInfo: Live sessions, newest first
  - error: Retrieval errors
*/
func (repository *PostgresSessionRepository) FindActiveByUserID(context context.Context, userID, currentHash string) ([]SessionInfo, error) {
	const query = `
		SELECT id, persistent, createdat, expiresat, tokenhash = $2 AS iscurrent
		FROM iam.refresh_token
		WHERE userid = $1
		  AND used = FALSE
		  AND invalidated = FALSE
		  AND expiresat > NOW()
		ORDER BY createdat DESC`

	rows, err := repository.pool.Query(context, query, userID, currentHash)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_list_failed: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var session SessionInfo
		if err := rows.Scan(&session.ID, &session.Persistent, &session.CreatedAt,
			&session.ExpiresAt, &session.IsCurrent); err != nil {
			return nil, fmt.Errorf("postgres_session_scan_failed: %w", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

/*
Revoke invalidates one session, constrained to the owning user.

Parameters:
  - context: context.Context
  - userID: string
  - sessionID: string

Returns:
  - error: apperr.NotFound when the session does not exist, is already dead,
    or belongs to someone else
*/
func (repository *PostgresSessionRepository) Revoke(context context.Context, userID, sessionID string) error {
	const query = `
		UPDATE iam.refresh_token
		SET invalidated = TRUE
		WHERE id = $1 AND userid = $2 AND invalidated = FALSE`

	tag, err := repository.pool.Exec(context, query, sessionID, userID)
	if err != nil {
		return fmt.Errorf("postgres_session_revoke_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Session")
	}

	return nil
}

/*
RevokeOthers invalidates every live session except the whitelisted one.

Parameters:
  - context: context.Context
  - userID: string
  - keepHash: string (Empty keeps nothing)

Returns:
  - error: Revocation failures
*/
func (repository *PostgresSessionRepository) RevokeOthers(context context.Context, userID, keepHash string) error {
	const query = `
		UPDATE iam.refresh_token
		SET invalidated = TRUE
		WHERE userid = $1
		  AND invalidated = FALSE
		  AND used = FALSE
		  AND tokenhash <> $2`

	if _, err := repository.pool.Exec(context, query, userID, keepHash); err != nil {
		return fmt.Errorf("postgres_session_revoke_others_failed: %w", err)
	}

	return nil
}
