// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

// PostgreSQL implementations of the identity storage contracts.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped to domain-friendly
// [apperr.AppError] types to avoid leaking storage implementation details.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianhq/adminkit/internal/platform/apperr"
	"github.com/meridianhq/adminkit/internal/platform/constants"
	"github.com/meridianhq/adminkit/internal/platform/dberr"
)

// # Credential Store

// PostgresCredentialStore implements the CredentialStore interface using pgx.
type PostgresCredentialStore struct {
	pool *pgxpool.Pool
}

// NewCredentialStore creates a new PostgreSQL implementation of the CredentialStore.
func NewCredentialStore(pool *pgxpool.Pool) *PostgresCredentialStore {
	return &PostgresCredentialStore{pool: pool}
}

const accountColumns = `
	id, username, email, passwordhash, displayname, phone, bio, avatarurl,
	securitystamp, emailconfirmed, accessfailedcount, lockoutuntil, createdat, updatedat`

// scanAccount hydrates a User from a single account row.
func scanAccount(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.Phone,
		&user.Bio,
		&user.AvatarURL,
		&user.SecurityStamp,
		&user.EmailConfirmed,
		&user.AccessFailedCount,
		&user.LockoutUntil,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

/*
Create persists a new user record into the iam.account table.

Description: Deep-persists account metadata, ensuring timestamps are initialized
if not provided.

Parameters:
  - context: context.Context
  - user: *User (Entity to persist)

Returns:
  - error: Database constraint violations or connectivity errors
*/
func (store *PostgresCredentialStore) Create(context context.Context, user *User) error {
	const query = `
		INSERT INTO iam.account (
			id, username, email, passwordhash, displayname, phone, bio, avatarurl,
			securitystamp, emailconfirmed, accessfailedcount, lockoutuntil, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := store.pool.Exec(context, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		user.Phone,
		user.Bio,
		user.AvatarURL,
		user.SecurityStamp,
		user.EmailConfirmed,
		user.AccessFailedCount,
		user.LockoutUntil,
		user.CreatedAt,
		user.UpdatedAt,
	)

	// Partial unique indexes on username/email/phone back the uniqueness
	// pre-checks; concurrent registrations racing past them land here as 409.
	return dberr.Wrap(err, "create_account")
}

/*
FindByID retrieves a user record by their unique ID.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (store *PostgresCredentialStore) FindByID(context context.Context, id string) (*User, error) {
	query := `SELECT ` + accountColumns + ` FROM iam.account WHERE id = $1 AND deletedat IS NULL`

	user, err := scanAccount(store.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, fmt.Errorf("postgres_credential_store_find_by_id_failed: %w", err)
	}

	return user, nil
}

/*
FindByEmail retrieves a user record by their unique email address.

Description: Performs a lookup on the account table, filtering out soft-deleted users.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (store *PostgresCredentialStore) FindByEmail(context context.Context, email string) (*User, error) {
	query := `SELECT ` + accountColumns + ` FROM iam.account WHERE email = $1 AND deletedat IS NULL`

	user, err := scanAccount(store.pool.QueryRow(context, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User not found with this email")
		}
		return nil, fmt.Errorf("postgres_credential_store_find_by_email_failed: %w", err)
	}

	return user, nil
}

/*
FindByUsername retrieves a user record by their unique username.

Parameters:
  - context: context.Context
  - username: string

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (store *PostgresCredentialStore) FindByUsername(context context.Context, username string) (*User, error) {
	query := `SELECT ` + accountColumns + ` FROM iam.account WHERE username = $1 AND deletedat IS NULL`

	user, err := scanAccount(store.pool.QueryRow(context, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User not found with this username")
		}
		return nil, fmt.Errorf("postgres_credential_store_find_by_username_failed: %w", err)
	}

	return user, nil
}

/*
FindByPhone retrieves a user record by their normalized phone number.

Parameters:
  - context: context.Context
  - phone: string

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (store *PostgresCredentialStore) FindByPhone(context context.Context, phone string) (*User, error) {
	query := `SELECT ` + accountColumns + ` FROM iam.account WHERE phone = $1 AND deletedat IS NULL`

	user, err := scanAccount(store.pool.QueryRow(context, query, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User not found with this phone number")
		}
		return nil, fmt.Errorf("postgres_credential_store_find_by_phone_failed: %w", err)
	}

	return user, nil
}

/*
Update persists changes to a user's mutable profile fields.

Description: Synchronizes the in-memory user state with the database,
refreshing the updatedat timestamp.

Parameters:
  - context: context.Context
  - user: *User

Returns:
  - error: Update failures
*/
func (store *PostgresCredentialStore) Update(context context.Context, user *User) error {
	const query = `
		UPDATE iam.account
		SET username = $2, displayname = $3, phone = $4, bio = $5, avatarurl = $6, updatedat = $7
		WHERE id = $1 AND deletedat IS NULL`

	user.UpdatedAt = time.Now()
	_, err := store.pool.Exec(context, query,
		user.ID,
		user.Username,
		user.DisplayName,
		user.Phone,
		user.Bio,
		user.AvatarURL,
		user.UpdatedAt,
	)

	return dberr.Wrap(err, "update_account")
}

/*
UpdatePassword updates only the password hash for a specific user.

Parameters:
  - context: context.Context
  - userID: string
  - newHash: string

Returns:
  - error: Execution errors
*/
func (store *PostgresCredentialStore) UpdatePassword(context context.Context, userID, newHash string) error {
	const query = `
		UPDATE iam.account
		SET passwordhash = $2, updatedat = $3
		WHERE id = $1 AND deletedat IS NULL`

	_, err := store.pool.Exec(context, query, userID, newHash, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_credential_store_update_password_failed: %w", err)
	}

	return nil
}

/*
UpdateSecurityStamp replaces the user's security stamp.

Parameters:
  - context: context.Context
  - userID: string
  - stamp: string

Returns:
  - error: Execution errors
*/
func (store *PostgresCredentialStore) UpdateSecurityStamp(context context.Context, userID, stamp string) error {
	const query = `
		UPDATE iam.account
		SET securitystamp = $2, updatedat = $3
		WHERE id = $1 AND deletedat IS NULL`

	_, err := store.pool.Exec(context, query, userID, stamp, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_credential_store_update_stamp_failed: %w", err)
	}

	return nil
}

/*
RecordAccessFailure increments the failed-login counter and optionally
starts a lockout window.

Parameters:
  - context: context.Context
  - userID: string
  - lockoutUntil: *time.Time (nil leaves the window untouched)

Returns:
  - error: Execution errors
*/
func (store *PostgresCredentialStore) RecordAccessFailure(context context.Context, userID string, lockoutUntil *time.Time) error {
	const query = `
		UPDATE iam.account
		SET accessfailedcount = accessfailedcount + 1,
		    lockoutuntil = COALESCE($2, lockoutuntil),
		    updatedat = $3
		WHERE id = $1 AND deletedat IS NULL`

	_, err := store.pool.Exec(context, query, userID, lockoutUntil, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_credential_store_record_failure_failed: %w", err)
	}

	return nil
}

/*
ResetAccessFailures zeroes the failed-login counter after a successful login.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Execution errors
*/
func (store *PostgresCredentialStore) ResetAccessFailures(context context.Context, userID string) error {
	const query = `
		UPDATE iam.account
		SET accessfailedcount = 0, updatedat = $2
		WHERE id = $1 AND deletedat IS NULL`

	_, err := store.pool.Exec(context, query, userID, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_credential_store_reset_failures_failed: %w", err)
	}

	return nil
}

/*
SetLockout sets or clears the lockout window and resets the failure counter.

Parameters:
  - context: context.Context
  - userID: string
  - until: *time.Time (nil clears the lockout)

Returns:
  - error: Execution errors
*/
func (store *PostgresCredentialStore) SetLockout(context context.Context, userID string, until *time.Time) error {
	const query = `
		UPDATE iam.account
		SET lockoutuntil = $2, accessfailedcount = 0, updatedat = $3
		WHERE id = $1 AND deletedat IS NULL`

	_, err := store.pool.Exec(context, query, userID, until, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_credential_store_set_lockout_failed: %w", err)
	}

	return nil
}

/*
MarkEmailConfirmed updates the user's status to emailconfirmed = true.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - error: Database errors
*/
func (store *PostgresCredentialStore) MarkEmailConfirmed(context context.Context, userID string) error {
	const query = "UPDATE iam.account SET emailconfirmed = TRUE, updatedat = $2 WHERE id = $1"
	_, err := store.pool.Exec(context, query, userID, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_credential_store_mark_confirmed_failed: %w", err)
	}
	return nil
}

/*
SoftDelete marks a user account as deleted using their ID.

Description: Retention-friendly deletion by setting deletedat.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: Side-effect failures
*/
func (store *PostgresCredentialStore) SoftDelete(context context.Context, id string) error {
	const query = "UPDATE iam.account SET deletedat = $2 WHERE id = $1"
	_, err := store.pool.Exec(context, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_credential_store_soft_delete_failed: %w", err)
	}
	return nil
}

/*
AssignRole adds the user to the named role.

Description: Resolves the role by case-insensitive name, then inserts the
membership row. ON CONFLICT makes repeated assignment a no-op.

Parameters:
  - context: context.Context
  - userID: string
  - roleName: string

Returns:
  - error: apperr.NotFound for an unknown role, or execution errors
*/
func (store *PostgresCredentialStore) AssignRole(context context.Context, userID, roleName string) error {
	const query = `
		INSERT INTO iam.user_role (userid, roleid)
		SELECT $1, id FROM iam.role WHERE LOWER(name) = LOWER($2)
		ON CONFLICT (userid, roleid) DO NOTHING`

	tag, err := store.pool.Exec(context, query, userID, roleName)
	if err != nil {
		return fmt.Errorf("postgres_credential_store_assign_role_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish an unknown role from an already-held one
		var exists bool
		if err := store.pool.QueryRow(context,
			"SELECT EXISTS (SELECT 1 FROM iam.role WHERE LOWER(name) = LOWER($1))", roleName).Scan(&exists); err != nil {
			return fmt.Errorf("postgres_credential_store_assign_role_check_failed: %w", err)
		}
		if !exists {
			return apperr.NotFound("Role not found")
		}
	}

	return nil
}

/*
RolesOf returns the names of every role the user holds.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - []string: Role names
  - error: Retrieval failures
*/
func (store *PostgresCredentialStore) RolesOf(context context.Context, userID string) ([]string, error) {
	const query = `
		SELECT r.name
		FROM iam.user_role ur
		JOIN iam.role r ON r.id = ur.roleid
		WHERE ur.userid = $1
		ORDER BY r.name`

	rows, err := store.pool.Query(context, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_credential_store_roles_of_failed: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("postgres_credential_store_roles_of_scan_failed: %w", err)
		}
		roles = append(roles, name)
	}

	return roles, rows.Err()
}

/*
PermissionsOf returns the deduplicated permission claims resolved transitively
from every role the user holds.

Description: One set-valued query joining role claims to the user's role
memberships. DISTINCT performs the ordinal deduplication.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - []string: Permission claim values
  - error: Retrieval failures
*/
func (store *PostgresCredentialStore) PermissionsOf(context context.Context, userID string) ([]string, error) {
	const query = `
		SELECT DISTINCT rp.claimvalue
		FROM iam.user_role ur
		JOIN iam.role_permission rp ON rp.roleid = ur.roleid
		WHERE ur.userid = $1 AND rp.claimtype = $2
		ORDER BY rp.claimvalue`

	rows, err := store.pool.Query(context, query, userID, constants.PermissionClaimType)
	if err != nil {
		return nil, fmt.Errorf("postgres_credential_store_permissions_of_failed: %w", err)
	}
	defer rows.Close()

	var permissions []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("postgres_credential_store_permissions_of_scan_failed: %w", err)
		}
		permissions = append(permissions, value)
	}

	return permissions, rows.Err()
}

// # Refresh-Token Ledger

// PostgresTokenLedger implements the TokenLedger interface using pgx.
type PostgresTokenLedger struct {
	pool *pgxpool.Pool
}

// NewTokenLedger creates a new PostgreSQL implementation of the TokenLedger.
func NewTokenLedger(pool *pgxpool.Pool) *PostgresTokenLedger {
	return &PostgresTokenLedger{pool: pool}
}

/*
Create persists a new refresh token row into iam.refresh_token.

Parameters:
  - context: context.Context
  - token: *RefreshToken

Returns:
  - error: Storage failures
*/
func (ledger *PostgresTokenLedger) Create(context context.Context, token *RefreshToken) error {
	const query = `
		INSERT INTO iam.refresh_token (
			id, userid, tokenhash, persistent, used, invalidated, expiresat, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	_, err := ledger.pool.Exec(context, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.Persistent,
		token.Used,
		token.Invalidated,
		token.ExpiresAt,
		token.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_token_ledger_create_failed: %w", err)
	}

	return nil
}

/*
FindByHash retrieves a refresh token by its unique secret hash.

Description: Returns the row regardless of state — the rotation protocol
needs to observe used/invalidated tokens, not just active ones.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - *RefreshToken: Hydrated entity
  - error: apperr.NotFound or execution errors
*/
func (ledger *PostgresTokenLedger) FindByHash(context context.Context, tokenHash string) (*RefreshToken, error) {
	const query = `
		SELECT id, userid, tokenhash, persistent, used, invalidated, expiresat, createdat
		FROM iam.refresh_token
		WHERE tokenhash = $1`

	token := &RefreshToken{}
	err := ledger.pool.QueryRow(context, query, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.Persistent,
		&token.Used,
		&token.Invalidated,
		&token.ExpiresAt,
		&token.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Refresh token not found")
		}
		return nil, fmt.Errorf("postgres_token_ledger_find_failed: %w", err)
	}

	return token, nil
}

/*
MarkUsed flips used = true, but only when the token is still active.

Description: The conditional WHERE clause is the single-winner guarantee for
concurrent rotations of the same secret — exactly one caller observes an
affected row; every other caller sees zero rows and takes the reuse path.

Parameters:
  - context: context.Context
  - tokenID: string

Returns:
  - bool: true when this caller performed the transition
  - error: Execution errors
*/
func (ledger *PostgresTokenLedger) MarkUsed(context context.Context, tokenID string) (bool, error) {
	const query = `
		UPDATE iam.refresh_token
		SET used = TRUE
		WHERE id = $1 AND used = FALSE AND invalidated = FALSE`

	tag, err := ledger.pool.Exec(context, query, tokenID)
	if err != nil {
		return false, fmt.Errorf("postgres_token_ledger_mark_used_failed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

/*
Invalidate marks a single refresh token as invalidated.

Parameters:
  - context: context.Context
  - tokenID: string

Returns:
  - error: Execution errors
*/
func (ledger *PostgresTokenLedger) Invalidate(context context.Context, tokenID string) error {
	const query = "UPDATE iam.refresh_token SET invalidated = TRUE WHERE id = $1"
	_, err := ledger.pool.Exec(context, query, tokenID)
	if err != nil {
		return fmt.Errorf("postgres_token_ledger_invalidate_failed: %w", err)
	}
	return nil
}

/*
BurnFamily handles the reuse-detection teardown in a single transaction.

Description: Invalidates the triggering token, every other non-invalidated
token owned by the user, and rotates the security stamp. Either all three
mutations commit or none do.

Parameters:
  - context: context.Context
  - tokenID: string
  - userID: string
  - newStamp: string

Returns:
  - error: Transaction failures
*/
func (ledger *PostgresTokenLedger) BurnFamily(context context.Context, tokenID, userID, newStamp string) error {
	transaction, err := ledger.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres_token_ledger_burn_begin_failed: %w", err)
	}
	defer transaction.Rollback(context)

	// 1. Invalidate the triggering token explicitly
	if _, err := transaction.Exec(context,
		"UPDATE iam.refresh_token SET invalidated = TRUE WHERE id = $1", tokenID); err != nil {
		return fmt.Errorf("postgres_token_ledger_burn_token_failed: %w", err)
	}

	// 2. Invalidate every other live token owned by the user
	if _, err := transaction.Exec(context,
		"UPDATE iam.refresh_token SET invalidated = TRUE WHERE userid = $1 AND invalidated = FALSE", userID); err != nil {
		return fmt.Errorf("postgres_token_ledger_burn_family_failed: %w", err)
	}

	// 3. Rotate the security stamp so outstanding access tokens go stale
	if _, err := transaction.Exec(context,
		"UPDATE iam.account SET securitystamp = $2, updatedat = $3 WHERE id = $1", userID, newStamp, time.Now()); err != nil {
		return fmt.Errorf("postgres_token_ledger_burn_stamp_failed: %w", err)
	}

	if err := transaction.Commit(context); err != nil {
		return fmt.Errorf("postgres_token_ledger_burn_commit_failed: %w", err)
	}

	return nil
}

/*
InvalidateAllForUser revokes every live token for a user and rotates the
security stamp in a single transaction.

Parameters:
  - context: context.Context
  - userID: string
  - newStamp: string

Returns:
  - error: Transaction failures
*/
func (ledger *PostgresTokenLedger) InvalidateAllForUser(context context.Context, userID, newStamp string) error {
	transaction, err := ledger.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres_token_ledger_revoke_begin_failed: %w", err)
	}
	defer transaction.Rollback(context)

	if _, err := transaction.Exec(context,
		"UPDATE iam.refresh_token SET invalidated = TRUE WHERE userid = $1 AND invalidated = FALSE", userID); err != nil {
		return fmt.Errorf("postgres_token_ledger_revoke_all_failed: %w", err)
	}

	if _, err := transaction.Exec(context,
		"UPDATE iam.account SET securitystamp = $2, updatedat = $3 WHERE id = $1", userID, newStamp, time.Now()); err != nil {
		return fmt.Errorf("postgres_token_ledger_revoke_stamp_failed: %w", err)
	}

	if err := transaction.Commit(context); err != nil {
		return fmt.Errorf("postgres_token_ledger_revoke_commit_failed: %w", err)
	}

	return nil
}

// # Directory Queries

/*
List returns a page of active accounts ordered by creation time, newest first,
along with the total active-account count.

Parameters:
  - context: context.Context
  - limit: int
  - offset: int

Returns:
  - []User: The page of accounts
  - int: Total active accounts
  - error: Retrieval failures
*/
func (store *PostgresCredentialStore) List(context context.Context, limit, offset int) ([]User, int, error) {
	var total int
	if err := store.pool.QueryRow(context,
		"SELECT COUNT(*) FROM iam.account WHERE deletedat IS NULL").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres_credential_store_list_count_failed: %w", err)
	}

	query := `SELECT ` + accountColumns + `
		FROM iam.account
		WHERE deletedat IS NULL
		ORDER BY createdat DESC
		LIMIT $1 OFFSET $2`

	rows, err := store.pool.Query(context, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres_credential_store_list_failed: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanAccount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres_credential_store_list_scan_failed: %w", err)
		}
		users = append(users, *user)
	}

	return users, total, rows.Err()
}

/*
RemoveRole detaches the named role from the user.

Description: Removing a role the user does not hold is a no-op, but an unknown
role name is surfaced as NotFound so callers cannot silently typo a role away.

Parameters:
  - context: context.Context
  - userID: string
  - roleName: string

Returns:
  - error: NotFound or persistence failures
*/
func (store *PostgresCredentialStore) RemoveRole(context context.Context, userID, roleName string) error {
	const query = `
		DELETE FROM iam.user_role
		WHERE userid = $1
		  AND roleid = (SELECT id FROM iam.role WHERE LOWER(name) = LOWER($2))`

	tag, err := store.pool.Exec(context, query, userID, roleName)
	if err != nil {
		return fmt.Errorf("postgres_credential_store_remove_role_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := store.pool.QueryRow(context,
			"SELECT EXISTS (SELECT 1 FROM iam.role WHERE LOWER(name) = LOWER($1))", roleName).Scan(&exists); err != nil {
			return fmt.Errorf("postgres_credential_store_remove_role_check_failed: %w", err)
		}
		if !exists {
			return apperr.NotFound("Role not found")
		}
	}

	return nil
}
