// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package role

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianhq/adminkit/internal/iam/catalog"
	"github.com/meridianhq/adminkit/internal/platform/apperr"
	"github.com/meridianhq/adminkit/internal/platform/constants"
	"github.com/meridianhq/adminkit/internal/platform/dberr"
)

// PostgresRepository implements the Repository interface using pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL implementation of the role Repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

/*
Create persists a new role record into the iam.role table.

Parameters:
  - context: context.Context
  - role: *Role

Returns:
  - error: Database constraint violations or connectivity errors
*/
func (repository *PostgresRepository) Create(context context.Context, role *Role) error {
	const query = `
		INSERT INTO iam.role (id, name, description, issystem, createdat, updatedat)
		VALUES ($1, $2, $3, $4, $5, $6)`

	now := time.Now()
	if role.CreatedAt.IsZero() {
		role.CreatedAt = now
	}
	role.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		role.ID,
		role.Name,
		role.Description,
		role.IsSystem,
		role.CreatedAt,
		role.UpdatedAt,
	)

	// The role_name_unique index backs the case-insensitive name check; a
	// concurrent create racing past the service pre-check lands here as 409.
	return dberr.Wrap(err, "create_role")
}

// hydrate loads permission claims and member count into a scanned role.
func (repository *PostgresRepository) hydrate(context context.Context, role *Role) error {
	const claimsQuery = `
		SELECT claimvalue FROM iam.role_permission
		WHERE roleid = $1 AND claimtype = $2
		ORDER BY claimvalue`

	rows, err := repository.pool.Query(context, claimsQuery, role.ID, constants.PermissionClaimType)
	if err != nil {
		return fmt.Errorf("postgres_role_repo_claims_failed: %w", err)
	}
	defer rows.Close()

	role.Permissions = []string{}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return fmt.Errorf("postgres_role_repo_claims_scan_failed: %w", err)
		}
		role.Permissions = append(role.Permissions, value)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	const countQuery = "SELECT COUNT(*) FROM iam.user_role WHERE roleid = $1"
	if err := repository.pool.QueryRow(context, countQuery, role.ID).Scan(&role.MemberCount); err != nil {
		return fmt.Errorf("postgres_role_repo_member_count_failed: %w", err)
	}

	role.Rank = catalog.RankOf(role.Name)
	return nil
}

/*
FindByID retrieves a role by its unique ID.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Role: Hydrated entity with claims and member count
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresRepository) FindByID(context context.Context, id string) (*Role, error) {
	const query = `
		SELECT id, name, description, issystem, createdat, updatedat
		FROM iam.role WHERE id = $1`

	role := &Role{}
	err := repository.pool.QueryRow(context, query, id).Scan(
		&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Role not found")
		}
		return nil, fmt.Errorf("postgres_role_repo_find_by_id_failed: %w", err)
	}

	if err := repository.hydrate(context, role); err != nil {
		return nil, err
	}
	return role, nil
}

/*
FindByName retrieves a role by name, compared case-insensitively.

Parameters:
  - context: context.Context
  - name: string

Returns:
  - *Role: Hydrated entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresRepository) FindByName(context context.Context, name string) (*Role, error) {
	const query = `
		SELECT id, name, description, issystem, createdat, updatedat
		FROM iam.role WHERE LOWER(name) = LOWER($1)`

	role := &Role{}
	err := repository.pool.QueryRow(context, query, name).Scan(
		&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Role not found")
		}
		return nil, fmt.Errorf("postgres_role_repo_find_by_name_failed: %w", err)
	}

	if err := repository.hydrate(context, role); err != nil {
		return nil, err
	}
	return role, nil
}

/*
List returns every role with claims and member counts, system roles first.

Parameters:
  - context: context.Context

Returns:
  - []Role: All roles
  - error: Retrieval failures
*/
func (repository *PostgresRepository) List(context context.Context) ([]Role, error) {
	const query = `
		SELECT id, name, description, issystem, createdat, updatedat
		FROM iam.role
		ORDER BY issystem DESC, name`

	rows, err := repository.pool.Query(context, query)
	if err != nil {
		return nil, fmt.Errorf("postgres_role_repo_list_failed: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(
			&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres_role_repo_list_scan_failed: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for index := range roles {
		if err := repository.hydrate(context, &roles[index]); err != nil {
			return nil, err
		}
	}

	return roles, nil
}

/*
Update persists name and description changes.

Parameters:
  - context: context.Context
  - role: *Role

Returns:
  - error: Update failures
*/
func (repository *PostgresRepository) Update(context context.Context, role *Role) error {
	const query = `
		UPDATE iam.role
		SET name = $2, description = $3, updatedat = $4
		WHERE id = $1`

	role.UpdatedAt = time.Now()
	_, err := repository.pool.Exec(context, query, role.ID, role.Name, role.Description, role.UpdatedAt)
	return dberr.Wrap(err, "update_role")
}

/*
Delete removes the role row; claims and memberships cascade.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: Deletion failures
*/
func (repository *PostgresRepository) Delete(context context.Context, id string) error {
	const query = "DELETE FROM iam.role WHERE id = $1"
	_, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres_role_repo_delete_failed: %w", err)
	}
	return nil
}

/*
MemberIDs returns the IDs of every user holding the role.

Parameters:
  - context: context.Context
  - roleID: string

Returns:
  - []string: User IDs
  - error: Retrieval failures
*/
func (repository *PostgresRepository) MemberIDs(context context.Context, roleID string) ([]string, error) {
	const query = "SELECT userid FROM iam.user_role WHERE roleid = $1"

	rows, err := repository.pool.Query(context, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("postgres_role_repo_member_ids_failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres_role_repo_member_ids_scan_failed: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

/*
ReplacePermissions atomically swaps the role's permission claims and rotates
every member's security stamp.

Description: DELETE + batched INSERT + per-member stamp UPDATE inside one
transaction. Either the new claim set and every stamp rotation commit
together, or nothing changes.

Parameters:
  - context: context.Context
  - roleID: string
  - permissions: []string
  - memberStamps: map[string]string (userID → new stamp)

Returns:
  - error: Transaction failures
*/
func (repository *PostgresRepository) ReplacePermissions(context context.Context, roleID string, permissions []string, memberStamps map[string]string) error {
	transaction, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres_role_repo_replace_begin_failed: %w", err)
	}
	defer transaction.Rollback(context)

	// 1. Replace-not-merge: drop the entire existing claim set
	if _, err := transaction.Exec(context,
		"DELETE FROM iam.role_permission WHERE roleid = $1 AND claimtype = $2",
		roleID, constants.PermissionClaimType); err != nil {
		return fmt.Errorf("postgres_role_repo_replace_delete_failed: %w", err)
	}

	// 2. Insert the new deduplicated set
	for _, permission := range permissions {
		if _, err := transaction.Exec(context,
			"INSERT INTO iam.role_permission (roleid, claimtype, claimvalue) VALUES ($1, $2, $3)",
			roleID, constants.PermissionClaimType, permission); err != nil {
			return fmt.Errorf("postgres_role_repo_replace_insert_failed: %w", err)
		}
	}

	// 3. Rotate every member's stamp in the same transaction
	now := time.Now()
	for userID, stamp := range memberStamps {
		if _, err := transaction.Exec(context,
			"UPDATE iam.account SET securitystamp = $2, updatedat = $3 WHERE id = $1",
			userID, stamp, now); err != nil {
			return fmt.Errorf("postgres_role_repo_replace_stamp_failed: %w", err)
		}
	}

	if err := transaction.Commit(context); err != nil {
		return fmt.Errorf("postgres_role_repo_replace_commit_failed: %w", err)
	}

	return nil
}
