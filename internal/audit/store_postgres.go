// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianhq/adminkit/pkg/uuid"
)

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewStore creates a new PostgreSQL implementation of the audit Store.
func NewStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

/*
Record appends one entry to audit.entry.

Parameters:
  - context: context.Context
  - entry: Entry

Returns:
  - error: Persistence failures
*/
func (store *PostgresStore) Record(context context.Context, entry Entry) error {
	const query = `
		INSERT INTO audit.entry (id, actorid, action, targettype, targetid, detail, createdat)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if entry.ID == "" {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	var detail []byte
	if entry.Detail != nil {
		encoded, err := json.Marshal(entry.Detail)
		if err != nil {
			return fmt.Errorf("postgres_audit_store_encode_failed: %w", err)
		}
		detail = encoded
	}

	_, err := store.pool.Exec(context, query,
		entry.ID,
		entry.ActorID,
		entry.Action,
		entry.TargetType,
		entry.TargetID,
		detail,
		entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_audit_store_record_failed: %w", err)
	}

	return nil
}

/*
List returns entries newest-first with a total count for pagination.

Parameters:
  - context: context.Context
  - limit: int
  - offset: int

Returns:
  - []Entry: Page of entries
  - int: Total entry count
  - error: Retrieval failures
*/
func (store *PostgresStore) List(context context.Context, limit, offset int) ([]Entry, int, error) {
	const countQuery = "SELECT COUNT(*) FROM audit.entry"

	var total int
	if err := store.pool.QueryRow(context, countQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres_audit_store_count_failed: %w", err)
	}

	const query = `
		SELECT id, actorid, action, targettype, targetid, detail, createdat
		FROM audit.entry
		ORDER BY createdat DESC
		LIMIT $1 OFFSET $2`

	rows, err := store.pool.Query(context, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres_audit_store_list_failed: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var detail []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.ActorID,
			&entry.Action,
			&entry.TargetType,
			&entry.TargetID,
			&detail,
			&entry.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("postgres_audit_store_scan_failed: %w", err)
		}
		if len(detail) > 0 {
			_ = json.Unmarshal(detail, &entry.Detail)
		}
		entries = append(entries, entry)
	}

	return entries, total, rows.Err()
}
