// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package dberr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/adminkit/internal/platform/apperr"
	"github.com/meridianhq/adminkit/internal/platform/dberr"
)

/*
TestWrap_Classification tests the SQLSTATE-to-AppError mapping.

The unique-violation case is what concurrent writers hit when they race past
an application-level uniqueness pre-check and collide on a partial unique
index; those must surface as 409, never as 500.
*/
func TestWrap_Classification(t *testing.T) {
	tests := []struct {
		name       string
		input      error
		wantStatus int
	}{
		{"no_rows", pgx.ErrNoRows, http.StatusNotFound},
		{"unique_violation", &pgconn.PgError{Code: "23505", ConstraintName: "account_email_live"}, http.StatusConflict},
		{"foreign_key_violation", &pgconn.PgError{Code: "23503"}, http.StatusConflict},
		{"other_pg_error", &pgconn.PgError{Code: "42P01"}, http.StatusInternalServerError},
		{"plain_error", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := dberr.Wrap(tt.input, "test_action")

			appError := apperr.As(wrapped)
			require.NotNil(t, appError)
			assert.Equal(t, tt.wantStatus, appError.HTTPStatus)
		})
	}
}

func TestWrap_NilPassesThrough(t *testing.T) {
	assert.NoError(t, dberr.Wrap(nil, "noop"))
}

func TestWrap_WrappedPgErrorIsStillClassified(t *testing.T) {
	// Drivers often wrap the PgError; errors.As must still find it.
	cause := fmt.Errorf("exec failed: %w", &pgconn.PgError{Code: "23505"})

	appError := apperr.As(dberr.Wrap(cause, "create_account"))
	require.NotNil(t, appError)
	assert.Equal(t, http.StatusConflict, appError.HTTPStatus)
}
