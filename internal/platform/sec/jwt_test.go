// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package sec_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/adminkit/internal/iam/catalog"
	"github.com/meridianhq/adminkit/internal/platform/clock"
	"github.com/meridianhq/adminkit/internal/platform/sec"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T, clk clock.Clock) *sec.TokenService {
	t.Helper()
	service, err := sec.NewTokenService(testSecret, "adminkit.test", 10*time.Minute, clk)
	require.NoError(t, err)
	return service
}

/*
TestTokenService_IssueAndVerify verifies the full claim set survives an
issue/verify roundtrip.
*/
func TestTokenService_IssueAndVerify(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	service := newTestService(t, clk)

	signed, err := service.IssueAccessToken(sec.IssueInput{
		UserID:        "user-1",
		Username:      "alice",
		Email:         "alice@example.com",
		SecurityStamp: "stamp-v1",
		Roles:         []string{"Admin", "Support"},
		Permissions:   []string{"users.view", "users.lock"},
	})
	require.NoError(t, err)

	claims, err := service.VerifyToken(signed)
	require.NoError(t, err)

	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "alice", claims.UniqueName)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, []string{"Admin", "Support"}, claims.Roles)
	assert.Equal(t, []string{"users.view", "users.lock"}, claims.Permissions)
	assert.NotEmpty(t, claims.ID, "every issuance must carry a unique jti")
	assert.True(t, claims.MatchesStamp("stamp-v1"))
	assert.False(t, claims.MatchesStamp("stamp-v2"))
}

/*
TestTokenService_UniqueJTI verifies two tokens for the same user at the same
instant still differ.
*/
func TestTokenService_UniqueJTI(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	service := newTestService(t, clk)

	input := sec.IssueInput{UserID: "user-1", Username: "alice", SecurityStamp: "s"}

	first, err := service.IssueAccessToken(input)
	require.NoError(t, err)
	second, err := service.IssueAccessToken(input)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

/*
TestTokenService_Expiry verifies expiry is evaluated against the injected
clock: a token is valid before its TTL elapses and rejected after.
*/
func TestTokenService_Expiry(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	service := newTestService(t, clk)

	signed, err := service.IssueAccessToken(sec.IssueInput{UserID: "user-1", SecurityStamp: "s"})
	require.NoError(t, err)

	clk.Advance(9 * time.Minute)
	_, err = service.VerifyToken(signed)
	assert.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = service.VerifyToken(signed)
	assert.Error(t, err)
}

/*
TestTokenService_RejectsTampering verifies signature validation.
*/
func TestTokenService_RejectsTampering(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	service := newTestService(t, clk)

	signed, err := service.IssueAccessToken(sec.IssueInput{UserID: "user-1", SecurityStamp: "s"})
	require.NoError(t, err)

	parts := strings.Split(signed, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]

	_, err = service.VerifyToken(tampered)
	assert.Error(t, err)
}

/*
TestAuthClaims_HasPermission verifies the authorization decision point:
exact-match permission claims, the SuperAdmin bypass, and default deny.
*/
func TestAuthClaims_HasPermission(t *testing.T) {
	tests := []struct {
		name        string
		roles       []string
		permissions []string
		required    catalog.Permission
		allowed     bool
	}{
		{"exact_match", []string{"Support"}, []string{"users.view"}, catalog.PermUsersView, true},
		{"no_match", []string{"Support"}, []string{"users.view"}, catalog.PermUsersDelete, false},
		{"empty_claims", nil, nil, catalog.PermUsersView, false},
		{"superadmin_bypass", []string{"SuperAdmin"}, nil, catalog.PermUsersDelete, true},
		{"superadmin_case_insensitive", []string{"superadmin"}, nil, catalog.PermRolesManage, true},
		{"admin_is_not_bypassed", []string{"Admin"}, nil, catalog.PermUsersDelete, false},
		{"permission_is_ordinal", []string{"Support"}, []string{"Users.View"}, catalog.PermUsersView, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := &sec.AuthClaims{Roles: tt.roles, Permissions: tt.permissions}
			assert.Equal(t, tt.allowed, claims.HasPermission(tt.required))
		})
	}
}

/*
TestNewTokenService_RejectsWeakSecret verifies startup validation of the key.
*/
func TestNewTokenService_RejectsWeakSecret(t *testing.T) {
	_, err := sec.NewTokenService("too-short", "adminkit.test", time.Minute, clock.System{})
	assert.Error(t, err)
}
