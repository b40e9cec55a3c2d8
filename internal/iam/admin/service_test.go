// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package admin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/adminkit/internal/audit"
	"github.com/meridianhq/adminkit/internal/iam/auth"
	"github.com/meridianhq/adminkit/internal/iam/catalog"
	"github.com/meridianhq/adminkit/internal/platform/apperr"
	"github.com/meridianhq/adminkit/internal/platform/sec"
	"github.com/meridianhq/adminkit/pkg/uuid"
)

// # In-Memory Fakes

type fakeDirectory struct {
	mu      sync.Mutex
	users   map[string]*auth.User
	roles   map[string][]string
	stamps  map[string]string
	deleted map[string]bool
	resets  []string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:   make(map[string]*auth.User),
		roles:   make(map[string][]string),
		stamps:  make(map[string]string),
		deleted: make(map[string]bool),
	}
}

func (f *fakeDirectory) seed(roleNames ...string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.users[id] = &auth.User{ID: id, Username: "user-" + id[:8], Email: id[:8] + "@adminkit.test"}
	f.roles[id] = roleNames
	return id
}

func (f *fakeDirectory) List(_ context.Context, limit, offset int) ([]auth.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []auth.User
	for id, user := range f.users {
		if !f.deleted[id] {
			all = append(all, *user)
		}
	}
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (f *fakeDirectory) FindByID(_ context.Context, id string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok || f.deleted[id] {
		return nil, apperr.NotFound("User")
	}
	clone := *user
	return &clone, nil
}

func (f *fakeDirectory) SetLockout(_ context.Context, userID string, until *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return apperr.NotFound("User")
	}
	user.LockoutUntil = until
	return nil
}

func (f *fakeDirectory) ResetAccessFailures(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user, ok := f.users[userID]; ok {
		user.AccessFailedCount = 0
	}
	f.resets = append(f.resets, userID)
	return nil
}

func (f *fakeDirectory) SoftDelete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[id] = true
	return nil
}

func (f *fakeDirectory) AssignRole(_ context.Context, userID, roleName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, held := range f.roles[userID] {
		if catalog.Fold(held) == catalog.Fold(roleName) {
			return nil
		}
	}
	f.roles[userID] = append(f.roles[userID], roleName)
	return nil
}

func (f *fakeDirectory) RemoveRole(_ context.Context, userID, roleName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.roles[userID][:0]
	for _, held := range f.roles[userID] {
		if catalog.Fold(held) != catalog.Fold(roleName) {
			kept = append(kept, held)
		}
	}
	f.roles[userID] = kept
	return nil
}

func (f *fakeDirectory) RolesOf(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.roles[userID]...), nil
}

func (f *fakeDirectory) UpdateSecurityStamp(_ context.Context, userID, stamp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stamps[userID] = stamp
	return nil
}

type fakeRevoker struct {
	mu      sync.Mutex
	revoked []string
}

func (f *fakeRevoker) RevokeAllForUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, userID)
	return nil
}

type fakeEvictor struct {
	mu      sync.Mutex
	evicted []string
}

func (f *fakeEvictor) Evict(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = append(f.evicted, userID)
	return nil
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Record(_ context.Context, entry audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// # Test Harness

type adminHarness struct {
	directory *fakeDirectory
	revoker   *fakeRevoker
	evictor   *fakeEvictor
	trail     *recordingAudit
	service   *Service
}

func newAdminHarness(t *testing.T) *adminHarness {
	t.Helper()
	directory := newFakeDirectory()
	revoker := &fakeRevoker{}
	evictor := &fakeEvictor{}
	trail := &recordingAudit{}
	return &adminHarness{
		directory: directory,
		revoker:   revoker,
		evictor:   evictor,
		trail:     trail,
		service:   NewService(directory, revoker, evictor, trail),
	}
}

func actorClaims(userID string, roles ...string) *sec.AuthClaims {
	return &sec.AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
		Roles:            roles,
	}
}

// # Tests

func TestService_Lock_IsIdempotentAndRevokesSessions(t *testing.T) {
	h := newAdminHarness(t)
	ctx := context.Background()
	adminID := h.directory.seed(catalog.RoleAdmin)
	targetID := h.directory.seed(catalog.RoleUser)
	actor := actorClaims(adminID, catalog.RoleAdmin)

	require.NoError(t, h.service.Lock(ctx, actor, targetID))
	locked, err := h.service.Get(ctx, targetID)
	require.NoError(t, err)
	require.NotNil(t, locked.LockoutUntil)
	assert.True(t, locked.LockoutUntil.After(time.Now().AddDate(100, 0, 0)),
		"administrative lock is effectively indefinite")
	assert.Equal(t, []string{targetID}, h.revoker.revoked)

	// Locking twice succeeds and re-revokes.
	require.NoError(t, h.service.Lock(ctx, actor, targetID))
	assert.Equal(t, []string{targetID, targetID}, h.revoker.revoked)
	assert.Len(t, h.trail.entries, 2)
}

func TestService_Unlock_IsIdempotentAndResetsFailures(t *testing.T) {
	h := newAdminHarness(t)
	ctx := context.Background()
	adminID := h.directory.seed(catalog.RoleAdmin)
	targetID := h.directory.seed(catalog.RoleUser)
	actor := actorClaims(adminID, catalog.RoleAdmin)

	require.NoError(t, h.service.Lock(ctx, actor, targetID))
	require.NoError(t, h.service.Unlock(ctx, actor, targetID))

	unlocked, err := h.service.Get(ctx, targetID)
	require.NoError(t, err)
	assert.Nil(t, unlocked.LockoutUntil)
	assert.Contains(t, h.directory.resets, targetID)

	// Unlocking an unlocked account is fine.
	require.NoError(t, h.service.Unlock(ctx, actor, targetID))
}

func TestService_HierarchyIsSymmetric(t *testing.T) {
	h := newAdminHarness(t)
	ctx := context.Background()
	adminA := h.directory.seed(catalog.RoleAdmin)
	adminB := h.directory.seed(catalog.RoleAdmin)

	// Equal ranks: neither admin can act on the other.
	err := h.service.Lock(ctx, actorClaims(adminA, catalog.RoleAdmin), adminB)
	require.Error(t, err)
	assert.Equal(t, 403, apperr.As(err).HTTPStatus)

	err = h.service.Lock(ctx, actorClaims(adminB, catalog.RoleAdmin), adminA)
	require.Error(t, err)
	assert.Equal(t, 403, apperr.As(err).HTTPStatus)

	// And acting upwards never works.
	userID := h.directory.seed(catalog.RoleUser)
	err = h.service.Delete(ctx, actorClaims(userID, catalog.RoleUser), adminA)
	require.Error(t, err)
	assert.Equal(t, 403, apperr.As(err).HTTPStatus)

	assert.Empty(t, h.revoker.revoked)
	assert.Empty(t, h.trail.entries)
}

func TestService_CustomRolesRankBelowUser(t *testing.T) {
	h := newAdminHarness(t)
	ctx := context.Background()
	userID := h.directory.seed(catalog.RoleUser)
	supportID := h.directory.seed("Support")

	// A built-in User (rank 1) outranks a custom-role holder (rank 0).
	require.NoError(t, h.service.Lock(ctx, actorClaims(userID, catalog.RoleUser), supportID))

	// The reverse is rejected.
	err := h.service.Lock(ctx, actorClaims(supportID, "Support"), userID)
	require.Error(t, err)
	assert.Equal(t, 403, apperr.As(err).HTTPStatus)
}

func TestService_SelfActionsRejected(t *testing.T) {
	h := newAdminHarness(t)
	ctx := context.Background()
	superID := h.directory.seed(catalog.RoleSuperAdmin)
	actor := actorClaims(superID, catalog.RoleSuperAdmin)

	for name, act := range map[string]func() error{
		"lock":        func() error { return h.service.Lock(ctx, actor, superID) },
		"delete":      func() error { return h.service.Delete(ctx, actor, superID) },
		"assign role": func() error { return h.service.AssignRole(ctx, actor, superID, "Support") },
		"remove role": func() error { return h.service.RemoveRole(ctx, actor, superID, catalog.RoleSuperAdmin) },
	} {
		err := act()
		require.Error(t, err, "self %s must be rejected", name)
		assert.Equal(t, 409, apperr.As(err).HTTPStatus, "self %s", name)
	}
}

func TestService_Delete_SoftDeletesAndRevokes(t *testing.T) {
	h := newAdminHarness(t)
	ctx := context.Background()
	adminID := h.directory.seed(catalog.RoleAdmin)
	targetID := h.directory.seed(catalog.RoleUser)

	require.NoError(t, h.service.Delete(ctx, actorClaims(adminID, catalog.RoleAdmin), targetID))

	_, err := h.service.Get(ctx, targetID)
	require.Error(t, err)
	assert.Equal(t, 404, apperr.As(err).HTTPStatus)
	assert.Equal(t, []string{targetID}, h.revoker.revoked)
}

func TestService_AssignRole_RankRules(t *testing.T) {
	h := newAdminHarness(t)
	ctx := context.Background()
	adminID := h.directory.seed(catalog.RoleAdmin)
	targetID := h.directory.seed(catalog.RoleUser)
	actor := actorClaims(adminID, catalog.RoleAdmin)

	// Admin (rank 2) can grant User (rank 1) and custom roles (rank 0).
	require.NoError(t, h.service.AssignRole(ctx, actor, targetID, "Support"))

	// But never a role of its own rank or above.
	err := h.service.AssignRole(ctx, actor, targetID, catalog.RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, 403, apperr.As(err).HTTPStatus)

	// SuperAdmin is ungrantable even by a SuperAdmin: 3 is not > 3.
	superID := h.directory.seed(catalog.RoleSuperAdmin)
	err = h.service.AssignRole(ctx, actorClaims(superID, catalog.RoleSuperAdmin), targetID, catalog.RoleSuperAdmin)
	require.Error(t, err)
	assert.Equal(t, 403, apperr.As(err).HTTPStatus)
}

func TestService_RoleChangeRotatesStampWithoutKillingSessions(t *testing.T) {
	h := newAdminHarness(t)
	ctx := context.Background()
	adminID := h.directory.seed(catalog.RoleAdmin)
	targetID := h.directory.seed(catalog.RoleUser)
	actor := actorClaims(adminID, catalog.RoleAdmin)

	require.NoError(t, h.service.AssignRole(ctx, actor, targetID, "Support"))
	firstStamp := h.directory.stamps[targetID]
	require.NotEmpty(t, firstStamp, "assignment must rotate the stamp")
	assert.Equal(t, []string{targetID}, h.evictor.evicted)
	assert.Empty(t, h.revoker.revoked, "refresh chain survives a role change")

	require.NoError(t, h.service.RemoveRole(ctx, actor, targetID, "Support"))
	assert.NotEqual(t, firstStamp, h.directory.stamps[targetID])

	roles, err := h.directory.RolesOf(ctx, targetID)
	require.NoError(t, err)
	assert.Equal(t, []string{catalog.RoleUser}, roles)
}

func TestService_List_HydratesRolesAndRank(t *testing.T) {
	h := newAdminHarness(t)
	ctx := context.Background()
	h.directory.seed(catalog.RoleSuperAdmin)
	h.directory.seed(catalog.RoleAdmin, "Support")
	h.directory.seed()

	accounts, total, err := h.service.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, accounts, 3)

	byRank := make(map[int]int)
	for _, account := range accounts {
		assert.NotNil(t, account.Roles)
		byRank[account.Rank]++
	}
	assert.Equal(t, map[int]int{catalog.RankSuperAdmin: 1, catalog.RankAdmin: 1, catalog.RankCustom: 1}, byRank)
}
