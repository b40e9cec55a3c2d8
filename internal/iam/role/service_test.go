// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package role

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/adminkit/internal/audit"
	"github.com/meridianhq/adminkit/internal/iam/catalog"
	"github.com/meridianhq/adminkit/internal/platform/apperr"
	"github.com/meridianhq/adminkit/pkg/pointer"
	"github.com/meridianhq/adminkit/pkg/uuid"
)

// # In-Memory Fakes

type fakeRepository struct {
	mu      sync.Mutex
	roles   map[string]*Role // by ID
	members map[string][]string
	stamps  map[string]string // userID -> last stamp written via ReplacePermissions
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		roles:   make(map[string]*Role),
		members: make(map[string][]string),
		stamps:  make(map[string]string),
	}
}

func (f *fakeRepository) Create(_ context.Context, role *Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *role
	f.roles[role.ID] = &clone
	return nil
}

func (f *fakeRepository) FindByID(_ context.Context, id string) (*Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[id]
	if !ok {
		return nil, apperr.NotFound("Role")
	}
	clone := *role
	clone.MemberCount = len(f.members[id])
	clone.Rank = catalog.RankOf(role.Name)
	return &clone, nil
}

func (f *fakeRepository) FindByName(_ context.Context, name string) (*Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, role := range f.roles {
		if catalog.Fold(role.Name) == catalog.Fold(name) {
			clone := *role
			clone.MemberCount = len(f.members[role.ID])
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("Role")
}

func (f *fakeRepository) List(_ context.Context) ([]Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Role, 0, len(f.roles))
	for _, role := range f.roles {
		clone := *role
		clone.MemberCount = len(f.members[role.ID])
		out = append(out, clone)
	}
	return out, nil
}

func (f *fakeRepository) Update(_ context.Context, role *Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[role.ID]; !ok {
		return apperr.NotFound("Role")
	}
	clone := *role
	f.roles[role.ID] = &clone
	return nil
}

func (f *fakeRepository) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[id]; !ok {
		return apperr.NotFound("Role")
	}
	delete(f.roles, id)
	delete(f.members, id)
	return nil
}

func (f *fakeRepository) MemberIDs(_ context.Context, roleID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.members[roleID]...), nil
}

func (f *fakeRepository) ReplacePermissions(_ context.Context, roleID string, permissions []string, memberStamps map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[roleID]
	if !ok {
		return apperr.NotFound("Role")
	}
	role.Permissions = append([]string(nil), permissions...)
	for userID, stamp := range memberStamps {
		f.stamps[userID] = stamp
	}
	return nil
}

func (f *fakeRepository) seed(name string, system bool, members ...string) *Role {
	f.mu.Lock()
	defer f.mu.Unlock()
	role := &Role{
		ID:          uuid.New(),
		Name:        name,
		IsSystem:    system,
		Permissions: []string{},
	}
	f.roles[role.ID] = role
	f.members[role.ID] = members
	return role
}

type fakeStampEvictor struct {
	mu      sync.Mutex
	evicted []string
}

func (f *fakeStampEvictor) Evict(_ context.Context, userID string) error {
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

type roleHarness struct {
	repo    *fakeRepository
	evictor *fakeStampEvictor
	trail   *recordingAudit
	service *Service
}

func newRoleHarness(t *testing.T) *roleHarness {
	t.Helper()
	repo := newFakeRepository()
	evictor := &fakeStampEvictor{}
	trail := &recordingAudit{}
	return &roleHarness{
		repo:    repo,
		evictor: evictor,
		trail:   trail,
		service: NewService(repo, evictor, trail),
	}
}

// # Tests

func TestService_Create_RejectsReservedNamesAnyCasing(t *testing.T) {
	h := newRoleHarness(t)
	ctx := context.Background()

	for _, name := range []string{"SuperAdmin", "superadmin", "ADMIN", "user", "uSeR"} {
		_, err := h.service.Create(ctx, "actor-1", name, "")
		require.Error(t, err, "reserved name %q must be rejected", name)
		appErr := apperr.As(err)
		require.NotNil(t, appErr)
		assert.Equal(t, 400, appErr.HTTPStatus)
	}

	assert.Empty(t, h.trail.entries, "failed creates must not be audited")
}

func TestService_Create_RejectsDuplicateNameCaseInsensitive(t *testing.T) {
	h := newRoleHarness(t)
	ctx := context.Background()

	created, err := h.service.Create(ctx, "actor-1", "Support", "First-line support staff")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Empty(t, created.Permissions, "new roles start with no permissions")

	_, err = h.service.Create(ctx, "actor-1", "SUPPORT", "")
	require.Error(t, err)
	assert.Equal(t, 409, apperr.As(err).HTTPStatus)
}

func TestService_Update_SystemRoleRenameRejected(t *testing.T) {
	h := newRoleHarness(t)
	ctx := context.Background()
	admin := h.repo.seed(catalog.RoleAdmin, true)

	_, err := h.service.Update(ctx, "actor-1", admin.ID, UpdateInput{Name: pointer.To("Operators")})
	require.Error(t, err)
	assert.Equal(t, 409, apperr.As(err).HTTPStatus)

	// Descriptions stay editable even on system roles.
	updated, err := h.service.Update(ctx, "actor-1", admin.ID, UpdateInput{Description: pointer.To("Full administrative access")})
	require.NoError(t, err)
	assert.Equal(t, "Full administrative access", updated.Description)
	assert.Equal(t, catalog.RoleAdmin, updated.Name)
}

func TestService_Delete_Protections(t *testing.T) {
	h := newRoleHarness(t)
	ctx := context.Background()

	system := h.repo.seed(catalog.RoleUser, true)
	err := h.service.Delete(ctx, "actor-1", system.ID)
	require.Error(t, err)
	assert.Equal(t, 409, apperr.As(err).HTTPStatus)

	populated := h.repo.seed("Support", false, "user-a", "user-b")
	err = h.service.Delete(ctx, "actor-1", populated.ID)
	require.Error(t, err)
	assert.Equal(t, 409, apperr.As(err).HTTPStatus)
	assert.Contains(t, err.Error(), "2 member(s)")

	empty := h.repo.seed("Temp", false)
	require.NoError(t, h.service.Delete(ctx, "actor-1", empty.ID))
	_, err = h.service.Get(ctx, empty.ID)
	require.Error(t, err)
}

func TestService_SetPermissions_SuperAdminGuard(t *testing.T) {
	h := newRoleHarness(t)
	ctx := context.Background()
	super := h.repo.seed(catalog.RoleSuperAdmin, true, "root-1")

	_, err := h.service.SetPermissions(ctx, "actor-1", super.ID, []string{string(catalog.PermUsersView)})
	require.Error(t, err)
	assert.Equal(t, 409, apperr.As(err).HTTPStatus)
	assert.Empty(t, h.repo.stamps, "guard must fire before any mutation")
}

func TestService_SetPermissions_UnknownPermissionIsAllOrNothing(t *testing.T) {
	h := newRoleHarness(t)
	ctx := context.Background()
	role := h.repo.seed("Support", false, "user-a")

	_, err := h.service.SetPermissions(ctx, "actor-1", role.ID, []string{
		string(catalog.PermUsersView),
		"users.teleport",
	})
	require.Error(t, err)
	assert.Equal(t, 400, apperr.As(err).HTTPStatus)

	// Nothing applied: no claims, no stamp writes, no evictions.
	current, err := h.service.Get(ctx, role.ID)
	require.NoError(t, err)
	assert.Empty(t, current.Permissions)
	assert.Empty(t, h.repo.stamps)
	assert.Empty(t, h.evictor.evicted)
}

func TestService_SetPermissions_DeduplicatesAndSorts(t *testing.T) {
	h := newRoleHarness(t)
	ctx := context.Background()
	role := h.repo.seed("Support", false)

	updated, err := h.service.SetPermissions(ctx, "actor-1", role.ID, []string{
		string(catalog.PermUsersView),
		string(catalog.PermAuditView),
		string(catalog.PermUsersView),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{string(catalog.PermAuditView), string(catalog.PermUsersView)}, updated.Permissions)
}

func TestService_SetPermissions_RotatesMemberStampsAndEvicts(t *testing.T) {
	h := newRoleHarness(t)
	ctx := context.Background()
	role := h.repo.seed("Support", false, "user-a", "user-b")

	_, err := h.service.SetPermissions(ctx, "actor-1", role.ID, []string{string(catalog.PermUsersView)})
	require.NoError(t, err)

	require.Len(t, h.repo.stamps, 2)
	assert.NotEmpty(t, h.repo.stamps["user-a"])
	assert.NotEmpty(t, h.repo.stamps["user-b"])
	assert.NotEqual(t, h.repo.stamps["user-a"], h.repo.stamps["user-b"],
		"each member gets an independent stamp")
	assert.ElementsMatch(t, []string{"user-a", "user-b"}, h.evictor.evicted)

	require.Len(t, h.trail.entries, 1)
	assert.Equal(t, audit.ActionRolePermissionsSet, h.trail.entries[0].Action)
	assert.Equal(t, role.ID, h.trail.entries[0].TargetID)
}

func TestService_SetPermissions_EmptySetRevokesEverything(t *testing.T) {
	h := newRoleHarness(t)
	ctx := context.Background()
	role := h.repo.seed("Support", false, "user-a")

	_, err := h.service.SetPermissions(ctx, "actor-1", role.ID, []string{string(catalog.PermUsersView)})
	require.NoError(t, err)

	updated, err := h.service.SetPermissions(ctx, "actor-1", role.ID, []string{})
	require.NoError(t, err)
	assert.Empty(t, updated.Permissions, "replace-not-merge: omitting revokes")
}

func TestService_Catalog_CoversEveryKnownPermission(t *testing.T) {
	h := newRoleHarness(t)

	grouped := h.service.Catalog()
	require.NotEmpty(t, grouped)

	total := 0
	for _, group := range grouped {
		assert.NotEmpty(t, group.Category)
		for _, permission := range group.Permissions {
			assert.True(t, catalog.Valid(permission))
			total++
		}
	}
	assert.Len(t, catalog.All(), total)
}
