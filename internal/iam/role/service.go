// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package role

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/meridianhq/adminkit/internal/audit"
	"github.com/meridianhq/adminkit/internal/iam/catalog"
	"github.com/meridianhq/adminkit/internal/platform/apperr"
	"github.com/meridianhq/adminkit/internal/platform/ctxutil"
	"github.com/meridianhq/adminkit/internal/platform/sec"
	"github.com/meridianhq/adminkit/internal/platform/validate"
	"github.com/meridianhq/adminkit/pkg/uuid"
)

// securityStampLength is the byte length of a freshly rotated stamp.
const securityStampLength = 16

// Service implements role and permission management use cases.
type Service struct {
	roles    Repository
	stamps   StampEvictor
	recorder audit.Recorder
}

// NewService constructs a new role [Service] with necessary dependencies.
func NewService(roles Repository, stamps StampEvictor, recorder audit.Recorder) *Service {
	return &Service{roles: roles, stamps: stamps, recorder: recorder}
}

// # Role CRUD

/*
Create adds a new custom role with an empty permission set.

Description: Rejects names colliding case-insensitively with system roles
(reserved) or any existing role.

Parameters:
  - context: context.Context
  - actorID: string (the administrator performing the action)
  - name: string
  - description: string

Returns:
  - *Role: Created entity
  - error: Validation, Conflict, or storage errors
*/
func (service *Service) Create(context context.Context, actorID, name, description string) (*Role, error) {
	validator := &validate.Validator{}
	validator.Required(FieldName, name).MinLen(FieldName, name, 2).MaxLen(FieldName, name, 64).
		MaxLen(FieldDescription, description, 256)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	if catalog.IsReserved(name) {
		return nil, apperr.ValidationError("Role name is reserved", apperr.FieldError{
			Field:   FieldName,
			Message: fmt.Sprintf("%q collides with a built-in role name", name),
		})
	}

	if _, err := service.roles.FindByName(context, name); err == nil {
		return nil, apperr.Conflict("A role with this name already exists")
	}

	role := &Role{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Permissions: []string{},
	}

	if err := service.roles.Create(context, role); err != nil {
		return nil, fmt.Errorf("role_service_create_failed: %w", err)
	}

	service.record(context, audit.Entry{
		ActorID:    actorID,
		Action:     audit.ActionRoleCreated,
		TargetType: audit.TargetRole,
		TargetID:   role.ID,
		Detail:     map[string]any{FieldName: role.Name},
	})

	return role, nil
}

// UpdateInput carries optional role mutations; nil fields are left unchanged.
type UpdateInput struct {
	Name        *string
	Description *string
}

/*
Update renames a custom role or changes its description.

Description: Renaming a system role is rejected outright. Renaming a custom
role re-checks the reserved-name and collision rules. Descriptions are
editable on any role.

Parameters:
  - context: context.Context
  - actorID: string
  - id: string
  - input: UpdateInput

Returns:
  - *Role: Updated entity
  - error: NotFound, Validation, Conflict, or storage errors
*/
func (service *Service) Update(context context.Context, actorID, id string, input UpdateInput) (*Role, error) {
	role, err := service.roles.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil && *input.Name != role.Name {
		if role.IsSystem {
			return nil, apperr.Conflict("System roles cannot be renamed")
		}
		if catalog.IsReserved(*input.Name) {
			return nil, apperr.ValidationError("Role name is reserved", apperr.FieldError{
				Field:   FieldName,
				Message: fmt.Sprintf("%q collides with a built-in role name", *input.Name),
			})
		}
		if existing, err := service.roles.FindByName(context, *input.Name); err == nil && existing.ID != role.ID {
			return nil, apperr.Conflict("A role with this name already exists")
		}

		validator := &validate.Validator{}
		validator.Required(FieldName, *input.Name).MinLen(FieldName, *input.Name, 2).MaxLen(FieldName, *input.Name, 64)
		if err := validator.Err(); err != nil {
			return nil, err
		}

		role.Name = *input.Name
	}

	if input.Description != nil {
		validator := &validate.Validator{}
		validator.MaxLen(FieldDescription, *input.Description, 256)
		if err := validator.Err(); err != nil {
			return nil, err
		}
		role.Description = *input.Description
	}

	if err := service.roles.Update(context, role); err != nil {
		return nil, fmt.Errorf("role_service_update_failed: %w", err)
	}

	service.record(context, audit.Entry{
		ActorID:    actorID,
		Action:     audit.ActionRoleUpdated,
		TargetType: audit.TargetRole,
		TargetID:   role.ID,
		Detail:     map[string]any{FieldName: role.Name},
	})

	return role, nil
}

/*
Delete removes a custom role.

Description: System roles are never deletable. Custom roles are deletable
only when their current member count is zero.

Parameters:
  - context: context.Context
  - actorID: string
  - id: string

Returns:
  - error: NotFound, Conflict, or storage errors
*/
func (service *Service) Delete(context context.Context, actorID, id string) error {
	role, err := service.roles.FindByID(context, id)
	if err != nil {
		return err
	}

	if role.IsSystem {
		return apperr.Conflict("System roles cannot be deleted")
	}
	if role.MemberCount > 0 {
		return apperr.Conflict(fmt.Sprintf("Role still has %d member(s); remove them first", role.MemberCount))
	}

	if err := service.roles.Delete(context, id); err != nil {
		return fmt.Errorf("role_service_delete_failed: %w", err)
	}

	service.record(context, audit.Entry{
		ActorID:    actorID,
		Action:     audit.ActionRoleDeleted,
		TargetType: audit.TargetRole,
		TargetID:   id,
		Detail:     map[string]any{FieldName: role.Name},
	})

	return nil
}

/*
Get returns a single role by ID.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Role: Hydrated entity
  - error: NotFound or retrieval failures
*/
func (service *Service) Get(context context.Context, id string) (*Role, error) {
	return service.roles.FindByID(context, id)
}

/*
List returns every role.

Parameters:
  - context: context.Context

Returns:
  - []Role: All roles, system roles first
  - error: Retrieval failures
*/
func (service *Service) List(context context.Context) ([]Role, error) {
	return service.roles.List(context)
}

// # Permission Assignment & Propagation

/*
SetPermissions replaces a role's permission set and propagates the change.

Description: Replace-not-merge — omitting a previously granted permission
revokes it. Rejected for SuperAdmin (its permissions are implicit in code)
and for any permission string absent from the catalog; validation happens
before any mutation, so a bad set never partially applies. On success, every
member's security stamp rotates inside the same transaction as the claim
swap, and cached identity entries are evicted. Refresh tokens survive: the
next rotation issues claims with the new set.

Parameters:
  - context: context.Context
  - actorID: string
  - id: string
  - permissions: []string

Returns:
  - *Role: Updated entity
  - error: NotFound, Validation, Conflict, or storage errors
*/
func (service *Service) SetPermissions(context context.Context, actorID, id string, permissions []string) (*Role, error) {
	role, err := service.roles.FindByID(context, id)
	if err != nil {
		return nil, err
	}

	if catalog.Fold(role.Name) == catalog.Fold(catalog.RoleSuperAdmin) {
		return nil, apperr.Conflict("SuperAdmin permissions are implicit and cannot be edited")
	}

	// Catalog closure: every requested string must exist, checked up front
	// so the assignment is all-or-nothing
	deduplicated := make([]string, 0, len(permissions))
	seen := make(map[string]struct{}, len(permissions))
	for _, permission := range permissions {
		if !catalog.Valid(catalog.Permission(permission)) {
			return nil, apperr.ValidationError("Unknown permission", apperr.FieldError{
				Field:   FieldPermissions,
				Message: fmt.Sprintf("%q is not a known permission", permission),
			})
		}
		if _, duplicate := seen[permission]; duplicate {
			continue
		}
		seen[permission] = struct{}{}
		deduplicated = append(deduplicated, permission)
	}
	sort.Strings(deduplicated)

	// Propagation: a fresh stamp per member, rotated atomically with the claims
	memberIDs, err := service.roles.MemberIDs(context, id)
	if err != nil {
		return nil, fmt.Errorf("role_service_member_lookup_failed: %w", err)
	}

	memberStamps := make(map[string]string, len(memberIDs))
	for _, memberID := range memberIDs {
		stamp, err := sec.GenerateSecureToken(securityStampLength)
		if err != nil {
			return nil, fmt.Errorf("role_service_stamp_generation_failed: %w", err)
		}
		memberStamps[memberID] = stamp
	}

	if err := service.roles.ReplacePermissions(context, id, deduplicated, memberStamps); err != nil {
		return nil, fmt.Errorf("role_service_replace_permissions_failed: %w", err)
	}

	// Cache eviction after commit; failures are logged, never surfaced
	logger := ctxutil.GetLogger(context)
	for _, memberID := range memberIDs {
		if err := service.stamps.Evict(context, memberID); err != nil {
			logger.WarnContext(context, "role_stamp_cache_evict_failed",
				slog.String("user_id", memberID),
				slog.String("error", err.Error()),
			)
		}
	}

	service.record(context, audit.Entry{
		ActorID:    actorID,
		Action:     audit.ActionRolePermissionsSet,
		TargetType: audit.TargetRole,
		TargetID:   id,
		Detail: map[string]any{
			FieldName:        role.Name,
			FieldPermissions: deduplicated,
		},
	})

	role.Permissions = deduplicated
	return role, nil
}

/*
Catalog returns the full permission catalog grouped by category.

Description: Unfiltered by caller — it renders management UI, it is not an
authorization check.

Returns:
  - []catalog.Group: The grouped catalog
*/
func (service *Service) Catalog() []catalog.Group {
	return catalog.Grouped()
}

// record appends an audit entry best-effort.
func (service *Service) record(context context.Context, entry audit.Entry) {
	if err := service.recorder.Record(context, entry); err != nil {
		ctxutil.GetLogger(context).ErrorContext(context, "role_audit_record_failed",
			slog.String("action", entry.Action),
			slog.String("error", err.Error()),
		)
	}
}
