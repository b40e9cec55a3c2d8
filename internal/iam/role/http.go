// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package role

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhq/adminkit/internal/iam/catalog"
	"github.com/meridianhq/adminkit/internal/platform/middleware"
	requestutil "github.com/meridianhq/adminkit/internal/platform/request"
	"github.com/meridianhq/adminkit/internal/platform/respond"
	"github.com/meridianhq/adminkit/internal/platform/validate"
)

// Handler implements role management HTTP endpoints.
type Handler struct {
	roleService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{roleService: service}
}

// Routes returns a [chi.Router] configured with role management routes.
//
// # Endpoints
//   - GET    /            : List all roles.
//   - POST   /            : Create a custom role.
//   - GET    /{id}        : Fetch one role.
//   - PUT    /{id}        : Rename / edit a role.
//   - DELETE /{id}        : Delete an empty custom role.
//   - PUT    /{id}/permissions : Replace the role's permission set.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequirePermission(catalog.PermRolesView))
		r.Get("/", handler.list)
		r.Get("/{id}", handler.get)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequirePermission(catalog.PermRolesManage))
		r.Post("/", handler.create)
		r.Put("/{id}", handler.update)
		r.Delete("/{id}", handler.delete)
		r.Put("/{id}/permissions", handler.setPermissions)
	})

	return router
}

// # Request Payloads

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type setPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

/*
List returns every role with claims and member counts.

GET /api/v1/roles

Response:
  - 200: []Role
  - 403: ErrForbidden: Missing roles.view permission
*/
func (handler *Handler) list(writer http.ResponseWriter, request *http.Request) {
	roles, err := handler.roleService.List(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	respond.OK(writer, roles)
}

/*
Get returns a single role.

GET /api/v1/roles/{id}

Response:
  - 200: Role
  - 404: ErrNotFound: Unknown role ID
*/
func (handler *Handler) get(writer http.ResponseWriter, request *http.Request) {
	role, err := handler.roleService.Get(request.Context(), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, role)
}

/*
Create adds a new custom role.

POST /api/v1/roles

Request:
  - Body: createRoleRequest (Name, Description)

Response:
  - 201: Role: Created role
  - 400: ErrInvalidJSON: Reserved name or validation failure
  - 409: ErrConflict: Name already in use
*/
func (handler *Handler) create(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input createRoleRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	role, err := handler.roleService.Create(request.Context(), claims.UserID(), input.Name, input.Description)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, role)
}

/*
Update renames a custom role or edits its description.

PUT /api/v1/roles/{id}

Request:
  - Body: updateRoleRequest (Name?, Description?)

Response:
  - 200: Role: Updated role
  - 409: ErrConflict: System role rename or name collision
  - 404: ErrNotFound: Unknown role ID
*/
func (handler *Handler) update(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input updateRoleRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	role, err := handler.roleService.Update(request.Context(), claims.UserID(), requestutil.ID(request, "id"), UpdateInput{
		Name:        input.Name,
		Description: input.Description,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, role)
}

/*
Delete removes an empty custom role.

DELETE /api/v1/roles/{id}

Response:
  - 204: No Content: Role deleted
  - 409: ErrConflict: System role or role still has members
  - 404: ErrNotFound: Unknown role ID
*/
func (handler *Handler) delete(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.roleService.Delete(request.Context(), claims.UserID(), requestutil.ID(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
SetPermissions replaces the role's permission set.

PUT /api/v1/roles/{id}/permissions

Description: Replace-not-merge. Every member's outstanding access tokens go
stale immediately; their refresh tokens keep working and pick up the new
claims on the next rotation.

Request:
  - Body: setPermissionsRequest (Permissions)

Response:
  - 200: Role: Updated role with the new set
  - 400: ErrInvalidJSON: Unknown permission string
  - 409: ErrConflict: Targeting SuperAdmin
  - 404: ErrNotFound: Unknown role ID
*/
func (handler *Handler) setPermissions(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input setPermissionsRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	role, err := handler.roleService.SetPermissions(request.Context(), claims.UserID(), requestutil.ID(request, "id"), input.Permissions)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, role)
}

// # Catalog Endpoint

// CatalogHandler serves the static permission catalog.
type CatalogHandler struct {
	roleService *Service
}

// NewCatalogHandler constructs a [CatalogHandler].
func NewCatalogHandler(service *Service) *CatalogHandler {
	return &CatalogHandler{roleService: service}
}

// Routes returns a [chi.Router] for the catalog endpoint.
func (handler *CatalogHandler) Routes() chi.Router {
	router := chi.NewRouter()
	router.With(middleware.RequirePermission(catalog.PermRolesView)).Get("/", handler.list)
	return router
}

/*
List returns the full permission catalog grouped by category.

GET /api/v1/permissions

Response:
  - 200: []catalog.Group
  - 403: ErrForbidden: Missing roles.view permission
*/
func (handler *CatalogHandler) list(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, handler.roleService.Catalog())
}
