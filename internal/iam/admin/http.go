// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhq/adminkit/internal/iam/catalog"
	"github.com/meridianhq/adminkit/internal/platform/middleware"
	requestutil "github.com/meridianhq/adminkit/internal/platform/request"
	"github.com/meridianhq/adminkit/internal/platform/respond"
	"github.com/meridianhq/adminkit/internal/platform/validate"
	"github.com/meridianhq/adminkit/pkg/pagination"
)

// Handler implements user administration HTTP endpoints.
type Handler struct {
	adminService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{adminService: service}
}

// Routes returns a [chi.Router] configured with user administration routes.
//
// # Endpoints
//   - GET    /                  : Paginated user directory.
//   - GET    /{id}              : One account with roles.
//   - POST   /{id}/lock         : Lock the account indefinitely.
//   - POST   /{id}/unlock       : Clear any lockout.
//   - DELETE /{id}              : Soft-delete the account.
//   - POST   /{id}/roles        : Grant a role.
//   - DELETE /{id}/roles/{role} : Revoke a role.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequirePermission(catalog.PermUsersView))
		r.Get("/", handler.list)
		r.Get("/{id}", handler.get)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequirePermission(catalog.PermUsersLock))
		r.Post("/{id}/lock", handler.lock)
		r.Post("/{id}/unlock", handler.unlock)
	})

	router.With(middleware.RequirePermission(catalog.PermUsersDelete)).
		Delete("/{id}", handler.delete)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequirePermission(catalog.PermUsersAssignRoles))
		r.Post("/{id}/roles", handler.assignRole)
		r.Delete("/{id}/roles/{role}", handler.removeRole)
	})

	return router
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

/*
List returns a page of the user directory.

GET /api/v1/users?page=&limit=

Response:
  - 200: []Account with pagination metadata
  - 403: ErrForbidden: Missing users.view permission
*/
func (handler *Handler) list(writer http.ResponseWriter, request *http.Request) {
	params := pagination.FromRequest(request)

	accounts, total, err := handler.adminService.List(request.Context(), params.Limit, params.Offset())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}

	respond.Paginated(writer, accounts, pagination.NewMeta(params.Page, params.Limit, total))
}

/*
Get returns one account with its roles and effective rank.

GET /api/v1/users/{id}

Response:
  - 200: Account
  - 404: ErrNotFound: Unknown user ID
*/
func (handler *Handler) get(writer http.ResponseWriter, request *http.Request) {
	account, err := handler.adminService.Get(request.Context(), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, account)
}

/*
Lock places an indefinite administrative lock on the account.

POST /api/v1/users/{id}/lock

Response:
  - 204: No Content: Account locked, sessions revoked
  - 403: ErrForbidden: Target of equal or higher rank
  - 409: ErrConflict: Self-lock attempt
*/
func (handler *Handler) lock(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.adminService.Lock(request.Context(), claims, requestutil.ID(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
Unlock clears any lockout on the account.

POST /api/v1/users/{id}/unlock

Response:
  - 204: No Content: Account unlocked
  - 403: ErrForbidden: Target of equal or higher rank
*/
func (handler *Handler) unlock(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.adminService.Unlock(request.Context(), claims, requestutil.ID(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
Delete soft-deletes the account.

DELETE /api/v1/users/{id}

Response:
  - 204: No Content: Account deleted, sessions revoked
  - 403: ErrForbidden: Target of equal or higher rank
  - 409: ErrConflict: Self-delete attempt
*/
func (handler *Handler) delete(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.adminService.Delete(request.Context(), claims, requestutil.ID(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
AssignRole grants a role to the account.

POST /api/v1/users/{id}/roles

Request:
  - Body: assignRoleRequest (Role)

Response:
  - 204: No Content: Role granted, target access tokens go stale
  - 403: ErrForbidden: Rank rules violated
  - 404: ErrNotFound: Unknown user or role
*/
func (handler *Handler) assignRole(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input assignRoleRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}
	if input.Role == "" {
		respond.Error(writer, request, validate.RequiredError("role", "Role name is required"))
		return
	}

	if err := handler.adminService.AssignRole(request.Context(), claims, requestutil.ID(request, "id"), input.Role); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
RemoveRole revokes a role from the account.

DELETE /api/v1/users/{id}/roles/{role}

Response:
  - 204: No Content: Role revoked, target access tokens go stale
  - 403: ErrForbidden: Rank rules violated
  - 404: ErrNotFound: Unknown user or role
*/
func (handler *Handler) removeRole(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.adminService.RemoveRole(request.Context(), claims,
		requestutil.ID(request, "id"), requestutil.Param(request, "role")); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
