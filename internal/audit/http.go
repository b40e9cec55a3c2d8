// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhq/adminkit/internal/iam/catalog"
	"github.com/meridianhq/adminkit/internal/platform/middleware"
	"github.com/meridianhq/adminkit/internal/platform/respond"
	"github.com/meridianhq/adminkit/pkg/pagination"
)

// Handler exposes the audit trail over HTTP.
type Handler struct {
	store Store
}

// NewHandler constructs a new [Handler] with its store dependency.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Routes returns a [chi.Router] for the audit endpoints.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.With(middleware.RequirePermission(catalog.PermAuditView)).Get("/", handler.list)
	return router
}

/*
List returns the audit trail newest-first.

GET /api/v1/audit?page=&limit=

Response:
  - 200: []Entry with pagination metadata
  - 403: ErrForbidden: Missing audit.view permission
*/
func (handler *Handler) list(writer http.ResponseWriter, request *http.Request) {
	params := pagination.FromRequest(request)

	entries, total, err := handler.store.List(request.Context(), params.Limit, params.Offset())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if entries == nil {
		entries = []Entry{}
	}

	respond.Paginated(writer, entries, pagination.NewMeta(params.Page, params.Limit, total))
}
