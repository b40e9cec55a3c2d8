// Copyright (c) 2026 Meridian Labs. All rights reserved.
// Author: platform@meridianhq.io

/*
Package api wires together the HTTP router, middleware chain, and all
domain handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package and cmd/api are allowed to import net/http server primitives.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridianhq/adminkit/internal/audit"
	"github.com/meridianhq/adminkit/internal/iam/account"
	"github.com/meridianhq/adminkit/internal/iam/admin"
	"github.com/meridianhq/adminkit/internal/iam/auth"
	"github.com/meridianhq/adminkit/internal/iam/role"
	"github.com/meridianhq/adminkit/internal/platform/config"
	"github.com/meridianhq/adminkit/internal/platform/constants"
	"github.com/meridianhq/adminkit/internal/platform/middleware"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups all domain-specific HTTP handler sets.
//
// # Usage
//
// New domains add a field here — no other change to server.go is required.
type Handlers struct {
	// Liveness is the /health handler — always returns 200 if process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler — returns 200 when all deps are healthy.
	Readiness http.HandlerFunc

	// Auth handles the session lifecycle (register, login, refresh, logout).
	Auth *auth.Handler

	// Account handles the authenticated user's own profile and sessions.
	Account *account.Handler

	// Role handles role CRUD and permission assignment.
	Role *role.Handler

	// Catalog serves the static permission catalog.
	Catalog *role.CatalogHandler

	// Admin handles the user directory and hierarchy-gated administration.
	Admin *admin.Handler

	// Audit exposes the administrative action trail.
	Audit *audit.Handler
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
//
// Authentication is globally optional at this layer: the Authenticate
// middleware attaches claims when a valid token is presented and lets
// anonymous requests through. Each route group then demands what it needs
// via RequireAuth / RequirePermission.
func NewServer(context context.Context, cfg *config.Config, log *slog.Logger,
	verifier middleware.TokenVerifier, stamps middleware.StampSource, h Handlers) *Server {

	r := chi.NewRouter()

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(log))
	r.Use(chimw.Timeout(constants.GlobalRequestTimeout))
	r.Use(middleware.RateLimit(context))
	r.Use(middleware.PanicRecovery(log))
	r.Use(middleware.Authenticate(verifier, stamps))
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	// Unauthenticated health probes for container orchestration.
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)

	// # Application API
	// Domain-specific route groups mounted under versioned prefix.
	r.Route("/api/v1", func(api chi.Router) {
		api.Mount("/auth", h.Auth.Routes())

		api.Group(func(authenticated chi.Router) {
			authenticated.Use(middleware.RequireAuth)
			authenticated.Mount("/me", h.Account.Routes())
			authenticated.Mount("/roles", h.Role.Routes())
			authenticated.Mount("/permissions", h.Catalog.Routes())
			authenticated.Mount("/users", h.Admin.Routes())
			authenticated.Mount("/audit", h.Audit.Routes())
		})
	})

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
