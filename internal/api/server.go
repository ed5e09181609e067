// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

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

	"github.com/taibuivan/otpgate/internal/platform/config"
	"github.com/taibuivan/otpgate/internal/platform/constants"
	"github.com/taibuivan/otpgate/internal/platform/middleware"
	"github.com/taibuivan/otpgate/internal/users/account"
	"github.com/taibuivan/otpgate/internal/platform/sec"
	"github.com/taibuivan/otpgate/internal/users/auth"
	"github.com/taibuivan/otpgate/internal/users/lookup"
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
type Handlers struct {
	// Liveness is the /health handler. Always 200 while the process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler. 200 only when Postgres and Redis answer.
	Readiness http.HandlerFunc

	// Auth handles passcode, password and token routes.
	Auth *auth.Handler

	// Account serves the authenticated profile.
	Account *account.Handler

	// Lookup serves the administrator account lookup. Optional.
	Lookup *lookup.Handler

	// AuthRateLimit is the shared per-client limiter in front of every auth route.
	AuthRateLimit func(http.Handler) http.Handler

	// RateLimitStatus reports the caller's window without spending from it. Optional.
	RateLimitStatus http.HandlerFunc
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
func NewServer(context context.Context, cfg *config.Config, log *slog.Logger, authenticator middleware.Authenticator, h Handlers) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.TrustProxies(cfg.TrustedProxies))
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(log))
	r.Use(chimw.Timeout(constants.GlobalRequestTimeout))
	r.Use(middleware.BurstGuard(context))
	r.Use(middleware.PanicRecovery(log))
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	// Unauthenticated health probes for container orchestration.
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)

	// # Application API
	r.Route("/api/v1/auth", func(api chi.Router) {
		if h.RateLimitStatus != nil {
			api.Get("/rate-limit", h.RateLimitStatus)
		}

		api.Group(func(limited chi.Router) {
			if h.AuthRateLimit != nil {
				limited.Use(h.AuthRateLimit)
			}
			limited.Use(middleware.Authenticate(authenticator))

			h.Auth.Register(limited)

			limited.Group(func(protected chi.Router) {
				protected.Use(middleware.RequireAuth)
				h.Account.Register(protected)
			})

			limited.Route("/admin", func(admin chi.Router) {
				admin.Use(middleware.RequireRole(sec.RoleGroupAdmin))
				h.Auth.RegisterAdmin(admin)
				if h.Lookup != nil {
					h.Lookup.Register(admin)
				}
			})
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

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
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
