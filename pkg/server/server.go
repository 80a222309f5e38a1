// Copyright 2025 The Tenselens Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server assembles the HTTP surface: admission middleware,
// session validation, the SSE prediction stream, and the operational
// endpoints.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/tenselens/tenselens/pkg/config"
	"github.com/tenselens/tenselens/pkg/observability"
	"github.com/tenselens/tenselens/pkg/pipeline"
	"github.com/tenselens/tenselens/pkg/ratelimit"
	"github.com/tenselens/tenselens/pkg/session"
	"github.com/tenselens/tenselens/pkg/validate"
)

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Limiter      *ratelimit.Limiter
	Sessions     *session.Manager
	Validator    *validate.Validator
	Orchestrator *pipeline.Orchestrator
	Metrics      *observability.Metrics
	DB           *sql.DB
	Logger       *slog.Logger
}

// Server is the HTTP front for the admission-controlled pipeline.
type Server struct {
	cfg    *config.Config
	deps   Deps
	router chi.Router
	logger *slog.Logger
}

// New builds the server and its route tree.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Sessions == nil || deps.Orchestrator == nil || deps.Validator == nil {
		return nil, fmt.Errorf("sessions, orchestrator, and validator are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = &observability.Metrics{}
	}

	s := &Server{cfg: cfg, deps: deps, logger: deps.Logger}
	s.router = s.routes()
	return s, nil
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.cfg.Observability.IsMetricsEnabled() {
		r.Method(http.MethodGet, "/metrics", observability.Handler())
	}

	r.Post("/api/login", s.handleLogin)
	r.Post("/api/validate", s.handleValidate)

	// Everything below requires a valid session.
	r.Group(func(pr chi.Router) {
		pr.Use(session.Middleware(session.MiddlewareConfig{
			Manager:            s.deps.Sessions,
			CookieName:         s.cfg.Session.CookieName,
			IdleTimeout:        s.idleTimeout(),
			LoginPath:          "/api/login",
			CleanupProbability: s.cfg.Session.CleanupProbability,
			Logger:             s.logger,
		}))

		pr.Post("/api/logout", s.handleLogout)
		pr.Get("/api/limits", s.handleLimits)
		pr.Get("/api/stats", s.handleStats)

		pr.Group(func(rr chi.Router) {
			rr.Use(ratelimit.Middleware(ratelimit.MiddlewareConfig{
				Limiter:    s.deps.Limiter,
				Identity:   s.identity,
				OnRejected: s.onRejected,
			}))
			rr.Post("/api/predict", s.handlePredict)
		})
	})

	return r
}

// identity prefers the authenticated user over the network origin.
func (s *Server) identity(r *http.Request) string {
	if sess := session.FromContext(r.Context()); sess != nil {
		return "user_" + sess.UserID
	}
	return ratelimit.IPIdentity(r)
}

func (s *Server) onRejected(w http.ResponseWriter, r *http.Request, d ratelimit.Decision) {
	s.deps.Metrics.RecordAdmission(r.Context(), false, string(d.Reason))
	ratelimit.WriteRejection(w, r, d)
}

func (s *Server) idleTimeout() time.Duration {
	return time.Duration(s.cfg.Session.IdleTimeoutMinutes) * time.Minute
}

// Run serves until ctx is cancelled, then drains connections within the
// configured grace period. A background loop bulk-expires idle sessions
// so abandoned logins do not linger until their next request.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				n, err := s.deps.Sessions.CleanupExpired(gctx, s.idleTimeout())
				if err != nil {
					s.logger.Warn("Session cleanup failed", "error", err)
				} else if n > 0 {
					s.logger.Info("Expired idle sessions", "count", n)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		grace := time.Duration(s.cfg.Server.ShutdownGraceSeconds) * time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		s.logger.Info("Shutting down", "grace", grace)
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
