// Package http is the HTTP transport (spec §1: "out of scope... specified
// only at its interface to the core"): a thin chi router translating
// requests into dispatch.Command submissions and formatting their results.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mvaleed/acs/internal/authn"
	"github.com/mvaleed/acs/internal/dispatch"
	"github.com/mvaleed/acs/internal/eval"
	"github.com/mvaleed/acs/internal/obs"
	"github.com/mvaleed/acs/internal/resilience"
)

// Server exposes the Command Dispatcher's surface over HTTP.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux

	dispatcher *dispatch.Dispatcher
	evaluator  *eval.Evaluator
	authn      *authn.Manager
	guard      *resilience.Guard
	logger     *obs.Logger
}

func NewServer(d *dispatch.Dispatcher, e *eval.Evaluator, am *authn.Manager, guard *resilience.Guard, logger *obs.Logger) *Server {
	if logger == nil {
		logger = obs.NewNop()
	}
	s := &Server{
		router:     chi.NewRouter(),
		dispatcher: d,
		evaluator:  e,
		authn:      am,
		guard:      guard,
		logger:     logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/users", func(r chi.Router) {
				r.Post("/", s.handleCreateUser)
				r.Get("/{id}", s.handleGetUser)
				r.Put("/{id}", s.handleUpdateUser)
				r.Delete("/{id}", s.handleDeleteUser)
				r.Post("/{id}/groups/{groupId}", s.handleAddUserToGroup)
				r.Delete("/{id}/groups/{groupId}", s.handleRemoveUserFromGroup)
				r.Post("/{id}/roles/{roleId}", s.handleAssignUserToRole)
				r.Delete("/{id}/roles/{roleId}", s.handleUnassignUserFromRole)
				r.Get("/{id}/effective-permissions", s.handleEffectivePermissions)
			})

			r.Route("/groups", func(r chi.Router) {
				r.Post("/", s.handleCreateGroup)
				r.Get("/{id}", s.handleGetGroup)
				r.Put("/{id}", s.handleUpdateGroup)
				r.Delete("/{id}", s.handleDeleteGroup)
				r.Post("/{id}/parent/{parentId}", s.handleAddGroupToGroup)
				r.Delete("/{id}/parent/{parentId}", s.handleRemoveGroupFromGroup)
			})

			r.Route("/roles", func(r chi.Router) {
				r.Post("/", s.handleCreateRole)
				r.Get("/{id}", s.handleGetRole)
				r.Put("/{id}", s.handleUpdateRole)
				r.Delete("/{id}", s.handleDeleteRole)
				r.Post("/{id}/groups/{groupId}", s.handleAddRoleToGroup)
				r.Delete("/{id}/groups/{groupId}", s.handleRemoveRoleFromGroup)
			})

			r.Route("/entities/{id}/permissions", func(r chi.Router) {
				r.Post("/", s.handleAddPermission)
				r.Delete("/", s.handleRemovePermission)
			})

			r.Post("/check", s.handleCheckPermission)
		})
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.guard == nil {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	overall := s.guard.Health().Overall()
	status := http.StatusOK
	if overall == resilience.StatusCritical {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]any{
		"status": overall,
		"report": s.guard.Health().Report(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
