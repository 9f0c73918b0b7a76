// Package server implements the pacelens status server: health probes,
// version info, and limiter status and reporting endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pacelens/pacelens/internal/config"
	"github.com/pacelens/pacelens/internal/core/engine"
	apperrors "github.com/pacelens/pacelens/internal/errors"
	"github.com/pacelens/pacelens/internal/observability"
	"github.com/pacelens/pacelens/internal/server/handlers"
	servermw "github.com/pacelens/pacelens/internal/server/middleware"
)

// Server represents the HTTP status server.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	cfg     config.ServerConfig
	health  *handlers.HealthManager
	limiter *handlers.LimiterHandlers
}

// New creates a new status server instance.
func New(cfg config.ServerConfig, manager *engine.Manager, version string) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)

	// Custom middleware order: RequestID first for correlation, Recovery outermost.
	r.Use(servermw.RequestID)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router:  r,
		cfg:     cfg,
		health:  handlers.NewHealthManager(version),
		limiter: handlers.NewLimiterHandlers(manager),
	}

	// Ensure handlers use the centralized error responder
	handlers.SetHTTPErrorResponder(HandleError)

	s.registerRoutes()

	return s
}

// RegisterHealthChecker adds a named dependency check to the readiness and
// aggregate health probes.
func (s *Server) RegisterHealthChecker(name string, checker handlers.HealthChecker) {
	s.health.RegisterChecker(name, checker)
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	observability.ServerLogger.Info("Starting status server",
		zap.String("host", s.cfg.Host),
		zap.Int("port", s.cfg.Port),
		zap.String("addr", addr))

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	observability.ServerLogger.Info("Shutting down status server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured server port.
func (s *Server) Port() int {
	return s.cfg.Port
}
