package server

import (
	"github.com/go-chi/chi/v5"

	"github.com/pacelens/pacelens/internal/server/handlers"
)

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes() {
	// Standard health endpoints
	s.router.Get("/health", s.health.HealthHandler)
	s.router.Get("/health/live", s.health.LivenessHandler)
	s.router.Get("/health/ready", s.health.ReadinessHandler)

	// Version endpoint
	s.router.Get("/version", handlers.VersionHandler)

	// Limiter status and reporting
	s.router.Route("/v1/limiters", func(r chi.Router) {
		r.Get("/", s.limiter.ListHandler)
		r.Get("/{endpoint}", s.limiter.GetHandler)
		r.Post("/{endpoint}/report", s.limiter.ReportHandler)
	})
}
