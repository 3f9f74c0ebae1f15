package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/campaign-dashboard/internal/config"
)

// Server represents the API server
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer creates a new API server serving the SMS job pipeline routes.
func NewServer(cfg config.ServerConfig, h *Handlers, health *HealthChecker) *Server {
	return &Server{
		config:  cfg,
		handler: SetupRoutes(h, health, cfg.CORSAllowedOrigins),
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	if addr == "" {
		addr = s.config.Addr()
	}
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
		// Job runs are synchronous and may take minutes over large cubes.
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
