// Package http provides the HTTP server and routing for the dispatch API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/triggerflow/dispatch/internal/config"
	"github.com/triggerflow/dispatch/internal/infra/http/middleware"
	"github.com/triggerflow/dispatch/pkg/logger"
)

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	config     *config.Config
	logger     *logger.Logger
}

// NewServer creates a new HTTP server with the global middleware applied.
func NewServer(cfg *config.Config, log *logger.Logger) *Server {
	router := chi.NewRouter()

	// Order matters: recovery outermost, then request id for everything
	// the logger and metrics record.
	router.Use(
		middleware.Recovery(log),
		middleware.RequestID(),
		middleware.Metrics(),
		middleware.Logger(log),
	)

	return &Server{
		router: router,
		config: cfg,
		logger: log,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  time.Minute,
		},
	}
}

// Router returns the router for registering handlers.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.config.Server.Addr())

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
