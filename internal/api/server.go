// Package api serves the RepoScope HTTP API.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"reposcope/internal/analysis"
	"reposcope/internal/auth"
	"reposcope/internal/errors"
	"reposcope/internal/llm"
	"reposcope/internal/storage"
	"reposcope/internal/streaming"
)

// ServerConfig contains HTTP behavior settings
type ServerConfig struct {
	CORSOrigins  []string
	ReadTimeout  time.Duration
	CookieSecure bool
	// TrustedProxies may set X-Forwarded-For for rate limiting.
	TrustedProxies auth.TrustedProxies
	// Stream configures SSE progress streams.
	Stream streaming.StreamConfig
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		CORSOrigins: []string{"http://localhost:5173"},
		ReadTimeout: 30 * time.Second,
		Stream:      streaming.DefaultConfig(),
	}
}

// Deps are the collaborators the handlers use.
type Deps struct {
	Analyzer *analysis.Service
	Store    storage.Store
	Auth     *auth.Manager
	Limiter  *auth.RateLimiter
	// Readme writes README drafts; nil renders the template only.
	Readme  llm.Generator
	Metrics *MetricsCollector
}

// Server represents the HTTP API server
type Server struct {
	router  *http.ServeMux
	server  *http.Server
	addr    string
	logger  *slog.Logger
	config  ServerConfig
	svc     *analysis.Service
	store   storage.Store
	auth    *auth.Manager
	authMW  *auth.Middleware
	readme  llm.Generator
	metrics *MetricsCollector
}

// NewServer creates a new HTTP server instance
func NewServer(addr string, deps Deps, config ServerConfig, logger *slog.Logger) *Server {
	if deps.Metrics == nil {
		deps.Metrics = NewMetricsCollector()
	}
	s := &Server{
		addr:    addr,
		logger:  logger,
		config:  config,
		svc:     deps.Analyzer,
		store:   deps.Store,
		auth:    deps.Auth,
		readme:  deps.Readme,
		metrics: deps.Metrics,
		router:  http.NewServeMux(),
	}
	s.authMW = auth.NewMiddleware(deps.Auth, deps.Limiter, config.TrustedProxies, s.writeRequestError)

	s.registerRoutes()

	// WriteTimeout stays zero so progress streams are not cut off.
	handler := s.applyMiddleware(s.router)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       config.ReadTimeout,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server shut down successfully")
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the handler with middleware in the correct order
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	// Apply middleware in reverse order (last one wraps first)
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = LoggingMiddleware(s.logger, s.metrics)(handler)
	handler = RequestIDMiddleware()(handler)
	handler = CORSMiddleware(s.config.CORSOrigins)(handler)
	return handler
}

// writeRequestError logs server-side failures and writes err.
func (s *Server) writeRequestError(w http.ResponseWriter, r *http.Request, err error) {
	status := MapErrorToStatus(errors.CodeOf(err))
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			"path", r.URL.Path,
			"error", err.Error(),
			"requestID", GetRequestID(r.Context()),
		)
	}
	WriteError(w, err, status)
}
