package api

import (
	"context"
	"net/http"
	"time"

	"reposcope/internal/version"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Backends  map[string]bool   `json:"backends"`
	Details   map[string]string `json:"details,omitempty"`
}

// handleHealth responds to health check requests (simple liveness check)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
	}, http.StatusOK)
}

// handleReady reports whether the store answers
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	backends := map[string]bool{"storage": true}
	details := map[string]string{}
	if s.store == nil {
		backends["storage"] = false
		details["storage"] = "not configured"
	} else if err := s.store.Ping(ctx); err != nil {
		backends["storage"] = false
		details["storage"] = err.Error()
	}

	status := "ready"
	statusCode := http.StatusOK
	if !backends["storage"] {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		s.logger.Warn("Readiness check failed", "details", details)
	}

	response := ReadyResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Backends:  backends,
	}
	if len(details) > 0 {
		response.Details = details
	}
	WriteJSON(w, response, statusCode)
}
