package api

import (
	"net/http"

	"reposcope/internal/version"
)

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	optional := func(h http.HandlerFunc) http.Handler { return s.authMW.OptionalAuth(h) }
	required := func(h http.HandlerFunc) http.Handler { return s.authMW.RequireAuth(h) }
	limited := func(h http.Handler) http.Handler { return s.authMW.RateLimit(h) }

	// Health, readiness and metrics
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /metrics", s.handleMetrics)

	// Accounts
	s.router.Handle("POST /api/auth/register", limited(http.HandlerFunc(s.handleRegister)))
	s.router.Handle("POST /api/auth/login", limited(http.HandlerFunc(s.handleLogin)))
	s.router.HandleFunc("POST /api/auth/logout", s.handleLogout)
	s.router.Handle("GET /api/auth/me", required(s.handleMe))

	// Analysis
	s.router.HandleFunc("POST /api/validate", s.handleValidate)
	s.router.Handle("GET /api/analyze/stream", limited(optional(s.handleAnalyzeStream)))
	s.router.Handle("POST /api/analyze", limited(optional(s.handleAnalyze)))
	s.router.HandleFunc("GET /api/analysis/{owner}/{repo}", s.handleGetAnalysis)
	s.router.HandleFunc("GET /api/analysis/{owner}/{repo}/flow", s.handleFlow)
	s.router.HandleFunc("GET /api/analysis/{owner}/{repo}/export", s.handleExport)

	// History
	s.router.Handle("GET /api/analyses", required(s.handleListAnalyses))
	s.router.Handle("DELETE /api/analyses/{id}", required(s.handleDeleteAnalysis))

	// Documents
	s.router.Handle("POST /api/generate-readme", optional(s.handleGenerateReadme))
	s.router.HandleFunc("POST /api/generate-mermaid", s.handleGenerateMermaid)

	s.router.HandleFunc("GET /{$}", s.handleRoot)
}

// handleRoot describes the API
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"name":    "RepoScope HTTP API",
		"version": version.Version,
		"endpoints": []string{
			"GET /health - Health check",
			"GET /ready - Readiness check",
			"GET /metrics - Prometheus metrics",
			"POST /api/auth/register - Create an account",
			"POST /api/auth/login - Open a session",
			"POST /api/auth/logout - Close the session",
			"GET /api/auth/me - Current user",
			"POST /api/validate - Check a repository URL",
			"GET /api/analyze/stream?url=...&force=... - Analyze with SSE progress",
			"POST /api/analyze - Analyze a repository",
			"GET /api/analysis/{owner}/{repo} - Cached analysis",
			"GET /api/analysis/{owner}/{repo}/flow - Diagram layout",
			"GET /api/analysis/{owner}/{repo}/export?format=markdown|mermaid|json - Download",
			"GET /api/analyses - Your past analyses",
			"DELETE /api/analyses/{id} - Delete one of your analyses",
			"POST /api/generate-readme - Draft a README",
			"POST /api/generate-mermaid - Mermaid diagram",
		},
	}

	WriteJSON(w, response, http.StatusOK)
}
