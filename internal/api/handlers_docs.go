package api

import (
	"encoding/json"
	"io"
	"net/http"

	"reposcope/internal/docs"
)

// RepoRequest names a repository with a cached analysis.
type RepoRequest struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

func (s *Server) handleGenerateReadme(w http.ResponseWriter, r *http.Request) {
	var req RepoRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeRequestError(w, r, err)
		return
	}
	ref, err := repoRef(req.Owner, req.Repo)
	if err != nil {
		s.writeRequestError(w, r, err)
		return
	}
	a, err := s.svc.Cached(r.Context(), ref)
	if err != nil {
		s.writeRequestError(w, r, err)
		return
	}

	readme, generated := docs.GenerateReadme(r.Context(), s.readme, a, s.logger)
	WriteJSON(w, map[string]interface{}{
		"readme":    readme,
		"generated": generated,
	}, http.StatusOK)
}

func (s *Server) handleGenerateMermaid(w http.ResponseWriter, r *http.Request) {
	var req RepoRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeRequestError(w, r, err)
		return
	}
	ref, err := repoRef(req.Owner, req.Repo)
	if err != nil {
		s.writeRequestError(w, r, err)
		return
	}
	a, err := s.svc.Cached(r.Context(), ref)
	if err != nil {
		s.writeRequestError(w, r, err)
		return
	}

	WriteJSON(w, map[string]string{"mermaid": docs.Mermaid(a)}, http.StatusOK)
}

func jsonIndentEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}
