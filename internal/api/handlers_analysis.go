package api

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"reposcope/internal/analysis"
	"reposcope/internal/auth"
	"reposcope/internal/docs"
	"reposcope/internal/errors"
	"reposcope/internal/github"
	"reposcope/internal/layout"
	"reposcope/internal/storage"
	"reposcope/internal/streaming"
)

// ValidateRequest is the body of POST /api/validate.
type ValidateRequest struct {
	URL string `json:"url"`
}

// ValidateResponse describes a reachable repository.
type ValidateResponse struct {
	Valid      bool               `json:"valid"`
	Owner      string             `json:"owner"`
	Repo       string             `json:"repo"`
	Repository *github.Repository `json:"repository"`
}

// AnalyzeRequest is the body of POST /api/analyze.
type AnalyzeRequest struct {
	URL   string `json:"url"`
	Force bool   `json:"force"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeRequestError(w, r, err)
		return
	}

	ref, repo, err := s.svc.Validate(r.Context(), req.URL)
	if err != nil {
		s.writeRequestError(w, r, err)
		return
	}

	WriteJSON(w, ValidateResponse{
		Valid:      true,
		Owner:      ref.Owner,
		Repo:       ref.Repo,
		Repository: repo,
	}, http.StatusOK)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeRequestError(w, r, err)
		return
	}

	a, err := s.svc.Analyze(r.Context(), req.URL, analysis.Options{
		Force:  req.Force,
		UserID: auth.UserIDFromContext(r.Context()),
	}, nil)
	if err != nil {
		s.writeRequestError(w, r, err)
		return
	}

	WriteJSON(w, a, http.StatusOK)
}

// handleAnalyzeStream runs an analysis and reports progress as SSE. Errors
// found before the stream opens are plain JSON responses.
func (s *Server) handleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawURL := strings.TrimSpace(q.Get("url"))
	if rawURL == "" {
		s.writeRequestError(w, r, errors.New(errors.ValidationFailed, "url is required", nil))
		return
	}
	opts := analysis.Options{
		Force:  parseBool(q.Get("force")),
		UserID: auth.UserIDFromContext(r.Context()),
	}

	stream := streaming.NewStream(r.Context(), s.config.Stream)
	done := make(chan struct{})
	go func() {
		defer close(done)
		a, err := s.svc.Analyze(stream.Context(), rawURL, opts, func(p analysis.Progress) {
			_ = stream.SendProgress(p.Stage, p.Message, p.Percent)
		})
		if err != nil {
			code := errors.CodeOf(err)
			if code == errors.InternalError {
				s.logger.Error("Streamed analysis failed", "url", rawURL, "error", err.Error())
			}
			_ = stream.SendError(string(code), publicMessage(err), errors.Remediations[code])
			return
		}
		_ = stream.SendComplete(a)
	}()

	if err := streaming.ServeSSE(w, r, stream); err != nil && r.Context().Err() == nil {
		s.logger.Warn("Progress stream ended early", "stream", stream.ID, "error", err.Error())
	}
	<-done
}

func (s *Server) cachedAnalysis(w http.ResponseWriter, r *http.Request) (*analysis.Analysis, bool) {
	ref, err := pathRef(r)
	if err != nil {
		s.writeRequestError(w, r, err)
		return nil, false
	}
	a, err := s.svc.Cached(r.Context(), ref)
	if err != nil {
		s.writeRequestError(w, r, err)
		return nil, false
	}
	return a, true
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	if a, ok := s.cachedAnalysis(w, r); ok {
		WriteJSON(w, a, http.StatusOK)
	}
}

func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	if a, ok := s.cachedAnalysis(w, r); ok {
		WriteJSON(w, layout.Flow(a.Architecture), http.StatusOK)
	}
}

// handleExport downloads the analysis as markdown, mermaid or json.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "markdown"
	}

	var contentType, ext string
	switch format {
	case "markdown", "md":
		contentType, ext = "text/markdown; charset=utf-8", "md"
	case "mermaid", "mmd":
		contentType, ext = "text/plain; charset=utf-8", "mmd"
	case "json":
		contentType, ext = "application/json", "json"
	default:
		s.writeRequestError(w, r, errors.New(errors.ValidationFailed,
			fmt.Sprintf("unknown export format %q", format), nil).
			WithDetails(map[string][]string{"formats": {"markdown", "mermaid", "json"}}))
		return
	}

	a, ok := s.cachedAnalysis(w, r)
	if !ok {
		return
	}

	filename := fmt.Sprintf("%s-%s-analysis.%s", a.Repository.Owner, a.Repository.Name, ext)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	switch ext {
	case "json":
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		enc := jsonIndentEncoder(w)
		_ = enc.Encode(a)
	case "mmd":
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(docs.Mermaid(a)))
	default:
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(docs.Markdown(a)))
	}
}

// AnalysisList is the response of GET /api/analyses.
type AnalysisList struct {
	Analyses []storage.AnalysisRecord `json:"analyses"`
	Limit    int                      `json:"limit"`
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	limit, err := parseLimit(r)
	if err != nil {
		s.writeRequestError(w, r, err)
		return
	}

	records, err := s.store.ListAnalyses(r.Context(), storage.ListFilter{UserID: &user.ID, Limit: limit})
	if err != nil {
		s.writeRequestError(w, r, errors.New(errors.InternalError, "failed to list analyses", err))
		return
	}
	if records == nil {
		records = []storage.AnalysisRecord{}
	}
	if limit == 0 {
		limit = storage.DefaultListLimit
	}
	WriteJSON(w, AnalysisList{Analyses: records, Limit: limit}, http.StatusOK)
}

func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeRequestError(w, r, errors.New(errors.ValidationFailed, "invalid analysis id", err))
		return
	}

	err = s.store.DeleteAnalysis(r.Context(), id, user.ID)
	if stderrors.Is(err, storage.ErrNotFound) {
		s.writeRequestError(w, r, errors.New(errors.AnalysisNotFound, "analysis not found", err))
		return
	}
	if err != nil {
		s.writeRequestError(w, r, errors.New(errors.InternalError, "failed to delete analysis", err))
		return
	}

	s.logger.Info("Analysis deleted", "id", id, "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}
