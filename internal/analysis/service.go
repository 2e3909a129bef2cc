package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reposcope/internal/endpoints"
	rserrors "reposcope/internal/errors"
	"reposcope/internal/ghurl"
	"reposcope/internal/github"
	"reposcope/internal/llm"
	"reposcope/internal/manifest"
	"reposcope/internal/storage"
)

// Fetcher is the part of the GitHub client the pipeline needs.
type Fetcher interface {
	GetRepository(ctx context.Context, ref ghurl.Ref) (*github.Repository, error)
	FetchSnapshot(ctx context.Context, ref ghurl.Ref, opts github.FetchOptions, progress func(github.FetchProgress)) (*github.Snapshot, error)
}

// Store is the part of persistence the pipeline needs.
type Store interface {
	GetAnalysisByRepo(ctx context.Context, repoKey string) (*storage.AnalysisRecord, error)
	SaveAnalysis(ctx context.Context, rec *storage.AnalysisRecord) error
}

// Recorder receives pipeline outcomes for metrics.
type Recorder interface {
	AnalysisFinished(outcome string, d time.Duration)
	CacheHit()
	Fallback(reason string)
}

// Outcomes passed to Recorder.AnalysisFinished.
const (
	OutcomeSuccess  = "success"
	OutcomeFallback = "fallback"
	OutcomeCached   = "cached"
	OutcomeError    = "error"
)

// Config tunes the pipeline.
type Config struct {
	Fetch          github.FetchOptions
	MaxTreeEntries int
	Timeout        time.Duration
}

// Options are per-request settings.
type Options struct {
	// Force skips the cache lookup.
	Force bool
	// UserID owns the stored result; nil for anonymous requests.
	UserID *int64
}

// Service runs analyses.
type Service struct {
	fetcher  Fetcher
	gen      llm.Generator
	store    Store
	recorder Recorder
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service. gen may be nil, in which case every
// analysis is built statically. store and recorder may be nil.
func NewService(fetcher Fetcher, gen llm.Generator, store Store, recorder Recorder, cfg Config, logger *slog.Logger) *Service {
	if cfg.MaxTreeEntries <= 0 {
		cfg.MaxTreeEntries = DefaultMaxTreeEntries
	}
	return &Service{
		fetcher:  fetcher,
		gen:      gen,
		store:    store,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Validate parses rawURL and confirms the repository is reachable.
func (s *Service) Validate(ctx context.Context, rawURL string) (ghurl.Ref, *github.Repository, error) {
	ref, err := parseURL(rawURL)
	if err != nil {
		return ghurl.Ref{}, nil, err
	}
	repo, err := s.fetcher.GetRepository(ctx, ref)
	if err != nil {
		return ref, nil, err
	}
	return ref, repo, nil
}

// Cached returns the stored analysis for owner/repo.
func (s *Service) Cached(ctx context.Context, ref ghurl.Ref) (*Analysis, error) {
	if s.store == nil {
		return nil, rserrors.New(rserrors.AnalysisNotFound, "no analysis stored for "+ref.FullName(), nil)
	}
	rec, err := s.store.GetAnalysisByRepo(ctx, ref.Key())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, rserrors.New(rserrors.AnalysisNotFound, "no analysis stored for "+ref.FullName(), err)
		}
		return nil, rserrors.New(rserrors.InternalError, "failed to load analysis", err)
	}
	return DecodeRecord(rec)
}

// Analyze runs the full pipeline for rawURL. Progress is reported through
// progress, which may be nil.
func (s *Service) Analyze(ctx context.Context, rawURL string, opts Options, progress ProgressFunc) (*Analysis, error) {
	start := s.now()
	report := func(stage, msg string, pct int) {
		if progress != nil {
			progress(Progress{Stage: stage, Message: msg, Percent: pct})
		}
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	report(StageValidate, "Validating repository URL", 5)
	ref, err := parseURL(rawURL)
	if err != nil {
		s.finish(OutcomeError, start)
		return nil, err
	}
	logger := s.logger.With("repo", ref.FullName())

	if !opts.Force {
		report(StageCache, "Checking for a cached analysis", 7)
		if a, ok := s.lookup(ctx, ref, logger); ok {
			report(StageDone, "Loaded cached analysis", 100)
			if s.recorder != nil {
				s.recorder.CacheHit()
			}
			s.finish(OutcomeCached, start)
			return a, nil
		}
	}

	report(StageFetch, "Fetching repository from GitHub", 10)
	snap, err := s.fetcher.FetchSnapshot(ctx, ref, s.cfg.Fetch, func(p github.FetchProgress) {
		pct := 12
		if p.Total > 0 {
			pct = 15 + 35*p.Done/p.Total
		}
		report(StageFetch, p.Message, pct)
	})
	if err != nil {
		s.finish(OutcomeError, start)
		return nil, contextError(ctx, err)
	}
	logger.Info("Repository fetched",
		"files", len(snap.Files),
		"skipped", len(snap.Skipped),
		"treeEntries", len(snap.Tree),
	)

	report(StageDetect, "Detecting dependencies and routes", 55)
	rep := manifest.Detect(snap.Files)
	eps := endpoints.Detect(ctx, snap.Files)

	a, fallbackReason, err := s.generate(ctx, snap, rep, eps, report, logger)
	if err != nil {
		s.finish(OutcomeError, start)
		return nil, err
	}
	if a == nil {
		if s.recorder != nil {
			s.recorder.Fallback(fallbackReason)
		}
		logger.Warn("Using static fallback analysis", "reason", fallbackReason)
		a = BuildFallback(snap, rep, eps, fallbackReason)
	} else {
		s.enrich(a, snap, rep, eps)
	}

	for _, sk := range snap.Skipped {
		a.Meta.Warnings = append(a.Meta.Warnings, "skipped "+sk.Path+": "+sk.Reason)
	}
	if snap.TreeTruncated {
		a.Meta.Warnings = append(a.Meta.Warnings, "file tree truncated by GitHub")
	}
	a.Meta.GeneratedAt = s.now().UTC()
	a.Meta.DurationMs = s.now().Sub(start).Milliseconds()

	report(StageSave, "Saving analysis", 95)
	s.save(ctx, ref, a, opts.UserID, logger)

	report(StageDone, "Analysis complete", 100)
	if a.Meta.Fallback {
		s.finish(OutcomeFallback, start)
	} else {
		s.finish(OutcomeSuccess, start)
	}
	return a, nil
}

// generate asks the model for an analysis. A nil analysis with a reason
// means the caller should fall back; an error aborts the pipeline.
func (s *Service) generate(ctx context.Context, snap *github.Snapshot, rep manifest.Report, eps []endpoints.Endpoint, report func(string, string, int), logger *slog.Logger) (*Analysis, string, error) {
	if s.gen == nil {
		return nil, "language model not configured", nil
	}

	report(StageGenerate, "Generating architecture analysis", 60)
	in := PromptInput{Snapshot: snap, Report: rep, Endpoints: eps, MaxTreeEntries: s.cfg.MaxTreeEntries}
	prompt, err := BuildPrompt(in)
	if err != nil {
		return nil, "", rserrors.New(rserrors.InternalError, "failed to build prompt", err)
	}
	logger.Debug("Prompt built", "chars", len(prompt))

	raw, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", contextError(ctx, err)
		}
		return nil, "language model unavailable: " + err.Error(), nil
	}
	report(StageGenerate, "Model response received", 85)

	report(StageParse, "Parsing model response", 90)
	a, perr := ParseResponse(raw)
	if perr == nil {
		return a, "", nil
	}
	logger.Warn("Model response did not parse, retrying with a smaller prompt", "error", perr.Error())

	in.Snapshot = halveFiles(snap)
	in.Reminder = true
	prompt, err = BuildPrompt(in)
	if err != nil {
		return nil, "", rserrors.New(rserrors.InternalError, "failed to build prompt", err)
	}
	raw, err = s.gen.Generate(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", contextError(ctx, err)
		}
		return nil, "language model unavailable: " + err.Error(), nil
	}
	a, perr = ParseResponse(raw)
	if perr != nil {
		return nil, "model response could not be parsed: " + perr.Error(), nil
	}
	a.Meta.Warnings = append(a.Meta.Warnings, "generated from a reduced prompt after an unparseable response")
	return a, "", nil
}

// enrich overlays facts the pipeline knows better than the model.
func (s *Service) enrich(a *Analysis, snap *github.Snapshot, rep manifest.Report, eps []endpoints.Endpoint) {
	a.Repository = repositoryInfo(snap.Repository)
	if len(a.APIEndpoints) == 0 {
		for _, ep := range eps {
			a.APIEndpoints = append(a.APIEndpoints, APIEndpoint{Method: ep.Method, Path: ep.Path, File: ep.File})
		}
	}
	if len(a.TechStack.Languages) == 0 {
		a.TechStack.Languages = languageNames(snap.Languages)
	}
	if len(a.EnvironmentVariables) == 0 {
		for _, name := range rep.EnvVars {
			a.EnvironmentVariables = append(a.EnvironmentVariables, EnvironmentVariable{Name: name})
		}
	}
	a.Meta.Model = s.gen.Model()
	a.Meta.FilesAnalyzed = len(snap.Files)
	a.Meta.Fallback = false
	a.Meta.Cached = false
	Normalize(a)
}

func (s *Service) lookup(ctx context.Context, ref ghurl.Ref, logger *slog.Logger) (*Analysis, bool) {
	if s.store == nil {
		return nil, false
	}
	rec, err := s.store.GetAnalysisByRepo(ctx, ref.Key())
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("Cache lookup failed", "error", err.Error())
		}
		return nil, false
	}
	a, err := DecodeRecord(rec)
	if err != nil {
		logger.Warn("Cached analysis is unreadable", "error", err.Error())
		return nil, false
	}
	a.Meta.Cached = true
	return a, true
}

func (s *Service) save(ctx context.Context, ref ghurl.Ref, a *Analysis, userID *int64, logger *slog.Logger) {
	if s.store == nil {
		return
	}
	rec, err := EncodeRecord(ref, a, userID)
	if err != nil {
		logger.Error("Failed to encode analysis", "error", err.Error())
		return
	}
	if err := s.store.SaveAnalysis(ctx, rec); err != nil {
		logger.Error("Failed to save analysis", "error", err.Error())
	}
}

func (s *Service) finish(outcome string, start time.Time) {
	if s.recorder != nil {
		s.recorder.AnalysisFinished(outcome, s.now().Sub(start))
	}
}

func parseURL(rawURL string) (ghurl.Ref, error) {
	ref, err := ghurl.Parse(rawURL)
	if err != nil {
		return ghurl.Ref{}, rserrors.New(rserrors.InvalidURL, "invalid GitHub repository URL", err)
	}
	return ref, nil
}

func contextError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return rserrors.New(rserrors.Timeout, "analysis timed out", err)
	}
	return err
}

// EncodeRecord prepares an analysis for storage.
func EncodeRecord(ref ghurl.Ref, a *Analysis, userID *int64) (*storage.AnalysisRecord, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis: %w", err)
	}
	return &storage.AnalysisRecord{
		RepoKey:  ref.Key(),
		Owner:    ref.Owner,
		Repo:     ref.Repo,
		UserID:   userID,
		Summary:  a.Summary,
		Model:    a.Meta.Model,
		Fallback: a.Meta.Fallback,
		Data:     data,
	}, nil
}

// DecodeRecord restores an analysis from storage.
func DecodeRecord(rec *storage.AnalysisRecord) (*Analysis, error) {
	var a Analysis
	if err := json.Unmarshal(rec.Data, &a); err != nil {
		return nil, fmt.Errorf("decode stored analysis %d: %w", rec.ID, err)
	}
	Normalize(&a)
	return &a, nil
}
