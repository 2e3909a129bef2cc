package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	rserrors "reposcope/internal/errors"
	"reposcope/internal/ghurl"
	"reposcope/internal/github"
	"reposcope/internal/llm"
	"reposcope/internal/manifest"
	"reposcope/internal/storage"
)

type fakeFetcher struct {
	snap  *github.Snapshot
	err   error
	calls int
}

func (f *fakeFetcher) GetRepository(_ context.Context, ref ghurl.Ref) (*github.Repository, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snap.Repository, nil
}

func (f *fakeFetcher) FetchSnapshot(_ context.Context, ref ghurl.Ref, _ github.FetchOptions, progress func(github.FetchProgress)) (*github.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	progress(github.FetchProgress{Message: "Fetching repository metadata"})
	for i, file := range f.snap.Files {
		progress(github.FetchProgress{Message: "Fetched " + file.Path, Done: i + 1, Total: len(f.snap.Files)})
	}
	snap := *f.snap
	snap.Ref = ref
	return &snap, nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	outcomes  []string
	cacheHits int
	fallbacks int
}

func (r *fakeRecorder) AnalysisFinished(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) CacheHit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheHits++
}

func (r *fakeRecorder) Fallback(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks++
}

// scriptedModel returns its responses in order, repeating the last one.
type scriptedModel struct {
	responses []string
	err       error
	prompts   []string
}

func (m *scriptedModel) generator() llm.GeneratorFunc {
	return func(_ context.Context, prompt string) (string, error) {
		m.prompts = append(m.prompts, prompt)
		if m.err != nil {
			return "", m.err
		}
		i := min(len(m.prompts)-1, len(m.responses)-1)
		return m.responses[i], nil
	}
}

const validResponse = `{
  "summary": "An online shop",
  "architecture": {
    "pattern": "monolith",
    "components": [{"name": "API", "type": "api"}, {"name": "Database", "type": "database"}],
    "connections": [{"source": "api", "target": "database", "label": "SQL", "type": "data"}]
  }
}`

func newTestService(fetcher Fetcher, gen llm.Generator, store Store, rec Recorder) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(fetcher, gen, store, rec, Config{}, logger)
}

func collect(events *[]Progress) ProgressFunc {
	return func(p Progress) { *events = append(*events, p) }
}

func TestAnalyzeSuccessAndCache(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{snap: testSnapshot()}
	model := &scriptedModel{responses: []string{validResponse}}
	store := storage.NewMemoryStore()
	rec := &fakeRecorder{}
	svc := newTestService(fetcher, model.generator(), store, rec)

	var events []Progress
	userID := int64(7)
	a, err := svc.Analyze(ctx, "https://github.com/Acme/Shop", Options{UserID: &userID}, collect(&events))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if a.Summary != "An online shop" || a.Meta.Fallback || a.Meta.Cached {
		t.Errorf("unexpected analysis: summary=%q meta=%+v", a.Summary, a.Meta)
	}
	if a.Meta.Model != "func" || a.Meta.FilesAnalyzed != 3 {
		t.Errorf("meta = %+v", a.Meta)
	}
	if a.Repository.FullName != "acme/shop" {
		t.Errorf("repository = %+v", a.Repository)
	}
	if len(a.Architecture.Connections) != 1 {
		t.Errorf("connections = %+v", a.Architecture.Connections)
	}
	if len(a.TechStack.Languages) != 2 {
		t.Errorf("languages not filled from snapshot: %v", a.TechStack.Languages)
	}

	if len(events) == 0 || events[0].Stage != StageValidate || events[0].Percent != 5 {
		t.Fatalf("first event = %+v", events)
	}
	last := events[len(events)-1]
	if last.Stage != StageDone || last.Percent != 100 {
		t.Errorf("last event = %+v", last)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Percent < events[i-1].Percent {
			t.Errorf("progress went backwards: %+v -> %+v", events[i-1], events[i])
		}
	}

	stored, err := store.GetAnalysisByRepo(ctx, "acme/shop")
	if err != nil {
		t.Fatalf("analysis not stored: %v", err)
	}
	if stored.UserID == nil || *stored.UserID != 7 {
		t.Errorf("stored owner = %v", stored.UserID)
	}

	// second request is served from the cache
	events = nil
	cached, err := svc.Analyze(ctx, "acme/shop", Options{}, collect(&events))
	if err != nil {
		t.Fatalf("cached Analyze: %v", err)
	}
	if !cached.Meta.Cached || cached.Summary != "An online shop" {
		t.Errorf("cached meta = %+v", cached.Meta)
	}
	if fetcher.calls != 1 || len(model.prompts) != 1 {
		t.Errorf("cache hit refetched: fetches=%d prompts=%d", fetcher.calls, len(model.prompts))
	}
	if events[len(events)-1].Percent != 100 {
		t.Errorf("cache hit did not finish at 100: %+v", events)
	}

	// Force bypasses it
	if _, err := svc.Analyze(ctx, "acme/shop", Options{Force: true}, nil); err != nil {
		t.Fatal(err)
	}
	if fetcher.calls != 2 || len(model.prompts) != 2 {
		t.Errorf("force did not refetch: fetches=%d prompts=%d", fetcher.calls, len(model.prompts))
	}

	want := []string{OutcomeSuccess, OutcomeCached, OutcomeSuccess}
	if strings.Join(rec.outcomes, ",") != strings.Join(want, ",") || rec.cacheHits != 1 {
		t.Errorf("recorder outcomes = %v hits = %d", rec.outcomes, rec.cacheHits)
	}

	got, err := svc.Cached(ctx, ghurl.Ref{Owner: "ACME", Repo: "shop"})
	if err != nil || got.Summary != "An online shop" {
		t.Errorf("Cached = %v, %v", got, err)
	}
}

func TestAnalyzeRetriesWithReducedPrompt(t *testing.T) {
	model := &scriptedModel{responses: []string{"Sorry, I can't do that.", validResponse}}
	svc := newTestService(&fakeFetcher{snap: testSnapshot()}, model.generator(), nil, nil)

	a, err := svc.Analyze(context.Background(), "acme/shop", Options{}, nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(model.prompts) != 2 {
		t.Fatalf("prompts = %d, want 2", len(model.prompts))
	}
	if !strings.Contains(model.prompts[1], "IMPORTANT") {
		t.Error("retry prompt has no JSON reminder")
	}
	if strings.Contains(model.prompts[1], "### cmd/shop/main.go") {
		t.Error("retry prompt was not reduced")
	}
	if a.Meta.Fallback || len(a.Meta.Warnings) != 1 {
		t.Errorf("meta = %+v", a.Meta)
	}
}

func TestAnalyzeFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		gen    llm.Generator
		reason string
	}{
		{
			name:   "no model",
			reason: "language model not configured",
		},
		{
			name:   "unparseable twice",
			gen:    (&scriptedModel{responses: []string{"no json here"}}).generator(),
			reason: "model response could not be parsed",
		},
		{
			name:   "model error",
			gen:    (&scriptedModel{err: rserrors.New(rserrors.LLMUnavailable, "quota", nil)}).generator(),
			reason: "language model unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			store := storage.NewMemoryStore()
			svc := newTestService(&fakeFetcher{snap: testSnapshot()}, tt.gen, store, rec)

			a, err := svc.Analyze(context.Background(), "acme/shop", Options{}, nil)
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if !a.Meta.Fallback {
				t.Fatal("expected fallback analysis")
			}
			if len(a.Meta.Warnings) == 0 || !strings.HasPrefix(a.Meta.Warnings[0], tt.reason) {
				t.Errorf("warnings = %v, want prefix %q", a.Meta.Warnings, tt.reason)
			}
			if rec.fallbacks != 1 || rec.outcomes[0] != OutcomeFallback {
				t.Errorf("recorder = %+v", rec)
			}

			stored, err := store.GetAnalysisByRepo(context.Background(), "acme/shop")
			if err != nil || !stored.Fallback {
				t.Errorf("fallback not persisted: %+v %v", stored, err)
			}
		})
	}
}

func TestAnalyzeErrors(t *testing.T) {
	ctx := context.Background()

	svc := newTestService(&fakeFetcher{snap: testSnapshot()}, nil, nil, nil)
	if _, err := svc.Analyze(ctx, "https://gitlab.com/a/b", Options{}, nil); !rserrors.Is(err, rserrors.InvalidURL) {
		t.Errorf("invalid URL: got %v", err)
	}

	notFound := rserrors.New(rserrors.RepoNotFound, "missing", nil)
	fetcher := &fakeFetcher{err: notFound}
	svc = newTestService(fetcher, nil, nil, nil)
	if _, err := svc.Analyze(ctx, "acme/shop", Options{}, nil); !errors.Is(err, notFound) {
		t.Errorf("fetch error: got %v", err)
	}

	if _, _, err := svc.Validate(ctx, "acme/shop"); !rserrors.Is(err, rserrors.RepoNotFound) {
		t.Errorf("Validate: got %v", err)
	}

	if _, err := svc.Cached(ctx, ghurl.Ref{Owner: "a", Repo: "b"}); !rserrors.Is(err, rserrors.AnalysisNotFound) {
		t.Errorf("Cached without store: got %v", err)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	a := BuildFallback(testSnapshot(), manifest.Report{}, nil, "x")
	uid := int64(3)
	rec, err := EncodeRecord(ghurl.Ref{Owner: "Acme", Repo: "Shop"}, a, &uid)
	if err != nil {
		t.Fatal(err)
	}
	if rec.RepoKey != "acme/shop" || !rec.Fallback || rec.Model != "static" {
		t.Errorf("record = %+v", rec)
	}
	back, err := DecodeRecord(rec)
	if err != nil {
		t.Fatal(err)
	}
	if back.Summary != a.Summary || len(back.KeyFiles) != len(a.KeyFiles) {
		t.Errorf("decoded = %+v", back)
	}

	if _, err := DecodeRecord(&storage.AnalysisRecord{Data: []byte("{")}); err == nil {
		t.Error("expected decode error")
	}
}
