package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"reposcope/internal/analysis"
	"reposcope/internal/auth"
	rserrors "reposcope/internal/errors"
	"reposcope/internal/ghurl"
	"reposcope/internal/github"
	"reposcope/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubFetcher serves one repository and reports every other one missing.
type stubFetcher struct {
	snap *github.Snapshot
}

func (f *stubFetcher) GetRepository(_ context.Context, ref ghurl.Ref) (*github.Repository, error) {
	if ref.Key() != "acme/shop" {
		return nil, rserrors.New(rserrors.RepoNotFound, "repository "+ref.FullName()+" not found", nil)
	}
	return f.snap.Repository, nil
}

func (f *stubFetcher) FetchSnapshot(ctx context.Context, ref ghurl.Ref, _ github.FetchOptions, progress func(github.FetchProgress)) (*github.Snapshot, error) {
	repo, err := f.GetRepository(ctx, ref)
	if err != nil {
		return nil, err
	}
	for i, file := range f.snap.Files {
		progress(github.FetchProgress{Message: "Fetched " + file.Path, Done: i + 1, Total: len(f.snap.Files)})
	}
	snap := *f.snap
	snap.Ref = ref
	snap.Repository = repo
	return &snap, nil
}

func testSnapshot() *github.Snapshot {
	return &github.Snapshot{
		Repository: &github.Repository{
			Owner:         "acme",
			Name:          "shop",
			FullName:      "acme/shop",
			Description:   "Online shop",
			DefaultBranch: "main",
			Language:      "Go",
			HTMLURL:       "https://github.com/acme/shop",
		},
		Tree: []github.TreeEntry{
			{Path: "go.mod", Type: github.EntryBlob, Size: 60},
			{Path: "main.go", Type: github.EntryBlob, Size: 200},
		},
		Languages: map[string]int{"Go": 1000},
		Files: []github.File{
			{Path: "go.mod", Content: "module example.com/shop\n\ngo 1.22\n\nrequire github.com/gin-gonic/gin v1.9.1\n"},
			{Path: "main.go", Content: "package main\n\nfunc main() {\n\tr := gin.Default()\n\tr.GET(\"/health\", health)\n}\n"},
		},
	}
}

type testEnv struct {
	server  *Server
	store   *storage.MemoryStore
	metrics *MetricsCollector
}

func newTestEnv(t *testing.T, limiter *auth.RateLimiter) *testEnv {
	t.Helper()
	logger := testLogger()
	store := storage.NewMemoryStore()
	metrics := NewMetricsCollector()
	manager := auth.NewManager(store, auth.ManagerConfig{
		JWTSecret:  "api-test-secret-0123456789",
		BcryptCost: bcrypt.MinCost,
	}, logger)
	svc := analysis.NewService(&stubFetcher{snap: testSnapshot()}, nil, store, metrics, analysis.Config{}, logger)

	config := DefaultServerConfig()
	config.CORSOrigins = []string{"http://localhost:5173"}
	server := NewServer(":0", Deps{
		Analyzer: svc,
		Store:    store,
		Auth:     manager,
		Limiter:  limiter,
		Metrics:  metrics,
	}, config, logger)
	return &testEnv{server: server, store: store, metrics: metrics}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/auth/register",
		fmt.Sprintf(`{"username":%q,"password":"password123"}`, username), "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d: %s", username, w.Code, w.Body.String())
	}
	var sess struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &sess); err != nil {
		t.Fatal(err)
	}
	return sess.Token
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/health", "", "")

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if got := decodeBody(t, w)["status"]; got != "healthy" {
		t.Errorf("status = %v, want healthy", got)
	}
}

type failingStore struct {
	*storage.MemoryStore
}

func (failingStore) Ping(context.Context) error { return fmt.Errorf("database is locked") }

func TestReadyEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	if w := env.do(t, http.MethodGet, "/ready", "", ""); w.Code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", w.Code)
	}

	env.server.store = failingStore{storage.NewMemoryStore()}
	w := env.do(t, http.MethodGet, "/ready", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d, want 503", w.Code)
	}
	if got := decodeBody(t, w)["status"]; got != "not_ready" {
		t.Errorf("status = %v, want not_ready", got)
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/auth/register", `{"username":"alice","password":"password123"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), auth.CookieName+"=") {
		t.Errorf("register did not set the session cookie: %q", w.Header().Get("Set-Cookie"))
	}
	body := decodeBody(t, w)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("no token in %v", body)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Error("response leaks the password hash")
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		status int
		code   string
	}{
		{"duplicate", http.MethodPost, "/api/auth/register", `{"username":"Alice","password":"password123"}`, "", http.StatusConflict, "CONFLICT"},
		{"invalid username", http.MethodPost, "/api/auth/register", `{"username":"a!","password":"password123"}`, "", http.StatusBadRequest, "VALIDATION_FAILED"},
		{"malformed body", http.MethodPost, "/api/auth/register", `{"username":`, "", http.StatusBadRequest, "VALIDATION_FAILED"},
		{"bad password", http.MethodPost, "/api/auth/login", `{"username":"alice","password":"wrong-password"}`, "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"login", http.MethodPost, "/api/auth/login", `{"username":"alice","password":"password123"}`, "", http.StatusOK, ""},
		{"me without token", http.MethodGet, "/api/auth/me", "", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"me with token", http.MethodGet, "/api/auth/me", "", token, http.StatusOK, ""},
		{"logout", http.MethodPost, "/api/auth/logout", "", "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body, tt.token)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.code != "" {
				if got := decodeBody(t, w)["code"]; got != tt.code {
					t.Errorf("code = %v, want %s", got, tt.code)
				}
			}
		})
	}

	w = env.do(t, http.MethodGet, "/api/auth/me", "", token)
	user, _ := decodeBody(t, w)["user"].(map[string]interface{})
	if user["username"] != "alice" {
		t.Errorf("me = %v", user)
	}
}

func TestValidateEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"valid", `{"url":"https://github.com/acme/shop"}`, http.StatusOK, ""},
		{"shorthand", `{"url":"Acme/Shop"}`, http.StatusOK, ""},
		{"invalid", `{"url":"https://gitlab.com/acme/shop"}`, http.StatusBadRequest, "INVALID_URL"},
		{"missing", `{"url":"https://github.com/acme/nothing"}`, http.StatusNotFound, "REPO_NOT_FOUND"},
		{"empty", `{}`, http.StatusBadRequest, "INVALID_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/validate", tt.body, "")
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			body := decodeBody(t, w)
			if tt.code != "" {
				if body["code"] != tt.code {
					t.Errorf("code = %v, want %s", body["code"], tt.code)
				}
				if body["error"] == "" {
					t.Error("missing error message")
				}
				return
			}
			if body["valid"] != true || body["repository"] == nil {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestAnalyzeAndViews(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "bob")

	if w := env.do(t, http.MethodGet, "/api/analysis/acme/shop", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("analysis before run: status %d", w.Code)
	}

	w := env.do(t, http.MethodPost, "/api/analyze", `{"url":"https://github.com/acme/shop"}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("analyze status = %d: %s", w.Code, w.Body.String())
	}
	var a analysis.Analysis
	if err := json.Unmarshal(w.Body.Bytes(), &a); err != nil {
		t.Fatal(err)
	}
	if a.Repository.FullName != "acme/shop" || !a.Meta.Fallback {
		t.Errorf("analysis = %+v", a.Meta)
	}

	// A second request is served from the cache.
	w = env.do(t, http.MethodPost, "/api/analyze", `{"url":"acme/shop"}`, "")
	var cached analysis.Analysis
	_ = json.Unmarshal(w.Body.Bytes(), &cached)
	if !cached.Meta.Cached {
		t.Error("second analyze should be cached")
	}

	t.Run("get", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/analysis/ACME/shop", "", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("flow", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/analysis/acme/shop/flow", "", "")
		body := decodeBody(t, w)
		if _, ok := body["nodes"].([]interface{}); !ok {
			t.Errorf("flow body = %v", body)
		}
		if _, ok := body["edges"].([]interface{}); !ok {
			t.Errorf("flow body = %v", body)
		}
	})

	t.Run("export", func(t *testing.T) {
		tests := []struct {
			format      string
			status      int
			contentType string
			prefix      string
		}{
			{"markdown", http.StatusOK, "text/markdown", "# "},
			{"", http.StatusOK, "text/markdown", "# "},
			{"mermaid", http.StatusOK, "text/plain", "graph TD"},
			{"json", http.StatusOK, "application/json", "{"},
			{"pdf", http.StatusBadRequest, "application/json", "{"},
		}
		for _, tt := range tests {
			w := env.do(t, http.MethodGet, "/api/analysis/acme/shop/export?format="+tt.format, "", "")
			if w.Code != tt.status {
				t.Errorf("format %q: status = %d", tt.format, w.Code)
				continue
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, tt.contentType) {
				t.Errorf("format %q: Content-Type = %q", tt.format, ct)
			}
			if !strings.HasPrefix(w.Body.String(), tt.prefix) {
				t.Errorf("format %q: body starts %q", tt.format, firstLine(w.Body.String()))
			}
			if tt.status == http.StatusOK && !strings.Contains(w.Header().Get("Content-Disposition"), "acme-shop-analysis.") {
				t.Errorf("format %q: Content-Disposition = %q", tt.format, w.Header().Get("Content-Disposition"))
			}
		}
	})

	t.Run("documents", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/generate-mermaid", `{"owner":"acme","repo":"shop"}`, "")
		if body := decodeBody(t, w); !strings.HasPrefix(fmt.Sprint(body["mermaid"]), "graph TD") {
			t.Errorf("mermaid body = %v", body)
		}

		w = env.do(t, http.MethodPost, "/api/generate-readme", `{"owner":"acme","repo":"shop"}`, "")
		body := decodeBody(t, w)
		if body["generated"] != false || !strings.Contains(fmt.Sprint(body["readme"]), "shop") {
			t.Errorf("readme body = %v", body)
		}

		w = env.do(t, http.MethodPost, "/api/generate-readme", `{"owner":"acme","repo":"other"}`, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("readme for unknown repo: status %d", w.Code)
		}
	})

	t.Run("history", func(t *testing.T) {
		if w := env.do(t, http.MethodGet, "/api/analyses", "", ""); w.Code != http.StatusUnauthorized {
			t.Errorf("anonymous list status = %d", w.Code)
		}

		w := env.do(t, http.MethodGet, "/api/analyses?limit=5", "", token)
		var list AnalysisList
		if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
			t.Fatal(err)
		}
		if len(list.Analyses) != 1 || list.Analyses[0].RepoKey != "acme/shop" || list.Limit != 5 {
			t.Fatalf("list = %+v", list)
		}
		id := list.Analyses[0].ID

		other := env.register(t, "carol")
		if w := env.do(t, http.MethodGet, "/api/analyses", "", other); !strings.Contains(w.Body.String(), `"analyses":[]`) {
			t.Errorf("other user's list = %s", w.Body.String())
		}
		if w := env.do(t, http.MethodDelete, fmt.Sprintf("/api/analyses/%d", id), "", other); w.Code != http.StatusNotFound {
			t.Errorf("delete by another user: status %d, want 404", w.Code)
		}
		if w := env.do(t, http.MethodGet, "/api/analyses?limit=x", "", token); w.Code != http.StatusBadRequest {
			t.Errorf("bad limit: status %d", w.Code)
		}
		if w := env.do(t, http.MethodDelete, "/api/analyses/abc", "", token); w.Code != http.StatusBadRequest {
			t.Errorf("bad id: status %d", w.Code)
		}
		if w := env.do(t, http.MethodDelete, fmt.Sprintf("/api/analyses/%d", id), "", token); w.Code != http.StatusNoContent {
			t.Errorf("delete: status %d", w.Code)
		}
		if w := env.do(t, http.MethodGet, "/api/analysis/acme/shop", "", ""); w.Code != http.StatusNotFound {
			t.Errorf("analysis after delete: status %d", w.Code)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/metrics", "", "")
		text := w.Body.String()
		for _, want := range []string{
			`reposcope_analyses_total{outcome="fallback"} 1`,
			`reposcope_analyses_total{outcome="cached"} 1`,
			`reposcope_cache_hits_total 1`,
			`reposcope_llm_fallbacks_total{reason="language model not configured"} 1`,
			`reposcope_analysis_duration_seconds_count{outcome="fallback"} 1`,
			`reposcope_http_errors_total{status="404"}`,
		} {
			if !strings.Contains(text, want) {
				t.Errorf("metrics missing %q", want)
			}
		}
	})
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func TestAnalyzeStream(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.server)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/analyze/stream?url=acme/shop&force=true")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	var events []map[string]interface{}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad event %q: %v", line, err)
		}
		events = append(events, ev)
	}

	if len(events) < 3 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0]["type"] != "progress" || events[0]["stage"] != "validate" {
		t.Errorf("first event = %v", events[0])
	}
	last := events[len(events)-1]
	if last["type"] != "complete" || last["analysis"] == nil {
		t.Errorf("last event = %v", last)
	}
	prev := -1.0
	for _, ev := range events[:len(events)-1] {
		pct, _ := ev["percent"].(float64)
		if pct < prev {
			t.Errorf("progress went backwards: %v after %v", pct, prev)
		}
		prev = pct
	}
}

func TestAnalyzeStreamErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	if w := env.do(t, http.MethodGet, "/api/analyze/stream", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing url: status %d", w.Code)
	}

	ts := httptest.NewServer(env.server)
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/api/analyze/stream?url=acme/nothing")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), `"type":"error"`) || !strings.Contains(string(data), `"code":"REPO_NOT_FOUND"`) {
		t.Errorf("stream = %s", data)
	}
}

func TestRateLimitedLogin(t *testing.T) {
	limiter := auth.NewRateLimiter(auth.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}, testLogger())
	env := newTestEnv(t, limiter)

	body := `{"username":"nobody","password":"password123"}`
	if w := env.do(t, http.MethodPost, "/api/auth/login", body, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("first login: status %d", w.Code)
	}
	w := env.do(t, http.MethodPost, "/api/auth/login", body, "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second login: status %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if got := decodeBody(t, w)["code"]; got != "RATE_LIMITED" {
		t.Errorf("code = %v", got)
	}
}

func TestRootAndUnknownRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	if w := env.do(t, http.MethodGet, "/", "", ""); w.Code != http.StatusOK {
		t.Errorf("root status = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/nope", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/analyze", "", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method status = %d", w.Code)
	}
}
