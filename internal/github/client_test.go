package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	rserrors "reposcope/internal/errors"
	"reposcope/internal/ghurl"
	"reposcope/internal/slogutil"
)

// fakeGitHub serves a tiny repository "octo/demo".
func fakeGitHub(t *testing.T, files map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var contentCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/demo", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"name":             "demo",
			"full_name":        "octo/demo",
			"description":      "A demo service",
			"default_branch":   "main",
			"language":         "Go",
			"stargazers_count": 42,
			"forks_count":      7,
			"topics":           []string{"api", "demo"},
			"html_url":         "https://github.com/octo/demo",
			"owner":            map[string]string{"login": "octo"},
			"license":          map[string]string{"spdx_id": "MIT", "name": "MIT License"},
		})
	})
	mux.HandleFunc("GET /repos/octo/demo/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("recursive") != "1" {
			t.Errorf("expected recursive tree request, got %q", r.URL.RawQuery)
		}
		var entries []map[string]interface{}
		for p, c := range files {
			entries = append(entries, map[string]interface{}{"path": p, "type": "blob", "size": len(c)})
		}
		entries = append(entries, map[string]interface{}{"path": "cmd", "type": "tree"})
		writeJSON(w, map[string]interface{}{"sha": "abc", "tree": entries, "truncated": false})
	})
	mux.HandleFunc("GET /repos/octo/demo/languages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]int{"Go": 9000, "Shell": 1000})
	})
	mux.HandleFunc("GET /repos/octo/demo/contents/{path...}", func(w http.ResponseWriter, r *http.Request) {
		contentCalls.Add(1)
		p := r.PathValue("path")
		content, ok := files[p]
		if strings.HasPrefix(p, "blocked/") {
			w.WriteHeader(http.StatusForbidden)
			writeJSON(w, map[string]string{"message": "Repository access blocked"})
			return
		}
		if !ok || strings.Contains(p, "broken") {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, map[string]interface{}{
			"type":     "file",
			"encoding": "base64",
			"path":     p,
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
		})
	})
	mux.HandleFunc("GET /repos/octo/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"message": "Not Found"})
	})
	mux.HandleFunc("GET /repos/octo/limited", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "60")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "1700000000")
		w.WriteHeader(http.StatusForbidden)
		writeJSON(w, map[string]string{"message": "API rate limit exceeded"})
	})
	mux.HandleFunc("GET /repos/octo/blocked", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		writeJSON(w, map[string]string{"message": "Repository access blocked"})
	})
	mux.HandleFunc("GET /repos/octo/busy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		writeJSON(w, map[string]string{"message": "Too many requests"})
	})
	mux.HandleFunc("GET /repos/octo/badtoken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]string{"message": "Bad credentials"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &contentCalls
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Options{BaseURL: srv.URL, Token: "test-token"}, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestClient_GetRepository(t *testing.T) {
	srv, _ := fakeGitHub(t, nil)
	c := newTestClient(t, srv)

	repo, err := c.GetRepository(context.Background(), ghurl.Ref{Owner: "octo", Repo: "demo"})
	if err != nil {
		t.Fatalf("GetRepository failed: %v", err)
	}

	if repo.FullName != "octo/demo" || repo.DefaultBranch != "main" || repo.Stars != 42 {
		t.Errorf("unexpected repository: %+v", repo)
	}
	if repo.License != "MIT" {
		t.Errorf("License = %q, want MIT", repo.License)
	}
	if len(repo.Topics) != 2 {
		t.Errorf("Topics = %v", repo.Topics)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	srv, _ := fakeGitHub(t, nil)
	c := newTestClient(t, srv)

	tests := []struct {
		repo string
		code rserrors.ErrorCode
	}{
		{"missing", rserrors.RepoNotFound},
		{"limited", rserrors.RateLimited},
		{"busy", rserrors.RateLimited},
		{"blocked", rserrors.Forbidden},
		{"badtoken", rserrors.GitHubUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.repo, func(t *testing.T) {
			_, err := c.GetRepository(context.Background(), ghurl.Ref{Owner: "octo", Repo: tt.repo})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := rserrors.CodeOf(err); got != tt.code {
				t.Errorf("CodeOf() = %s, want %s (err: %v)", got, tt.code, err)
			}
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(Options{BaseURL: url}, slogutil.NewDiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.GetRepository(context.Background(), ghurl.Ref{Owner: "octo", Repo: "demo"})
	if got := rserrors.CodeOf(err); got != rserrors.GitHubUnavailable {
		t.Errorf("CodeOf() = %s, want %s", got, rserrors.GitHubUnavailable)
	}
}

func TestClient_FetchSnapshot(t *testing.T) {
	files := map[string]string{
		"go.mod":              "module example.com/demo\n\ngo 1.22\n",
		"README.md":           "# Demo\n",
		"cmd/demo/main.go":    "package main\n\nfunc main() {}\n",
		"internal/broken.go":  "package internal\n",
		"internal/handler.go": strings.Repeat("// filler line\n", 1000),
	}
	srv, calls := fakeGitHub(t, files)
	c := newTestClient(t, srv)

	var last FetchProgress
	var fileEvents int
	opts := FetchOptions{MaxFiles: 10, MaxFileChars: 500, BatchSize: 2}
	snap, err := c.FetchSnapshot(context.Background(), ghurl.Ref{Owner: "octo", Repo: "demo"}, opts, func(p FetchProgress) {
		if p.Total > 0 {
			fileEvents++
			if p.Done < last.Done {
				t.Errorf("progress went backwards: %d after %d", p.Done, last.Done)
			}
			last = p
		}
	})
	if err != nil {
		t.Fatalf("FetchSnapshot failed: %v", err)
	}

	if snap.Repository.FullName != "octo/demo" {
		t.Errorf("Repository = %+v", snap.Repository)
	}
	if snap.Languages["Go"] != 9000 {
		t.Errorf("Languages = %v", snap.Languages)
	}
	if len(snap.Tree) != len(files)+1 {
		t.Errorf("Tree has %d entries, want %d", len(snap.Tree), len(files)+1)
	}
	if got := int(calls.Load()); got != len(files) {
		t.Errorf("content requests = %d, want %d", got, len(files))
	}
	if len(snap.Files) != len(files)-1 {
		t.Errorf("Files = %d, want %d", len(snap.Files), len(files)-1)
	}
	if len(snap.Skipped) != 1 || snap.Skipped[0].Path != "internal/broken.go" {
		t.Errorf("Skipped = %+v", snap.Skipped)
	}
	if fileEvents != len(files) || last.Done != len(files) {
		t.Errorf("file progress events = %d, last = %+v", fileEvents, last)
	}

	for _, f := range snap.Files {
		if f.Path == "internal/handler.go" && !f.Truncated {
			t.Error("large file should be truncated")
		}
		if f.Path == "go.mod" && !strings.Contains(f.Content, "module example.com/demo") {
			t.Errorf("go.mod content = %q", f.Content)
		}
	}
	if snap.Files[0].Path != "go.mod" {
		t.Errorf("files should keep selection order, first = %s", snap.Files[0].Path)
	}
}

func TestClient_FetchSnapshot_ForbiddenFileIsSkipped(t *testing.T) {
	files := map[string]string{
		"go.mod":          "module example.com/demo\n\ngo 1.22\n",
		"blocked/main.go": "package main\n",
	}
	srv, _ := fakeGitHub(t, files)
	c := newTestClient(t, srv)

	opts := FetchOptions{MaxFiles: 10, MaxFileChars: 500, BatchSize: 2}
	snap, err := c.FetchSnapshot(context.Background(), ghurl.Ref{Owner: "octo", Repo: "demo"}, opts, nil)
	if err != nil {
		t.Fatalf("FetchSnapshot failed: %v", err)
	}
	if len(snap.Files) != 1 || snap.Files[0].Path != "go.mod" {
		t.Errorf("Files = %+v", snap.Files)
	}
	if len(snap.Skipped) != 1 || snap.Skipped[0].Path != "blocked/main.go" {
		t.Fatalf("Skipped = %+v", snap.Skipped)
	}
	if !strings.Contains(snap.Skipped[0].Reason, string(rserrors.Forbidden)) {
		t.Errorf("Reason = %q, want it to mention %s", snap.Skipped[0].Reason, rserrors.Forbidden)
	}
}

func TestClient_FetchSnapshot_NotFound(t *testing.T) {
	srv, _ := fakeGitHub(t, nil)
	c := newTestClient(t, srv)

	_, err := c.FetchSnapshot(context.Background(), ghurl.Ref{Owner: "octo", Repo: "missing"}, FetchOptions{}, nil)
	if !rserrors.Is(err, rserrors.RepoNotFound) {
		t.Fatalf("expected RepoNotFound, got %v", err)
	}
}

func ExampleSelectFiles() {
	entries := []TreeEntry{
		{Path: "src/app.ts", Type: EntryBlob},
		{Path: "package.json", Type: EntryBlob},
		{Path: "node_modules/x/index.js", Type: EntryBlob},
	}
	for _, e := range SelectFiles(entries, 10, 0) {
		fmt.Println(e.Path)
	}
	// Output:
	// package.json
	// src/app.ts
}
