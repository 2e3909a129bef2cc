// Package endpoints finds HTTP route registrations in source files.
//
// Builds with cgo walk a tree-sitter syntax tree; other builds use a
// regular-expression scanner that recognizes the same registrations.
package endpoints

import (
	"context"
	"path"
	"sort"
	"strings"

	"reposcope/internal/github"
)

// Endpoint is a route registration found in source.
type Endpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	File   string `json:"file"`
	Line   int    `json:"line"`
}

// Language identifies a scannable source language.
type Language string

const (
	LangGo         Language = "go"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangPython     Language = "python"
)

// LanguageFromPath returns the language for a file path.
func LanguageFromPath(p string) (Language, bool) {
	switch strings.ToLower(path.Ext(p)) {
	case ".go":
		return LangGo, true
	case ".js", ".jsx", ".mjs", ".cjs":
		return LangJavaScript, true
	case ".ts", ".mts", ".cts":
		return LangTypeScript, true
	case ".tsx":
		return LangTSX, true
	case ".py":
		return LangPython, true
	}
	return "", false
}

// Detect scans files for route registrations. The result is deduplicated
// and sorted by path, method, then file.
func Detect(ctx context.Context, files []github.File) []Endpoint {
	var found []Endpoint
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		lang, ok := LanguageFromPath(f.Path)
		if !ok || isTestFile(f.Path) {
			continue
		}
		found = append(found, scanSource(ctx, f.Path, []byte(f.Content), lang)...)
	}
	return normalize(found)
}

func normalize(found []Endpoint) []Endpoint {
	seen := make(map[string]bool, len(found))
	out := make([]Endpoint, 0, len(found))
	for _, e := range found {
		key := e.Method + " " + e.Path + " " + e.File
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Line < b.Line
	})
	return out
}

func isTestFile(p string) bool {
	lower := strings.ToLower(path.Base(p))
	return strings.Contains(lower, "_test.") || strings.Contains(lower, ".test.") ||
		strings.Contains(lower, ".spec.") || strings.HasPrefix(lower, "test_")
}

// Registration call names per language, mapped to the HTTP method they imply.
// "ANY" means the method is not fixed by the call.
var (
	jsVerbs = map[string]string{
		"get": "GET", "post": "POST", "put": "PUT", "patch": "PATCH",
		"delete": "DELETE", "all": "ANY", "options": "OPTIONS", "head": "HEAD",
	}
	goVerbs = map[string]string{
		"HandleFunc": "ANY", "Handle": "ANY",
		"GET": "GET", "POST": "POST", "PUT": "PUT", "PATCH": "PATCH", "DELETE": "DELETE",
		"Get": "GET", "Post": "POST", "Put": "PUT", "Patch": "PATCH", "Delete": "DELETE",
	}
	pyVerbs = map[string]string{
		"get": "GET", "post": "POST", "put": "PUT", "patch": "PATCH", "delete": "DELETE",
		"route": "GET", "api_route": "GET",
	}
)

// clientReceivers name objects whose get/post calls send HTTP requests
// instead of registering routes. Keys are lower case.
var clientReceivers = map[string]bool{
	"axios": true, "http": true, "https": true, "client": true, "api": true,
	"request": true, "superagent": true, "ky": true, "got": true, "fetcher": true,
	"$": true, "$http": true, "jquery": true, "instance": true,
}

// isClientReceiver reports whether a JavaScript receiver looks like an HTTP
// client, including names such as apiClient or githubClient.
func isClientReceiver(name string) bool {
	lower := strings.ToLower(name)
	return clientReceivers[lower] || strings.HasSuffix(lower, "client")
}

// unquote strips string delimiters and Python string prefixes.
func unquote(s string) string {
	s = strings.TrimLeft(s, "rbfuRBFU")
	if len(s) >= 2 {
		q := s[0]
		if (q == '"' || q == '\'' || q == '`') && s[len(s)-1] == q {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// goPattern splits Go 1.22 mux patterns such as "GET /users/{id}".
func goPattern(method, pattern string) (string, string) {
	if m, p, ok := strings.Cut(pattern, " "); ok && strings.HasPrefix(strings.TrimSpace(p), "/") {
		return strings.ToUpper(m), strings.TrimSpace(p)
	}
	return method, pattern
}

func validPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.ContainsAny(p, " \n\t")
}
