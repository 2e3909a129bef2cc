package github

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func blob(path string, size int) TreeEntry {
	return TreeEntry{Path: path, Type: EntryBlob, Size: size}
}

func paths(entries []TreeEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestSelectFiles_Ordering(t *testing.T) {
	entries := []TreeEntry{
		{Path: "src", Type: EntryTree},
		blob("src/utils/strings.ts", 100),
		blob("README.md", 100),
		blob("package.json", 100),
		blob("src/index.ts", 100),
		blob("src/routes/users.ts", 100),
		blob("src/models/user.ts", 100),
		blob("src/services/mail.ts", 100),
		blob("src/routes/users.test.ts", 100),
	}

	got := paths(SelectFiles(entries, 10, 100000))
	want := []string{
		"package.json",             // 100
		"README.md",                // 90
		"src/index.ts",             // 80 - 3
		"src/routes/users.ts",      // 70 - 6
		"src/models/user.ts",       // 65 - 6
		"src/routes/users.test.ts", // 70 - 20 - 6, ties broken by path
		"src/services/mail.ts",     // 50 - 6
		"src/utils/strings.ts",     // 30 - 6
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SelectFiles() mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectFiles_Exclusions(t *testing.T) {
	entries := []TreeEntry{
		blob("node_modules/react/index.js", 10),
		blob("vendor/github.com/x/y.go", 10),
		blob("dist/bundle.js", 10),
		blob("package-lock.json", 10),
		blob("go.sum", 10),
		blob("static/app.min.js", 10),
		blob("static/logo.png", 10),
		blob("types/global.d.ts", 10),
		blob("assets/font.woff2", 10),
		blob("big/generated.go", 200000),
		blob("LICENSE", 10),
		blob("main.go", 10),
	}

	got := paths(SelectFiles(entries, 25, 100000))
	if diff := cmp.Diff([]string{"main.go"}, got); diff != "" {
		t.Errorf("SelectFiles() mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectFiles_LimitAndDeterminism(t *testing.T) {
	var entries []TreeEntry
	for _, name := range []string{"e.go", "c.go", "a.go", "d.go", "b.go"} {
		entries = append(entries, blob("pkg/"+name, 10))
	}

	first := paths(SelectFiles(entries, 3, 0))
	second := paths(SelectFiles(entries, 3, 0))

	want := []string{"pkg/a.go", "pkg/b.go", "pkg/c.go"}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("SelectFiles() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("SelectFiles() not deterministic:\n%s", diff)
	}
}

func TestScoreFile(t *testing.T) {
	tests := []struct {
		path  string
		score int
		ok    bool
	}{
		{"go.mod", 100, true},
		{"docker-compose.yml", 100, true},
		{"prisma/schema.prisma", 97, true},
		{"db/migrations/001_init.sql", 94, true},
		{"README.md", 90, true},
		{"cmd/server/main.go", 74, true},
		{"api/handlers/user.go", 64, true},
		{"internal/store/store.go", 44, true},
		{"tests/test_api.py", 7, true},
		{"docs/guide.txt", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			score, ok := scoreFile(tt.path)
			if ok != tt.ok {
				t.Fatalf("scoreFile(%q) ok = %v, want %v", tt.path, ok, tt.ok)
			}
			if ok && score != tt.score {
				t.Errorf("scoreFile(%q) = %d, want %d", tt.path, score, tt.score)
			}
		})
	}
}

func TestTruncateContent(t *testing.T) {
	short, cut := truncateContent("hello", 100)
	if cut || short != "hello" {
		t.Errorf("short content changed: %q %v", short, cut)
	}

	long := strings.Repeat("line of text\n", 100)
	out, cut := truncateContent(long, 200)
	if !cut {
		t.Fatal("expected truncation")
	}
	if !strings.HasSuffix(out, "... [truncated]\n") {
		t.Errorf("missing truncation marker: %q", out[len(out)-30:])
	}
	if len(out) > 200+len("\n... [truncated]\n") {
		t.Errorf("truncated content too long: %d", len(out))
	}
}
