package ghurl

import (
	"errors"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		owner string
		repo  string
	}{
		{"https://github.com/facebook/react", "facebook", "react"},
		{"http://github.com/facebook/react", "facebook", "react"},
		{"github.com/facebook/react", "facebook", "react"},
		{"www.github.com/facebook/react", "facebook", "react"},
		{"https://www.github.com/facebook/react/", "facebook", "react"},
		{"https://github.com/facebook/react.git", "facebook", "react"},
		{"https://github.com/golang/go/tree/master/src/net", "golang", "go"},
		{"https://github.com/golang/go?tab=readme", "golang", "go"},
		{"https://github.com/golang/go#readme", "golang", "go"},
		{"git@github.com:spf13/cobra.git", "spf13", "cobra"},
		{"spf13/cobra", "spf13", "cobra"},
		{"  vercel/next.js  ", "vercel", "next.js"},
		{"github.com/a-b/c_d-e.f?x=1", "a-b", "c_d-e.f"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ref, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.input, err)
			}
			if ref.Owner != tt.owner || ref.Repo != tt.repo {
				t.Errorf("Parse(%q) = %s/%s, want %s/%s", tt.input, ref.Owner, ref.Repo, tt.owner, tt.repo)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"https://gitlab.com/foo/bar",
		"https://github.com/onlyowner",
		"https://github.com/",
		"gitlab.com/foo/bar",
		"ftp://github.com/foo/bar",
		"git@gitlab.com:foo/bar.git",
		"-bad/repo",
		"bad-/repo",
		"ba--d/repo",
		strings.Repeat("a", 40) + "/repo",
		"owner/" + strings.Repeat("r", 101),
		"owner/..",
		"owner/re po",
		"justaword",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			if err == nil {
				t.Fatalf("Parse(%q) expected error", input)
			}
			if !errors.Is(err, ErrInvalidURL) {
				t.Errorf("Parse(%q) error %v does not wrap ErrInvalidURL", input, err)
			}
		})
	}
}

func TestRef_Names(t *testing.T) {
	ref := Ref{Owner: "Facebook", Repo: "React"}

	if got := ref.FullName(); got != "Facebook/React" {
		t.Errorf("FullName() = %q", got)
	}
	if got := ref.Key(); got != "facebook/react" {
		t.Errorf("Key() = %q", got)
	}
	if got := ref.HTMLURL(); got != "https://github.com/Facebook/React" {
		t.Errorf("HTMLURL() = %q", got)
	}
}
