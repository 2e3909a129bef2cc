package analysis

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"reposcope/internal/endpoints"
	"reposcope/internal/github"
	"reposcope/internal/manifest"
)

func TestBuildFallback(t *testing.T) {
	snap := &github.Snapshot{
		Repository: &github.Repository{
			Owner: "acme", Name: "shop", FullName: "acme/shop",
			Description: "Online shop", Language: "TypeScript",
		},
		Languages: map[string]int{"TypeScript": 900, "CSS": 100},
		Files: []github.File{
			{Path: "README.md"},
			{Path: "package.json"},
			{Path: "src/routes/items.ts"},
		},
	}
	report := manifest.Report{
		Frameworks: []string{"Express", "React"},
		Databases:  []string{"PostgreSQL", "Redis"},
		ORMs:       []string{"Prisma"},
		EnvVars:    []string{"DATABASE_URL"},
		Services: []manifest.ComposeService{
			{Name: "web", Build: true},
			{Name: "db", Image: "postgres:16"},
		},
	}
	eps := []endpoints.Endpoint{{Method: "GET", Path: "/api/items", File: "src/routes/items.ts", Line: 4}}

	a := BuildFallback(snap, report, eps, "language model not configured")

	if !a.Meta.Fallback || a.Meta.Model != "static" {
		t.Errorf("meta = %+v", a.Meta)
	}
	if diff := cmp.Diff([]string{"language model not configured"}, a.Meta.Warnings); diff != "" {
		t.Errorf("warnings (-want +got):\n%s", diff)
	}
	if a.Meta.FilesAnalyzed != 3 {
		t.Errorf("FilesAnalyzed = %d", a.Meta.FilesAnalyzed)
	}

	var ids []string
	for _, c := range a.Architecture.Components {
		ids = append(ids, c.ID+":"+c.Type)
	}
	if diff := cmp.Diff([]string{"frontend:frontend", "api:api", "postgresql:database", "redis:cache"}, ids); diff != "" {
		t.Errorf("components (-want +got):\n%s", diff)
	}

	wantConns := []Connection{
		{Source: "frontend", Target: "api", Label: "HTTP requests", Type: "http"},
		{Source: "api", Target: "postgresql", Label: "reads/writes", Type: "data"},
		{Source: "api", Target: "redis", Label: "reads/writes", Type: "data"},
	}
	if diff := cmp.Diff(wantConns, a.Architecture.Connections); diff != "" {
		t.Errorf("connections (-want +got):\n%s", diff)
	}
	if a.Architecture.Pattern != "client-server" {
		t.Errorf("pattern = %q", a.Architecture.Pattern)
	}

	if a.Database.Type != "postgresql" || a.Database.ORM != "Prisma" {
		t.Errorf("database = %+v", a.Database)
	}
	if len(a.APIEndpoints) != 1 || a.APIEndpoints[0].Path != "/api/items" {
		t.Errorf("endpoints = %+v", a.APIEndpoints)
	}
	if diff := cmp.Diff([]string{"TypeScript", "CSS"}, a.TechStack.Languages); diff != "" {
		t.Errorf("languages (-want +got):\n%s", diff)
	}
	if len(a.Services) != 2 || a.Services[1].Description != "Runs image postgres:16" {
		t.Errorf("services = %+v", a.Services)
	}
	if len(a.EnvironmentVariables) != 1 || a.EnvironmentVariables[0].Name != "DATABASE_URL" {
		t.Errorf("env = %+v", a.EnvironmentVariables)
	}
	if len(a.KeyFiles) != 3 || a.KeyFiles[0].Description != "Project overview" {
		t.Errorf("keyFiles = %+v", a.KeyFiles)
	}
	if !strings.HasPrefix(a.Summary, "acme/shop: Online shop.") {
		t.Errorf("summary = %q", a.Summary)
	}
	if len(a.ContributionSuggestions) != 3 || a.ContributionSuggestions[0].Files[0] != "README.md" {
		t.Errorf("suggestions = %+v", a.ContributionSuggestions)
	}
}

func TestBuildFallbackMinimal(t *testing.T) {
	a := BuildFallback(nil, manifest.Report{}, nil, "no data")

	if len(a.Architecture.Components) != 1 || a.Architecture.Components[0].ID != "application" {
		t.Fatalf("components = %+v", a.Architecture.Components)
	}
	if a.Architecture.Components[0].Description != "Main application" {
		t.Errorf("description = %q", a.Architecture.Components[0].Description)
	}
	if a.Architecture.Pattern != "monolith" {
		t.Errorf("pattern = %q", a.Architecture.Pattern)
	}
	if a.Database.Type != "none" {
		t.Errorf("database type = %q", a.Database.Type)
	}
	if a.APIEndpoints == nil || a.Services == nil || a.KeyFiles == nil {
		t.Error("fallback left nil slices")
	}
}

func TestFallbackPattern(t *testing.T) {
	three := []manifest.ComposeService{{Build: true}, {Build: true}, {Build: true}}
	if got := pattern(false, true, three); got != "microservices" {
		t.Errorf("pattern = %q, want microservices", got)
	}
	if got := pattern(true, false, nil); got != "monolith" {
		t.Errorf("pattern = %q, want monolith", got)
	}
}
