package analysis

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"reposcope/internal/endpoints"
	"reposcope/internal/github"
	"reposcope/internal/manifest"
)

var frontendFrameworks = map[string]bool{
	"React": true, "Next.js": true, "Vue": true, "Nuxt": true, "Angular": true,
	"Svelte": true, "SvelteKit": true, "React Native": true, "Electron": true,
	"Tailwind CSS": true, "React Flow": true,
}

var cacheStores = map[string]bool{"Redis": true}

// BuildFallback assembles an analysis from static facts alone. It is used
// when the model is unavailable or its answer cannot be parsed, and never fails.
func BuildFallback(snap *github.Snapshot, report manifest.Report, eps []endpoints.Endpoint, reason string) *Analysis {
	a := &Analysis{}
	if snap != nil {
		a.Repository = repositoryInfo(snap.Repository)
	}
	langs := []string{}
	if snap != nil {
		langs = languageNames(snap.Languages)
	}

	var frontend, backend []string
	for _, f := range report.Frameworks {
		if frontendFrameworks[f] {
			frontend = append(frontend, f)
		} else {
			backend = append(backend, f)
		}
	}

	arch := Architecture{}
	var hub string

	if len(frontend) > 0 {
		arch.Components = append(arch.Components, Component{
			ID:           "frontend",
			Name:         "Frontend",
			Type:         "frontend",
			Description:  "User interface built with " + strings.Join(frontend, ", "),
			Technologies: frontend,
		})
	}
	if len(backend) > 0 || len(eps) > 0 {
		hub = "api"
		arch.Components = append(arch.Components, Component{
			ID:           "api",
			Name:         "API Server",
			Type:         "api",
			Description:  apiDescription(backend, eps),
			Technologies: backend,
			Files:        endpointFiles(eps, 10),
		})
		if len(frontend) > 0 {
			arch.Connections = append(arch.Connections, Connection{
				Source: "frontend", Target: "api", Label: "HTTP requests", Type: "http",
			})
		}
	} else if len(frontend) == 0 {
		hub = "application"
		primary := a.Repository.Language
		if primary == "" && len(langs) > 0 {
			primary = langs[0]
		}
		desc := "Main application"
		if primary != "" {
			desc = "Main " + primary + " application"
		}
		arch.Components = append(arch.Components, Component{
			ID:           "application",
			Name:         "Application",
			Type:         "service",
			Description:  desc,
			Technologies: nonNil(langs),
		})
	} else {
		hub = "frontend"
	}

	for _, db := range report.Databases {
		typ := "database"
		if cacheStores[db] {
			typ = "cache"
		}
		id := slugify(db)
		arch.Components = append(arch.Components, Component{
			ID:           id,
			Name:         db,
			Type:         typ,
			Description:  db + " " + typ,
			Technologies: []string{db},
		})
		arch.Connections = append(arch.Connections, Connection{
			Source: hub, Target: id, Label: "reads/writes", Type: "data",
		})
	}

	var services []ServiceInfo
	for _, svc := range report.Services {
		desc := "Container service"
		if svc.Image != "" {
			desc = "Runs image " + svc.Image
		} else if svc.Build {
			desc = "Built from repository source"
		}
		services = append(services, ServiceInfo{
			Name:         svc.Name,
			Type:         "internal",
			Description:  desc,
			Dependencies: nonNil(svc.DependsOn),
		})
	}

	arch.Pattern = pattern(len(frontend) > 0, hub == "api", report.Services)
	a.Architecture = arch

	for _, ep := range eps {
		a.APIEndpoints = append(a.APIEndpoints, APIEndpoint{
			Method:      ep.Method,
			Path:        ep.Path,
			Description: fmt.Sprintf("Registered in %s:%d", ep.File, ep.Line),
			File:        ep.File,
		})
	}

	a.TechStack = TechStack{
		Languages:      langs,
		Frameworks:     report.Frameworks,
		Databases:      report.Databases,
		Tools:          report.Tools,
		Infrastructure: report.Infrastructure,
	}

	if len(report.Databases) > 0 {
		a.Database.Type = strings.ToLower(report.Databases[0])
	} else {
		a.Database.Type = "none"
	}
	if len(report.ORMs) > 0 {
		a.Database.ORM = report.ORMs[0]
	}

	a.Services = services
	for _, name := range report.EnvVars {
		a.EnvironmentVariables = append(a.EnvironmentVariables, EnvironmentVariable{
			Name:        name,
			Description: "Referenced in repository configuration",
		})
	}

	var files []github.File
	if snap != nil {
		files = snap.Files
	}
	a.ContributionSuggestions = fallbackSuggestions(files, eps)
	a.KeyFiles = keyFiles(files, 8)
	a.Summary = fallbackSummary(a.Repository, langs, report.Frameworks)

	a.Meta = Meta{
		GeneratedAt:   time.Now().UTC(),
		Model:         "static",
		FilesAnalyzed: len(files),
		Fallback:      true,
		Warnings:      []string{reason},
	}

	Normalize(a)
	return a
}

func apiDescription(frameworks []string, eps []endpoints.Endpoint) string {
	desc := "HTTP API"
	if len(frameworks) > 0 {
		desc += " built with " + strings.Join(frameworks, ", ")
	}
	if len(eps) > 0 {
		desc += fmt.Sprintf(" exposing %d routes", len(eps))
	}
	return desc
}

func endpointFiles(eps []endpoints.Endpoint, limit int) []string {
	seen := map[string]bool{}
	var out []string
	for _, ep := range eps {
		if !seen[ep.File] {
			seen[ep.File] = true
			out = append(out, ep.File)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func pattern(hasFrontend, hasAPI bool, services []manifest.ComposeService) string {
	built := 0
	for _, s := range services {
		if s.Build {
			built++
		}
	}
	switch {
	case built >= 3:
		return "microservices"
	case hasFrontend && hasAPI:
		return "client-server"
	default:
		return "monolith"
	}
}

func fallbackSummary(repo RepositoryInfo, langs, frameworks []string) string {
	name := repo.FullName
	if name == "" {
		name = "This repository"
	}
	var b strings.Builder
	if repo.Description != "" {
		fmt.Fprintf(&b, "%s: %s.", name, strings.TrimSuffix(repo.Description, "."))
	} else {
		fmt.Fprintf(&b, "%s is a software project.", name)
	}
	if len(langs) > 0 {
		fmt.Fprintf(&b, " It is written mainly in %s", langs[0])
		if len(frameworks) > 0 {
			fmt.Fprintf(&b, " and uses %s", strings.Join(frameworks, ", "))
		}
		b.WriteString(".")
	}
	b.WriteString(" This overview was generated from static analysis only.")
	return b.String()
}

func fallbackSuggestions(files []github.File, eps []endpoints.Endpoint) []ContributionSuggestion {
	var readme string
	for _, f := range files {
		if strings.HasPrefix(strings.ToLower(path.Base(f.Path)), "readme") {
			readme = f.Path
			break
		}
	}

	out := []ContributionSuggestion{{
		Title:       "Improve the documentation",
		Description: "Clarify setup steps and describe the main modules for new contributors.",
		Difficulty:  DifficultyBeginner,
		Area:        "documentation",
		Files:       nonEmpty(readme),
	}}
	if len(eps) > 0 {
		out = append(out, ContributionSuggestion{
			Title:       "Document the HTTP API",
			Description: fmt.Sprintf("Write reference documentation for the %d detected routes.", len(eps)),
			Difficulty:  DifficultyIntermediate,
			Area:        "api",
			Files:       endpointFiles(eps, 5),
		})
	}
	out = append(out, ContributionSuggestion{
		Title:       "Increase test coverage",
		Description: "Add tests around the core modules and their edge cases.",
		Difficulty:  DifficultyIntermediate,
		Area:        "testing",
	})
	return out
}

func keyFiles(files []github.File, limit int) []KeyFile {
	var out []KeyFile
	for _, f := range files {
		if len(out) == limit {
			break
		}
		out = append(out, KeyFile{Path: f.Path, Description: describeFile(f.Path)})
	}
	return out
}

func describeFile(p string) string {
	lower := strings.ToLower(path.Base(p))
	switch {
	case strings.HasPrefix(lower, "readme"):
		return "Project overview"
	case lower == "package.json" || lower == "go.mod" || lower == "cargo.toml" ||
		lower == "pyproject.toml" || lower == "requirements.txt":
		return "Dependency manifest"
	case strings.HasPrefix(lower, "docker") || strings.HasPrefix(lower, "compose."):
		return "Container setup"
	case strings.HasPrefix(lower, "main.") || strings.HasPrefix(lower, "index.") ||
		strings.HasPrefix(lower, "app.") || strings.HasPrefix(lower, "server."):
		return "Application entry point"
	default:
		return "Source file"
	}
}

func nonEmpty(s string) []string {
	if s == "" {
		return []string{}
	}
	return []string{s}
}
