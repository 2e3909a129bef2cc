package docs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"reposcope/internal/analysis"
	"reposcope/internal/llm"
)

var readmePromptTmpl = template.Must(template.New("readme-prompt").Funcs(template.FuncMap{"join": strings.Join}).Parse(
	`Write a README.md for the GitHub repository {{.Repository.FullName}} using the architecture analysis below.
Include: a one-paragraph introduction, features, tech stack, getting started (prerequisites, installation, environment variables), project structure, API overview if there is one, and a contributing section.
Respond with Markdown only. Do not wrap the answer in a code fence.

Summary: {{.Summary}}
Architecture pattern: {{.Architecture.Pattern}}
Components:
{{- range .Architecture.Components}}
- {{.Name}} ({{.Type}}): {{.Description}}
{{- end}}
Languages: {{join .TechStack.Languages ", "}}
Frameworks: {{join .TechStack.Frameworks ", "}}
Databases: {{join .TechStack.Databases ", "}}
{{- if .EnvironmentVariables}}
Environment variables:
{{- range .EnvironmentVariables}}
- {{.Name}}{{if .Required}} (required){{end}}: {{.Description}}
{{- end}}
{{- end}}
{{- if .APIEndpoints}}
Endpoints:
{{- range .APIEndpoints}}
- {{.Method}} {{.Path}}: {{.Description}}
{{- end}}
{{- end}}
{{- if .KeyFiles}}
Key files:
{{- range .KeyFiles}}
- {{.Path}}: {{.Description}}
{{- end}}
{{- end}}
`))

// readmeTmpl's mermaid func is bound per render in TemplateReadme.
var readmeTmpl = template.Must(template.New("readme").Funcs(template.FuncMap{
	"join":    strings.Join,
	"mermaid": func() string { return "" },
}).Parse(
	`# {{if .Repository.Name}}{{.Repository.Name}}{{else}}Project{{end}}

{{if .Repository.Description}}{{.Repository.Description}}

{{end}}{{.Summary}}

## Tech stack
{{with .TechStack}}
{{- if .Languages}}
- **Languages:** {{join .Languages ", "}}
{{- end}}
{{- if .Frameworks}}
- **Frameworks:** {{join .Frameworks ", "}}
{{- end}}
{{- if .Databases}}
- **Databases:** {{join .Databases ", "}}
{{- end}}
{{- if .Tools}}
- **Tools:** {{join .Tools ", "}}
{{- end}}
{{- end}}

## Getting started

` + "```sh" + `
git clone {{if .Repository.URL}}{{.Repository.URL}}{{else}}<repository-url>{{end}}.git
` + "```" + `
{{- if .EnvironmentVariables}}

### Environment variables

| Name | Required | Description |
|---|---|---|
{{- range .EnvironmentVariables}}
| ` + "`{{.Name}}`" + ` | {{if .Required}}yes{{else}}no{{end}} | {{.Description}} |
{{- end}}
{{- end}}
{{- if .APIEndpoints}}

## API

| Method | Path | Description |
|---|---|---|
{{- range .APIEndpoints}}
| {{.Method}} | ` + "`{{.Path}}`" + ` | {{.Description}} |
{{- end}}
{{- end}}

## Architecture

` + "```mermaid" + `
{{mermaid}}` + "```" + `
{{- if .KeyFiles}}

## Project structure
{{range .KeyFiles}}
- ` + "`{{.Path}}`" + `: {{.Description}}
{{- end}}
{{- end}}

## Contributing
{{range .ContributionSuggestions}}
- **{{.Title}}** ({{.Difficulty}}): {{.Description}}
{{- else}}
Issues and pull requests are welcome.
{{- end}}
`))

// GenerateReadme asks gen to write a README for a. When gen is nil or
// fails, a README rendered from the analysis is returned instead; the
// second result reports whether the model wrote it.
func GenerateReadme(ctx context.Context, gen llm.Generator, a *analysis.Analysis, logger *slog.Logger) (string, bool) {
	if gen != nil {
		var prompt bytes.Buffer
		if err := readmePromptTmpl.Execute(&prompt, a); err != nil {
			logger.Error("Failed to render README prompt", "error", err.Error())
		} else {
			text, err := gen.Generate(ctx, prompt.String())
			if err == nil {
				if readme := stripFence(text); readme != "" {
					return readme, true
				}
				logger.Warn("Model returned an empty README")
			} else {
				logger.Warn("README generation failed, using template", "error", err.Error())
			}
		}
	}
	return TemplateReadme(a), false
}

// TemplateReadme renders a README from the analysis alone.
func TemplateReadme(a *analysis.Analysis) string {
	var buf bytes.Buffer
	tmpl := template.Must(readmeTmpl.Clone()).Funcs(template.FuncMap{
		"mermaid": func() string { return Mermaid(a) },
	})
	if err := tmpl.Execute(&buf, a); err != nil {
		return fmt.Sprintf("# %s\n\n%s\n", a.Repository.Name, a.Summary)
	}
	return buf.String()
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		return ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
