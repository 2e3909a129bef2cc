package analysis

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"reposcope/internal/endpoints"
	"reposcope/internal/github"
	"reposcope/internal/manifest"
)

// DefaultMaxTreeEntries caps how many tree paths are listed in the prompt.
const DefaultMaxTreeEntries = 300

// responseSchema is the exact shape the model must emit.
const responseSchema = `{
  "summary": "2-4 sentence overview of what the project does and how",
  "architecture": {
    "pattern": "e.g. monolith, client-server, microservices, layered, serverless",
    "components": [
      {
        "id": "kebab-case-id",
        "name": "Human readable name",
        "type": "frontend | api | service | database | cache | queue | external | worker",
        "description": "what it does",
        "technologies": ["..."],
        "files": ["paths that implement it"]
      }
    ],
    "connections": [
      {"source": "component-id", "target": "component-id", "label": "what flows", "type": "http | data | event | dependency"}
    ]
  },
  "apiEndpoints": [
    {"method": "GET", "path": "/api/example", "description": "...", "file": "path", "auth": false}
  ],
  "techStack": {
    "languages": [], "frameworks": [], "databases": [], "tools": [], "infrastructure": []
  },
  "database": {
    "type": "postgresql | mysql | mongodb | sqlite | none",
    "orm": "",
    "tables": [
      {
        "name": "users",
        "description": "...",
        "columns": [{"name": "id", "type": "uuid", "constraints": "primary key"}],
        "relations": [{"target": "posts", "type": "one-to-many"}]
      }
    ]
  },
  "services": [
    {"name": "...", "type": "internal | external", "description": "...", "dependencies": []}
  ],
  "environmentVariables": [
    {"name": "DATABASE_URL", "description": "...", "required": true, "example": "postgres://..."}
  ],
  "contributionSuggestions": [
    {"title": "...", "description": "...", "difficulty": "beginner | intermediate | advanced", "area": "...", "files": []}
  ],
  "keyFiles": [
    {"path": "...", "description": "why to read it first"}
  ]
}`

var analysisTmpl = template.Must(template.New("analysis").Funcs(template.FuncMap{"join": strings.Join}).Parse(
	`You are a senior software architect. Analyze the GitHub repository below and describe its architecture.

Repository: {{.Repo.FullName}}
Description: {{if .Repo.Description}}{{.Repo.Description}}{{else}}(none){{end}}
Primary language: {{if .Repo.Language}}{{.Repo.Language}}{{else}}unknown{{end}}
Stars: {{.Repo.Stars}}  Forks: {{.Repo.Forks}}
{{- if .Repo.Topics}}
Topics: {{join .Repo.Topics ", "}}
{{- end}}
{{- if .Languages}}

Languages:
{{- range .Languages}}
- {{.Name}}: {{.Percent}}
{{- end}}
{{- end}}

File tree:
{{- range .Tree}}
{{.}}
{{- end}}
{{- if .TreeMore}}
... and {{.TreeMore}} more
{{- end}}
{{- with .Report}}
{{- if .Frameworks}}

Detected frameworks: {{join .Frameworks ", "}}
{{- end}}
{{- if .Databases}}
Detected databases: {{join .Databases ", "}}
{{- end}}
{{- if .ORMs}}
Detected ORMs: {{join .ORMs ", "}}
{{- end}}
{{- if .Services}}
Compose services:
{{- range .Services}}
- {{.Name}}{{if .Image}} ({{.Image}}){{end}}
{{- end}}
{{- end}}
{{- if .EnvVars}}
Environment variables referenced: {{join .EnvVars ", "}}
{{- end}}
{{- end}}
{{- if .Endpoints}}

Routes found by static analysis:
{{- range .Endpoints}}
- {{.Method}} {{.Path}} ({{.File}}:{{.Line}})
{{- end}}
{{- end}}

Source files:
{{range .Files}}
### {{.Path}}
` + "```" + `
{{.Content}}
` + "```" + `
{{end}}
Respond with JSON only, no markdown fences and no commentary, matching exactly this schema:
{{.Schema}}
{{- if .Reminder}}

IMPORTANT: your previous answer was not valid JSON. Output a single valid JSON object and nothing else. Keep descriptions short.
{{- end}}
`))

type languageShare struct {
	Name    string
	Percent string
}

// PromptInput is everything BuildPrompt renders.
type PromptInput struct {
	Snapshot       *github.Snapshot
	Report         manifest.Report
	Endpoints      []endpoints.Endpoint
	MaxTreeEntries int
	// Reminder adds an explicit JSON-only instruction for retries.
	Reminder bool
}

// BuildPrompt renders the analysis prompt.
func BuildPrompt(in PromptInput) (string, error) {
	snap := in.Snapshot
	if snap == nil || snap.Repository == nil {
		return "", fmt.Errorf("snapshot has no repository metadata")
	}

	limit := in.MaxTreeEntries
	if limit <= 0 {
		limit = DefaultMaxTreeEntries
	}
	tree := make([]string, 0, min(len(snap.Tree), limit))
	for _, e := range snap.Tree {
		if len(tree) == limit {
			break
		}
		if e.Type == github.EntryTree {
			tree = append(tree, e.Path+"/")
		} else {
			tree = append(tree, e.Path)
		}
	}

	var buf bytes.Buffer
	err := analysisTmpl.Execute(&buf, struct {
		Repo      *github.Repository
		Languages []languageShare
		Tree      []string
		TreeMore  int
		Report    manifest.Report
		Endpoints []endpoints.Endpoint
		Files     []github.File
		Schema    string
		Reminder  bool
	}{
		Repo:      snap.Repository,
		Languages: languageShares(snap.Languages),
		Tree:      tree,
		TreeMore:  len(snap.Tree) - len(tree),
		Report:    in.Report,
		Endpoints: in.Endpoints,
		Files:     snap.Files,
		Schema:    responseSchema,
		Reminder:  in.Reminder,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// languageShares converts byte counts to percentages, largest first.
func languageShares(langs map[string]int) []languageShare {
	total := 0
	names := make([]string, 0, len(langs))
	for name, n := range langs {
		total += n
		names = append(names, name)
	}
	if total == 0 {
		return nil
	}
	sort.Slice(names, func(i, j int) bool {
		if langs[names[i]] != langs[names[j]] {
			return langs[names[i]] > langs[names[j]]
		}
		return names[i] < names[j]
	})

	out := make([]languageShare, len(names))
	for i, name := range names {
		out[i] = languageShare{
			Name:    name,
			Percent: fmt.Sprintf("%.1f%%", float64(langs[name])*100/float64(total)),
		}
	}
	return out
}

// languageNames returns languages ordered by share.
func languageNames(langs map[string]int) []string {
	shares := languageShares(langs)
	out := make([]string, len(shares))
	for i, s := range shares {
		out[i] = s.Name
	}
	return out
}

// halveFiles returns a copy of snap with the lower-ranked half of the files dropped.
func halveFiles(snap *github.Snapshot) *github.Snapshot {
	reduced := *snap
	n := (len(snap.Files) + 1) / 2
	reduced.Files = snap.Files[:n]
	return &reduced
}
