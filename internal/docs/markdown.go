package docs

import (
	"fmt"
	"strings"

	"reposcope/internal/analysis"
)

// Markdown renders the full analysis report.
func Markdown(a *analysis.Analysis) string {
	var b strings.Builder

	title := a.Repository.FullName
	if title == "" {
		title = "Repository"
	}
	fmt.Fprintf(&b, "# %s: architecture report\n\n", title)
	if a.Repository.URL != "" {
		fmt.Fprintf(&b, "<%s>\n\n", a.Repository.URL)
	}
	if a.Meta.Fallback {
		b.WriteString("> Generated from static analysis only; the model answer was unavailable.\n\n")
	}

	section(&b, "Summary")
	b.WriteString(nonBlank(a.Summary, "_No summary._"))
	b.WriteString("\n\n")

	section(&b, "Architecture")
	if a.Architecture.Pattern != "" {
		fmt.Fprintf(&b, "Pattern: **%s**\n\n", cell(a.Architecture.Pattern))
	}
	if len(a.Architecture.Components) > 0 {
		b.WriteString("| Component | Type | Description | Technologies |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, c := range a.Architecture.Components {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				cell(c.Name), cell(c.Type), cell(c.Description), cell(strings.Join(c.Technologies, ", ")))
		}
		b.WriteString("\n```mermaid\n")
		b.WriteString(Mermaid(a))
		b.WriteString("```\n\n")
	}

	if len(a.APIEndpoints) > 0 {
		section(&b, "API endpoints")
		b.WriteString("| Method | Path | Description | Auth |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, ep := range a.APIEndpoints {
			auth := ""
			if ep.Auth {
				auth = "yes"
			}
			fmt.Fprintf(&b, "| %s | `%s` | %s | %s |\n", ep.Method, cell(ep.Path), cell(ep.Description), auth)
		}
		b.WriteString("\n")
	}

	section(&b, "Tech stack")
	ts := a.TechStack
	for _, row := range []struct {
		name  string
		items []string
	}{
		{"Languages", ts.Languages},
		{"Frameworks", ts.Frameworks},
		{"Databases", ts.Databases},
		{"Tools", ts.Tools},
		{"Infrastructure", ts.Infrastructure},
	} {
		if len(row.items) > 0 {
			fmt.Fprintf(&b, "- **%s:** %s\n", row.name, strings.Join(row.items, ", "))
		}
	}
	b.WriteString("\n")

	if len(a.Database.Tables) > 0 || (a.Database.Type != "" && a.Database.Type != "none") {
		section(&b, "Database")
		fmt.Fprintf(&b, "Type: %s", nonBlank(a.Database.Type, "unknown"))
		if a.Database.ORM != "" {
			fmt.Fprintf(&b, " (ORM: %s)", a.Database.ORM)
		}
		b.WriteString("\n\n")
		for _, t := range a.Database.Tables {
			fmt.Fprintf(&b, "### %s\n\n", t.Name)
			if t.Description != "" {
				b.WriteString(t.Description + "\n\n")
			}
			if len(t.Columns) > 0 {
				b.WriteString("| Column | Type | Constraints |\n|---|---|---|\n")
				for _, col := range t.Columns {
					fmt.Fprintf(&b, "| %s | %s | %s |\n", cell(col.Name), cell(col.Type), cell(col.Constraints))
				}
				b.WriteString("\n")
			}
			for _, rel := range t.Relations {
				fmt.Fprintf(&b, "- %s → %s\n", rel.Type, rel.Target)
			}
			if len(t.Relations) > 0 {
				b.WriteString("\n")
			}
		}
	}

	if len(a.Services) > 0 {
		section(&b, "Services")
		for _, s := range a.Services {
			fmt.Fprintf(&b, "- **%s** (%s): %s", s.Name, nonBlank(s.Type, "service"), s.Description)
			if len(s.Dependencies) > 0 {
				fmt.Fprintf(&b, " Depends on %s.", strings.Join(s.Dependencies, ", "))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(a.EnvironmentVariables) > 0 {
		section(&b, "Environment variables")
		b.WriteString("| Name | Required | Description | Example |\n|---|---|---|---|\n")
		for _, env := range a.EnvironmentVariables {
			req := "no"
			if env.Required {
				req = "yes"
			}
			example := ""
			if env.Example != "" {
				example = "`" + cell(env.Example) + "`"
			}
			fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", env.Name, req, cell(env.Description), example)
		}
		b.WriteString("\n")
	}

	if len(a.ContributionSuggestions) > 0 {
		section(&b, "Contribution suggestions")
		for _, s := range a.ContributionSuggestions {
			fmt.Fprintf(&b, "### %s (%s)\n\n%s\n", s.Title, s.Difficulty, s.Description)
			if len(s.Files) > 0 {
				fmt.Fprintf(&b, "\nFiles: %s\n", "`"+strings.Join(s.Files, "`, `")+"`")
			}
			b.WriteString("\n")
		}
	}

	if len(a.KeyFiles) > 0 {
		section(&b, "Key files")
		for _, f := range a.KeyFiles {
			fmt.Fprintf(&b, "- `%s`: %s\n", f.Path, f.Description)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n_Generated %s by %s._\n", a.Meta.GeneratedAt.Format("2006-01-02 15:04 MST"), nonBlank(a.Meta.Model, "RepoScope"))
	return b.String()
}

func section(b *strings.Builder, title string) {
	fmt.Fprintf(b, "## %s\n\n", title)
}

// cell escapes text for a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func nonBlank(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
