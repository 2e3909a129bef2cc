// Package docs renders an analysis as Mermaid, Markdown and README text.
package docs

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"reposcope/internal/analysis"
	"reposcope/internal/layout"
)

var layerTitles = map[int]string{
	layout.LayerClient:   "Client",
	layout.LayerGateway:  "API",
	layout.LayerService:  "Services",
	layout.LayerData:     "Data",
	layout.LayerExternal: "External",
}

// Mermaid renders the architecture as a top-down flowchart with one
// subgraph per layer.
func Mermaid(a *analysis.Analysis) string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	ids := nodeIDs(a.Architecture.Components)

	byLayer := map[int][]analysis.Component{}
	var layers []int
	for _, c := range a.Architecture.Components {
		l := layout.LayerOf(c)
		if _, ok := byLayer[l]; !ok {
			layers = append(layers, l)
		}
		byLayer[l] = append(byLayer[l], c)
	}
	sort.Ints(layers)

	for _, l := range layers {
		title, ok := layerTitles[l]
		if !ok {
			title = fmt.Sprintf("Layer %d", l)
		}
		fmt.Fprintf(&b, "    subgraph layer%d[\"%s\"]\n", l, escapeMermaid(title))
		for _, c := range byLayer[l] {
			fmt.Fprintf(&b, "        %s\n", node(ids[c.ID], c))
		}
		b.WriteString("    end\n")
	}

	for _, conn := range a.Architecture.Connections {
		src, ok1 := ids[conn.Source]
		dst, ok2 := ids[conn.Target]
		if !ok1 || !ok2 {
			continue
		}
		arrow := "-->"
		if conn.Type == "event" {
			arrow = "-.->"
		}
		if conn.Label != "" {
			fmt.Fprintf(&b, "    %s %s|\"%s\"| %s\n", src, arrow, escapeMermaid(conn.Label), dst)
		} else {
			fmt.Fprintf(&b, "    %s %s %s\n", src, arrow, dst)
		}
	}
	return b.String()
}

func node(id string, c analysis.Component) string {
	label := escapeMermaid(c.Name)
	if len(c.Technologies) > 0 {
		label += "<br/><small>" + escapeMermaid(strings.Join(c.Technologies, ", ")) + "</small>"
	}
	switch c.Type {
	case "database", "storage", "db":
		return fmt.Sprintf("%s[(\"%s\")]", id, label)
	case "cache", "queue":
		return fmt.Sprintf("%s[[\"%s\"]]", id, label)
	case "frontend", "client", "ui":
		return fmt.Sprintf("%s([\"%s\"])", id, label)
	case "external":
		return fmt.Sprintf("%s{{\"%s\"}}", id, label)
	default:
		return fmt.Sprintf("%s[\"%s\"]", id, label)
	}
}

// nodeIDs maps component ids to unique Mermaid-safe identifiers.
func nodeIDs(components []analysis.Component) map[string]string {
	out := make(map[string]string, len(components))
	used := map[string]bool{}
	for _, c := range components {
		id := sanitizeID(c.ID)
		base := id
		for n := 2; used[id]; n++ {
			id = fmt.Sprintf("%s_%d", base, n)
		}
		used[id] = true
		out[c.ID] = id
	}
	return out
}

// sanitizeID converts a string into a safe Mermaid node identifier.
func sanitizeID(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	id := b.String()
	switch {
	case id == "":
		return "node"
	case unicode.IsDigit(rune(id[0])):
		return "n" + id
	case strings.EqualFold(id, "end") || strings.EqualFold(id, "graph") || strings.EqualFold(id, "subgraph"):
		return id + "_"
	}
	return id
}

// escapeMermaid replaces characters that would break Mermaid label syntax.
func escapeMermaid(s string) string {
	r := strings.NewReplacer(
		"\"", "#quot;",
		"<", "#lt;",
		">", "#gt;",
		"|", "#124;",
		"\n", " ",
	)
	return r.Replace(s)
}
