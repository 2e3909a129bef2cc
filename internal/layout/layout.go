// Package layout positions architecture components for the ReactFlow canvas.
package layout

import (
	"fmt"
	"sort"
	"strings"

	"reposcope/internal/analysis"
)

// Spacing between nodes, in pixels.
const (
	NodeSpacing  = 280
	LayerSpacing = 180
)

// Layers, top to bottom.
const (
	LayerClient   = 0
	LayerGateway  = 1
	LayerService  = 2
	LayerData     = 3
	LayerExternal = 4
)

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData is what the custom node renders.
type NodeData struct {
	Label        string   `json:"label"`
	Type         string   `json:"type"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies"`
	Layer        int      `json:"layer"`
}

// Node is a ReactFlow node.
type Node struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// EdgeStyle is the inline SVG style of an edge.
type EdgeStyle struct {
	Stroke      string `json:"stroke"`
	StrokeWidth int    `json:"strokeWidth"`
}

// Edge is a ReactFlow edge.
type Edge struct {
	ID       string    `json:"id"`
	Source   string    `json:"source"`
	Target   string    `json:"target"`
	Label    string    `json:"label,omitempty"`
	Animated bool      `json:"animated"`
	Style    EdgeStyle `json:"style"`
}

// FlowGraph is the complete canvas.
type FlowGraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// LayerOf returns the layer a component is drawn in: its explicit layer
// when set, otherwise one derived from its type.
func LayerOf(c analysis.Component) int {
	if c.Layer != nil && *c.Layer >= 0 {
		return *c.Layer
	}
	switch strings.ToLower(c.Type) {
	case "frontend", "client", "ui", "web", "mobile":
		return LayerClient
	case "gateway", "api", "server", "backend", "proxy":
		return LayerGateway
	case "service", "worker", "queue":
		return LayerService
	case "database", "cache", "storage", "db":
		return LayerData
	case "external", "thirdparty", "third-party":
		return LayerExternal
	default:
		return LayerService
	}
}

// Flow lays out arch. Nodes are ordered by layer then name; each occupied
// layer becomes one row, centered on x=0.
func Flow(arch analysis.Architecture) FlowGraph {
	type placed struct {
		c     analysis.Component
		layer int
	}
	items := make([]placed, len(arch.Components))
	for i, c := range arch.Components {
		items[i] = placed{c: c, layer: LayerOf(c)}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].layer != items[j].layer {
			return items[i].layer < items[j].layer
		}
		return strings.ToLower(items[i].c.Name) < strings.ToLower(items[j].c.Name)
	})

	g := FlowGraph{Nodes: make([]Node, 0, len(items)), Edges: []Edge{}}

	row := -1
	for start := 0; start < len(items); {
		end := start
		for end < len(items) && items[end].layer == items[start].layer {
			end++
		}
		row++
		n := end - start
		for i := start; i < end; i++ {
			c := items[i].c
			offset := float64(i-start) - float64(n-1)/2
			g.Nodes = append(g.Nodes, Node{
				ID:   c.ID,
				Type: "component",
				Position: Position{
					X: offset * NodeSpacing,
					Y: float64(row * LayerSpacing),
				},
				Data: NodeData{
					Label:        c.Name,
					Type:         c.Type,
					Description:  c.Description,
					Technologies: nonNil(c.Technologies),
					Layer:        items[i].layer,
				},
			})
		}
		start = end
	}

	known := make(map[string]bool, len(arch.Components))
	for _, c := range arch.Components {
		known[c.ID] = true
	}
	for i, conn := range arch.Connections {
		if !known[conn.Source] || !known[conn.Target] {
			continue
		}
		g.Edges = append(g.Edges, Edge{
			ID:       fmt.Sprintf("e-%s-%s-%d", conn.Source, conn.Target, i),
			Source:   conn.Source,
			Target:   conn.Target,
			Label:    conn.Label,
			Animated: isDataFlow(conn.Type),
			Style:    EdgeStyle{Stroke: edgeColor(conn.Type), StrokeWidth: 2},
		})
	}
	return g
}

func isDataFlow(typ string) bool {
	switch strings.ToLower(typ) {
	case "data", "database", "db", "storage":
		return true
	}
	return false
}

func edgeColor(typ string) string {
	switch strings.ToLower(typ) {
	case "http", "rest", "graphql", "grpc":
		return "#3b82f6" // blue
	case "data", "database", "db", "storage":
		return "#10b981" // emerald
	case "event", "queue", "message", "pubsub":
		return "#f59e0b" // amber
	case "dependency", "import":
		return "#8b5cf6" // violet
	default:
		return "#94a3b8" // slate
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
