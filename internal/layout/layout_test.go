package layout

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"reposcope/internal/analysis"
)

func intPtr(v int) *int { return &v }

func TestLayerOf(t *testing.T) {
	tests := []struct {
		c    analysis.Component
		want int
	}{
		{analysis.Component{Type: "frontend"}, LayerClient},
		{analysis.Component{Type: "UI"}, LayerClient},
		{analysis.Component{Type: "api"}, LayerGateway},
		{analysis.Component{Type: "gateway"}, LayerGateway},
		{analysis.Component{Type: "worker"}, LayerService},
		{analysis.Component{Type: "cache"}, LayerData},
		{analysis.Component{Type: "external"}, LayerExternal},
		{analysis.Component{Type: "mystery"}, LayerService},
		{analysis.Component{Type: "database", Layer: intPtr(0)}, 0},
	}
	for _, tt := range tests {
		if got := LayerOf(tt.c); got != tt.want {
			t.Errorf("LayerOf(%+v) = %d, want %d", tt.c, got, tt.want)
		}
	}
}

func TestFlow(t *testing.T) {
	arch := analysis.Architecture{
		Components: []analysis.Component{
			{ID: "db", Name: "Postgres", Type: "database"},
			{ID: "web", Name: "Web", Type: "frontend"},
			{ID: "worker", Name: "Worker", Type: "worker"},
			{ID: "api", Name: "API", Type: "api"},
			{ID: "jobs", Name: "Jobs", Type: "service"},
		},
		Connections: []analysis.Connection{
			{Source: "web", Target: "api", Label: "REST", Type: "http"},
			{Source: "api", Target: "db", Label: "SQL", Type: "data"},
			{Source: "api", Target: "ghost", Type: "http"},
		},
	}
	g := Flow(arch)

	type pos struct {
		ID   string
		X, Y float64
	}
	var got []pos
	for _, n := range g.Nodes {
		got = append(got, pos{n.ID, n.Position.X, n.Position.Y})
	}
	want := []pos{
		{"web", 0, 0},
		{"api", 0, 180},
		{"jobs", -140, 360},
		{"worker", 140, 360},
		{"db", 0, 540},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("positions (-want +got):\n%s", diff)
	}

	if len(g.Edges) != 2 {
		t.Fatalf("edges = %+v", g.Edges)
	}
	if g.Edges[0].Animated || g.Edges[0].Style.Stroke != "#3b82f6" {
		t.Errorf("http edge = %+v", g.Edges[0])
	}
	if !g.Edges[1].Animated || g.Edges[1].Style.Stroke != "#10b981" {
		t.Errorf("data edge = %+v", g.Edges[1])
	}
	if g.Nodes[0].Data.Technologies == nil {
		t.Error("technologies left nil")
	}
}

func TestFlowDeterministic(t *testing.T) {
	arch := analysis.Architecture{
		Components: []analysis.Component{
			{ID: "b", Name: "Beta", Type: "service"},
			{ID: "a", Name: "alpha", Type: "service"},
			{ID: "c", Name: "Gamma", Type: "service"},
		},
	}
	first := Flow(arch)
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, Flow(arch)); diff != "" {
			t.Fatalf("layout changed between runs:\n%s", diff)
		}
	}
	ids := []string{first.Nodes[0].ID, first.Nodes[1].ID, first.Nodes[2].ID}
	if diff := cmp.Diff([]string{"a", "b", "c"}, ids); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
	if first.Nodes[0].Position.X != -280 || first.Nodes[2].Position.X != 280 {
		t.Errorf("spread = %v .. %v", first.Nodes[0].Position.X, first.Nodes[2].Position.X)
	}
	if len(Flow(analysis.Architecture{}).Nodes) != 0 {
		t.Error("empty architecture produced nodes")
	}
}
