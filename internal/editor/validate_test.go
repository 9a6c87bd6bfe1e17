package editor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leapstack-labs/flowtask/internal/flow"
)

func messages(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.String()
	}
	return out
}

func TestValidate_RunnableGraph(t *testing.T) {
	assert.Empty(t, Validate(ordersGraph()))
}

func TestValidate_EmptyGraph(t *testing.T) {
	assert.Equal(t, []string{"graph has no nodes"}, messages(Validate(flow.Graph{})))
}

func TestValidate_Problems(t *testing.T) {
	tests := []struct {
		name string
		edit func(g *flow.Graph)
		want string
	}{
		{
			name: "unconfigured input",
			edit: func(g *flow.Graph) { g.Nodes[0].Data = flow.Data{"table_name": "orders"} },
			want: "in: no source selected",
		},
		{
			name: "disconnected clean",
			edit: func(g *flow.Graph) { g.Edges = g.Edges[1:] },
			want: "clean: no input connected",
		},
		{
			name: "cycle",
			edit: func(g *flow.Graph) {
				g.Edges = append(g.Edges, flow.Edge{ID: "back", Source: "out", Target: "clean"})
			},
			want: "cycle detected",
		},
		{
			name: "half-connected join",
			edit: func(g *flow.Graph) {
				g.Nodes = append(g.Nodes, flow.Node{ID: "j", Type: flow.NodeJoin})
				g.Edges = append(g.Edges, flow.Edge{ID: "ej", Source: "in", Target: "j", TargetHandle: flow.HandleLeft})
			},
			want: "j: " + WarningBothInputs,
		},
		{
			name: "no output",
			edit: func(g *flow.Graph) {
				g.Nodes = g.Nodes[:2]
				g.Edges = g.Edges[:1]
			},
			want: "graph has no output node",
		},
		{
			name: "unknown type",
			edit: func(g *flow.Graph) { g.Nodes[1].Type = "mystery" },
			want: `clean: unknown node type "mystery"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := ordersGraph().Clone()
			tt.edit(&g)
			msgs := messages(Validate(g))
			found := false
			for _, m := range msgs {
				if strings.HasPrefix(m, tt.want) {
					found = true
				}
			}
			assert.True(t, found, "want %q in %v", tt.want, msgs)
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Issues: []Issue{{NodeID: "a", Message: "x"}, {Message: "y"}}}
	assert.Equal(t, "graph is not runnable: a: x (and 1 more)", err.Error())
}
