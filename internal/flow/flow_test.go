package flow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func joinGraph() Graph {
	return Graph{
		Nodes: []Node{
			{ID: "a", Type: NodeInput, Data: Data{"source_id": "pg"}},
			{ID: "b", Type: NodeInput},
			{ID: "j", Type: NodeJoin, Data: Data{"label": "Orders x Customers"}},
			{ID: "note", Type: NodeNote},
		},
		Edges: []Edge{
			{ID: "e1", Source: "a", Target: "j", TargetHandle: HandleInputA},
			{ID: "e2", Source: "b", Target: "j", TargetHandle: HandleRight},
		},
	}
}

func TestNodeType(t *testing.T) {
	for _, nt := range NodeTypes {
		assert.True(t, nt.Valid(), nt)
	}
	assert.False(t, NodeType("mystery").Valid())
	assert.False(t, NodeNote.DataFlow())
	assert.True(t, NodeSQL.DataFlow())
	assert.True(t, NodeJoin.MultiInput())
	assert.True(t, NodeUnion.MultiInput())
	assert.False(t, NodeClean.MultiInput())
}

func TestGraph_Helpers(t *testing.T) {
	g := joinGraph()

	n, ok := g.Node("j")
	require.True(t, ok)
	assert.Equal(t, "Orders x Customers", n.Label())
	_, ok = g.Node("zzz")
	assert.False(t, ok)

	b, _ := g.Node("b")
	assert.Equal(t, "b", b.Label(), "label falls back to id")

	assert.Len(t, g.Incoming("j"), 2)
	assert.Empty(t, g.Incoming("a"))

	up, ok := g.Upstream("j")
	require.True(t, ok)
	assert.Equal(t, "a", up)

	left, ok := g.InputOn("j", HandleLeft)
	require.True(t, ok)
	assert.Equal(t, "a", left, "input_a is an alias of left")
	right, ok := g.InputOn("j", HandleInputB)
	require.True(t, ok)
	assert.Equal(t, "b", right, "input_b is an alias of right")

	assert.True(t, g.HasConfiguredInput())
	g.Nodes[0].Data = Data{}
	assert.False(t, g.HasConfiguredInput())
}

func TestGraph_CloneIsDeep(t *testing.T) {
	g := joinGraph()
	c := g.Clone()
	c.Nodes[2].Data["label"] = "changed"
	c.Edges[0].Target = "x"

	assert.Equal(t, "Orders x Customers", g.Nodes[2].Data["label"])
	assert.Equal(t, "j", g.Edges[0].Target)
}

func TestColumn_UnmarshalJSON(t *testing.T) {
	var cols []Column
	require.NoError(t, json.Unmarshal([]byte(`[
		{"column_name": "id", "data_type": "integer"},
		{"name": "total", "type": "numeric"},
		"status"
	]`), &cols))

	assert.Equal(t, []Column{
		{Name: "id", Type: "integer"},
		{Name: "total", Type: "numeric"},
		{Name: "status"},
	}, cols)
	assert.Equal(t, []string{"id", "total", "status"}, ColumnNames(cols))

	var bad Column
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))
}

func TestDecodeConfig(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want Config
	}{
		{
			name: "input",
			node: Node{Type: NodeInput, Data: Data{"source_id": 7, "table_name": "orders", "columns": []any{"id"}}},
			want: InputConfig{SourceID: "7", TableName: "orders", Columns: []string{"id"}},
		},
		{
			name: "clean",
			node: Node{Type: NodeClean, Data: Data{
				"select_columns":   []any{"id", "total"},
				"rename_columns":   map[string]any{"total": "amount"},
				"computed_columns": []any{map[string]any{"name": "x2", "expression": "total * 2"}},
				"filters":          []any{map[string]any{"column": "total", "operator": ">", "value": 5}},
				"drop_nulls":       "true",
			}},
			want: CleanConfig{
				SelectColumns:   []string{"id", "total"},
				RenameColumns:   map[string]string{"total": "amount"},
				ComputedColumns: []ComputedColumn{{Name: "x2", Expression: "total * 2"}},
				Filters:         []Filter{{Column: "total", Operator: ">", Value: 5}},
				DropNulls:       true,
			},
		},
		{
			name: "aggregate",
			node: Node{Type: NodeAggregate, Data: Data{
				"group_by":     []any{"customer_id"},
				"aggregations": []any{map[string]any{"function": "SUM", "column": "total", "alias": "revenue"}},
			}},
			want: AggregateConfig{GroupBy: []string{"customer_id"}, Aggregations: []Aggregation{{Function: "SUM", Column: "total", Alias: "revenue"}}},
		},
		{
			name: "pivot",
			node: Node{Type: NodePivot, Data: Data{"pivot_type": "UNPIVOT", "pivot_values": []any{"q1", "q2"}}},
			want: PivotConfig{PivotType: PivotTypeUnpivot, PivotValues: []string{"q1", "q2"}},
		},
		{
			name: "new rows",
			node: Node{Type: NodeNewRows, Data: Data{"columns": []any{map[string]any{"name": "id", "type": "int"}}}},
			want: NewRowsConfig{Columns: []Column{{Name: "id", Type: "int"}}},
		},
		{
			name: "empty bag",
			node: Node{Type: NodeUnion},
			want: UnionConfig{},
		},
		{
			name: "note",
			node: Node{Type: NodeNote, Data: Data{"text": "todo: check nulls"}},
			want: NoteConfig{Text: "todo: check nulls"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeConfig(tt.node)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.node.Type, got.NodeType())
		})
	}
}

func TestDecodeConfig_Errors(t *testing.T) {
	_, err := DecodeConfig(Node{Type: "mystery"})
	assert.ErrorContains(t, err, `unknown node type "mystery"`)

	_, err = DecodeConfig(Node{Type: NodeClean, Data: Data{"select_columns": map[string]any{"a": 1}}})
	assert.Error(t, err)
}

func TestDefaultData(t *testing.T) {
	for _, nt := range NodeTypes {
		d := DefaultData(nt)
		require.NotNil(t, d, nt)
		_, err := DecodeConfig(Node{Type: nt, Data: d})
		assert.NoError(t, err, nt)
	}
	assert.Equal(t, "INNER", DefaultData(NodeJoin)["join_type"])
	assert.Equal(t, Data{}, DefaultData("mystery"))
}

func TestCanonicalHandle(t *testing.T) {
	assert.Equal(t, HandleLeft, CanonicalHandle(HandleInputA))
	assert.Equal(t, HandleRight, CanonicalHandle(HandleInputB))
	assert.Equal(t, HandleLeft, CanonicalHandle(HandleLeft))
	assert.Equal(t, "", CanonicalHandle(""))
}
