// Package flow defines the graph model of a flow task: typed transformation
// nodes, the edges between them, and the columns they produce.
//
// Nodes travel over the wire with a loosely typed data bag. Code that needs
// to reason about a node's configuration decodes the bag into the typed
// variant for its node type with DecodeConfig.
package flow

import (
	"encoding/json"
	"fmt"
	"maps"
)

// NodeType identifies the transformation a node performs.
type NodeType string

// Node types supported by the editor.
const (
	NodeInput     NodeType = "input"
	NodeClean     NodeType = "clean"
	NodeAggregate NodeType = "aggregate"
	NodeJoin      NodeType = "join"
	NodeUnion     NodeType = "union"
	NodePivot     NodeType = "pivot"
	NodeNewRows   NodeType = "new_rows"
	NodeSQL       NodeType = "sql"
	NodeOutput    NodeType = "output"
	NodeNote      NodeType = "note"
)

// NodeTypes lists every node type in palette order.
var NodeTypes = []NodeType{
	NodeInput, NodeClean, NodeAggregate, NodeJoin, NodeUnion,
	NodePivot, NodeNewRows, NodeSQL, NodeOutput, NodeNote,
}

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DataFlow reports whether nodes of this type take part in data flow.
// Notes are annotations and never have edges.
func (t NodeType) DataFlow() bool {
	return t != NodeNote
}

// MultiInput reports whether the node type reads two distinct inputs
// addressed by target handle.
func (t NodeType) MultiInput() bool {
	return t == NodeJoin || t == NodeUnion
}

// Target handles used by dual-input nodes.
const (
	HandleLeft   = "left"
	HandleRight  = "right"
	HandleInputA = "input_a"
	HandleInputB = "input_b"
)

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Data is the per-type configuration bag carried by a node.
type Data map[string]any

// Clone returns a shallow copy of the bag.
func (d Data) Clone() Data {
	if d == nil {
		return Data{}
	}
	return maps.Clone(d)
}

// Label returns the "label" entry, or "" when absent.
func (d Data) Label() string {
	s, _ := d["label"].(string)
	return s
}

// Node is a vertex on the canvas.
type Node struct {
	ID       string   `json:"id" yaml:"id"`
	Type     NodeType `json:"type" yaml:"type"`
	Position Position `json:"position" yaml:"position"`
	Data     Data     `json:"data" yaml:"data"`
}

// Clone returns a copy of the node whose data bag can be modified freely.
func (n Node) Clone() Node {
	n.Data = n.Data.Clone()
	return n
}

// Label returns the display label of the node, falling back to its id.
func (n Node) Label() string {
	if l := n.Data.Label(); l != "" {
		return l
	}
	return n.ID
}

// Edge connects the output of Source to an input of Target.
type Edge struct {
	ID           string `json:"id" yaml:"id"`
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty" yaml:"targetHandle,omitempty"`
}

// Touches reports whether the edge has id as either endpoint.
func (e Edge) Touches(id string) bool {
	return e.Source == id || e.Target == id
}

// Connection is the payload of a connect gesture on the canvas.
type Connection struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Graph is a snapshot of nodes and edges.
type Graph struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// Clone deep-copies the graph so callers can hold it across mutations.
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}
	copy(out.Edges, g.Edges)
	return out
}

// Node looks up a node by id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Incoming returns the edges whose target is id, in graph order.
func (g Graph) Incoming(id string) []Edge {
	var in []Edge
	for _, e := range g.Edges {
		if e.Target == id {
			in = append(in, e)
		}
	}
	return in
}

// Upstream returns the first connected upstream node id of id.
func (g Graph) Upstream(id string) (string, bool) {
	for _, e := range g.Edges {
		if e.Target == id {
			return e.Source, true
		}
	}
	return "", false
}

// InputOn returns the source node id connected to the given target handle of id.
// Aliases are accepted so "left" also matches "input_a" and "right" matches "input_b".
func (g Graph) InputOn(id, handle string) (string, bool) {
	for _, e := range g.Edges {
		if e.Target == id && sameHandle(e.TargetHandle, handle) {
			return e.Source, true
		}
	}
	return "", false
}

func sameHandle(a, b string) bool {
	return CanonicalHandle(a) == CanonicalHandle(b)
}

// CanonicalHandle maps the union handle names onto the join ones.
func CanonicalHandle(h string) string {
	switch h {
	case HandleInputA:
		return HandleLeft
	case HandleInputB:
		return HandleRight
	}
	return h
}

// HasConfiguredInput reports whether at least one input node has a source or
// destination selected. Without one every backend probe would fail.
func (g Graph) HasConfiguredInput() bool {
	for _, n := range g.Nodes {
		if n.Type != NodeInput {
			continue
		}
		cfg, err := DecodeInput(n.Data)
		if err != nil {
			continue
		}
		if cfg.Configured() {
			return true
		}
	}
	return false
}

// Column is one output column of a node.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// UnmarshalJSON accepts {"name","type"}, {"column_name","data_type"} or a bare
// column name string.
func (c *Column) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*c = Column{Name: name}
		return nil
	}

	var raw struct {
		Name       string `json:"name"`
		Type       string `json:"type"`
		ColumnName string `json:"column_name"`
		DataType   string `json:"data_type"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("invalid column: %w", err)
	}
	c.Name = raw.Name
	if c.Name == "" {
		c.Name = raw.ColumnName
	}
	c.Type = raw.Type
	if c.Type == "" {
		c.Type = raw.DataType
	}
	return nil
}

// ColumnNames returns the names of cols in order.
func ColumnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
