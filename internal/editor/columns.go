package editor

import (
	"context"

	"github.com/leapstack-labs/flowtask/internal/flow"
	"github.com/leapstack-labs/flowtask/internal/schema"
)

// WarningBothInputs is shown on a join or union form until both sides are connected.
const WarningBothInputs = "both inputs required"

// JoinInputs are the columns on each side of a dual-input node.
type JoinInputs struct {
	LeftNode  string
	RightNode string
	Left      schema.Result
	Right     schema.Result
	Warning   string
}

func (e *Editor) schemaRequest(g flow.Graph, id string) schema.Request {
	return schema.Request{FlowTaskID: e.flowTaskID, NodeID: id, Graph: g}
}

// NodeColumns resolves the output columns of a node, waiting for the backend
// on a cache miss.
func (e *Editor) NodeColumns(ctx context.Context, id string) schema.Result {
	return e.resolver.Resolve(ctx, e.schemaRequest(e.store.Graph(), id))
}

// PeekNodeColumns is the non-blocking form of NodeColumns. A miss starts a
// background fetch and reports IsLoading; a Schema change is broadcast when
// it lands.
func (e *Editor) PeekNodeColumns(id string) schema.Result {
	return e.resolver.Peek(e.schemaRequest(e.store.Graph(), id))
}

// UpstreamColumns resolves the columns feeding a single-input node: the
// output of its first connected upstream node. With nothing connected the
// result is empty.
func (e *Editor) UpstreamColumns(ctx context.Context, id string) schema.Result {
	g := e.store.Graph()
	up, ok := g.Upstream(id)
	if !ok {
		return schema.Result{}
	}
	return e.resolver.Resolve(ctx, e.schemaRequest(g, up))
}

// JoinColumns resolves both inputs of a join or union. A missing side yields
// an empty column list and WarningBothInputs rather than an error.
func (e *Editor) JoinColumns(ctx context.Context, id string) JoinInputs {
	g := e.store.Graph()
	var out JoinInputs

	resolve := func(handle string) (string, schema.Result) {
		src, ok := g.InputOn(id, handle)
		if !ok {
			return "", schema.Result{Columns: []flow.Column{}}
		}
		return src, e.resolver.Resolve(ctx, e.schemaRequest(g, src))
	}

	out.LeftNode, out.Left = resolve(flow.HandleLeft)
	out.RightNode, out.Right = resolve(flow.HandleRight)
	if out.LeftNode == "" || out.RightNode == "" {
		out.Warning = WarningBothInputs
	}
	return out
}
