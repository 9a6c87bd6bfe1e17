package editor

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/leapstack-labs/flowtask/internal/flow"
)

// Canvas errors.
var (
	ErrUnknownNodeType   = errors.New("unknown node type")
	ErrUnknownNode       = errors.New("unknown node")
	ErrUnknownAction     = errors.New("unknown action")
	ErrActionUnavailable = errors.New("action not available for node")
)

// Action is a context-menu entry.
type Action string

// Context-menu actions.
const (
	ActionPreview   Action = "preview"
	ActionDuplicate Action = "duplicate"
	ActionDelete    Action = "delete"
)

// duplicateOffset shifts a copied node so it does not sit on the original.
const duplicateOffset = 40

// newNodeID returns a session-unique id of the form type_counter_unixms.
func (e *Editor) newNodeID(t flow.NodeType) string {
	return fmt.Sprintf("%s_%d_%d", t, e.counter.Add(1), e.now().UnixMilli())
}

// DropNode creates a node of type t from the palette at pos.
func (e *Editor) DropNode(t flow.NodeType, pos flow.Position) (flow.Node, error) {
	if !t.Valid() {
		return flow.Node{}, fmt.Errorf("%w: %q", ErrUnknownNodeType, t)
	}
	n := flow.Node{
		ID:       e.newNodeID(t),
		Type:     t,
		Position: pos,
		Data:     flow.DefaultData(t),
	}
	e.store.AddNode(n)
	return n, nil
}

// Click selects a node.
func (e *Editor) Click(id string) {
	e.store.SelectNode(id)
}

// ClickPane clears the selection.
func (e *Editor) ClickPane() {
	e.store.SelectNode("")
}

// ConnectHandles adds the edge of a connect gesture.
func (e *Editor) ConnectHandles(c flow.Connection) (flow.Edge, error) {
	return e.store.Connect(c)
}

// UpdateNode merges a form patch into a node's data.
func (e *Editor) UpdateNode(id string, patch flow.Data) {
	e.store.UpdateNodeData(id, patch)
}

// DeleteNode removes a node and its edges.
func (e *Editor) DeleteNode(id string) {
	e.store.RemoveNode(id)
}

// ContextMenu lists the actions offered for a node. Notes cannot be previewed.
func (e *Editor) ContextMenu(id string) []Action {
	n, ok := e.store.Node(id)
	if !ok {
		return nil
	}
	if !n.Type.DataFlow() {
		return []Action{ActionDuplicate, ActionDelete}
	}
	return []Action{ActionPreview, ActionDuplicate, ActionDelete}
}

// Invoke runs a context-menu action on a node.
func (e *Editor) Invoke(ctx context.Context, action Action, id string) error {
	switch action {
	case ActionPreview, ActionDuplicate, ActionDelete:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	menu := e.ContextMenu(id)
	if menu == nil {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	if !slices.Contains(menu, action) {
		return fmt.Errorf("%w: %s on %s", ErrActionUnavailable, action, id)
	}

	switch action {
	case ActionPreview:
		_, err := e.RequestPreview(ctx, id)
		return err
	case ActionDuplicate:
		_, err := e.Duplicate(id)
		return err
	default:
		e.DeleteNode(id)
		return nil
	}
}

// Duplicate copies a node's type and data to a new node next to it.
// Edges are not copied.
func (e *Editor) Duplicate(id string) (flow.Node, error) {
	src, ok := e.store.Node(id)
	if !ok {
		return flow.Node{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	n := flow.Node{
		ID:   e.newNodeID(src.Type),
		Type: src.Type,
		Position: flow.Position{
			X: src.Position.X + duplicateOffset,
			Y: src.Position.Y + duplicateOffset,
		},
		Data: src.Data.Clone(),
	}
	e.store.AddNode(n)
	return n, nil
}
