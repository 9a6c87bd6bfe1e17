// Package store holds the authoritative in-memory state of one open flow-task
// editor: nodes, edges, selection, dirty tracking and the preview/run sessions.
//
// A Store is created per editor session and injected into its collaborators.
// All mutations go through its methods and are serialised by a single mutex,
// so each operation is atomic and applied in call order. Every mutation is
// broadcast on the store's notifier.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/leapstack-labs/flowtask/internal/flow"
	"github.com/leapstack-labs/flowtask/internal/notifier"
)

// Sentinel errors returned by Connect.
var (
	ErrSelfLoop    = errors.New("edge source and target are the same node")
	ErrUnknownNode = errors.New("unknown node")
	ErrNoteEdge    = errors.New("note nodes cannot be connected")
)

// Store is the graph state of one editor session.
type Store struct {
	mu       sync.RWMutex
	nodes    []flow.Node
	edges    []flow.Edge
	selected string
	dirty    bool
	revision uint64

	preview *PreviewSession
	run     *RunSession

	notify *notifier.Notifier
	logger *slog.Logger
}

// New creates an empty store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		notify: notifier.New(),
		logger: logger,
	}
}

// Notifier returns the notifier that receives every change.
func (s *Store) Notifier() *notifier.Notifier {
	return s.notify
}

// --- Bulk load ---

// SetNodes replaces all nodes. Loading is not an edit, so the dirty flag is untouched.
func (s *Store) SetNodes(nodes []flow.Node) {
	s.mu.Lock()
	s.nodes = cloneNodes(nodes)
	if s.selected != "" && s.indexOf(s.selected) < 0 {
		s.selected = ""
	}
	s.mu.Unlock()
	s.notify.Broadcast(notifier.Graph | notifier.Selection)
}

// SetEdges replaces all edges without marking the store dirty.
func (s *Store) SetEdges(edges []flow.Edge) {
	s.mu.Lock()
	s.edges = append([]flow.Edge(nil), edges...)
	s.mu.Unlock()
	s.notify.Broadcast(notifier.Graph)
}

// Restore replaces the whole graph with unsaved content, such as a recovered
// draft. Unlike SetNodes and SetEdges it marks the store dirty.
func (s *Store) Restore(g flow.Graph) {
	s.mu.Lock()
	s.nodes = cloneNodes(g.Nodes)
	s.edges = append([]flow.Edge(nil), g.Edges...)
	s.selected = ""
	if s.preview != nil && s.indexOf(s.preview.NodeID) < 0 {
		s.preview = nil
	}
	s.touch()
	s.mu.Unlock()
	s.notify.Broadcast(notifier.Graph | notifier.Selection | notifier.Dirty | notifier.Preview)
}

// --- Edits ---

// AddNode appends a node. The caller guarantees the id is unique.
func (s *Store) AddNode(n flow.Node) {
	s.mu.Lock()
	if s.indexOf(n.ID) >= 0 {
		s.logger.Warn("adding node with duplicate id", "node", n.ID)
	}
	s.nodes = append(s.nodes, n.Clone())
	s.touch()
	s.mu.Unlock()
	s.notify.Broadcast(notifier.Graph | notifier.Dirty)
}

// UpdateNodeData shallow-merges patch into the node's data. An unknown id is a
// no-op, since drag and async races can hand us ids of nodes already deleted;
// the store is still marked dirty.
func (s *Store) UpdateNodeData(id string, patch flow.Data) {
	s.mu.Lock()
	if i := s.indexOf(id); i >= 0 {
		data := s.nodes[i].Data.Clone()
		for k, v := range patch {
			data[k] = v
		}
		s.nodes[i].Data = data
	} else {
		s.logger.Debug("update for unknown node ignored", "node", id)
	}
	s.touch()
	s.mu.Unlock()
	s.notify.Broadcast(notifier.Graph | notifier.Dirty)
}

// RemoveNode deletes a node and exactly the edges touching it.
func (s *Store) RemoveNode(id string) {
	s.mu.Lock()
	kinds := s.removeLocked(id)
	s.touch()
	s.mu.Unlock()
	s.notify.Broadcast(kinds | notifier.Graph | notifier.Dirty)
}

// removeLocked removes the node and its edges and returns the extra change
// kinds caused by the removal.
func (s *Store) removeLocked(id string) notifier.Kind {
	var kinds notifier.Kind

	if i := s.indexOf(id); i >= 0 {
		s.nodes = append(s.nodes[:i:i], s.nodes[i+1:]...)
	} else {
		s.logger.Debug("remove for unknown node ignored", "node", id)
	}

	kept := s.edges[:0:0]
	for _, e := range s.edges {
		if !e.Touches(id) {
			kept = append(kept, e)
		}
	}
	s.edges = kept

	if s.selected == id {
		s.selected = ""
		kinds |= notifier.Selection
	}

	// A preview of a deleted node has nothing left to show
	if s.preview != nil && s.preview.NodeID == id {
		s.preview = nil
		kinds |= notifier.Preview
	}
	return kinds
}

// Connect adds an edge for a connect gesture, keeping its handles.
// Self loops, unknown endpoints and notes are rejected.
func (s *Store) Connect(c flow.Connection) (flow.Edge, error) {
	if c.Source == c.Target {
		return flow.Edge{}, ErrSelfLoop
	}

	s.mu.Lock()
	for _, id := range []string{c.Source, c.Target} {
		i := s.indexOf(id)
		if i < 0 {
			s.mu.Unlock()
			return flow.Edge{}, fmt.Errorf("%w: %s", ErrUnknownNode, id)
		}
		if !s.nodes[i].Type.DataFlow() {
			s.mu.Unlock()
			return flow.Edge{}, ErrNoteEdge
		}
	}

	e := flow.Edge{
		ID:           "e-" + uuid.NewString(),
		Source:       c.Source,
		Target:       c.Target,
		SourceHandle: c.SourceHandle,
		TargetHandle: c.TargetHandle,
	}
	s.edges = append(s.edges, e)
	s.touch()
	s.mu.Unlock()

	s.notify.Broadcast(notifier.Graph | notifier.Dirty)
	return e, nil
}

// SelectNode selects exactly one node, or none when id is empty.
func (s *Store) SelectNode(id string) {
	s.mu.Lock()
	if id != "" && s.indexOf(id) < 0 {
		s.logger.Debug("select for unknown node ignored", "node", id)
		id = ""
	}
	changed := s.selected != id
	s.selected = id
	s.mu.Unlock()

	if changed {
		s.notify.Broadcast(notifier.Selection)
	}
}

// MarkClean clears the dirty flag unconditionally.
func (s *Store) MarkClean() {
	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	s.notify.Broadcast(notifier.Dirty)
}

// MarkCleanAt clears the dirty flag only if no mutation happened since
// revision was read. It reports whether the flag was cleared.
func (s *Store) MarkCleanAt(revision uint64) bool {
	s.mu.Lock()
	ok := s.revision == revision
	if ok {
		s.dirty = false
	}
	s.mu.Unlock()

	if ok {
		s.notify.Broadcast(notifier.Dirty)
	}
	return ok
}

// touch records a content mutation. Callers hold the write lock.
func (s *Store) touch() {
	s.dirty = true
	s.revision++
}

// --- Reads ---

// IsDirty reports whether there are unsaved mutations.
func (s *Store) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Revision returns a counter incremented by every content mutation.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Selected returns the selected node id, or "" when nothing is selected.
func (s *Store) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (flow.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.nodes[i].Clone(), true
	}
	return flow.Node{}, false
}

// Nodes returns a copy of all nodes.
func (s *Store) Nodes() []flow.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneNodes(s.nodes)
}

// Edges returns a copy of all edges.
func (s *Store) Edges() []flow.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]flow.Edge(nil), s.edges...)
}

// Snapshot returns a deep copy of the graph together with the revision it reflects.
func (s *Store) Snapshot() (flow.Graph, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return flow.Graph{
		Nodes: cloneNodes(s.nodes),
		Edges: append([]flow.Edge{}, s.edges...),
	}, s.revision
}

// Graph returns a deep copy of the current graph.
func (s *Store) Graph() flow.Graph {
	g, _ := s.Snapshot()
	return g
}

func (s *Store) indexOf(id string) int {
	for i := range s.nodes {
		if s.nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneNodes(nodes []flow.Node) []flow.Node {
	out := make([]flow.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}
