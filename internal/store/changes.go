package store

import (
	"github.com/leapstack-labs/flowtask/internal/flow"
	"github.com/leapstack-labs/flowtask/internal/notifier"
)

// ChangeType names a canvas delta.
type ChangeType string

// Delta kinds emitted by the canvas.
const (
	ChangePosition ChangeType = "position"
	ChangeSelect   ChangeType = "select"
	ChangeRemove   ChangeType = "remove"
)

// NodeChange is one node delta from the canvas.
type NodeChange struct {
	Type     ChangeType     `json:"type"`
	ID       string         `json:"id"`
	Position *flow.Position `json:"position,omitempty"`
	Selected bool           `json:"selected,omitempty"`
}

// EdgeChange is one edge delta from the canvas.
type EdgeChange struct {
	Type     ChangeType `json:"type"`
	ID       string     `json:"id"`
	Selected bool       `json:"selected,omitempty"`
}

// ApplyNodeChanges applies a batch of node deltas atomically and marks the store dirty.
func (s *Store) ApplyNodeChanges(changes []NodeChange) {
	if len(changes) == 0 {
		return
	}

	s.mu.Lock()
	kinds := notifier.Graph | notifier.Dirty
	for _, c := range changes {
		switch c.Type {
		case ChangePosition:
			i := s.indexOf(c.ID)
			if i < 0 || c.Position == nil {
				s.logger.Debug("position change ignored", "node", c.ID)
				continue
			}
			s.nodes[i].Position = *c.Position

		case ChangeSelect:
			switch {
			case c.Selected && s.indexOf(c.ID) >= 0:
				s.selected = c.ID
				kinds |= notifier.Selection
			case !c.Selected && s.selected == c.ID:
				s.selected = ""
				kinds |= notifier.Selection
			}

		case ChangeRemove:
			kinds |= s.removeLocked(c.ID)

		default:
			s.logger.Debug("unknown node change ignored", "type", c.Type, "node", c.ID)
		}
	}
	s.touch()
	s.mu.Unlock()

	s.notify.Broadcast(kinds)
}

// ApplyEdgeChanges applies a batch of edge deltas and marks the store dirty.
// Edge selection is a canvas concern and is not tracked.
func (s *Store) ApplyEdgeChanges(changes []EdgeChange) {
	if len(changes) == 0 {
		return
	}

	s.mu.Lock()
	for _, c := range changes {
		if c.Type != ChangeRemove {
			continue
		}
		for i, e := range s.edges {
			if e.ID == c.ID {
				s.edges = append(s.edges[:i:i], s.edges[i+1:]...)
				break
			}
		}
	}
	s.touch()
	s.mu.Unlock()

	s.notify.Broadcast(notifier.Graph | notifier.Dirty)
}
