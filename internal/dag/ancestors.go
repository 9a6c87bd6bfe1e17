package dag

import (
	"sort"

	"github.com/leapstack-labs/flowtask/internal/flow"
)

// Set is an unordered set of node ids.
type Set map[string]struct{}

// Has reports whether id is in the set.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AncestorsOf returns every node that can reach target by following edges
// forward, including target itself. The walk is breadth-first over incoming
// edges with a visited set, so it terminates on cyclic input.
//
// The returned set is always the complete closure. When the closure contains
// a cycle a *CycleError is returned alongside it so callers can surface the
// graph as invalid instead of trusting a result computed from it.
func AncestorsOf(target string, edges []flow.Edge) (Set, error) {
	incoming := make(map[string][]string, len(edges))
	for _, e := range edges {
		incoming[e.Target] = append(incoming[e.Target], e.Source)
	}

	seen := Set{target: {}}
	queue := []string{target}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, parent := range incoming[id] {
			if seen.Has(parent) {
				continue
			}
			seen[parent] = struct{}{}
			queue = append(queue, parent)
		}
	}

	if err := closureCycle(seen, edges); err != nil {
		return seen, err
	}
	return seen, nil
}

// EdgesWithin returns the edges whose endpoints are both in set, in input order.
func EdgesWithin(set Set, edges []flow.Edge) []flow.Edge {
	var out []flow.Edge
	for _, e := range edges {
		if set.Has(e.Source) && set.Has(e.Target) {
			out = append(out, e)
		}
	}
	return out
}

func closureCycle(set Set, edges []flow.Edge) error {
	g := NewGraph()
	for id := range set {
		g.AddNode(id, "")
	}
	for _, e := range EdgesWithin(set, edges) {
		if e.Source == e.Target {
			return &CycleError{Path: []string{e.Source, e.Target}}
		}
		_ = g.AddEdge(e.Source, e.Target)
	}
	if hasCycle, path := g.HasCycle(); hasCycle {
		return &CycleError{Path: path}
	}
	return nil
}
