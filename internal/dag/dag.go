// Package dag provides directed graph operations over flow-task nodes.
// It supports ancestor closure, cycle detection, topological sorting and
// execution levels.
package dag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/flowtask/internal/flow"
)

// Node represents a node in the graph.
type Node struct {
	// ID is the flow node id
	ID string
	// Type is the flow node type, empty for ids only known from edges
	Type flow.NodeType
}

// Graph represents a directed graph of flow nodes.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// FromFlow builds a graph from a flow snapshot. Notes are left out since they
// never carry data. Edges whose endpoints are missing are skipped and returned.
func FromFlow(g flow.Graph) (*Graph, []flow.Edge) {
	out := NewGraph()
	for _, n := range g.Nodes {
		if !n.Type.DataFlow() {
			continue
		}
		out.AddNode(n.ID, n.Type)
	}

	var skipped []flow.Edge
	for _, e := range g.Edges {
		if err := out.AddEdge(e.Source, e.Target); err != nil {
			skipped = append(skipped, e)
		}
	}
	return out, skipped
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(id string, typ flow.NodeType) {
	if _, exists := g.nodes[id]; !exists {
		g.nodes[id] = &Node{ID: id, Type: typ}
		g.edges[id] = []string{}
		g.parents[id] = []string{}
	} else {
		g.nodes[id].Type = typ
	}
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}

	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	// Parallel edges collapse into one dependency
	if !contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}

	return nil
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// GetParents returns the parents (dependencies) of a node.
func (g *Graph) GetParents(id string) []string {
	return g.parents[id]
}

// GetChildren returns the children (dependents) of a node.
func (g *Graph) GetChildren(id string) []string {
	return g.edges[id]
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// HasCycle returns true if the graph contains a cycle, along with the cycle path.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.edges[id] {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				// Found cycle, reconstruct path
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	// Sorted start order keeps the reported path stable between calls
	for _, id := range g.sortedIDs() {
		if !visited[id] {
			if dfs(id) {
				return true, cyclePath
			}
		}
	}

	return false, nil
}

// TopologicalSort returns nodes in topological order (dependencies before dependents).
// Returns a *CycleError if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, &CycleError{Path: cyclePath}
	}

	visited := make(map[string]bool)
	var result []*Node

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true

		for _, parentID := range g.parents[id] {
			visit(parentID)
		}

		result = append(result, g.nodes[id])
	}

	for _, id := range g.sortedIDs() {
		visit(id)
	}

	return result, nil
}

// GetExecutionLevels returns nodes grouped by execution level.
// Level 0 contains nodes with no dependencies.
func (g *Graph) GetExecutionLevels() ([][]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, &CycleError{Path: cyclePath}
	}

	levels := [][]string{}
	assigned := make(map[string]int)

	var getLevel func(id string) int
	getLevel = func(id string) int {
		if level, ok := assigned[id]; ok {
			return level
		}

		parents := g.parents[id]
		if len(parents) == 0 {
			assigned[id] = 0
			return 0
		}

		maxParentLevel := 0
		for _, parentID := range parents {
			parentLevel := getLevel(parentID)
			if parentLevel > maxParentLevel {
				maxParentLevel = parentLevel
			}
		}

		level := maxParentLevel + 1
		assigned[id] = level
		return level
	}

	maxLevel := 0
	for id := range g.nodes {
		level := getLevel(id)
		if level > maxLevel {
			maxLevel = level
		}
	}

	if len(g.nodes) == 0 {
		return levels, nil
	}
	for i := 0; i <= maxLevel; i++ {
		levels = append(levels, []string{})
	}
	for id, level := range assigned {
		levels[level] = append(levels[level], id)
	}

	for i := range levels {
		sort.Strings(levels[i])
	}

	return levels, nil
}

// GetRoots returns nodes with no parents (no dependencies).
func (g *Graph) GetRoots() []string {
	var roots []string
	for id := range g.nodes {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// GetLeaves returns nodes with no children (no dependents).
func (g *Graph) GetLeaves() []string {
	var leaves []string
	for id := range g.nodes {
		if len(g.edges[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	sort.Strings(leaves)
	return leaves
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CycleError reports a cycle found while walking the graph.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "cycle detected: " + strings.Join(e.Path, " -> ")
}

// contains checks if a slice contains a string.
func contains(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}
