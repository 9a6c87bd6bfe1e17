// Package fingerprint computes schema fingerprints: cache keys that change
// exactly when the output columns of a node may change.
//
// A node's fingerprint covers the shape-relevant configuration of every node
// in its ancestor closure plus the edges among them. Edits that only affect
// row content (filters, null dropping, de-duplication, labels) leave the key
// untouched, so they never cost a schema round trip.
package fingerprint

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"lukechampine.com/blake3"

	"github.com/leapstack-labs/flowtask/internal/dag"
	"github.com/leapstack-labs/flowtask/internal/flow"
)

// ErrUnknownNode is returned when the target node is not in the graph.
var ErrUnknownNode = errors.New("fingerprint: unknown node")

// Fingerprint is the schema cache key of one node.
type Fingerprint struct {
	// Target is the node the fingerprint was computed for.
	Target string
	// Key is the canonical serialization of the ancestor closure.
	Key string
	// Ancestors are the ids in the closure, sorted.
	Ancestors []string
}

// Digest returns a fixed-size hex digest of the key.
func (f Fingerprint) Digest() string {
	sum := blake3.Sum256([]byte(f.Key))
	return hex.EncodeToString(sum[:])
}

type nodePrint struct {
	ID          string        `json:"id"`
	Type        flow.NodeType `json:"type"`
	Fingerprint any           `json:"fingerprint"`
}

type document struct {
	Nodes []nodePrint `json:"nodes"`
	Edges []string    `json:"edges"`
}

// Compute returns the fingerprint of target within g.
//
// Graphs that differ only outside the ancestor closure of target, or only in
// shape-irrelevant fields inside it, produce identical keys. A cycle inside
// the closure is returned as a *dag.CycleError.
func Compute(target string, g flow.Graph) (Fingerprint, error) {
	byID := make(map[string]flow.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}
	if _, ok := byID[target]; !ok {
		return Fingerprint{}, fmt.Errorf("%w: %s", ErrUnknownNode, target)
	}

	ancestors, err := dag.AncestorsOf(target, g.Edges)
	if err != nil {
		return Fingerprint{}, err
	}

	ids := ancestors.Sorted()
	doc := document{
		Nodes: make([]nodePrint, 0, len(ids)),
		Edges: []string{},
	}
	for _, id := range ids {
		n, ok := byID[id]
		if !ok {
			// Edge to a node that no longer exists; the store prevents this
			continue
		}
		proj, err := Project(n)
		if err != nil {
			return Fingerprint{}, fmt.Errorf("node %s: %w", id, err)
		}
		doc.Nodes = append(doc.Nodes, nodePrint{ID: n.ID, Type: n.Type, Fingerprint: proj})
	}

	for _, e := range dag.EdgesWithin(ancestors, g.Edges) {
		doc.Edges = append(doc.Edges, edgeKey(e))
	}
	sort.Strings(doc.Edges)

	key, err := json.Marshal(doc)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("failed to encode fingerprint: %w", err)
	}

	return Fingerprint{Target: target, Key: string(key), Ancestors: ids}, nil
}

// edgeKey renders an edge as "source->target". The target handle is appended
// when set because swapping the inputs of a join changes its output.
func edgeKey(e flow.Edge) string {
	k := e.Source + "->" + e.Target
	if e.TargetHandle != "" {
		k += "#" + flow.CanonicalHandle(e.TargetHandle)
	}
	return k
}
