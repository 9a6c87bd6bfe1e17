package flow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a graph file encoding.
type Format string

// Supported graph file formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported graph format %q (want json or yaml)", s)
	}
}

// FormatForPath picks the format from a file extension, defaulting to JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// EncodeGraph writes g in the given format.
func EncodeGraph(w io.Writer, g Graph, f Format) error {
	g = g.normalized()
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(g); err != nil {
			return fmt.Errorf("encoding graph as yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(g); err != nil {
			return fmt.Errorf("encoding graph as json: %w", err)
		}
		return nil
	}
}

// DecodeGraph parses a graph and checks its structure. YAML scalars are
// normalized to the types JSON decoding would produce.
func DecodeGraph(data []byte, f Format) (Graph, error) {
	var g Graph
	switch f {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &g); err != nil {
			return Graph{}, fmt.Errorf("decoding yaml graph: %w", err)
		}
		raw, err := json.Marshal(g)
		if err != nil {
			return Graph{}, fmt.Errorf("normalizing yaml graph: %w", err)
		}
		g = Graph{}
		if err := json.Unmarshal(raw, &g); err != nil {
			return Graph{}, fmt.Errorf("normalizing yaml graph: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&g); err != nil {
			return Graph{}, fmt.Errorf("decoding json graph: %w", err)
		}
	}

	g = g.normalized()
	if err := g.Check(); err != nil {
		return Graph{}, err
	}
	return g, nil
}

// ReadGraphFile reads a graph file, choosing the format by extension.
func ReadGraphFile(path string) (Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Graph{}, fmt.Errorf("reading graph file: %w", err)
	}
	return DecodeGraph(data, FormatForPath(path))
}

func (g Graph) normalized() Graph {
	if g.Nodes == nil {
		g.Nodes = []Node{}
	}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	for i := range g.Nodes {
		if g.Nodes[i].Data == nil {
			g.Nodes[i].Data = Data{}
		}
	}
	return g
}

// Check reports structural errors: empty or duplicate ids, unknown node
// types, and edges whose endpoints are missing or are notes.
func (g Graph) Check() error {
	var errs []error
	types := make(map[string]NodeType, len(g.Nodes))
	for _, n := range g.Nodes {
		switch {
		case n.ID == "":
			errs = append(errs, errors.New("node with empty id"))
			continue
		case !n.Type.Valid():
			errs = append(errs, fmt.Errorf("node %s: unknown type %q", n.ID, n.Type))
		}
		if _, dup := types[n.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate node id %s", n.ID))
		}
		types[n.ID] = n.Type
	}

	edgeIDs := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		if e.ID != "" {
			if edgeIDs[e.ID] {
				errs = append(errs, fmt.Errorf("duplicate edge id %s", e.ID))
			}
			edgeIDs[e.ID] = true
		}
		for _, end := range []string{e.Source, e.Target} {
			t, ok := types[end]
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("edge %s: unknown node %q", e.ID, end))
			case !t.DataFlow():
				errs = append(errs, fmt.Errorf("edge %s: note %s cannot be connected", e.ID, end))
			}
		}
	}
	return errors.Join(errs...)
}
