package editor

import (
	"fmt"

	"github.com/leapstack-labs/flowtask/internal/dag"
	"github.com/leapstack-labs/flowtask/internal/flow"
)

// Issue is one problem found before submitting a run.
type Issue struct {
	NodeID  string `json:"node_id,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.NodeID == "" {
		return i.Message
	}
	return i.NodeID + ": " + i.Message
}

// ValidationError carries the issues that block a run.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "graph is not runnable: " + e.Issues[0].String()
	}
	return fmt.Sprintf("graph is not runnable: %s (and %d more)", e.Issues[0].String(), len(e.Issues)-1)
}

// ValidateForRun checks the current graph for problems the backend would reject.
func (e *Editor) ValidateForRun() []Issue {
	return Validate(e.store.Graph())
}

// Validate reports structural problems in g. It is advisory: the backend
// remains the authority on what can run.
func Validate(g flow.Graph) []Issue {
	var issues []Issue

	if len(g.Nodes) == 0 {
		return []Issue{{Message: "graph has no nodes"}}
	}

	d, _ := dag.FromFlow(g)
	if _, err := d.TopologicalSort(); err != nil {
		issues = append(issues, Issue{Message: err.Error()})
	}

	hasOutput := false
	for _, n := range g.Nodes {
		if !n.Type.Valid() {
			issues = append(issues, Issue{NodeID: n.ID, Message: fmt.Sprintf("unknown node type %q", n.Type)})
			continue
		}
		if _, err := flow.DecodeConfig(n); err != nil {
			issues = append(issues, Issue{NodeID: n.ID, Message: "invalid configuration: " + err.Error()})
			continue
		}

		switch n.Type {
		case flow.NodeNote, flow.NodeNewRows, flow.NodeSQL:
		case flow.NodeInput:
			if cfg, _ := flow.DecodeInput(n.Data); !cfg.Configured() {
				issues = append(issues, Issue{NodeID: n.ID, Message: "no source selected"})
			}
		default:
			if n.Type.MultiInput() {
				_, left := g.InputOn(n.ID, flow.HandleLeft)
				_, right := g.InputOn(n.ID, flow.HandleRight)
				if !left || !right {
					issues = append(issues, Issue{NodeID: n.ID, Message: WarningBothInputs})
				}
			} else if _, ok := g.Upstream(n.ID); !ok {
				issues = append(issues, Issue{NodeID: n.ID, Message: "no input connected"})
			}
		}

		if n.Type == flow.NodeOutput {
			hasOutput = true
		}
	}

	if !hasOutput {
		issues = append(issues, Issue{Message: "graph has no output node"})
	}
	return issues
}
