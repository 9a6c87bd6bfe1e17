package output

import (
	"time"

	"github.com/leapstack-labs/flowtask/internal/flow"
)

// GraphOutput is the JSON shape of `graph show`.
type GraphOutput struct {
	FlowTaskID string      `json:"flow_task_id"`
	Nodes      []NodeInfo  `json:"nodes"`
	Edges      []flow.Edge `json:"edges"`
	Levels     [][]string  `json:"levels,omitempty"`
	Sources    []string    `json:"sources,omitempty"`
	Sinks      []string    `json:"sinks,omitempty"`
	UpdatedAt  string      `json:"updated_at,omitempty"`
	Issues     []IssueInfo `json:"issues,omitempty"`
}

// NodeInfo summarises one node.
type NodeInfo struct {
	ID     string        `json:"id"`
	Type   flow.NodeType `json:"type"`
	Label  string        `json:"label,omitempty"`
	Inputs []string      `json:"inputs,omitempty"`
}

// IssueInfo is one run-blocking problem.
type IssueInfo struct {
	NodeID  string `json:"node_id,omitempty"`
	Message string `json:"message"`
}

// FingerprintOutput is the JSON shape of `fingerprint`.
type FingerprintOutput struct {
	NodeID    string   `json:"node_id"`
	Digest    string   `json:"digest"`
	Key       string   `json:"key"`
	Ancestors []string `json:"ancestors"`
}

// SchemaOutput is the JSON shape of `schema`.
type SchemaOutput struct {
	NodeID  string        `json:"node_id"`
	Columns []flow.Column `json:"columns"`
	Error   string        `json:"error,omitempty"`
}

// JobOutput is the JSON shape of a finished preview or run.
type JobOutput struct {
	Kind      string           `json:"kind"`
	JobID     string           `json:"job_id,omitempty"`
	NodeID    string           `json:"node_id,omitempty"`
	State     string           `json:"state"`
	Error     string           `json:"error,omitempty"`
	Columns   []flow.Column    `json:"columns,omitempty"`
	Rows      []map[string]any `json:"rows,omitempty"`
	RowCount  int              `json:"row_count,omitempty"`
	ElapsedMS float64          `json:"elapsed_ms,omitempty"`
	Result    map[string]any   `json:"result,omitempty"`
}

// JobEventOutput is one row of `jobs`.
type JobEventOutput struct {
	At         time.Time `json:"at"`
	FlowTaskID string    `json:"flow_task_id"`
	Kind       string    `json:"kind"`
	State      string    `json:"state"`
	JobID      string    `json:"job_id,omitempty"`
	NodeID     string    `json:"node_id,omitempty"`
	RowCount   int       `json:"row_count,omitempty"`
	Error      string    `json:"error,omitempty"`
}
