// Package main provides tests for the flowtask CLI.
package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/flowtask/internal/cli"
	"github.com/leapstack-labs/flowtask/internal/cli/config"
	"github.com/leapstack-labs/flowtask/internal/flow"
	"github.com/leapstack-labs/flowtask/internal/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	output, err := execute(t, "version")
	if err != nil {
		t.Errorf("version command error = %v", err)
	}
	if !strings.Contains(output, "flowtask") {
		t.Errorf("version output should contain 'flowtask', got: %s", output)
	}
}

func TestHelpCommand(t *testing.T) {
	output, err := execute(t, "--help")
	if err != nil {
		t.Errorf("help command error = %v", err)
	}

	expectedCommands := []string{"graph", "fingerprint", "schema", "preview", "run", "jobs", "drafts", "edit", "Graph Commands:", "Editing Commands:"}
	for _, expected := range expectedCommands {
		if !strings.Contains(output, expected) {
			t.Errorf("help output should contain '%s', got: %s", expected, output)
		}
	}
}

func TestGraphShowCommandJSON(t *testing.T) {
	b := testutil.NewFakeBackend(t)
	b.SetGraph("42", flow.Graph{
		Nodes: []flow.Node{
			{ID: "in", Type: flow.NodeInput, Data: flow.Data{"source_id": "pg", "table_name": "orders"}},
			{ID: "out", Type: flow.NodeOutput},
		},
		Edges: []flow.Edge{{ID: "e1", Source: "in", Target: "out"}},
	})

	output, err := execute(t,
		"graph", "show", "42",
		"--api", b.URL,
		"--output", "json",
		"--state", filepath.Join(t.TempDir(), "state.db"),
	)
	if err != nil {
		t.Fatalf("graph show error = %v", err)
	}

	var got struct {
		FlowTaskID string `json:"flow_task_id"`
		Nodes      []any  `json:"nodes"`
	}
	if err := json.Unmarshal([]byte(output), &got); err != nil {
		t.Fatalf("graph show output is not JSON: %v\n%s", err, output)
	}
	if got.FlowTaskID != "42" || len(got.Nodes) != 2 {
		t.Errorf("unexpected graph output: %s", output)
	}
}

func TestInvalidConfig(t *testing.T) {
	_, err := execute(t, "jobs", "--output", "yaml")
	if err == nil {
		t.Error("expected an error for an unknown output mode")
	}
}
