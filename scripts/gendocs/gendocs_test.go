package main

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	intconfig "github.com/leapstack-labs/flowtask/internal/config"
)

func TestGenerateCLIDocs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, generateCLIDocs(dir))

	data, err := os.ReadFile(filepath.Join(dir, "index.md"))
	require.NoError(t, err)
	index := string(data)
	assert.Contains(t, index, "## Graph Commands")
	assert.Contains(t, index, "## Job Commands")
	assert.Contains(t, index, "## Editing Commands")
	assert.Contains(t, index, "## Other Commands")
	assert.Contains(t, index, "[preview](preview.md)")
	assert.Contains(t, index, "`flowtask preview <flow-task> <node>`")
	assert.Contains(t, index, "`FLOWTASK_PREVIEW__POLL_INTERVAL` | `preview.poll_interval`")
	assert.Contains(t, index, "`FLOWTASK_UI__PORT`")
	assert.Less(t, strings.Index(index, "## Graph Commands"), strings.Index(index, "## Job Commands"))

	data, err = os.ReadFile(filepath.Join(dir, "graph.md"))
	require.NoError(t, err)
	graph := string(data)
	assert.Contains(t, graph, "# flowtask graph")
	assert.Contains(t, graph, "## flowtask graph export")
	assert.Contains(t, graph, "flowtask graph import <flow-task> <file> [options]")
	assert.Contains(t, graph, "index.md#global-options")
	assert.Equal(t, 0, strings.Count(graph, "```")%2)

	for _, page := range []struct{ file, want string }{
		{"run.md", "## flowtask run cancel"},
		{"drafts.md", "## flowtask drafts restore"},
		{"jobs.md", "`--prune`"},
	} {
		data, err := os.ReadFile(filepath.Join(dir, page.file))
		require.NoError(t, err, page.file)
		assert.Contains(t, string(data), page.want, page.file)
	}

	_, err = os.Stat(filepath.Join(dir, "cancel.md"))
	assert.True(t, os.IsNotExist(err), "subcommands have no page of their own")
}

func TestEnvNameAndDedent(t *testing.T) {
	assert.Equal(t, "FLOWTASK_API_URL", envName("api_url"))
	assert.Equal(t, "FLOWTASK_SCHEMA__IDLE_TTL", envName("schema.idle_ttl"))
	assert.Equal(t, "a\n  b\nc", dedent("\n  a\n    b\n  c\n"))
}

func TestGenerateConfigDocs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, generateConfigDocs(dir))

	data, err := os.ReadFile(filepath.Join(dir, "configuration.md"))
	require.NoError(t, err)
	doc := string(data)
	assert.Contains(t, doc, "`preview.poll_interval`")
	assert.Contains(t, doc, "`ui.port`")
	assert.Contains(t, doc, "poll_interval:")
}

func TestConfigFieldsDocumented(t *testing.T) {
	fields := configFields(reflect.TypeOf(intconfig.Config{}), "")
	require.NotEmpty(t, fields)
	for _, f := range fields {
		assert.NotEmpty(t, f.Description, "%s has no description", f.Key)
	}
}

func TestCleanDescription(t *testing.T) {
	assert.Equal(t, "Show the graph", cleanDescription("show   the\ngraph."))
	assert.Equal(t, "-", cleanDescription(""))
}

func TestMarkdownTableEscapesPipes(t *testing.T) {
	w := NewMarkdownWriter()
	w.Table([]string{"A"}, [][]string{{"a|b"}})
	assert.Contains(t, string(w.Bytes()), `a\|b`)
}
