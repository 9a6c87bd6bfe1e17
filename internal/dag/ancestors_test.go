package dag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/flowtask/internal/flow"
)

func edges(pairs ...string) []flow.Edge {
	out := make([]flow.Edge, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, flow.Edge{
			ID:     pairs[i] + "-" + pairs[i+1],
			Source: pairs[i],
			Target: pairs[i+1],
		})
	}
	return out
}

func TestAncestorsOf_ContainsTarget(t *testing.T) {
	set, err := AncestorsOf("x", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, set.Sorted())
}

func TestAncestorsOf_Diamond(t *testing.T) {
	set, err := AncestorsOf("D", edges("A", "B", "A", "C", "B", "D", "C", "D"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D"}, set.Sorted())
}

func TestAncestorsOf_DisjointBranches(t *testing.T) {
	set, err := AncestorsOf("F", edges("E", "F", "G", "H"))
	require.NoError(t, err)
	assert.Equal(t, []string{"E", "F"}, set.Sorted())
	assert.False(t, set.Has("G"))
	assert.False(t, set.Has("H"))
}

func TestAncestorsOf_ExcludesDownstream(t *testing.T) {
	set, err := AncestorsOf("b", edges("a", "b", "b", "c", "c", "d"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, set.Sorted())
}

func TestAncestorsOf_CycleReportsErrorWithFullClosure(t *testing.T) {
	// a -> b -> c -> a, and c feeds the target
	set, err := AncestorsOf("t", edges("a", "b", "b", "c", "c", "a", "c", "t"))
	require.Error(t, err)

	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.NotEmpty(t, cycleErr.Path)
	assert.Equal(t, []string{"a", "b", "c", "t"}, set.Sorted())
}

func TestAncestorsOf_CycleOutsideClosureIgnored(t *testing.T) {
	set, err := AncestorsOf("b", edges("a", "b", "x", "y", "y", "x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, set.Sorted())
}

func TestAncestorsOf_SelfLoop(t *testing.T) {
	_, err := AncestorsOf("a", edges("a", "a"))
	var cycleErr *CycleError
	assert.True(t, errors.As(err, &cycleErr))
}

func TestEdgesWithin(t *testing.T) {
	all := edges("a", "b", "b", "c", "x", "b")
	set := Set{"a": {}, "b": {}}
	within := EdgesWithin(set, all)
	require.Len(t, within, 1)
	assert.Equal(t, "a-b", within[0].ID)
}
