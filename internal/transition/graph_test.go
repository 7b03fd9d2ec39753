package transition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTestGraph saves three transitions A->B, B->C, A->C (in that
// insertion order) and returns the resulting graph, mirroring spec.md
// §8's path-finding scenario.
func buildTestGraph(t *testing.T) *Graph {
	t.Helper()
	dir := t.TempDir()
	store := NewFileStore(dir)

	ab := mustTransition(t, "A", "B", []Step{{Kind: AddTable, Table: "t1"}})
	bc := mustTransition(t, "B", "C", []Step{{Kind: AddTable, Table: "t2"}})
	ac := mustTransition(t, "A", "C", []Step{{Kind: AddTable, Table: "t1"}, {Kind: AddTable, Table: "t2"}})

	require.NoError(t, store.Save(ab))
	require.NoError(t, store.Save(bc))
	require.NoError(t, store.Save(ac))

	g, err := BuildGraph(store)
	require.NoError(t, err)
	return g
}

func TestFindPathPrefersShorterEdgeCount(t *testing.T) {
	g := buildTestGraph(t)
	path, ok := g.FindPath("A", "C")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "C"}, path.NodeSequence)
}

func TestFindAllPathsReturnsBothRoutes(t *testing.T) {
	g := buildTestGraph(t)
	paths := g.FindAllPaths("A", "C")
	require.Len(t, paths, 2)

	var sequences [][]string
	for _, p := range paths {
		sequences = append(sequences, p.NodeSequence)
	}
	assert.Contains(t, sequences, []string{"A", "C"})
	assert.Contains(t, sequences, []string{"A", "B", "C"})
}

func TestFindPathNoRouteReturnsFalse(t *testing.T) {
	g := buildTestGraph(t)
	_, ok := g.FindPath("C", "A")
	assert.False(t, ok)
}

func TestFindPathSameNodeIsTrivial(t *testing.T) {
	g := buildTestGraph(t)
	path, ok := g.FindPath("A", "A")
	require.True(t, ok)
	assert.Equal(t, []string{"A"}, path.NodeSequence)
}

func TestFindReversePathMatchesForwardOrder(t *testing.T) {
	g := buildTestGraph(t)
	path, ok := g.FindReversePath("A", "C")
	require.True(t, ok)
	assert.Equal(t, "A", path.NodeSequence[0])
	assert.Equal(t, "C", path.NodeSequence[len(path.NodeSequence)-1])
}

func TestReachableAndPredecessors(t *testing.T) {
	g := buildTestGraph(t)

	reach := g.Reachable("A")
	assert.ElementsMatch(t, []string{"A", "B", "C"}, reach)

	preds := g.Predecessors("C")
	assert.ElementsMatch(t, []string{"C", "B", "A"}, preds)
}
