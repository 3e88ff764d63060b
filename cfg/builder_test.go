package cfg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepathfinder/taintgraph/ast"
)

func buildFromSource(t *testing.T, src string) *ControlFlowGraph {
	t.Helper()
	root, err := ast.ParsePython(context.Background(), []byte(src))
	require.NoError(t, err)
	g, err := Build(context.Background(), "m", root)
	require.NoError(t, err)
	return g
}

func TestBuildLinearChainIsReachable(t *testing.T) {
	g := buildFromSource(t, "a = 1\nb = a\nc = b\n")
	assert.True(t, g.Reachable())
	assert.True(t, g.hasExit)
}

func TestBuildIfElseProducesTrueFalseEdges(t *testing.T) {
	g := buildFromSource(t, "if x:\n    y = 1\nelse:\n    y = 2\n")

	var sawTrue, sawFalse bool
	for _, id := range g.AllBlockIDs() {
		for _, e := range g.Successors(id) {
			if e.Label == EdgeTrue {
				sawTrue = true
			}
			if e.Label == EdgeFalse {
				sawFalse = true
			}
		}
	}
	assert.True(t, sawTrue)
	assert.True(t, sawFalse)
	assert.True(t, g.Reachable())
}

func TestBuildIfWithoutElseFalseGoesToJoin(t *testing.T) {
	g := buildFromSource(t, "if x:\n    y = 1\nz = 2\n")
	assert.True(t, g.Reachable())

	var trueTarget, falseTarget BlockID
	for _, e := range g.Successors(g.EntryBlock) {
		switch e.Label {
		case EdgeTrue:
			trueTarget = e.To
		case EdgeFalse:
			falseTarget = e.To
		}
	}
	assert.Contains(t, g.PredecessorIDs(falseTarget), trueTarget,
		"the False edge should target the join the True branch flows into")
}

func TestBuildWhileHasLoopBackEdge(t *testing.T) {
	g := buildFromSource(t, "while x:\n    y = 1\n")

	var sawLoop bool
	for _, id := range g.AllBlockIDs() {
		for _, e := range g.Successors(id) {
			if e.Label == EdgeLoop {
				sawLoop = true
			}
		}
	}
	assert.True(t, sawLoop)
	assert.True(t, g.Reachable())
}

func TestBuildForHasLoopBackEdge(t *testing.T) {
	g := buildFromSource(t, "for i in items:\n    total = total + i\n")

	var sawLoop bool
	for _, id := range g.AllBlockIDs() {
		for _, e := range g.Successors(id) {
			if e.Label == EdgeLoop {
				sawLoop = true
			}
		}
	}
	assert.True(t, sawLoop)
}

func TestBuildCancellationPropagates(t *testing.T) {
	root, err := ast.ParsePython(context.Background(), []byte("a = 1\nb = 2\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Build(ctx, "m", root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEdgeCountMatchesRecordedEdges(t *testing.T) {
	g := NewControlFlowGraph("m")
	b1 := g.newBlock("m")
	g.AddEdge(g.EntryBlock, b1, EdgeNext)
	g.AddEdge(g.EntryBlock, b1, EdgeNext) // idempotent, should not double count
	assert.Equal(t, 1, g.EdgeCount())
}
