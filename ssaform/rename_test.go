package ssaform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepathfinder/taintgraph/ast"
	"github.com/codepathfinder/taintgraph/cfg"
)

func transformSource(t *testing.T, src string) (*cfg.ControlFlowGraph, *Result) {
	t.Helper()
	root, err := ast.ParsePython(context.Background(), []byte(src))
	require.NoError(t, err)
	g, err := cfg.Build(context.Background(), "m", root)
	require.NoError(t, err)
	return g, Transform(g)
}

func TestLinearChainGetsDistinctVersions(t *testing.T) {
	g, r := transformSource(t, "x = 1\nx = x + 1\ny = x\n")

	var versions []SSAName
	for _, id := range g.AllBlockIDs() {
		for _, stmt := range g.Blocks[id].Statements {
			if v, ok := r.DefVersion[stmt.Node]; ok {
				versions = append(versions, v)
			}
		}
	}
	assert.Contains(t, versions, SSAName("x.1"))
	assert.Contains(t, versions, SSAName("x.2"))
	assert.Contains(t, versions, SSAName("y.1"))
}

func TestDiamondBranchPlacesPhiAtJoin(t *testing.T) {
	g, r := transformSource(t, "if cond:\n    x = 1\nelse:\n    x = 2\ny = x\n")

	var totalPhis int
	for _, id := range g.AllBlockIDs() {
		totalPhis += len(g.Blocks[id].PhiNodes)
	}
	require.Greater(t, totalPhis, 0, "a phi node should be placed at the if/else join for x")

	var foundUseOfPhi bool
	for _, id := range g.AllBlockIDs() {
		for _, stmt := range g.Blocks[id].Statements {
			for _, use := range r.UseVersions[stmt.Node] {
				for _, id2 := range g.AllBlockIDs() {
					for _, phi := range g.Blocks[id2].PhiNodes {
						if SSAName(phi.Result) == use {
							foundUseOfPhi = true
						}
					}
				}
			}
		}
	}
	assert.True(t, foundUseOfPhi, "y's use of x should resolve to the phi's result version")
}

func TestPhiOperandsCoverBothPredecessors(t *testing.T) {
	g, _ := transformSource(t, "if cond:\n    x = 1\nelse:\n    x = 2\ny = x\n")

	for _, id := range g.AllBlockIDs() {
		for _, phi := range g.Blocks[id].PhiNodes {
			assert.Len(t, phi.Operands, len(g.PredecessorIDs(id)))
			for _, op := range phi.Operands {
				assert.NotEmpty(t, op)
			}
		}
	}
}

func TestDominatorTreeSubtreeIncludesSelf(t *testing.T) {
	g, r := transformSource(t, "if cond:\n    x = 1\ny = 2\n")
	subtree := r.Dom.Subtree(g.EntryBlock)
	assert.Contains(t, subtree, g.EntryBlock)
	assert.Equal(t, len(g.Blocks), len(subtree), "entry dominates every block in this single-scope CFG")
}
