package cfg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepathfinder/taintgraph/ast"
)

func TestMapFindingsMatchesLineWithinBlockSpan(t *testing.T) {
	root, err := ast.ParsePython(context.Background(), []byte("a = 1\nb = eval(a)\n"))
	require.NoError(t, err)
	g, err := Build(context.Background(), "m", root)
	require.NoError(t, err)

	finding := Finding{CheckID: "py.eval", Start: Position{Line: 2}, End: Position{Line: 2}}
	unmapped := MapFindings(g, []Finding{finding})

	assert.Empty(t, unmapped)

	var mapped bool
	for _, id := range g.AllBlockIDs() {
		for _, f := range g.Blocks[id].Findings {
			if f.CheckID == "py.eval" {
				mapped = true
			}
		}
	}
	assert.True(t, mapped)
}

func TestMapFindingsReturnsUnmappedWhenOutsideEverySpan(t *testing.T) {
	root, err := ast.ParsePython(context.Background(), []byte("a = 1\n"))
	require.NoError(t, err)
	g, err := Build(context.Background(), "m", root)
	require.NoError(t, err)

	finding := Finding{CheckID: "py.eval", Start: Position{Line: 500}, End: Position{Line: 500}}
	unmapped := MapFindings(g, []Finding{finding})

	require.Len(t, unmapped, 1)
	assert.Equal(t, "py.eval", unmapped[0].CheckID)
}
