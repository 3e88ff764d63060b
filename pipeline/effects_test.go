package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepathfinder/taintgraph/ast"
	"github.com/codepathfinder/taintgraph/cfg"
	"github.com/codepathfinder/taintgraph/summary"
)

func buildCFG(t *testing.T, src string) *cfg.ControlFlowGraph {
	t.Helper()
	root, err := ast.ParsePython(context.Background(), []byte(src))
	require.NoError(t, err)
	g, err := cfg.Build(context.Background(), "m", root)
	require.NoError(t, err)
	return g
}

func TestClassifySideEffectsTagsProcessCall(t *testing.T) {
	g := buildCFG(t, "os.system(cmd)\n")
	effects := classifySideEffects(g)
	assert.True(t, effects[summary.PrefixIO+"process"])
}

func TestClassifySideEffectsTagsDatabaseCall(t *testing.T) {
	g := buildCFG(t, "cursor.execute(query)\n")
	effects := classifySideEffects(g)
	assert.True(t, effects[summary.PrefixIO+"db"])
}

func TestClassifySideEffectsTagsNetworkCall(t *testing.T) {
	g := buildCFG(t, "requests.get(url)\n")
	effects := classifySideEffects(g)
	assert.True(t, effects[summary.PrefixNet+"http"])
}

func TestClassifySideEffectsEmptyForPureAssignment(t *testing.T) {
	g := buildCFG(t, "x = 1\ny = x + 1\n")
	assert.Empty(t, classifySideEffects(g))
}
