package callgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepathfinder/taintgraph/ast"
	"github.com/codepathfinder/taintgraph/cfg"
)

func parse(t *testing.T, src string) ast.Node {
	t.Helper()
	root, err := ast.ParsePython(context.Background(), []byte(src))
	require.NoError(t, err)
	return root
}

func TestScanDefinitionsRegistersMethodThroughBlockWrapper(t *testing.T) {
	// Regression: tree-sitter wraps a class body in an intermediate "block"
	// node, which must not stop classPrefix from reaching the nested
	// FunctionDef.
	root := parse(t, "class Greeter:\n    def hello(self):\n        return 1\n")
	cg := New()
	cg.ScanDefinitions(root)

	require.Contains(t, cg.ClassHierarchy, "Greeter")
	assert.True(t, cg.ClassHierarchy["Greeter"]["hello"])
	assert.Equal(t, KindMethod, cg.NodeKinds[ScopeID("Greeter.hello")])
}

func TestScanDefinitionsRegistersTopLevelFunction(t *testing.T) {
	root := parse(t, "def standalone():\n    return 1\n")
	cg := New()
	cg.ScanDefinitions(root)

	assert.True(t, cg.Functions["standalone"])
	assert.Equal(t, KindFunction, cg.NodeKinds[ScopeID("standalone")])
}

func TestScanDefinitionsHandlesMultipleMethodsAndClasses(t *testing.T) {
	src := `
class A:
    def m(self):
        return 1

class B:
    def m(self):
        return 2
    def other(self):
        return 3
`
	root := parse(t, src)
	cg := New()
	cg.ScanDefinitions(root)

	assert.True(t, cg.ClassHierarchy["A"]["m"])
	assert.True(t, cg.ClassHierarchy["B"]["m"])
	assert.True(t, cg.ClassHierarchy["B"]["other"])
}

func buildScopeCFG(t *testing.T, src, scope string) *cfg.ControlFlowGraph {
	t.Helper()
	root := parse(t, src)
	g, err := cfg.Build(context.Background(), scope, root)
	require.NoError(t, err)
	return g
}

func TestDiscoverCallsAddsDirectEdge(t *testing.T) {
	g := buildScopeCFG(t, "result = helper(1)\n", "caller")
	cg := New()
	cg.RegisterFunction("helper")
	cg.DiscoverCalls(g, "caller")

	var found bool
	for _, e := range cg.Edges() {
		if e.From == "caller" && e.To == "helper" && e.Type == Direct {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDiscoverCallsResolvesMethodSpeculatively(t *testing.T) {
	g := buildScopeCFG(t, "obj.handle(1)\n", "caller")
	cg := New()
	cg.RegisterClass("A", "handle")
	cg.RegisterClass("B", "handle")
	cg.DiscoverCalls(g, "caller")

	var targets []ScopeID
	for _, e := range cg.Edges() {
		if e.From == "caller" {
			targets = append(targets, e.To)
		}
	}
	assert.Contains(t, targets, ScopeID("A.handle"))
	assert.Contains(t, targets, ScopeID("B.handle"))
}

func TestSpeculativeDispatchCapsAtFiveWithLexicographicTieBreak(t *testing.T) {
	g := buildScopeCFG(t, "obj.run(1)\n", "caller")
	cg := New()
	for _, class := range []string{"G", "F", "E", "D", "C", "B", "A"} {
		cg.RegisterClass(class, "run")
	}
	cg.DiscoverCalls(g, "caller")

	var targets []ScopeID
	for _, e := range cg.Edges() {
		if e.From == "caller" {
			targets = append(targets, e.To)
			assert.True(t, e.Truncated)
		}
	}
	require.Len(t, targets, DefaultMaxSpeculativeCandidates)
	assert.ElementsMatch(t, targets, []ScopeID{"A.run", "B.run", "C.run", "D.run", "E.run"})
}

func TestMethodCallWithNoMatchingClassIsExternal(t *testing.T) {
	g := buildScopeCFG(t, "obj.mystery(1)\n", "caller")
	cg := New()
	cg.DiscoverCalls(g, "caller")

	var found bool
	for _, e := range cg.Edges() {
		if e.To == ScopeID("?.mystery") {
			found = true
			assert.Equal(t, KindExternal, cg.NodeKinds[e.To])
		}
	}
	assert.True(t, found)
}
