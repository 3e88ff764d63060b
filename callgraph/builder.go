package callgraph

import (
	"strings"

	"github.com/codepathfinder/taintgraph/ast"
	"github.com/codepathfinder/taintgraph/cfg"
	"github.com/codepathfinder/taintgraph/ssaform"
)

// ScanDefinitions performs the definition scan (§4.3 pass 1): it registers
// every class and its methods into ClassHierarchy, and every top-level
// function into Functions, without yet discovering any call edges.
func (cg *CallGraph) ScanDefinitions(root ast.Node) {
	cg.scanDefs(root, "")
}

// scanDefs recurses the AST tracking classPrefix, the name of the
// innermost enclosing class ("" at module scope or inside a free
// function). A function/class body is wrapped in an intermediate "block"
// node by the grammar, which carries no Kind of its own (KindUnknown);
// classPrefix simply passes through it unconsumed via the default case
// below, so registration only happens exactly at a ClassDef or
// FunctionDef regardless of how many wrapper nodes sit in between.
func (cg *CallGraph) scanDefs(n ast.Node, classPrefix string) {
	switch n.Kind() {
	case ast.KindClassDef:
		className := n.Name()
		for _, member := range n.Children() {
			cg.scanDefs(member, className)
		}
		return
	case ast.KindFunctionDef:
		if classPrefix != "" {
			cg.RegisterClass(classPrefix, n.Name())
		} else {
			cg.RegisterFunction(n.Name())
		}
		for _, member := range n.Children() {
			cg.scanDefs(member, "")
		}
		return
	}
	for _, c := range n.Children() {
		cg.scanDefs(c, classPrefix)
	}
}

// DiscoverCalls performs the call discovery scan (§4.3 pass 2) over one
// scope's already-built CFG: every call statement becomes a Direct edge
// (no dot in the qualified target, e.g. `f(...)`) or a Speculative edge
// via method dispatch (one or more dots, e.g. `obj.m(...)`).
//
// Distinguishing a module-qualified function call (`pkg.f(...)`) from a
// true method call is, in general, a type-inference problem the core
// explicitly does not attempt (§1 Non-goals: sound whole-program
// analysis). The last dotted component is treated as the candidate
// method name in both cases, which is the same approximation the
// speculative-dispatch registry itself relies on.
func (cg *CallGraph) DiscoverCalls(g *cfg.ControlFlowGraph, caller ScopeID) {
	for _, id := range g.AllBlockIDs() {
		for _, stmt := range g.Blocks[id].Statements {
			du := ssaform.Extract(stmt)
			if du.CallTarget == "" {
				continue
			}
			if idx := strings.LastIndex(du.CallTarget, "."); idx >= 0 {
				cg.AddMethodCall(caller, du.CallTarget[idx+1:])
			} else {
				cg.AddDirectCall(caller, du.CallTarget)
			}
		}
	}
}
