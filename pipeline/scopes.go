package pipeline

import "github.com/codepathfinder/taintgraph/ast"

// ScopeNode pairs a scope's qualified name with the AST node the CFG
// builder should root a per-scope graph at: either the module itself
// (Name == the module's scope id) or a function/method definition.
type ScopeNode struct {
	Name string
	Node ast.Node
}

// CollectScopes walks root depth-first and returns one ScopeNode per
// scope the pipeline must build a CFG/SSA/taint pass for: the module
// itself, plus every function and method definition found anywhere in
// it. Naming mirrors the convention callgraph.ScanDefinitions and
// pubsub.Build already use: a free function keeps its bare name, a class
// method is "Class.method", and a function nested inside another
// function or method keeps its own bare name rather than accumulating
// the enclosing scope's name — the same single-level approximation the
// call-graph and synthetic-edge builders make.
func CollectScopes(moduleName string, root ast.Node) []ScopeNode {
	scopes := []ScopeNode{{Name: moduleName, Node: root}}
	var walk func(n ast.Node, classPrefix string)
	walk = func(n ast.Node, classPrefix string) {
		switch n.Kind() {
		case ast.KindClassDef:
			for _, c := range n.Children() {
				walk(c, n.Name())
			}
			return
		case ast.KindFunctionDef:
			name := n.Name()
			if classPrefix != "" {
				name = classPrefix + "." + name
			}
			scopes = append(scopes, ScopeNode{Name: name, Node: n})
			for _, c := range n.Children() {
				walk(c, "")
			}
			return
		}
		for _, c := range n.Children() {
			walk(c, classPrefix)
		}
	}
	walk(root, "")
	return scopes
}
