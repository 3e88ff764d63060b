package ssaform

import (
	"github.com/codepathfinder/taintgraph/ast"
	"github.com/codepathfinder/taintgraph/cfg"
)

// DefUse is the def/use summary of one statement, extracted from its AST
// node. A statement uses zero or more names and defines zero or more —
// more than one when its target destructures, e.g. "a, b = ...".
type DefUse struct {
	Defs []string
	Uses []string
	// CallTarget is the qualified callee name when Stmt.Node is (or embeds)
	// a Call, used by the taint engine to match sources/sinks/sanitizers.
	CallTarget string
	Args       []ast.Node
}

// Extract computes the DefUse summary for a single CFG statement.
func Extract(s cfg.Stmt) DefUse {
	n := s.Node
	switch n.Kind() {
	case ast.KindAssignment:
		return extractAssignment(n)
	case ast.KindAugAssignment:
		du := extractAssignment(n)
		du.Uses = append(du.Uses, du.Defs...)
		return du
	case ast.KindExprStmt:
		if call := findCall(n); call != nil {
			return extractCall(call)
		}
		return DefUse{Uses: collectIdentifiers(n)}
	case ast.KindReturn, ast.KindRaise:
		return DefUse{Uses: collectIdentifiers(n)}
	case ast.KindCall:
		return extractCall(n)
	case ast.KindFor:
		target := n.Field("left")
		du := DefUse{Uses: collectIdentifiers(n)}
		if target != nil {
			du.Defs = collectAssignTargets(target)
		}
		return du
	default:
		return DefUse{Uses: collectIdentifiers(n)}
	}
}

func extractAssignment(n ast.Node) DefUse {
	du := DefUse{}
	if left := n.Field("left"); left != nil {
		du.Defs = collectAssignTargets(left)
	}
	if right := n.Field("right"); right != nil {
		if call := findCall(right); call != nil {
			cd := extractCall(call)
			du.Uses = cd.Uses
			du.CallTarget = cd.CallTarget
			du.Args = cd.Args
		} else {
			du.Uses = collectIdentifiers(right)
		}
	}
	return du
}

// collectAssignTargets recurses into an assignment target, reporting one
// name per element: "x" yields ["x"], "a, b" or "(a, b)" yields ["a", "b"],
// and nested destructuring recurses the same way.
func collectAssignTargets(n ast.Node) []string {
	if n == nil {
		return nil
	}
	if name := n.Name(); name != "" {
		return []string{name}
	}
	var out []string
	for _, c := range n.Children() {
		out = append(out, collectAssignTargets(c)...)
	}
	return out
}

func findCall(n ast.Node) ast.Node {
	if n.Kind() == ast.KindCall {
		return n
	}
	for _, c := range n.Children() {
		if c.Kind() == ast.KindCall {
			return c
		}
	}
	return nil
}

func extractCall(call ast.Node) DefUse {
	du := DefUse{}
	if fn := call.Field("function"); fn != nil {
		du.CallTarget = qualifiedName(fn)
	}
	if args := call.Field("arguments"); args != nil {
		du.Args = args.Children()
		du.Uses = collectIdentifiers(args)
	}
	return du
}

// qualifiedName renders an identifier or attribute chain ("obj.method") as a
// dotted string for source/sink/sanitizer matching.
func qualifiedName(n ast.Node) string {
	switch n.Kind() {
	case ast.KindIdentifier:
		return n.Name()
	case ast.KindAttribute:
		obj := n.Field("object")
		attr := n.Name()
		if obj == nil {
			return attr
		}
		return qualifiedName(obj) + "." + attr
	default:
		return n.Text()
	}
}

// collectIdentifiers walks n and returns every identifier name referenced,
// used as the conservative "uses" set for taint propagation.
func collectIdentifiers(n ast.Node) []string {
	var out []string
	ast.Walk(n, func(child ast.Node) bool {
		if child.Kind() == ast.KindIdentifier {
			out = append(out, child.Name())
		}
		return true
	})
	return out
}
