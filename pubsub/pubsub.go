// Package pubsub infers synthetic call-graph edges from publish/subscribe
// and message-queue patterns that are not expressed as syntactic calls
// between scopes: a consumer registers a callback against a topic or
// channel, and some other scope later publishes to that same topic or
// channel. Matching is by literal string (topics) or by the identifier
// name of the signal object within the analyzed file; cross-file
// resolution is a known incompleteness (§4.4, §9).
package pubsub

import (
	"strings"

	"github.com/codepathfinder/taintgraph/ast"
	"github.com/codepathfinder/taintgraph/callgraph"
)

// Build runs the two AST passes — subscriber collection, then publisher
// linkage — adding Synthetic edges to cg. It is independent of any CFG.
func Build(root ast.Node, cg *callgraph.CallGraph) {
	topics := make(map[string]map[string]bool)
	signals := make(map[string]map[string]bool)

	collectSubscribers(root, topics, signals)
	linkPublishers(root, "", "", topics, signals, cg)
}

func collectSubscribers(n ast.Node, topics, signals map[string]map[string]bool) {
	if n.Kind() == ast.KindCall {
		if fn := n.Field("function"); fn != nil {
			name := qualifiedName(fn)
			switch {
			case strings.HasSuffix(name, "basic_consume"):
				queueNode := keywordArg(n, "queue")
				handlerNode := keywordArg(n, "on_message_callback")
				if isStringLiteral(queueNode) && isIdentifier(handlerNode) {
					addHandler(topics, stringLiteralValue(queueNode), handlerNode.Name())
				}
			case strings.HasSuffix(name, ".connect"):
				if obj := fn.Field("object"); obj != nil {
					if args := n.Field("arguments"); args != nil {
						kids := args.Children()
						if len(kids) > 0 && isIdentifier(kids[0]) {
							addHandler(signals, obj.Name(), kids[0].Name())
						}
					}
				}
			}
		}
	}
	for _, c := range n.Children() {
		collectSubscribers(c, topics, signals)
	}
}

// linkPublishers walks the AST tracking the enclosing scope (class-prefixed
// method name, bare function name, or "" at module level) so a publish
// call site can be attributed to the scope that issued it.
func linkPublishers(n ast.Node, scope, classPrefix string, topics, signals map[string]map[string]bool, cg *callgraph.CallGraph) {
	switch n.Kind() {
	case ast.KindClassDef:
		for _, c := range n.Children() {
			linkPublishers(c, scope, n.Name(), topics, signals, cg)
		}
		return
	case ast.KindFunctionDef:
		newScope := n.Name()
		if classPrefix != "" {
			newScope = classPrefix + "." + n.Name()
		}
		for _, c := range n.Children() {
			linkPublishers(c, newScope, "", topics, signals, cg)
		}
		return
	case ast.KindCall:
		if fn := n.Field("function"); fn != nil {
			name := qualifiedName(fn)
			switch {
			case strings.HasSuffix(name, "basic_publish"):
				if rk := keywordArg(n, "routing_key"); isStringLiteral(rk) {
					for handler := range topics[stringLiteralValue(rk)] {
						cg.AddSyntheticEdge(callgraph.ScopeID(scope), callgraph.ScopeID(handler), callgraph.MechanismMQ)
					}
				}
			case strings.HasSuffix(name, ".send"):
				if obj := fn.Field("object"); obj != nil {
					for handler := range signals[obj.Name()] {
						cg.AddSyntheticEdge(callgraph.ScopeID(scope), callgraph.ScopeID(handler), callgraph.MechanismSignal)
					}
				}
			}
		}
	}
	for _, c := range n.Children() {
		linkPublishers(c, scope, classPrefix, topics, signals, cg)
	}
}

func addHandler(m map[string]map[string]bool, key, handler string) {
	if key == "" || handler == "" {
		return
	}
	if m[key] == nil {
		m[key] = make(map[string]bool)
	}
	m[key][handler] = true
}

func keywordArg(call ast.Node, key string) ast.Node {
	args := call.Field("arguments")
	if args == nil {
		return nil
	}
	for _, a := range args.Children() {
		if a.Kind() == ast.KindKeywordArg && a.Name() == key {
			return a.Field("value")
		}
	}
	return nil
}

func isStringLiteral(n ast.Node) bool { return n != nil && n.Kind() == ast.KindStringLiteral }
func isIdentifier(n ast.Node) bool    { return n != nil && n.Kind() == ast.KindIdentifier }

// stringLiteralValue strips the surrounding quote characters tree-sitter
// includes verbatim in a string node's text.
func stringLiteralValue(n ast.Node) string {
	s := n.Text()
	if len(s) >= 2 {
		if (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// qualifiedName renders an identifier or attribute chain ("obj.method") as
// a dotted string, mirroring ssaform's call-target extraction.
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
