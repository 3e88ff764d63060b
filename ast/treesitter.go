package ast

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// treeSitterNode wraps a tree-sitter node and the source bytes it was parsed
// from, presenting the small Node surface the rest of the analyzer expects.
// The source is held by pointer so the wrapper stays comparable and can key
// the maps later passes build per AST node (see ssaform.Result).
type treeSitterNode struct {
	n      *sitter.Node
	source *[]byte
}

var kindByGrammarType = map[string]Kind{
	"module":                 KindModule,
	"function_definition":    KindFunctionDef,
	"class_definition":       KindClassDef,
	"assignment":             KindAssignment,
	"augmented_assignment":   KindAugAssignment,
	"expression_statement":   KindExprStmt,
	"call":                   KindCall,
	"return_statement":       KindReturn,
	"if_statement":           KindIf,
	"while_statement":        KindWhile,
	"for_statement":          KindFor,
	"with_statement":         KindWith,
	"await":                  KindAwait,
	"try_statement":          KindTry,
	"raise_statement":        KindRaise,
	"import_statement":       KindImport,
	"import_from_statement":  KindImport,
	"break_statement":        KindBreak,
	"continue_statement":     KindContinue,
	"identifier":             KindIdentifier,
	"attribute":              KindAttribute,
	"keyword_argument":       KindKeywordArg,
	"string":                 KindStringLiteral,
	"tuple":                  KindTuple,
	"list":                   KindList,
}

func (w treeSitterNode) Kind() Kind {
	t := w.n.Type()
	if t == "for_statement" && w.n.ChildByFieldName("async") != nil {
		return KindAsyncFor
	}
	if t == "with_statement" && w.n.ChildByFieldName("async") != nil {
		return KindAsyncWith
	}
	if k, ok := kindByGrammarType[t]; ok {
		return k
	}
	return KindUnknown
}

func (w treeSitterNode) Span() Span {
	start := w.n.StartPoint()
	end := w.n.EndPoint()
	return Span{
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column) + 1,
	}
}

func (w treeSitterNode) Text() string {
	return w.n.Content(*w.source)
}

func (w treeSitterNode) Name() string {
	switch w.n.Type() {
	case "function_definition", "class_definition":
		if nameNode := w.n.ChildByFieldName("name"); nameNode != nil {
			return nameNode.Content(*w.source)
		}
	case "identifier":
		return w.n.Content(*w.source)
	case "attribute":
		if attrNode := w.n.ChildByFieldName("attribute"); attrNode != nil {
			return attrNode.Content(*w.source)
		}
	case "keyword_argument":
		if nameNode := w.n.ChildByFieldName("name"); nameNode != nil {
			return nameNode.Content(*w.source)
		}
	}
	return ""
}

func (w treeSitterNode) Children() []Node {
	count := int(w.n.NamedChildCount())
	out := make([]Node, 0, count)
	for i := 0; i < count; i++ {
		child := w.n.NamedChild(i)
		if child == nil {
			continue
		}
		if child.Type() == "expression_statement" && child.NamedChildCount() == 1 {
			// The grammar wraps an assignment statement in an
			// expression_statement; surface the assignment itself.
			if inner := child.NamedChild(0); inner != nil &&
				(inner.Type() == "assignment" || inner.Type() == "augmented_assignment") {
				child = inner
			}
		}
		out = append(out, treeSitterNode{n: child, source: w.source})
	}
	return out
}

func (w treeSitterNode) Field(name string) Node {
	f := w.n.ChildByFieldName(name)
	if f == nil {
		return nil
	}
	return treeSitterNode{n: f, source: w.source}
}

// ParsePython parses Python source into the normalized Node tree. It is the
// reference AST adapter; any supplier satisfying the Node interface may be
// substituted without touching downstream passes.
func ParsePython(ctx context.Context, source []byte) (Node, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("tree-sitter produced a nil root node")
	}
	if root.HasError() {
		return treeSitterNode{n: root, source: &source}, errMalformed(root)
	}
	return treeSitterNode{n: root, source: &source}, nil
}

func errMalformed(root *sitter.Node) error {
	return fmt.Errorf("malformed ast: parse tree contains %d error node(s)", countErrors(root))
}

func countErrors(n *sitter.Node) int {
	count := 0
	if n.IsError() || n.IsMissing() {
		count++
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		count += countErrors(n.Child(i))
	}
	return count
}
