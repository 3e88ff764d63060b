package cfg

import (
	"context"

	"github.com/codepathfinder/taintgraph/ast"
)

// Builder walks an ast.Node tree in source order and emits a ControlFlowGraph
// fragment per scope (module, function, class method). It never fails on
// its own: unsupported node kinds are appended as opaque linear statements.
type Builder struct {
	g       *ControlFlowGraph
	current BlockID
	// loopHeaders/loopExits let break/continue jump out of nested loops.
	loopHeaders []BlockID
	loopExits   []BlockID
}

// Build constructs the CFG for a single scope rooted at root (a Module or
// FunctionDef/ClassDef body). Cancellation is checked at each block boundary.
func Build(ctx context.Context, scopeName string, root ast.Node) (*ControlFlowGraph, error) {
	g := NewControlFlowGraph(scopeName)
	b := &Builder{g: g, current: g.EntryBlock}

	body := root.Children()
	if root.Kind() == ast.KindFunctionDef || root.Kind() == ast.KindClassDef {
		if blockField := root.Field("body"); blockField != nil {
			body = blockField.Children()
		}
	}

	if err := b.walkStatements(ctx, body); err != nil {
		return g, err
	}

	exit := g.newBlock(scopeName)
	g.ExitBlock = exit
	g.hasExit = true
	g.AddEdge(b.current, exit, EdgeNext)

	return g, nil
}

func (b *Builder) walkStatements(ctx context.Context, stmts []ast.Node) error {
	for _, s := range stmts {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := b.walkStatement(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) appendLinear(n ast.Node) {
	blk := b.g.Blocks[b.current]
	blk.Statements = append(blk.Statements, Stmt{Node: n, Line: n.Span().StartLine})
}

func (b *Builder) walkStatement(ctx context.Context, n ast.Node) error {
	switch n.Kind() {
	case ast.KindAssignment, ast.KindAugAssignment, ast.KindExprStmt, ast.KindReturn,
		ast.KindRaise, ast.KindImport, ast.KindBreak, ast.KindContinue:
		b.appendLinear(n)
		if n.Kind() == ast.KindBreak && len(b.loopExits) > 0 {
			target := b.loopExits[len(b.loopExits)-1]
			b.g.AddEdge(b.current, target, EdgeNext)
		}
		if n.Kind() == ast.KindContinue && len(b.loopHeaders) > 0 {
			target := b.loopHeaders[len(b.loopHeaders)-1]
			b.g.AddEdge(b.current, target, EdgeNext)
		}
		return nil

	case ast.KindIf:
		return b.walkIf(ctx, n)

	case ast.KindWhile:
		return b.walkWhile(ctx, n, false)

	case ast.KindFor:
		return b.walkFor(ctx, n, false)

	case ast.KindAsyncFor:
		return b.walkFor(ctx, n, true)

	case ast.KindWith, ast.KindAsyncWith:
		return b.walkWith(ctx, n)

	case ast.KindTry:
		return b.walkTry(ctx, n)

	case ast.KindFunctionDef, ast.KindClassDef:
		// Nested scope: emit an Entry edge from the current block into a
		// dedicated sub-CFG root placeholder; the definition itself still
		// occupies a statement slot in the enclosing scope for call-graph
		// definition scanning.
		b.appendLinear(n)
		entry := b.g.newBlock(n.Name())
		b.g.AddEdge(b.current, entry, EdgeEntry)
		return nil

	case ast.KindAwait:
		return b.walkAwait(ctx, n)

	default:
		// UnsupportedConstruct: append as opaque linear statement, no split.
		b.appendLinear(n)
		return nil
	}
}

func (b *Builder) walkIf(ctx context.Context, n ast.Node) error {
	if cond := n.Field("condition"); cond != nil {
		b.appendLinear(cond)
	}
	branchBlock := b.current

	trueBlock := b.g.newBlock(b.g.Blocks[branchBlock].Scope)
	b.g.AddEdge(branchBlock, trueBlock, EdgeTrue)
	b.current = trueBlock
	if cons := n.Field("consequence"); cons != nil {
		if err := b.walkStatements(ctx, cons.Children()); err != nil {
			return err
		}
	}
	trueEnd := b.current

	join := b.g.newBlock(b.g.Blocks[branchBlock].Scope)

	alt := n.Field("alternative")
	if alt != nil {
		falseBlock := b.g.newBlock(b.g.Blocks[branchBlock].Scope)
		b.g.AddEdge(branchBlock, falseBlock, EdgeFalse)
		b.current = falseBlock
		altStmts := alt.Children()
		if body := alt.Field("body"); body != nil {
			// An else clause wraps its statements in a body block.
			altStmts = body.Children()
		}
		if err := b.walkStatements(ctx, altStmts); err != nil {
			return err
		}
		b.g.AddEdge(b.current, join, EdgeNext)
	} else {
		// No else-branch: the False edge goes directly to the join.
		b.g.AddEdge(branchBlock, join, EdgeFalse)
	}

	b.g.AddEdge(trueEnd, join, EdgeNext)
	b.current = join
	return nil
}

func (b *Builder) walkWhile(ctx context.Context, n ast.Node, _ bool) error {
	header := b.g.newBlock(b.g.Blocks[b.current].Scope)
	b.g.AddEdge(b.current, header, EdgeNext)

	if cond := n.Field("condition"); cond != nil {
		b.g.Blocks[header].Statements = append(b.g.Blocks[header].Statements, Stmt{Node: cond, Line: cond.Span().StartLine})
	}

	exit := b.g.newBlock(b.g.Blocks[header].Scope)
	bodyBlock := b.g.newBlock(b.g.Blocks[header].Scope)
	b.g.AddEdge(header, bodyBlock, EdgeTrue)
	b.g.AddEdge(header, exit, EdgeFalse)

	b.loopHeaders = append(b.loopHeaders, header)
	b.loopExits = append(b.loopExits, exit)
	b.current = bodyBlock
	if body := n.Field("body"); body != nil {
		if err := b.walkStatements(ctx, body.Children()); err != nil {
			return err
		}
	}
	b.loopHeaders = b.loopHeaders[:len(b.loopHeaders)-1]
	b.loopExits = b.loopExits[:len(b.loopExits)-1]

	b.g.AddEdge(b.current, header, EdgeLoop)
	b.current = exit
	return nil
}

func (b *Builder) walkFor(ctx context.Context, n ast.Node, isAsync bool) error {
	header := b.g.newBlock(b.g.Blocks[b.current].Scope)
	b.g.AddEdge(b.current, header, EdgeNext)

	if iter := n.Field("right"); iter != nil {
		b.g.Blocks[header].Statements = append(b.g.Blocks[header].Statements, Stmt{Node: iter, Line: iter.Span().StartLine})
	}

	bodyLabel, exitLabel := EdgeTrue, EdgeFalse
	if isAsync {
		bodyLabel, exitLabel = EdgeAsyncNext, EdgeAsyncStop
	}

	exit := b.g.newBlock(b.g.Blocks[header].Scope)
	bodyBlock := b.g.newBlock(b.g.Blocks[header].Scope)
	b.g.AddEdge(header, bodyBlock, bodyLabel)
	b.g.AddEdge(header, exit, exitLabel)

	b.loopHeaders = append(b.loopHeaders, header)
	b.loopExits = append(b.loopExits, exit)
	b.current = bodyBlock
	if body := n.Field("body"); body != nil {
		if err := b.walkStatements(ctx, body.Children()); err != nil {
			return err
		}
	}
	b.loopHeaders = b.loopHeaders[:len(b.loopHeaders)-1]
	b.loopExits = b.loopExits[:len(b.loopExits)-1]

	b.g.AddEdge(b.current, header, EdgeLoop)
	b.current = exit
	return nil
}

func (b *Builder) walkWith(ctx context.Context, n ast.Node) error {
	isAsync := n.Kind() == ast.KindAsyncWith
	for _, item := range n.Children() {
		if item.Kind() != ast.KindFunctionDef && item.Kind() != ast.KindClassDef {
			b.appendLinear(item)
		}
	}
	if isAsync {
		body := b.g.newBlock(b.g.Blocks[b.current].Scope)
		b.g.AddEdge(b.current, body, EdgeAsyncEnter)
		b.current = body
	}
	if body := n.Field("body"); body != nil {
		return b.walkStatements(ctx, body.Children())
	}
	return nil
}

func (b *Builder) walkTry(ctx context.Context, n ast.Node) error {
	if body := n.Field("body"); body != nil {
		if err := b.walkStatements(ctx, body.Children()); err != nil {
			return err
		}
	}
	join := b.g.newBlock(b.g.Blocks[b.current].Scope)
	b.g.AddEdge(b.current, join, EdgeNext)
	for _, handler := range n.Children() {
		if handler.Kind() != ast.KindUnknown {
			continue
		}
		handlerBlock := b.g.newBlock(b.g.Blocks[join].Scope)
		b.g.AddEdge(join, handlerBlock, EdgeNext)
		b.current = handlerBlock
		if err := b.walkStatements(ctx, handler.Children()); err != nil {
			return err
		}
		b.g.AddEdge(b.current, join, EdgeNext)
	}
	b.current = join
	return nil
}

func (b *Builder) walkAwait(ctx context.Context, n ast.Node) error {
	b.appendLinear(n)
	resume := b.g.newBlock(b.g.Blocks[b.current].Scope)
	b.g.AddEdge(b.current, resume, EdgeResume)
	b.current = resume
	return nil
}
