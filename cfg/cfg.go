// Package cfg builds a per-scope control-flow graph of basic blocks and
// labeled edges from a normalized ast.Node tree.
package cfg

import (
	"fmt"

	"github.com/codepathfinder/taintgraph/ast"
)

// EdgeLabel tags a CFG edge with the control-flow reason it exists.
type EdgeLabel int

const (
	// EdgeUnlabeled is used for ordinary fallthrough where no other label applies.
	EdgeUnlabeled EdgeLabel = iota
	EdgeTrue
	EdgeFalse
	EdgeNext
	EdgeEntry
	EdgeResume
	EdgeAsyncEnter
	EdgeAsyncNext
	EdgeAsyncStop
	EdgeLoop
)

func (l EdgeLabel) String() string {
	switch l {
	case EdgeTrue:
		return "True"
	case EdgeFalse:
		return "False"
	case EdgeNext:
		return "Next"
	case EdgeEntry:
		return "Entry"
	case EdgeResume:
		return "Resume"
	case EdgeAsyncEnter:
		return "AsyncEnter"
	case EdgeAsyncNext:
		return "AsyncNext"
	case EdgeAsyncStop:
		return "AsyncStop"
	case EdgeLoop:
		return "Loop"
	default:
		return "Unlabeled"
	}
}

// BlockID is a block identifier unique within one ControlFlowGraph.
type BlockID uint32

// Stmt is one linear statement or opaque fallback carried by a block. It
// keeps a reference to the originating AST node so later passes (SSA
// renaming, taint propagation) can inspect defs/uses/call targets.
type Stmt struct {
	Node ast.Node
	Line int
}

// PhiNode is a pseudo-instruction at a merge point selecting per-predecessor
// versions of a variable. It is populated by the ssaform package; the CFG
// builder only allocates the slot.
type PhiNode struct {
	VarName  string
	Result   string
	Operands map[BlockID]string
}

// Edge is a directed, labeled connection between two blocks.
type Edge struct {
	From, To BlockID
	Label    EdgeLabel
}

// BasicBlock is a maximal straight-line run of statements with single
// entry/exit (save explicit branches).
type BasicBlock struct {
	ID         BlockID
	Scope      string
	Statements []Stmt
	PhiNodes   []*PhiNode
	// Findings holds external-scanner findings mapped onto this block by
	// MapFindings. Insights holds the Librarian/oracle verdicts reconciled
	// against those findings; it is populated downstream of the taint pass.
	Findings []Finding
	Insights []Insight
}

// ControlFlowGraph is the per-scope CFG produced by Build.
type ControlFlowGraph struct {
	Name         string
	EntryBlock   BlockID
	ExitBlock    BlockID
	hasExit      bool
	Blocks       map[BlockID]*BasicBlock
	edges        []Edge
	succ         map[BlockID][]Edge
	pred         map[BlockID][]Edge
	nextBlockID  BlockID
}

// NewControlFlowGraph allocates an empty CFG with a fresh entry block.
func NewControlFlowGraph(name string) *ControlFlowGraph {
	g := &ControlFlowGraph{
		Name:   name,
		Blocks: make(map[BlockID]*BasicBlock),
		succ:   make(map[BlockID][]Edge),
		pred:   make(map[BlockID][]Edge),
	}
	g.EntryBlock = g.newBlock(name)
	return g
}

func (g *ControlFlowGraph) newBlock(scope string) BlockID {
	id := g.nextBlockID
	g.nextBlockID++
	g.Blocks[id] = &BasicBlock{ID: id, Scope: scope}
	return id
}

// AddEdge records a directed, labeled edge. Idempotent on (from,to,label).
func (g *ControlFlowGraph) AddEdge(from, to BlockID, label EdgeLabel) {
	for _, e := range g.succ[from] {
		if e.To == to && e.Label == label {
			return
		}
	}
	e := Edge{From: from, To: to, Label: label}
	g.edges = append(g.edges, e)
	g.succ[from] = append(g.succ[from], e)
	g.pred[to] = append(g.pred[to], e)
}

// Successors returns the outgoing edges of a block.
func (g *ControlFlowGraph) Successors(b BlockID) []Edge { return g.succ[b] }

// Predecessors returns the incoming edges of a block.
func (g *ControlFlowGraph) Predecessors(b BlockID) []Edge { return g.pred[b] }

// PredecessorIDs is a convenience accessor over Predecessors returning only
// source block IDs, used by the dominance-frontier and Φ-placement passes.
func (g *ControlFlowGraph) PredecessorIDs(b BlockID) []BlockID {
	preds := g.pred[b]
	ids := make([]BlockID, len(preds))
	for i, e := range preds {
		ids[i] = e.From
	}
	return ids
}

// AllBlockIDs returns every block ID in deterministic ascending order.
func (g *ControlFlowGraph) AllBlockIDs() []BlockID {
	ids := make([]BlockID, 0, len(g.Blocks))
	for id := range g.Blocks {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

// EdgeCount returns the total number of edges recorded in the graph.
func (g *ControlFlowGraph) EdgeCount() int { return len(g.edges) }

// Reachable reports whether every block is reachable from the entry block,
// per the universal CFG invariant.
func (g *ControlFlowGraph) Reachable() bool {
	seen := map[BlockID]bool{g.EntryBlock: true}
	queue := []BlockID{g.EntryBlock}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.succ[cur] {
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return len(seen) == len(g.Blocks)
}

func (g *ControlFlowGraph) String() string {
	return fmt.Sprintf("cfg(%s, %d blocks, %d edges)", g.Name, len(g.Blocks), len(g.edges))
}
