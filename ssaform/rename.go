package ssaform

import (
	"fmt"

	"github.com/codepathfinder/taintgraph/ast"
	"github.com/codepathfinder/taintgraph/cfg"
)

// Undefined is the sentinel version recorded in a Φ operand when no
// definition of the variable reaches the predecessor on that path.
const Undefined = "v_undefined"

// SSAName is a versioned variable, e.g. "x.1".
type SSAName string

// Def describes what defines an SSAName: either a statement or a Φ node.
type Def struct {
	Block   cfg.BlockID
	Stmt    *cfg.Stmt // nil when Phi is set
	Phi     *cfg.PhiNode
}

// Result is the output of the SSA transform: per-occurrence renaming plus
// the reverse def map.
type Result struct {
	Graph   *cfg.ControlFlowGraph
	Dom     *DominatorTree
	// PostDom is the post-dominator tree, rooted at the CFG's exit block.
	// markImplicitRegions uses it to find a branch's join and exclude it
	// (and everything beyond it) from the branch's control-dependent region.
	PostDom *DominatorTree
	// UseVersion maps an AST use-node to the last SSA version resolved while
	// renaming its uses; kept for callers needing only one representative
	// version. Taint propagation wants every use, so see UseVersions.
	UseVersion map[ast.Node]SSAName
	// UseVersions maps an AST use-node to every SSA version its DefUse.Uses
	// resolved to, in use order.
	UseVersions map[ast.Node][]SSAName
	// DefVersion maps an AST def-node (or Phi) to the first SSA version it
	// produces — the primary def for statements with only one. A
	// destructuring assignment's remaining defs are in DefVersions.
	DefVersion map[ast.Node]SSAName
	// DefVersions maps an AST def-node to every SSA version it produces, in
	// target order. Most statements produce one; a destructuring
	// assignment ("a, b = ...") produces one per target.
	DefVersions map[ast.Node][]SSAName
	// Defs maps every SSA name to its single defining site.
	Defs map[SSAName]Def
}

// Transform runs the full SSA pipeline: dominators, dominance frontiers, Φ
// placement, and pre-order dominator-tree renaming.
func Transform(g *cfg.ControlFlowGraph) *Result {
	dom := ComputeDominators(g)
	placePhis(g, dom)

	r := &Result{
		Graph:       g,
		Dom:         dom,
		PostDom:     ComputePostDominators(g),
		UseVersion:  make(map[ast.Node]SSAName),
		UseVersions: make(map[ast.Node][]SSAName),
		DefVersion:  make(map[ast.Node]SSAName),
		DefVersions: make(map[ast.Node][]SSAName),
		Defs:        make(map[SSAName]Def),
	}

	counters := make(map[string]int)
	stacks := make(map[string][]SSAName)

	var rename func(b cfg.BlockID)
	rename = func(b cfg.BlockID) {
		blk := g.Blocks[b]
		pushed := make(map[string]int)

		for _, phi := range blk.PhiNodes {
			v := freshVersion(counters, stacks, phi.VarName)
			phi.Result = string(v)
			r.Defs[v] = Def{Block: b, Phi: phi}
			pushed[phi.VarName]++
		}

		for i := range blk.Statements {
			du := Extract(blk.Statements[i])
			for _, use := range du.Uses {
				if top, ok := topOf(stacks, use); ok {
					r.UseVersion[blk.Statements[i].Node] = top
					r.UseVersions[blk.Statements[i].Node] = append(r.UseVersions[blk.Statements[i].Node], top)
				}
			}
			for _, name := range du.Defs {
				v := freshVersion(counters, stacks, name)
				stmtCopy := blk.Statements[i]
				r.Defs[v] = Def{Block: b, Stmt: &stmtCopy}
				if _, ok := r.DefVersion[blk.Statements[i].Node]; !ok {
					r.DefVersion[blk.Statements[i].Node] = v
				}
				r.DefVersions[blk.Statements[i].Node] = append(r.DefVersions[blk.Statements[i].Node], v)
				pushed[name]++
			}
		}

		for _, e := range g.Successors(b) {
			succ := g.Blocks[e.To]
			for _, phi := range succ.PhiNodes {
				if top, ok := topOf(stacks, phi.VarName); ok {
					phi.Operands[b] = string(top)
				} else {
					phi.Operands[b] = Undefined
				}
			}
		}

		for _, c := range dom.Children(b) {
			rename(c)
		}

		for name, n := range pushed {
			stacks[name] = stacks[name][:len(stacks[name])-n]
		}
	}
	rename(g.EntryBlock)

	return r
}

func freshVersion(counters map[string]int, stacks map[string][]SSAName, name string) SSAName {
	counters[name]++
	v := SSAName(fmt.Sprintf("%s.%d", name, counters[name]))
	stacks[name] = append(stacks[name], v)
	return v
}

func topOf(stacks map[string][]SSAName, name string) (SSAName, bool) {
	s := stacks[name]
	if len(s) == 0 {
		return "", false
	}
	return s[len(s)-1], true
}

// placePhis inserts empty Φ nodes at iterated dominance frontiers per the
// standard worklist algorithm, extending each variable's def-block set as
// Φs are placed.
func placePhis(g *cfg.ControlFlowGraph, dom *DominatorTree) {
	defBlocks := make(map[string]map[cfg.BlockID]bool)
	for _, id := range g.AllBlockIDs() {
		for _, stmt := range g.Blocks[id].Statements {
			du := Extract(stmt)
			for _, name := range du.Defs {
				if defBlocks[name] == nil {
					defBlocks[name] = make(map[cfg.BlockID]bool)
				}
				defBlocks[name][id] = true
			}
		}
	}

	hasPhi := make(map[string]map[cfg.BlockID]bool)

	for varName, defs := range defBlocks {
		hasPhi[varName] = make(map[cfg.BlockID]bool)
		worklist := make([]cfg.BlockID, 0, len(defs))
		for b := range defs {
			worklist = append(worklist, b)
		}
		for len(worklist) > 0 {
			b := worklist[0]
			worklist = worklist[1:]
			for _, f := range dom.Frontier(b) {
				if hasPhi[varName][f] {
					continue
				}
				phi := &cfg.PhiNode{VarName: varName, Operands: make(map[cfg.BlockID]string)}
				g.Blocks[f].PhiNodes = append(g.Blocks[f].PhiNodes, phi)
				hasPhi[varName][f] = true
				if !defs[f] {
					defs[f] = true
					worklist = append(worklist, f)
				}
			}
		}
	}
}
