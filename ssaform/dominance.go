// Package ssaform converts a completed cfg.ControlFlowGraph into static
// single-assignment form: immediate dominators, dominance frontiers, Φ-node
// placement, and a dominator-tree renaming pass.
package ssaform

import "github.com/codepathfinder/taintgraph/cfg"

// DominatorTree holds each block's immediate dominator and children, plus
// the dominance frontier set used for Φ placement. The same shape serves
// both a forward dominator tree (rooted at the CFG's entry) and a
// post-dominator tree (rooted at its exit, edges reversed) — ComputeDominators
// and ComputePostDominators just feed the shared algorithm a different view.
type DominatorTree struct {
	idom     map[cfg.BlockID]cfg.BlockID
	children map[cfg.BlockID][]cfg.BlockID
	frontier map[cfg.BlockID]map[cfg.BlockID]bool
	order    []cfg.BlockID // reverse postorder used by the iterative solver
}

// ComputeDominators runs the Cooper-Harvey-Kennedy iterative dominator
// algorithm from the CFG's entry block.
func ComputeDominators(g *cfg.ControlFlowGraph) *DominatorTree {
	return computeDomTree(g.EntryBlock, successorIDs(g), g.PredecessorIDs)
}

// ComputePostDominators runs the same algorithm over the CFG's edges
// reversed, rooted at its exit block: ipdom(b) is the nearest block every
// path out of b must pass through, the convergence point a branch's two
// arms both eventually reach. markImplicitRegions uses this to exclude a
// branch's join (and everything beyond it) from the region it marks
// control-dependent.
func ComputePostDominators(g *cfg.ControlFlowGraph) *DominatorTree {
	return computeDomTree(g.ExitBlock, g.PredecessorIDs, successorIDs(g))
}

func successorIDs(g *cfg.ControlFlowGraph) func(cfg.BlockID) []cfg.BlockID {
	return func(b cfg.BlockID) []cfg.BlockID {
		edges := g.Successors(b)
		out := make([]cfg.BlockID, len(edges))
		for i, e := range edges {
			out[i] = e.To
		}
		return out
	}
}

func computeDomTree(entry cfg.BlockID, succ, pred func(cfg.BlockID) []cfg.BlockID) *DominatorTree {
	order, postIndex := reversePostorder(entry, succ)

	idom := make(map[cfg.BlockID]cfg.BlockID)
	idom[entry] = entry

	changed := true
	for changed {
		changed = false
		for _, b := range order {
			if b == entry {
				continue
			}
			var newIdom cfg.BlockID
			has := false
			for _, pid := range pred(b) {
				if _, ok := idom[pid]; !ok {
					continue
				}
				if !has {
					newIdom = pid
					has = true
					continue
				}
				newIdom = intersect(idom, postIndex, newIdom, pid)
			}
			if !has {
				continue
			}
			if prev, ok := idom[b]; !ok || prev != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}

	dt := &DominatorTree{
		idom:     idom,
		children: make(map[cfg.BlockID][]cfg.BlockID),
		frontier: make(map[cfg.BlockID]map[cfg.BlockID]bool),
		order:    order,
	}
	for b, d := range idom {
		if b == entry {
			continue
		}
		dt.children[d] = append(dt.children[d], b)
	}
	dt.computeFrontiers(pred)
	return dt
}

func intersect(idom map[cfg.BlockID]cfg.BlockID, postIndex map[cfg.BlockID]int, a, b cfg.BlockID) cfg.BlockID {
	for a != b {
		for postIndex[a] < postIndex[b] {
			a = idom[a]
		}
		for postIndex[b] < postIndex[a] {
			b = idom[b]
		}
	}
	return a
}

func reversePostorder(entry cfg.BlockID, succ func(cfg.BlockID) []cfg.BlockID) ([]cfg.BlockID, map[cfg.BlockID]int) {
	visited := make(map[cfg.BlockID]bool)
	var post []cfg.BlockID

	var dfs func(cfg.BlockID)
	dfs = func(b cfg.BlockID) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range succ(b) {
			dfs(s)
		}
		post = append(post, b)
	}
	dfs(entry)

	order := make([]cfg.BlockID, len(post))
	for i, b := range post {
		order[len(post)-1-i] = b
	}
	index := make(map[cfg.BlockID]int, len(post))
	for i, b := range post {
		index[b] = i
	}
	return order, index
}

// computeFrontiers derives the dominance frontier of every block: blocks
// not strictly dominated by b but reachable via a predecessor that is.
func (dt *DominatorTree) computeFrontiers(pred func(cfg.BlockID) []cfg.BlockID) {
	for _, b := range dt.order {
		dt.frontier[b] = make(map[cfg.BlockID]bool)
	}
	for _, b := range dt.order {
		preds := pred(b)
		if len(preds) < 2 {
			continue
		}
		for _, p := range preds {
			if _, reachable := dt.idom[p]; !reachable {
				continue
			}
			runner := p
			for runner != dt.idom[b] {
				dt.frontier[runner][b] = true
				next, ok := dt.idom[runner]
				if !ok || next == runner {
					break
				}
				runner = next
			}
		}
	}
}

// Frontier returns the dominance frontier of block b.
func (dt *DominatorTree) Frontier(b cfg.BlockID) []cfg.BlockID {
	out := make([]cfg.BlockID, 0, len(dt.frontier[b]))
	for f := range dt.frontier[b] {
		out = append(out, f)
	}
	return out
}

// IDom returns the immediate dominator of b.
func (dt *DominatorTree) IDom(b cfg.BlockID) (cfg.BlockID, bool) {
	d, ok := dt.idom[b]
	return d, ok
}

// Children returns the dominator-tree children of b.
func (dt *DominatorTree) Children(b cfg.BlockID) []cfg.BlockID {
	return dt.children[b]
}

// PreorderBlocks returns blocks in a pre-order DFS walk of the dominator
// tree, rooted at the CFG's entry block — the order the renaming pass uses.
func (dt *DominatorTree) PreorderBlocks(entry cfg.BlockID) []cfg.BlockID {
	return dt.Subtree(entry)
}

// Subtree returns every block dominated by root (including root itself), in
// dominator-tree pre-order — the blocks forming a branch's dominance region.
func (dt *DominatorTree) Subtree(root cfg.BlockID) []cfg.BlockID {
	var out []cfg.BlockID
	var walk func(cfg.BlockID)
	walk = func(b cfg.BlockID) {
		out = append(out, b)
		for _, c := range dt.children[b] {
			walk(c)
		}
	}
	walk(root)
	return out
}

// Dominates reports whether a dominates b (strictly or not) by walking b's
// idom chain.
func (dt *DominatorTree) Dominates(a, b cfg.BlockID) bool {
	for cur := b; ; {
		if cur == a {
			return true
		}
		next, ok := dt.idom[cur]
		if !ok || next == cur {
			return false
		}
		cur = next
	}
}
