// Package summary computes bottom-up FunctionSignature effect sets over
// the interprocedural call graph: callees summarized before callers,
// strongly connected components iterated to a fixed point as one unit.
package summary

import (
	"sort"

	"github.com/codepathfinder/taintgraph/callgraph"
	"github.com/codepathfinder/taintgraph/cfg"
)

// Side-effect tag prefixes recognized by the bottom-up union; any other
// tag is still carried, just not specially classified.
const (
	PrefixIO          = "io:"
	PrefixNet         = "net:"
	PrefixGlobalWrite = "global:write:"
)

// FunctionSignature is the per-scope summary the summarizer enriches.
type FunctionSignature struct {
	Name        string
	Inputs      []string
	Outputs     []string
	Calls       []string
	Complexity  uint32
	SideEffects map[string]bool
	TaintSinks  map[string]bool
}

func newFunctionSignature(name string) *FunctionSignature {
	return &FunctionSignature{
		Name:        name,
		SideEffects: make(map[string]bool),
		TaintSinks:  make(map[string]bool),
	}
}

// ComputeComplexity implements §3's FunctionSignature.complexity: one plus
// the count of blocks whose out-degree exceeds one.
func ComputeComplexity(g *cfg.ControlFlowGraph) uint32 {
	var branches uint32
	for _, id := range g.AllBlockIDs() {
		if len(g.Successors(id)) > 1 {
			branches++
		}
	}
	return 1 + branches
}

// Summarizer holds every scope's FunctionSignature and propagates
// side-effect/taint-sink sets bottom-up across the call graph.
type Summarizer struct {
	Signatures map[callgraph.ScopeID]*FunctionSignature
}

// New creates an empty summarizer.
func New() *Summarizer {
	return &Summarizer{Signatures: make(map[callgraph.ScopeID]*FunctionSignature)}
}

// Seed registers the intraprocedural signature for one scope before
// Propagate runs. Propagate only adds bottom-up effects: it never
// computes Complexity or a scope's own base effect/sink sets.
func (s *Summarizer) Seed(scope callgraph.ScopeID, sig *FunctionSignature) {
	s.Signatures[scope] = sig
}

func (s *Summarizer) get(scope callgraph.ScopeID) *FunctionSignature {
	sig, ok := s.Signatures[scope]
	if !ok {
		sig = newFunctionSignature(string(scope))
		s.Signatures[scope] = sig
	}
	return sig
}

// Propagate walks the call graph's SCCs in reverse topological order
// (callees before callers, per Tarjan's emission order); within an SCC it
// iterates union propagation among members to a fixed point before
// continuing to the next SCC. This resolves §9's open question: the SCC
// handling is an explicit fixed point, not an arbitrary order.
func (s *Summarizer) Propagate(cg *callgraph.CallGraph) {
	nodes, adj := buildAdjacency(cg)
	for _, scc := range computeSCCs(nodes, adj) {
		s.propagateSCC(scc, adj)
	}
}

// propagateSCC iterates to a fixed point within one SCC. The effect
// lattice (finite sets of string tags) is finite, so this always
// terminates in O(|SCC|) rounds, as §5 requires.
func (s *Summarizer) propagateSCC(scc []callgraph.ScopeID, adj map[callgraph.ScopeID][]callgraph.ScopeID) {
	for {
		changed := false
		for _, caller := range scc {
			callerSig := s.get(caller)
			for _, callee := range adj[caller] {
				calleeSig := s.get(callee)
				if unionInto(callerSig.SideEffects, calleeSig.SideEffects) {
					changed = true
				}
				if unionInto(callerSig.TaintSinks, calleeSig.TaintSinks) {
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
}

func unionInto(dst, src map[string]bool) bool {
	changed := false
	for k := range src {
		if !dst[k] {
			dst[k] = true
			changed = true
		}
	}
	return changed
}

func buildAdjacency(cg *callgraph.CallGraph) ([]callgraph.ScopeID, map[callgraph.ScopeID][]callgraph.ScopeID) {
	nodeSet := make(map[callgraph.ScopeID]bool)
	for n := range cg.NodeKinds {
		nodeSet[n] = true
	}
	adj := make(map[callgraph.ScopeID][]callgraph.ScopeID)
	for _, e := range cg.Edges() {
		nodeSet[e.From] = true
		nodeSet[e.To] = true
		adj[e.From] = append(adj[e.From], e.To)
	}

	nodes := make([]callgraph.ScopeID, 0, len(nodeSet))
	for n := range nodeSet {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	return nodes, adj
}
