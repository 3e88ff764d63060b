package summary

import "github.com/codepathfinder/taintgraph/callgraph"

// computeSCCs runs Tarjan's strongly-connected-components algorithm over
// the adjacency relation adj, visiting nodes in the order given. Tarjan's
// algorithm emits components in reverse topological order of the
// condensation DAG — a component is popped only once every edge leaving it
// has been explored — so the returned slice already has callees' SCCs
// before their callers', which is exactly the order Propagate needs.
func computeSCCs(nodes []callgraph.ScopeID, adj map[callgraph.ScopeID][]callgraph.ScopeID) [][]callgraph.ScopeID {
	st := &tarjanState{
		index:   make(map[callgraph.ScopeID]int),
		low:     make(map[callgraph.ScopeID]int),
		onStack: make(map[callgraph.ScopeID]bool),
		adj:     adj,
	}
	for _, n := range nodes {
		if _, seen := st.index[n]; !seen {
			st.strongconnect(n)
		}
	}
	return st.sccs
}

type tarjanState struct {
	index   map[callgraph.ScopeID]int
	low     map[callgraph.ScopeID]int
	onStack map[callgraph.ScopeID]bool
	stack   []callgraph.ScopeID
	counter int
	sccs    [][]callgraph.ScopeID
	adj     map[callgraph.ScopeID][]callgraph.ScopeID
}

func (st *tarjanState) strongconnect(v callgraph.ScopeID) {
	st.index[v] = st.counter
	st.low[v] = st.counter
	st.counter++
	st.stack = append(st.stack, v)
	st.onStack[v] = true

	for _, w := range st.adj[v] {
		if _, seen := st.index[w]; !seen {
			st.strongconnect(w)
			if st.low[w] < st.low[v] {
				st.low[v] = st.low[w]
			}
		} else if st.onStack[w] {
			if st.index[w] < st.low[v] {
				st.low[v] = st.index[w]
			}
		}
	}

	if st.low[v] == st.index[v] {
		var scc []callgraph.ScopeID
		for {
			n := len(st.stack) - 1
			w := st.stack[n]
			st.stack = st.stack[:n]
			st.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		st.sccs = append(st.sccs, scc)
	}
}
