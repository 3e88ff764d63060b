// Package callgraph builds the interprocedural call graph: a class/method
// registry populated by a definition scan, then direct and speculative call
// edges discovered from CFG block statements.
package callgraph

import "sort"

// NodeKind classifies a scope in the call graph.
type NodeKind int

const (
	KindFunction NodeKind = iota
	KindMethod
	KindExternal
	KindUnknown
)

// EdgeType classifies how an edge was discovered.
type EdgeType int

const (
	Direct EdgeType = iota
	Speculative
	Synthetic
)

// Mechanism further qualifies a Synthetic edge.
type Mechanism int

const (
	MechanismNone Mechanism = iota
	MechanismSignal
	MechanismMQ
)

// DefaultMaxSpeculativeCandidates bounds speculative dispatch expansion per
// call site. Overridable via pipeline.Config.
const DefaultMaxSpeculativeCandidates = 5

// ScopeID is the fully qualified name of an enclosing function/class/module.
type ScopeID string

// CallEdge is one edge of the call graph.
type CallEdge struct {
	From, To  ScopeID
	Type      EdgeType
	Mechanism Mechanism
	Truncated bool
}

// CallGraph is the directed multigraph of scopes accumulated across a scan.
// It is exclusive-write, multi-reader: callers needing concurrent access
// wrap it with their own sync.RWMutex (see pipeline.Run).
type CallGraph struct {
	NodeKinds map[ScopeID]NodeKind
	edges     []CallEdge
	edgeKeys  map[string]bool

	// ClassHierarchy maps a class name to the set of methods it defines,
	// the registry consulted by speculative dispatch.
	ClassHierarchy map[string]map[string]bool

	// Functions records top-level function names registered by the
	// definition scan, independent of any class.
	Functions map[string]bool

	MaxSpeculativeCandidates int
}

// New creates an empty call graph with the default speculative cap.
func New() *CallGraph {
	return &CallGraph{
		NodeKinds:                make(map[ScopeID]NodeKind),
		edgeKeys:                 make(map[string]bool),
		ClassHierarchy:           make(map[string]map[string]bool),
		Functions:                make(map[string]bool),
		MaxSpeculativeCandidates: DefaultMaxSpeculativeCandidates,
	}
}

// RegisterClass adds a class and one of its methods to the registry.
func (cg *CallGraph) RegisterClass(class, method string) {
	if cg.ClassHierarchy[class] == nil {
		cg.ClassHierarchy[class] = make(map[string]bool)
	}
	cg.ClassHierarchy[class][method] = true
	cg.setKind(ScopeID(class+"."+method), KindMethod)
}

// RegisterFunction adds a top-level function to the registry.
func (cg *CallGraph) RegisterFunction(name string) {
	cg.Functions[name] = true
	cg.setKind(ScopeID(name), KindFunction)
}

func (cg *CallGraph) setKind(id ScopeID, kind NodeKind) {
	if _, exists := cg.NodeKinds[id]; !exists {
		cg.NodeKinds[id] = kind
	}
}

// AddEdge adds an edge, idempotent on (from,to,type). Mechanism only
// distinguishes Synthetic edges; Direct/Speculative edges ignore it for
// idempotence purposes.
func (cg *CallGraph) AddEdge(e CallEdge) {
	key := edgeKey(e)
	if cg.edgeKeys[key] {
		return
	}
	cg.edgeKeys[key] = true
	cg.edges = append(cg.edges, e)
}

func edgeKey(e CallEdge) string {
	t := "d"
	switch e.Type {
	case Speculative:
		t = "s"
	case Synthetic:
		t = "y"
	}
	if e.Type == Synthetic {
		return string(e.From) + "->" + string(e.To) + ":" + t + ":" + mechString(e.Mechanism)
	}
	return string(e.From) + "->" + string(e.To) + ":" + t
}

func mechString(m Mechanism) string {
	switch m {
	case MechanismSignal:
		return "signal"
	case MechanismMQ:
		return "mq"
	default:
		return "none"
	}
}

// Edges returns all edges in insertion order.
func (cg *CallGraph) Edges() []CallEdge { return cg.edges }

// AddDirectCall adds a Direct edge for a free-function call `f(...)`.
func (cg *CallGraph) AddDirectCall(caller ScopeID, callee string) {
	target := ScopeID(callee)
	if !cg.Functions[callee] {
		cg.setKind(target, KindExternal)
	}
	cg.AddEdge(CallEdge{From: caller, To: target, Type: Direct})
}

// AddMethodCall resolves a method call `obj.m(...)` via speculative
// dispatch: every class with a matching method gets an edge, capped at
// MaxSpeculativeCandidates with deterministic lexicographic tie-break. A
// method with no matching class registers an External edge to "?.m".
func (cg *CallGraph) AddMethodCall(caller ScopeID, method string) {
	var classes []string
	for class, methods := range cg.ClassHierarchy {
		if methods[method] {
			classes = append(classes, class)
		}
	}
	if len(classes) == 0 {
		target := ScopeID("?." + method)
		cg.setKind(target, KindExternal)
		cg.AddEdge(CallEdge{From: caller, To: target, Type: Speculative})
		return
	}

	sort.Strings(classes)
	truncated := len(classes) > cg.effectiveCap()
	if truncated {
		classes = classes[:cg.effectiveCap()]
	}
	for _, class := range classes {
		target := ScopeID(class + "." + method)
		cg.AddEdge(CallEdge{From: caller, To: target, Type: Speculative, Truncated: truncated})
	}
}

func (cg *CallGraph) effectiveCap() int {
	if cg.MaxSpeculativeCandidates <= 0 {
		return DefaultMaxSpeculativeCandidates
	}
	return cg.MaxSpeculativeCandidates
}

// AddSyntheticEdge adds a pub/sub or message-queue inferred edge.
func (cg *CallGraph) AddSyntheticEdge(from, to ScopeID, mechanism Mechanism) {
	cg.AddEdge(CallEdge{From: from, To: to, Type: Synthetic, Mechanism: mechanism})
}

// Callees returns every scope that `caller` has an edge to, of any type.
func (cg *CallGraph) Callees(caller ScopeID) []ScopeID {
	var out []ScopeID
	for _, e := range cg.edges {
		if e.From == caller {
			out = append(out, e.To)
		}
	}
	return out
}
