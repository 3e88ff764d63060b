// Package taint performs forward source->sink taint propagation over a
// single function's SSA form, with sanitizer cuts and implicit-flow
// tagging via control dependence, and reconstructs a backward slice for
// every flow it reports. Interprocedural propagation is approximated by
// the summary package, not here.
package taint

import (
	"sort"
	"strings"

	"github.com/codepathfinder/taintgraph/cfg"
	"github.com/codepathfinder/taintgraph/ssaform"
)

// Sensitivity classifies a taint source by how damaging its exposure is,
// feeding the risk ranker.
type Sensitivity int

const (
	SensitivityGeneral Sensitivity = iota
	SensitivityAuthToken
	SensitivitySecret
)

func (s Sensitivity) String() string {
	switch s {
	case SensitivityAuthToken:
		return "auth_token"
	case SensitivitySecret:
		return "secret"
	default:
		return "general"
	}
}

// SourceSpec names one taint source by qualified function name.
type SourceSpec struct {
	Name        string
	Sensitivity Sensitivity
}

// SinkSpec names one taint sink by qualified function name, with an
// optional CWE identifier used by the risk ranker when no Librarian
// profile is available.
type SinkSpec struct {
	Name  string
	CweID string
}

// Config is the source/sink/sanitizer configuration for one analysis run.
type Config struct {
	Sources    []SourceSpec
	Sinks      []SinkSpec
	Sanitizers []string
}

func (c Config) matchSource(target string) (SourceSpec, bool) {
	for _, s := range c.Sources {
		if matchesName(target, s.Name) {
			return s, true
		}
	}
	return SourceSpec{}, false
}

func (c Config) matchSink(target string) (SinkSpec, bool) {
	for _, s := range c.Sinks {
		if matchesName(target, s.Name) {
			return s, true
		}
	}
	return SinkSpec{}, false
}

func (c Config) matchSanitizer(target string) (string, bool) {
	for _, s := range c.Sanitizers {
		if matchesName(target, s) {
			return s, true
		}
	}
	return "", false
}

// matchesName supports exact, suffix ("pkg.eval" vs "eval"), and prefix
// ("request.GET.get" vs "request.GET") matching, the same shape the
// teacher's pattern matcher uses for stdlib source/sink/sanitizer names.
func matchesName(target, pattern string) bool {
	clean := target
	if idx := strings.Index(target, "("); idx >= 0 {
		clean = target[:idx]
	}
	if clean == pattern {
		return true
	}
	if strings.HasSuffix(clean, "."+pattern) {
		return true
	}
	if strings.HasPrefix(clean, pattern+".") {
		return true
	}
	return false
}

// Flow is one reported source->sink taint flow.
type Flow struct {
	SourceName        string
	SinkName          string
	SinkCweID         string
	Path              []ssaform.SSAName
	Implicit          bool
	Sensitivity       Sensitivity
	SanitizersCrossed []string
}

// state accumulates taint facts across rounds of the fixed-point loop.
type state struct {
	// sources maps a tainted SSA name to the set of source names whose
	// taint reaches it (by data flow, implicit flow, or both).
	sources map[ssaform.SSAName]map[string]bool
	// implicit marks an SSA name as having been defined under a tainted
	// control dependency.
	implicit map[ssaform.SSAName]bool
	// sanitized marks a name that a sanitizer call consumed and cut;
	// carried forward only as a SanitizersCrossed annotation, never as
	// taint.
	sanitized map[ssaform.SSAName][]string
}

func newState() *state {
	return &state{
		sources:   make(map[ssaform.SSAName]map[string]bool),
		implicit:  make(map[ssaform.SSAName]bool),
		sanitized: make(map[ssaform.SSAName][]string),
	}
}

func (st *state) isTainted(n ssaform.SSAName) bool { return len(st.sources[n]) > 0 }

func (st *state) addSource(n ssaform.SSAName, src string) bool {
	if n == "" || src == "" {
		return false
	}
	if st.sources[n] == nil {
		st.sources[n] = make(map[string]bool)
	}
	if st.sources[n][src] {
		return false
	}
	st.sources[n][src] = true
	return true
}

func (st *state) unionSources(dst ssaform.SSAName, from ssaform.SSAName) bool {
	changed := false
	for src := range st.sources[from] {
		if st.addSource(dst, src) {
			changed = true
		}
	}
	return changed
}

func (st *state) markImplicit(n ssaform.SSAName) bool {
	if st.implicit[n] {
		return false
	}
	st.implicit[n] = true
	return true
}

// Analyze runs the forward taint pass on one CFG's SSA result to
// quiescence, then reports a Flow for every distinct source×sink×path
// triple discovered.
func Analyze(r *ssaform.Result, g *cfg.ControlFlowGraph, cfgCfg Config) []Flow {
	st := newState()
	for {
		changed := propagateDataFlow(r, g, cfgCfg, st)
		if markImplicitRegions(r, g, st) {
			changed = true
		}
		if !changed {
			break
		}
	}
	return detectSinks(r, g, cfgCfg, st)
}

// propagateDataFlow runs one or more rounds of forward propagation over
// every block's phis and statements until the tainted/sanitized sets stop
// growing. Loop back-edges and phi fan-in require more than one round.
func propagateDataFlow(r *ssaform.Result, g *cfg.ControlFlowGraph, c Config, st *state) bool {
	anyChange := false
	for {
		roundChanged := false
		for _, b := range g.AllBlockIDs() {
			blk := g.Blocks[b]
			for _, phi := range blk.PhiNodes {
				if phi.Result == "" {
					continue
				}
				result := ssaform.SSAName(phi.Result)
				for _, opStr := range sortedOperands(phi.Operands) {
					if opStr == ssaform.Undefined || opStr == "" {
						continue
					}
					op := ssaform.SSAName(opStr)
					if st.unionSources(result, op) {
						roundChanged = true
					}
					if st.implicit[op] && st.markImplicit(result) {
						roundChanged = true
					}
					for _, s := range st.sanitized[op] {
						if addUnique(st.sanitized, result, s) {
							roundChanged = true
						}
					}
				}
			}

			for i := range blk.Statements {
				stmt := blk.Statements[i]
				du := ssaform.Extract(stmt)
				defNames := r.DefVersions[stmt.Node]
				useNames := r.UseVersions[stmt.Node]

				if src, ok := c.matchSource(du.CallTarget); ok {
					for _, defName := range defNames {
						if st.addSource(defName, src.Name) {
							roundChanged = true
						}
					}
					continue
				}

				if sanitizer, ok := c.matchSanitizer(du.CallTarget); ok {
					anyUseTainted := false
					for _, u := range useNames {
						if st.isTainted(u) {
							anyUseTainted = true
						}
					}
					if anyUseTainted {
						for _, defName := range defNames {
							if addUnique(st.sanitized, defName, sanitizer) {
								roundChanged = true
							}
						}
					}
					continue
				}

				for _, defName := range defNames {
					for _, u := range useNames {
						if st.unionSources(defName, u) {
							roundChanged = true
						}
						if st.implicit[u] && st.markImplicit(defName) {
							roundChanged = true
						}
						for _, s := range st.sanitized[u] {
							if addUnique(st.sanitized, defName, s) {
								roundChanged = true
							}
						}
					}
				}
			}
		}
		if !roundChanged {
			break
		}
		anyChange = true
	}
	return anyChange
}

// markImplicitRegions finds every branch block whose condition uses a
// tainted SSA name and flags every definition control-dependent on either
// outcome as implicit, per §4.5. Marking a definition implicit also taints
// it: a control-dependent value still reaches a sink even with no data
// dependency on the source.
//
// A successor's dominance subtree is not the same as its control-dependent
// region: once execution reaches the branch's join — its immediate
// post-dominator, the block every outcome eventually reaches — the rest of
// the scope no longer depends on which way the branch went. This matters
// most when one edge targets the join directly: an if with no else, or a
// while/for header's exit edge. joinRegion excludes the join and everything
// it forward-dominates before the region is marked.
func markImplicitRegions(r *ssaform.Result, g *cfg.ControlFlowGraph, st *state) bool {
	changed := false
	for _, b := range g.AllBlockIDs() {
		succs := g.Successors(b)
		if len(succs) != 2 {
			continue
		}
		blk := g.Blocks[b]
		var condSources map[string]bool
		for _, stmt := range blk.Statements {
			for _, u := range r.UseVersions[stmt.Node] {
				if st.isTainted(u) {
					if condSources == nil {
						condSources = make(map[string]bool)
					}
					for s := range st.sources[u] {
						condSources[s] = true
					}
				}
			}
		}
		if len(condSources) == 0 {
			continue
		}
		excluded := joinRegion(r, b)
		for _, e := range succs {
			for _, regionBlock := range r.Dom.Subtree(e.To) {
				if excluded[regionBlock] {
					continue
				}
				for _, stmt := range g.Blocks[regionBlock].Statements {
					for _, defName := range r.DefVersions[stmt.Node] {
						if st.markImplicit(defName) {
							changed = true
						}
						for src := range condSources {
							if st.addSource(defName, src) {
								changed = true
							}
						}
					}
				}
				for _, phi := range g.Blocks[regionBlock].PhiNodes {
					if phi.Result == "" {
						continue
					}
					result := ssaform.SSAName(phi.Result)
					if st.markImplicit(result) {
						changed = true
					}
					for src := range condSources {
						if st.addSource(result, src) {
							changed = true
						}
					}
				}
			}
		}
	}
	return changed
}

// joinRegion returns the blocks control-independent of branch b: its
// immediate post-dominator (the join both outcomes converge on) and every
// block that join forward-dominates. A branch whose join can't be
// determined statically (e.g. one arm never returns) excludes nothing,
// falling back to the old, more conservative behavior for that case only.
func joinRegion(r *ssaform.Result, b cfg.BlockID) map[cfg.BlockID]bool {
	join, ok := r.PostDom.IDom(b)
	if !ok || join == b {
		return nil
	}
	excluded := make(map[cfg.BlockID]bool, len(r.Dom.Subtree(join)))
	for _, id := range r.Dom.Subtree(join) {
		excluded[id] = true
	}
	return excluded
}

// detectSinks walks every sink call site and emits one Flow per distinct
// source reaching a tainted argument, with the backward slice reconstructed
// through the SSA def chain (including both operands of any Φ fan-in).
func detectSinks(r *ssaform.Result, g *cfg.ControlFlowGraph, c Config, st *state) []Flow {
	var flows []Flow
	seen := make(map[string]bool)

	for _, b := range g.AllBlockIDs() {
		blk := g.Blocks[b]
		for _, stmt := range blk.Statements {
			du := ssaform.Extract(stmt)
			sink, ok := c.matchSink(du.CallTarget)
			if !ok {
				continue
			}
			for _, u := range r.UseVersions[stmt.Node] {
				for src := range st.sources[u] {
					key := src + "->" + sink.Name + "->" + string(u)
					if seen[key] {
						continue
					}
					seen[key] = true

					path := collectPath(r, st, u, src)
					flows = append(flows, Flow{
						SourceName:        src,
						SinkName:          sink.Name,
						SinkCweID:         sink.CweID,
						Path:              path,
						Implicit:          pathIsImplicit(st, path),
						Sensitivity:       sourceSensitivity(c, src),
						SanitizersCrossed: collectSanitizers(st, path),
					})
				}
			}
		}
	}
	return flows
}

func sourceSensitivity(c Config, name string) Sensitivity {
	for _, s := range c.Sources {
		if s.Name == name {
			return s.Sensitivity
		}
	}
	return SensitivityGeneral
}

func pathIsImplicit(st *state, path []ssaform.SSAName) bool {
	for _, n := range path {
		if st.implicit[n] {
			return true
		}
	}
	return false
}

func collectSanitizers(st *state, path []ssaform.SSAName) []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range path {
		for _, s := range st.sanitized[n] {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

// collectPath walks the SSA def chain backward from start, following only
// names whose taint is attributed to source, until it reaches the
// defining source call. Φ nodes contribute both operands that carry the
// source's taint, per the Φ-backward-slice testable property.
func collectPath(r *ssaform.Result, st *state, start ssaform.SSAName, source string) []ssaform.SSAName {
	var path []ssaform.SSAName
	visited := make(map[ssaform.SSAName]bool)

	var walk func(ssaform.SSAName)
	walk = func(n ssaform.SSAName) {
		if n == "" || visited[n] {
			return
		}
		visited[n] = true
		path = append(path, n)

		def, ok := r.Defs[n]
		if !ok {
			return
		}
		if def.Phi != nil {
			for _, opStr := range sortedOperands(def.Phi.Operands) {
				if opStr == ssaform.Undefined || opStr == "" {
					continue
				}
				op := ssaform.SSAName(opStr)
				if st.sources[op][source] {
					walk(op)
				}
			}
			return
		}
		if def.Stmt == nil {
			return
		}
		du := ssaform.Extract(*def.Stmt)
		if du.CallTarget != "" && du.CallTarget == source {
			return
		}
		for _, op := range r.UseVersions[def.Stmt.Node] {
			if st.sources[op][source] {
				walk(op)
			}
		}
	}
	walk(start)

	// Reverse so the path reads source-first, sink-last.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func sortedOperands(operands map[cfg.BlockID]string) []string {
	keys := make([]cfg.BlockID, 0, len(operands))
	for k := range operands {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = operands[k]
	}
	return out
}

func addUnique(m map[ssaform.SSAName][]string, key ssaform.SSAName, val string) bool {
	for _, v := range m[key] {
		if v == val {
			return false
		}
	}
	m[key] = append(m[key], val)
	return true
}
