// Package pipeline wires the leaf passes — ast, cfg, ssaform, callgraph,
// pubsub, taint, summary, rank, librarian — into the sequential per-file
// pipeline §5 specifies, and into the file-level concurrency that fans
// out across files while serializing writes to the shared call graph.
package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/codepathfinder/taintgraph/ast"
	"github.com/codepathfinder/taintgraph/callgraph"
	"github.com/codepathfinder/taintgraph/cfg"
	"github.com/codepathfinder/taintgraph/librarian"
	"github.com/codepathfinder/taintgraph/output"
	"github.com/codepathfinder/taintgraph/pubsub"
	"github.com/codepathfinder/taintgraph/rank"
	"github.com/codepathfinder/taintgraph/ssaform"
	"github.com/codepathfinder/taintgraph/summary"
	"github.com/codepathfinder/taintgraph/taint"
)

// File is one input source file handed to Run. Findings are whatever the
// external pattern scanner (Semgrep-class, out of scope) already found
// for this file; the core only maps them onto CFG blocks (§6).
type File struct {
	Path     string
	Source   []byte
	Findings []cfg.Finding
}

// FileOutcome is one file's slice of a scan: its per-scope CFGs, the
// taint flows discovered within each scope, any scanner findings that
// mapped onto no block, and the file-aborting error if one occurred.
// Per-file errors never abort the rest of the scan (§7).
type FileOutcome struct {
	Path     string
	Scopes   map[string]*cfg.ControlFlowGraph
	Flows    map[string][]taint.Flow
	Unmapped []cfg.Finding
	Err      *Error
}

// Stats summarizes one scan's volume — the "stats" field of the §6
// outbound contract.
type Stats struct {
	FilesAnalyzed  int
	ScopesAnalyzed int
	CFGBlocks      int
	CFGEdges       int
	CallGraphNodes int
	CallGraphEdges int
	TaintFlows     int
}

// Result is the pipeline's outbound contract (§6). Ranking and
// summarization walk the merged call graph, so they are inherently
// cross-file; Result aggregates the whole scan, while FileOutcomes
// carries the per-file breakdown §7's error/unmapped-finding policy
// needs.
type Result struct {
	// ScanID identifies this run, so a cached decision or a log line can be
	// correlated back to the scan that produced it.
	ScanID       string
	Stats        Stats
	CallGraph    *callgraph.CallGraph
	Rankings     []rank.Finding
	FileOutcomes []FileOutcome
}

// Run analyzes every file. File-level parallelism is bounded by
// WorkerCount(cfg); the shared CallGraph is guarded by a sync.RWMutex, and
// edge/node insertion is idempotent, so file processing order is
// immaterial (§5). Within one file the passes run strictly in sequence:
// definitions are registered first, each scope then runs CFG -> SSA ->
// Taint -> call discovery, and synthetic edges are added last.
func Run(ctx context.Context, pcfg Config, files []File, registry *librarian.ProfileRegistry, logger *output.Logger) (*Result, error) {
	if logger == nil {
		logger = output.NewLogger(output.VerbosityDefault)
	}
	if registry == nil {
		registry = librarian.NewProfileRegistry(logger)
	}

	scanID := uuid.New().String()
	logger.Progress("scan %s: analyzing %d file(s)", scanID, len(files))

	tcfg := DefaultTaintConfig()
	cg := callgraph.New()
	if pcfg.MaxSpeculativeCandidates > 0 {
		cg.MaxSpeculativeCandidates = pcfg.MaxSpeculativeCandidates
	}
	var cgMu sync.RWMutex

	outcomes := make([]FileOutcome, len(files))

	workers := WorkerCount(pcfg)
	if len(files) > 0 && workers > len(files) {
		workers = len(files)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int, len(files))
	for i := range files {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					outcomes[i] = FileOutcome{
						Path: files[i].Path,
						Err:  NewError(Cancelled, "scan cancelled before file started").WithCause(ctx.Err()),
					}
					continue
				default:
				}
				outcomes[i] = analyzeFile(ctx, files[i], tcfg, cg, &cgMu)
			}
		}()
	}
	wg.Wait()

	sum := summarize(outcomes, cg)
	_ = sum // the summaries are computed but not carried into Result

	scoped := make(map[string][]taint.Flow)
	for _, oc := range outcomes {
		for scope, flows := range oc.Flows {
			scoped[scope] = append(scoped[scope], enrichSeverity(flows, registry)...)
		}
	}
	rankings := rank.Rank(scoped, weightsFromConfig(pcfg))

	return &Result{
		ScanID:       scanID,
		Stats:        computeStats(outcomes, cg),
		CallGraph:    cg,
		Rankings:     rankings,
		FileOutcomes: outcomes,
	}, nil
}

// analyzeFile runs the sequential per-file pipeline: parse, collect one
// scope per module/function/method, register the file's definitions in the
// shared call graph, then for each scope build its CFG, run SSA and taint,
// and fold its calls into the call graph. External findings are mapped onto
// blocks once every scope is built, and synthetic edges are added last.
func analyzeFile(ctx context.Context, f File, tcfg taint.Config, cg *callgraph.CallGraph, cgMu *sync.RWMutex) FileOutcome {
	root, err := ast.ParsePython(ctx, f.Source)
	if err != nil {
		return FileOutcome{Path: f.Path, Err: NewError(MalformedAst, "parse failed").WithLocation(f.Path, 0).WithCause(err)}
	}

	scopes := CollectScopes(f.Path, root)
	outcome := FileOutcome{
		Path:   f.Path,
		Scopes: make(map[string]*cfg.ControlFlowGraph, len(scopes)),
		Flows:  make(map[string][]taint.Flow, len(scopes)),
	}

	cgMu.Lock()
	cg.ScanDefinitions(root)
	cgMu.Unlock()

	for _, sc := range scopes {
		g, err := cfg.Build(ctx, sc.Name, sc.Node)
		if err != nil {
			outcome.Err = NewError(Cancelled, "cfg build cancelled").WithLocation(f.Path, 0).WithCause(err)
			return outcome
		}
		outcome.Scopes[sc.Name] = g

		ssaResult := ssaform.Transform(g)
		outcome.Flows[sc.Name] = taint.Analyze(ssaResult, g, tcfg)

		cgMu.Lock()
		cg.DiscoverCalls(g, callgraph.ScopeID(sc.Name))
		cgMu.Unlock()
	}

	// Map scanner findings against the most specific scope first (a
	// nested function's own blocks) before falling back to the module
	// scope, whose single opaque FunctionDef statement otherwise "covers"
	// every line of every function defined in it.
	remaining := f.Findings
	for i := len(scopes) - 1; i > 0; i-- {
		remaining = cfg.MapFindings(outcome.Scopes[scopes[i].Name], remaining)
	}
	remaining = cfg.MapFindings(outcome.Scopes[scopes[0].Name], remaining)
	outcome.Unmapped = remaining

	cgMu.Lock()
	pubsub.Build(root, cg)
	cgMu.Unlock()

	return outcome
}

// summarize seeds one FunctionSignature per scope across every file from
// its CFG complexity, classified side effects, and the sink names its own
// taint flows already named, then propagates bottom-up over the merged
// call graph's SCCs (§4.6).
func summarize(outcomes []FileOutcome, cg *callgraph.CallGraph) *summary.Summarizer {
	sum := summary.New()
	for _, oc := range outcomes {
		for scope, g := range oc.Scopes {
			sig := &summary.FunctionSignature{
				Name:        scope,
				Complexity:  summary.ComputeComplexity(g),
				SideEffects: classifySideEffects(g),
				TaintSinks:  make(map[string]bool),
			}
			for _, f := range oc.Flows[scope] {
				sig.TaintSinks[f.SinkName] = true
			}
			sum.Seed(callgraph.ScopeID(scope), sig)
		}
	}
	sum.Propagate(cg)
	return sum
}

// enrichSeverity fills in a flow's CWE from the Librarian's profile
// registry when the taint engine's own SinkSpec didn't carry one, per
// §4.7's "sink_severity is read from a LibraryProfile... when available".
func enrichSeverity(flows []taint.Flow, registry *librarian.ProfileRegistry) []taint.Flow {
	out := make([]taint.Flow, len(flows))
	for i, f := range flows {
		if f.SinkCweID == "" {
			if spec, ok := registry.FindFunctionSpec(f.SinkName); ok && spec.CweID != "" {
				f.SinkCweID = spec.CweID
			}
		}
		out[i] = f
	}
	return out
}

func weightsFromConfig(pcfg Config) rank.Weights {
	w := pcfg.Weights
	if w == (RankWeights{}) {
		return rank.DefaultWeights
	}
	return rank.Weights{
		Sensitivity:   w.Sensitivity,
		SinkSeverity:  w.SinkSeverity,
		ImplicitBonus: w.Implicit,
		PathCost:      w.PathCost,
	}
}

func computeStats(outcomes []FileOutcome, cg *callgraph.CallGraph) Stats {
	stats := Stats{
		FilesAnalyzed:  len(outcomes),
		CallGraphNodes: len(cg.NodeKinds),
		CallGraphEdges: len(cg.Edges()),
	}
	for _, oc := range outcomes {
		stats.ScopesAnalyzed += len(oc.Scopes)
		for _, g := range oc.Scopes {
			stats.CFGBlocks += len(g.Blocks)
			stats.CFGEdges += g.EdgeCount()
		}
		for _, flows := range oc.Flows {
			stats.TaintFlows += len(flows)
		}
	}
	return stats
}
