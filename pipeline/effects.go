package pipeline

import (
	"strings"

	"github.com/codepathfinder/taintgraph/cfg"
	"github.com/codepathfinder/taintgraph/ssaform"
	"github.com/codepathfinder/taintgraph/summary"
)

// effectsBySuffix maps a call-target suffix to the side-effect tag it
// contributes, classified by the prefix families §4.6 names
// (io:/net:/global:write:). This is intentionally the same small, literal
// table shape as the teacher's PatternRegistry.LoadDefaultPatterns: a
// short hardcoded seed a profile-driven registry can extend later, not an
// attempt at a sound effect system.
var effectsBySuffix = map[string]string{
	"open":              summary.PrefixIO + "file",
	"write":             summary.PrefixIO + "file",
	"read":              summary.PrefixIO + "file",
	"os.system":         summary.PrefixIO + "process",
	"subprocess.call":   summary.PrefixIO + "process",
	"subprocess.Popen":  summary.PrefixIO + "process",
	"socket.socket":     summary.PrefixNet + "socket",
	"requests.get":      summary.PrefixNet + "http",
	"requests.post":     summary.PrefixNet + "http",
	"urllib.request":    summary.PrefixNet + "http",
	"cursor.execute":    summary.PrefixIO + "db",
	"connection.execute": summary.PrefixIO + "db",
}

// classifySideEffects walks every statement in g and tags the scope's
// intraprocedural side-effect set from its call targets, the base set the
// summarizer (§4.6) unions bottom-up across the call graph. Only call
// targets are classified: writes to global or free variables are not
// detected, so no global:write: tag is produced here.
func classifySideEffects(g *cfg.ControlFlowGraph) map[string]bool {
	out := make(map[string]bool)
	for _, id := range g.AllBlockIDs() {
		for _, stmt := range g.Blocks[id].Statements {
			du := ssaform.Extract(stmt)
			if du.CallTarget != "" {
				for suffix, tag := range effectsBySuffix {
					if strings.HasSuffix(du.CallTarget, suffix) || du.CallTarget == suffix {
						out[tag] = true
					}
				}
			}
		}
	}
	return out
}
