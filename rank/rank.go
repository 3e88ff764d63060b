// Package rank scores and orders taint.Flow results into a stable,
// descending risk ranking per §4.7.
package rank

import (
	"sort"

	"github.com/codepathfinder/taintgraph/taint"
)

// Weights are the linear combination coefficients of the risk score:
//
//	risk_score = W1*sensitivity + W2*sinkSeverity + W3*implicitBonus - W4*pathCost
type Weights struct {
	Sensitivity float64
	SinkSeverity float64
	ImplicitBonus float64
	PathCost     float64
}

// DefaultWeights is what the pipeline ranks with when Config.Weights is left
// entirely zero (pipeline.DefaultConfig sets weights of its own): a
// sensitive source or a severe sink matters more than path length, and an
// implicit flow is worth a flat bonus on top of whatever it would have
// scored as an explicit flow.
var DefaultWeights = Weights{
	Sensitivity:   3.0,
	SinkSeverity:  4.0,
	ImplicitBonus: 2.0,
	PathCost:      0.1,
}

// sinkSeverity scores a CWE identifier by rough exploitability/impact; an
// unrecognized id falls back to a conservative middle value.
var sinkSeverity = map[string]float64{
	"CWE-78":  5.0, // OS command injection
	"CWE-89":  5.0, // SQL injection
	"CWE-79":  3.0, // XSS
	"CWE-502": 4.5, // insecure deserialization
	"CWE-611": 3.5, // XXE
	"CWE-22":  3.0, // path traversal
}

func sinkSeverityScore(cweID string) float64 {
	if v, ok := sinkSeverity[cweID]; ok {
		return v
	}
	return 2.0
}

func sensitivityScore(s taint.Sensitivity) float64 {
	switch s {
	case taint.SensitivitySecret:
		return 3.0
	case taint.SensitivityAuthToken:
		return 2.0
	default:
		return 1.0
	}
}

// Finding pairs a taint.Flow with its computed score and the scope it was
// found in, ready for stable descending sort.
type Finding struct {
	Scope string
	Flow  taint.Flow
	Score float64
}

// Rank scores every flow and returns them sorted descending by score, with
// ties broken first by ascending path length (shorter paths first among
// equally-scored flows) and then by source name, so output is
// deterministic across runs.
func Rank(scoped map[string][]taint.Flow, w Weights) []Finding {
	var findings []Finding
	for scope, flows := range scoped {
		for _, f := range flows {
			findings = append(findings, Finding{
				Scope: scope,
				Flow:  f,
				Score: Score(f, w),
			})
		}
	}

	sort.Slice(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if len(a.Flow.Path) != len(b.Flow.Path) {
			return len(a.Flow.Path) < len(b.Flow.Path)
		}
		if a.Flow.SourceName != b.Flow.SourceName {
			return a.Flow.SourceName < b.Flow.SourceName
		}
		return a.Scope < b.Scope
	})
	return findings
}

// Score computes one flow's weighted risk score. Path cost is the number
// of SSA versions in the backward slice: longer paths are harder to
// exploit reliably and carry more opportunity for an unmodeled sanitizer,
// so they are penalized, never rewarded.
func Score(f taint.Flow, w Weights) float64 {
	score := w.Sensitivity*sensitivityScore(f.Sensitivity) + w.SinkSeverity*sinkSeverityScore(f.SinkCweID)
	if f.Implicit {
		score += w.ImplicitBonus
	}
	score -= w.PathCost * float64(len(f.Path))
	return score
}
