// Package librarian is the Librarian: a versioned registry of library
// security profiles plus a content-addressed cache of external-oracle
// verdicts, so the same finding context never has to be re-judged by an
// LLM twice.
package librarian

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/codepathfinder/taintgraph/output"
)

// Label classifies one FunctionSpec's role in a profile.
type Label int

const (
	LabelNone Label = iota
	LabelSource
	LabelSink
	LabelSanitizer
)

// ParamSpec tags a single parameter of a profiled function.
type ParamSpec struct {
	Name  string   `json:"name"`
	Index int      `json:"index"`
	Tags  []string `json:"tags"`
}

// FunctionSpec is one entry of a LibraryVersion's function table.
type FunctionSpec struct {
	QualifiedName  string      `json:"qualified_name"`
	Label          Label       `json:"label"`
	Parameters     []ParamSpec `json:"parameters"`
	ReturnsTainted bool        `json:"returns_tainted"`
	CweID          string      `json:"cwe_id"`
}

// LibraryVersion describes the source/sink/sanitizer surface of one
// version range of a library.
type LibraryVersion struct {
	VersionSpec string         `json:"version_spec"`
	ReleaseDate string         `json:"release_date"`
	Deprecated  bool           `json:"deprecated"`
	Functions   []FunctionSpec `json:"functions"`
}

// LibraryProfile is the top-level unit loaded from a profile file.
type LibraryProfile struct {
	Name      string           `json:"name"`
	Ecosystem string           `json:"ecosystem"`
	Versions  []LibraryVersion `json:"versions"`
}

func (p *LibraryProfile) valid() bool {
	return p != nil && p.Name != "" && p.Ecosystem != ""
}

// Dependency is one resolved (or unresolved) dependency to match against
// the registry.
type Dependency struct {
	Name    string
	Version string
}

// ProfileRegistry holds every loaded LibraryProfile, keyed by name.
type ProfileRegistry struct {
	profiles map[string]*LibraryProfile
	order    []string // declaration order, for GetProfileLatest's tie-break
	logger   *output.Logger
}

// NewProfileRegistry creates an empty registry. A nil logger is replaced
// with a silent one so LoadFrom never panics when called headless.
func NewProfileRegistry(logger *output.Logger) *ProfileRegistry {
	if logger == nil {
		logger = output.NewLoggerWithWriter(output.VerbosityDefault, io.Discard)
	}
	return &ProfileRegistry{
		profiles: make(map[string]*LibraryProfile),
		logger:   logger,
	}
}

// LoadFrom reads every *.json file in dir as a LibraryProfile. Files that
// don't parse or fail basic validation are skipped silently from the
// caller's point of view — they are only logged as a warning, per §4.8.
func (r *ProfileRegistry) LoadFrom(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			r.logger.Warning("librarian: skipping unreadable profile %s: %v", path, err)
			continue
		}
		var profile LibraryProfile
		if err := json.Unmarshal(data, &profile); err != nil {
			r.logger.Warning("librarian: skipping malformed profile %s: %v", path, err)
			continue
		}
		if !profile.valid() {
			r.logger.Warning("librarian: skipping invalid profile %s: missing name/ecosystem", path)
			continue
		}
		r.Add(&profile)
	}
	return nil
}

// Add registers a profile directly, overwriting any prior profile of the
// same name but preserving its original declaration-order position.
func (r *ProfileRegistry) Add(p *LibraryProfile) {
	if _, exists := r.profiles[p.Name]; !exists {
		r.order = append(r.order, p.Name)
	}
	r.profiles[p.Name] = p
}

// GetProfile returns the LibraryVersion entries of library `name` whose
// version_spec matches versionSpec. An empty versionSpec or "*" returns
// every version entry.
func (r *ProfileRegistry) GetProfile(name, versionSpec string) []LibraryVersion {
	p, ok := r.profiles[name]
	if !ok {
		return nil
	}
	if versionSpec == "" || versionSpec == "*" {
		return append([]LibraryVersion(nil), p.Versions...)
	}

	v, err := semver.NewVersion(versionSpec)
	if err != nil {
		return nil
	}

	var out []LibraryVersion
	for _, lv := range p.Versions {
		if lv.VersionSpec == "" || lv.VersionSpec == "*" {
			out = append(out, lv)
			continue
		}
		c, err := semver.NewConstraint(lv.VersionSpec)
		if err != nil {
			continue
		}
		if c.Check(v) {
			out = append(out, lv)
		}
	}
	return out
}

// GetProfileLatest returns the highest-parseable version entry for
// `name`. A version_spec that is itself a concrete pinned version
// (e.g. "2.4.1" or "==2.4.1") is compared directly; entries whose spec is
// a true range (">=1,<2") can't be ordered this way and fall back to
// declaration order, per §4.8's tie-break rule.
func (r *ProfileRegistry) GetProfileLatest(name string) (LibraryVersion, bool) {
	p, ok := r.profiles[name]
	if !ok || len(p.Versions) == 0 {
		return LibraryVersion{}, false
	}

	bestIdx := -1
	var bestVer *semver.Version
	for i, lv := range p.Versions {
		cand, err := semver.NewVersion(strings.TrimPrefix(lv.VersionSpec, "=="))
		if err != nil {
			continue
		}
		if bestVer == nil || cand.GreaterThan(bestVer) {
			bestVer = cand
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return p.Versions[len(p.Versions)-1], true
	}
	return p.Versions[bestIdx], true
}

// MatchDependencies resolves a dependency list against the registry: a
// dependency with a known version prefers an exact range match, one with
// no version falls back to the latest known entry.
func (r *ProfileRegistry) MatchDependencies(deps []Dependency) map[string][]LibraryVersion {
	out := make(map[string][]LibraryVersion, len(deps))
	for _, d := range deps {
		if d.Version != "" {
			if matches := r.GetProfile(d.Name, d.Version); len(matches) > 0 {
				out[d.Name] = matches
				continue
			}
		}
		if lv, ok := r.GetProfileLatest(d.Name); ok {
			out[d.Name] = []LibraryVersion{lv}
		}
	}
	return out
}

// FindFunctionSpec searches every loaded profile, any version, in
// declaration order for a FunctionSpec whose QualifiedName matches name.
// pipeline.enrichSeverity uses this to fill in a flow's CWE before ranking
// when the taint engine's own SinkSpec didn't carry one (§4.7).
func (r *ProfileRegistry) FindFunctionSpec(name string) (FunctionSpec, bool) {
	for _, pname := range r.order {
		p := r.profiles[pname]
		for _, lv := range p.Versions {
			if fn, ok := FunctionSpecFor([]LibraryVersion{lv}, name); ok {
				return fn, true
			}
		}
	}
	return FunctionSpec{}, false
}

// FunctionSpecFor returns the first FunctionSpec across any matched
// LibraryVersion whose QualifiedName matches the given call target,
// the per-version lookup FindFunctionSpec runs.
func FunctionSpecFor(versions []LibraryVersion, qualifiedName string) (FunctionSpec, bool) {
	for _, lv := range versions {
		for _, fn := range lv.Functions {
			if fn.QualifiedName == qualifiedName {
				return fn, true
			}
		}
	}
	return FunctionSpec{}, false
}
