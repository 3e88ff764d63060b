package librarian

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepathfinder/taintgraph/output"
)

func newTestRegistry() *ProfileRegistry {
	return NewProfileRegistry(output.NewLogger(output.VerbosityDefault))
}

func TestGetProfileMatchesSemverRange(t *testing.T) {
	r := newTestRegistry()
	r.Add(&LibraryProfile{
		Name:      "flask",
		Ecosystem: "pypi",
		Versions: []LibraryVersion{
			{VersionSpec: "<2.0.0", Functions: []FunctionSpec{{QualifiedName: "flask.render_template_string", Label: LabelSink, CweID: "CWE-79"}}},
			{VersionSpec: ">=2.0.0", Functions: []FunctionSpec{{QualifiedName: "flask.render_template_string", Label: LabelSink, CweID: "CWE-79"}}},
		},
	})

	matches := r.GetProfile("flask", "1.1.4")
	require.Len(t, matches, 1)
	assert.Equal(t, "<2.0.0", matches[0].VersionSpec)
}

func TestGetProfileWildcardReturnsAllVersions(t *testing.T) {
	r := newTestRegistry()
	r.Add(&LibraryProfile{
		Name:      "requests",
		Ecosystem: "pypi",
		Versions:  []LibraryVersion{{VersionSpec: "<3.0.0"}, {VersionSpec: ">=3.0.0"}},
	})

	assert.Len(t, r.GetProfile("requests", ""), 2)
	assert.Len(t, r.GetProfile("requests", "*"), 2)
}

func TestGetProfileLatestPrefersHighestPinnedVersion(t *testing.T) {
	r := newTestRegistry()
	r.Add(&LibraryProfile{
		Name:      "django",
		Ecosystem: "pypi",
		Versions: []LibraryVersion{
			{VersionSpec: "==3.2.1"},
			{VersionSpec: "==4.1.0"},
			{VersionSpec: "==3.9.0"},
		},
	})

	latest, ok := r.GetProfileLatest("django")
	require.True(t, ok)
	assert.Equal(t, "==4.1.0", latest.VersionSpec)
}

func TestGetProfileLatestFallsBackToDeclarationOrderForRanges(t *testing.T) {
	r := newTestRegistry()
	r.Add(&LibraryProfile{
		Name:      "django",
		Ecosystem: "pypi",
		Versions: []LibraryVersion{
			{VersionSpec: ">=3.0,<4.0"},
			{VersionSpec: ">=4.0"},
		},
	})

	latest, ok := r.GetProfileLatest("django")
	require.True(t, ok)
	assert.Equal(t, ">=4.0", latest.VersionSpec, "unordered range specs fall back to the last declared entry")
}

func TestMatchDependenciesPrefersVersionedMatchOverLatest(t *testing.T) {
	r := newTestRegistry()
	r.Add(&LibraryProfile{
		Name:      "flask",
		Ecosystem: "pypi",
		Versions: []LibraryVersion{
			{VersionSpec: "<2.0.0"},
			{VersionSpec: ">=2.0.0"},
		},
	})

	matched := r.MatchDependencies([]Dependency{{Name: "flask", Version: "1.0.0"}})
	require.Len(t, matched["flask"], 1)
	assert.Equal(t, "<2.0.0", matched["flask"][0].VersionSpec)
}

func TestFindFunctionSpecSearchesAllLoadedProfiles(t *testing.T) {
	r := newTestRegistry()
	r.Add(&LibraryProfile{
		Name:      "flask",
		Ecosystem: "pypi",
		Versions: []LibraryVersion{
			{VersionSpec: "*", Functions: []FunctionSpec{{QualifiedName: "flask.render_template_string", Label: LabelSink, CweID: "CWE-79"}}},
		},
	})
	r.Add(&LibraryProfile{
		Name:      "django",
		Ecosystem: "pypi",
		Versions: []LibraryVersion{
			{VersionSpec: "*", Functions: []FunctionSpec{{QualifiedName: "django.db.connection.execute", Label: LabelSink, CweID: "CWE-89"}}},
		},
	})

	spec, ok := r.FindFunctionSpec("django.db.connection.execute")
	require.True(t, ok)
	assert.Equal(t, "CWE-89", spec.CweID)

	_, ok = r.FindFunctionSpec("nonexistent.sink")
	assert.False(t, ok)
}

func TestLoadFromSkipsMalformedProfilesWithoutFailing(t *testing.T) {
	dir := t.TempDir()
	good := LibraryProfile{Name: "good", Ecosystem: "pypi", Versions: []LibraryVersion{{VersionSpec: "*"}}}
	data, err := json.Marshal(good)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.json"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invalid.json"), []byte(`{"versions":[]}`), 0o644))

	r := newTestRegistry()
	err = r.LoadFrom(dir)
	require.NoError(t, err)

	assert.NotEmpty(t, r.GetProfile("good", "*"))
}

func TestLoadFromMissingDirectoryIsNotAnError(t *testing.T) {
	r := newTestRegistry()
	err := r.LoadFrom(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.NoError(t, err)
}
