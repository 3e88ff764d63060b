package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codepathfinder/taintgraph/cfg"
	"github.com/codepathfinder/taintgraph/output"
)

func testLogger() *output.Logger {
	return output.NewLogger(output.VerbosityDefault)
}

func TestRunFindsDirectTaintFlowInSingleFile(t *testing.T) {
	files := []File{
		{Path: "app.py", Source: []byte("data = input()\nresult = eval(data)\n")},
	}

	result, err := Run(context.Background(), DefaultConfig(), files, nil, testLogger())
	require.NoError(t, err)
	require.NotEmpty(t, result.Rankings)

	found := false
	for _, r := range result.Rankings {
		if r.Flow.SourceName == "input" && r.Flow.SinkName == "eval" {
			found = true
			assert.Equal(t, "CWE-94", r.Flow.SinkCweID)
		}
	}
	assert.True(t, found)
	assert.Equal(t, 1, result.Stats.FilesAnalyzed)
}

func TestRunLinksCallGraphAcrossFiles(t *testing.T) {
	files := []File{
		{Path: "handlers.py", Source: []byte("def handle():\n    process()\n")},
		{Path: "worker.py", Source: []byte("def process():\n    return 1\n")},
	}

	result, err := Run(context.Background(), DefaultConfig(), files, nil, testLogger())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Stats.CallGraphNodes, 2)
}

func TestRunCollectsUnmappedFindingsOutsideAnyBlockSpan(t *testing.T) {
	files := []File{
		{
			Path:     "app.py",
			Source:   []byte("x = 1\n"),
			Findings: []cfg.Finding{{CheckID: "py.unreachable-line", Start: cfg.Position{Line: 999}}},
		},
	}

	result, err := Run(context.Background(), DefaultConfig(), files, nil, testLogger())
	require.NoError(t, err)
	require.Len(t, result.FileOutcomes, 1)
	assert.NotEmpty(t, result.FileOutcomes[0].Unmapped)
}

func TestRunAssignsUniqueScanIDPerRun(t *testing.T) {
	files := []File{{Path: "app.py", Source: []byte("x = 1\n")}}

	first, err := Run(context.Background(), DefaultConfig(), files, nil, testLogger())
	require.NoError(t, err)
	second, err := Run(context.Background(), DefaultConfig(), files, nil, testLogger())
	require.NoError(t, err)

	assert.NotEmpty(t, first.ScanID)
	assert.NotEqual(t, first.ScanID, second.ScanID)
}

func TestRunHandlesEmptyFileListWithoutError(t *testing.T) {
	result, err := Run(context.Background(), DefaultConfig(), nil, nil, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Stats.FilesAnalyzed)
	assert.Empty(t, result.Rankings)
}

func TestRunCreatesDefaultRegistryWhenNilIsPassed(t *testing.T) {
	files := []File{{Path: "app.py", Source: []byte("x = 1\n")}}
	result, err := Run(context.Background(), DefaultConfig(), files, nil, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.FilesAnalyzed)
}
