package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTaintConfigSeedsCoreSourcesSinksSanitizers(t *testing.T) {
	cfg := DefaultTaintConfig()

	var sourceNames []string
	for _, s := range cfg.Sources {
		sourceNames = append(sourceNames, s.Name)
	}
	assert.Contains(t, sourceNames, "input")
	assert.Contains(t, sourceNames, "os.getenv")

	var sinkNames []string
	for _, s := range cfg.Sinks {
		sinkNames = append(sinkNames, s.Name)
	}
	assert.Contains(t, sinkNames, "eval")
	assert.Contains(t, sinkNames, "cursor.execute")

	assert.Contains(t, cfg.Sanitizers, "html.escape")
}

func TestDefaultTaintConfigSinksCarryCweIDs(t *testing.T) {
	cfg := DefaultTaintConfig()
	for _, sink := range cfg.Sinks {
		assert.NotEmpty(t, sink.CweID, "sink %q should carry a CWE id", sink.Name)
	}
}

func TestDefaultTaintConfigSecretSourcesAreTaggedSecretSensitivity(t *testing.T) {
	cfg := DefaultTaintConfig()
	for _, s := range cfg.Sources {
		if s.Name == "os.environ.get" || s.Name == "os.getenv" {
			assert.Equal(t, "secret", s.Sensitivity.String())
		}
	}
}
