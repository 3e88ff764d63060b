package pipeline

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the pipeline's tunables. It is loaded from a YAML file with
// environment overlay via godotenv, mirroring how the teacher's CLI loads
// a `.env` alongside its ruleset/oracle settings.
type Config struct {
	// Workers is the number of file-level analysis goroutines. Zero means
	// "pick automatically" (see WorkerCount).
	Workers int `yaml:"workers"`

	// ProfileDir is where LibraryProfile JSON files are loaded from.
	ProfileDir string `yaml:"profile_dir"`

	// CacheDir holds the Librarian's durable decision store.
	CacheDir string `yaml:"cache_dir"`

	// CacheSize bounds the in-memory LRU fronting the durable store.
	CacheSize int `yaml:"cache_size"`

	// MaxSpeculativeCandidates overrides callgraph.DefaultMaxSpeculativeCandidates.
	MaxSpeculativeCandidates int `yaml:"max_speculative_candidates"`

	// Oracle configures the external LLM collaborator.
	Oracle OracleConfig `yaml:"oracle"`

	// Weights configures the risk ranker.
	Weights RankWeights `yaml:"weights"`
}

// OracleConfig names the endpoint/model/credential for the external oracle.
// APIKey is populated from environment, never written back to the file.
type OracleConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"-"`
}

// RankWeights mirrors rank.Weights so it can be expressed in config files
// without the pipeline package importing the rank package's full surface.
type RankWeights struct {
	Sensitivity float64 `yaml:"sensitivity"`
	SinkSeverity float64 `yaml:"sink_severity"`
	Implicit    float64 `yaml:"implicit"`
	PathCost    float64 `yaml:"path_cost"`
}

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() Config {
	return Config{
		ProfileDir: "profiles",
		CacheDir:   ".taintgraph/cache",
		CacheSize:  1024,
		MaxSpeculativeCandidates: 5,
		Oracle: OracleConfig{
			BaseURL: "http://localhost:11434",
			Model:   "qwen3-coder:32b",
		},
		Weights: RankWeights{
			Sensitivity:  3.0,
			SinkSeverity: 2.0,
			Implicit:     1.0,
			PathCost:     0.5,
		},
	}
}

// LoadConfig reads a YAML config file, overlays a .env file if present
// (for TAINTGRAPH_ORACLE_API_KEY and friends), and fills in defaults for
// anything left unset.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return cfg, NewError(ProfileValidation, "failed to read .env").WithCause(err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	if key := os.Getenv("TAINTGRAPH_ORACLE_API_KEY"); key != "" {
		cfg.Oracle.APIKey = key
	}
	if cfg.MaxSpeculativeCandidates <= 0 {
		cfg.MaxSpeculativeCandidates = 5
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}

	return cfg, nil
}

// WorkerCount resolves the configured worker count to a concrete number,
// falling back to a CPU-aware default when unset.
func WorkerCount(cfg Config) int {
	if cfg.Workers > 0 {
		return cfg.Workers
	}
	return getOptimalWorkerCount()
}

// getOptimalWorkerCount picks a worker pool size proportional to available
// CPUs, leaving headroom for the OS and other processes.
func getOptimalWorkerCount() int {
	n := runtime.NumCPU()
	if n <= 2 {
		return 1
	}
	w := n - 1
	if w > 16 {
		w = 16
	}
	return w
}
