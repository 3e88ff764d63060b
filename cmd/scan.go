package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codepathfinder/taintgraph/librarian"
	"github.com/codepathfinder/taintgraph/output"
	"github.com/codepathfinder/taintgraph/pipeline"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Build per-file CFG/SSA taint graphs and rank the flows found",
	Long: `Scan walks a Python project, builds one control-flow graph per scope,
converts each to SSA, links direct/speculative/synthetic call edges into an
interprocedural call graph, propagates taint to a fixed point, and prints
the resulting flows ranked by risk score.

Examples:
  # Scan a project with defaults
  taintgraph scan --project /path/to/project

  # Scan with a custom config and library profile directory
  taintgraph scan --project . --config taintgraph.yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		projectPath, _ := cmd.Flags().GetString("project")
		configPath, _ := cmd.Flags().GetString("config")
		if projectPath == "" {
			return fmt.Errorf("--project flag is required")
		}

		absProjectPath, err := filepath.Abs(projectPath)
		if err != nil {
			return fmt.Errorf("failed to resolve project path: %w", err)
		}

		logger := output.NewLogger(output.VerbosityDefault)
		if verboseFlag {
			logger = output.NewLogger(output.VerbosityVerbose)
		}

		pcfg, err := pipeline.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger.Progress("Collecting Python files from %s...", absProjectPath)
		files, err := collectFiles(absProjectPath)
		if err != nil {
			return fmt.Errorf("failed to collect project files: %w", err)
		}
		if len(files) == 0 {
			return fmt.Errorf("no Python source files found under %s", absProjectPath)
		}
		logger.Statistic("Collected %d files", len(files))

		registry := librarian.NewProfileRegistry(logger)
		if pcfg.ProfileDir != "" {
			if err := registry.LoadFrom(pcfg.ProfileDir); err != nil {
				logger.Warning("failed to load library profiles from %s: %v", pcfg.ProfileDir, err)
			}
		}

		logger.Progress("Analyzing %d files with %d workers...", len(files), pipeline.WorkerCount(pcfg))
		result, err := pipeline.Run(context.Background(), pcfg, files, registry, logger)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		printResult(result)
		return nil
	},
}

func init() {
	scanCmd.Flags().String("project", "", "Path to the project root to scan")
	scanCmd.Flags().String("config", "", "Path to a taintgraph.yaml config file")
	rootCmd.AddCommand(scanCmd)
}

// collectFiles walks root and reads every *.py file into a pipeline.File.
// Finding injection from an external pattern scanner is left to callers
// embedding the pipeline package directly; the CLI front end only drives
// the core analysis.
func collectFiles(root string) ([]pipeline.File, error) {
	var files []pipeline.File
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".py") {
			return nil
		}
		source, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		files = append(files, pipeline.File{Path: path, Source: source})
		return nil
	})
	return files, err
}

func printResult(result *pipeline.Result) {
	fmt.Printf("\n=== Scan Summary (%s) ===\n", result.ScanID)
	fmt.Printf("Files analyzed:      %d\n", result.Stats.FilesAnalyzed)
	fmt.Printf("Scopes analyzed:     %d\n", result.Stats.ScopesAnalyzed)
	fmt.Printf("CFG blocks/edges:    %d/%d\n", result.Stats.CFGBlocks, result.Stats.CFGEdges)
	fmt.Printf("Call graph nodes:    %d\n", result.Stats.CallGraphNodes)
	fmt.Printf("Call graph edges:    %d\n", result.Stats.CallGraphEdges)
	fmt.Printf("Taint flows found:   %d\n", result.Stats.TaintFlows)

	for _, oc := range result.FileOutcomes {
		if oc.Err != nil {
			fmt.Printf("\n%s: %v\n", oc.Path, oc.Err)
		}
		for _, f := range oc.Unmapped {
			fmt.Printf("%s: unmapped finding %s at line %d\n", oc.Path, f.CheckID, f.Start.Line)
		}
	}

	if len(result.Rankings) == 0 {
		fmt.Println("\nNo taint flows found.")
		return
	}

	fmt.Printf("\n=== Ranked Flows ===\n")
	for i, finding := range result.Rankings {
		f := finding.Flow
		implicit := ""
		if f.Implicit {
			implicit = " [implicit]"
		}
		fmt.Printf("%3d. [%.2f] %s -> %s (%s)%s in %s\n",
			i+1, finding.Score, f.SourceName, f.SinkName, f.SinkCweID, implicit, finding.Scope)
	}
}
