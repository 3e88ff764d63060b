package cmd

import (
	"fmt"
	"os"

	"github.com/codepathfinder/taintgraph/output"
	"github.com/spf13/cobra"
)

var (
	verboseFlag bool
	// Version is the build version, overridden via -ldflags at release time.
	Version = "0.1.0"
	// GitCommit is the build commit, overridden via -ldflags at release time.
	GitCommit = "HEAD"
)

var rootCmd = &cobra.Command{
	Use:   "taintgraph",
	Short: "Intraprocedural CFG/SSA taint analysis with an interprocedural call graph",
	Long: `Taintgraph builds per-scope control-flow graphs, converts them to SSA,
links an interprocedural call graph (direct, speculative, and synthetic
pub/sub edges), and ranks source-to-sink taint flows by risk.

A secondary cache ("Librarian") memoizes expensive oracle verdicts and
maintains a versioned registry of library security profiles.`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		verboseFlag, _ = cmd.Flags().GetBool("verbose") //nolint:all

		noBanner, _ := cmd.Flags().GetBool("no-banner")
		logger := output.NewLogger(output.VerbosityDefault)
		if output.ShouldShowBanner(logger.IsTTY(), noBanner) {
			output.PrintBanner(logger.GetWriter(), Version, output.DefaultBannerOptions())
		} else if logger.IsTTY() && !noBanner {
			fmt.Fprintln(os.Stderr, output.GetCompactBanner(Version))
			fmt.Fprintln(os.Stderr)
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose output")
	rootCmd.PersistentFlags().Bool("no-banner", false, "Disable startup banner")
}
