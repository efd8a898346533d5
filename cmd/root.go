package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	verrors "github.com/user/verify/internal/errors"
)

var (
	debugFlag   bool
	verboseFlag bool
	repoPath    string
	metricsAddr string
)

// rootCmd is the verify CLI's entry point.
var rootCmd = &cobra.Command{
	Use:   "verify",
	Short: "Project-agnostic verification orchestrator",
	Long: `verify runs the checks declared in a project's verify.yaml, caching
each check's result against the content it covers so unrelated checks never
block each other and unchanged checks never re-run.

It tracks three kinds of checks:
  - tracked checks (a command plus cache_paths) are skipped when their
    config and matched files are unchanged since the last verified run
  - untracked checks (a command, no cache_paths) always run
  - aggregate checks (no command) report pass/fail purely from their
    dependencies

Results are cached in verify.lock next to verify.yaml, and can optionally be
proven in git history via the Verified: commit trailer.`,
	Version: "1.0.0",
}

// Execute runs the root command, mapping errors onto the process exit code
// contract (spec.md §6): 0 success, 1 check failure, 2 configuration error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		code := verrors.ExitCheckFailure
		if coder, ok := err.(verrors.Coder); ok {
			code = coder.ProcessExitCode()
		}
		if code != verrors.ExitSuccess {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(code.Int())
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Show log output instead of the progress UI")
	rootCmd.PersistentFlags().StringVar(&repoPath, "repo-path", ".", "Path to the project containing verify.yaml")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")
}
