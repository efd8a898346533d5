package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/verify/internal/config"
	verrors "github.com/user/verify/internal/errors"
	"github.com/user/verify/internal/metrics"
	"github.com/user/verify/internal/model"
	"github.com/user/verify/internal/orchestrator"
)

var (
	runMaxWorkers int
	runForce      bool
	runAll        bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [targets...]",
		Short: "Run every stale or untracked check",
		Long: `run resolves the staleness of every check in verify.yaml and executes
whatever is not already verified: untracked checks every time, tracked
checks whose config or matched files changed, and aggregate checks once
their dependencies settle.

With no targets, every check in the project is selected. Given one or
more target names, only those checks and everything they transitively
depend on are selected, so "verify run test" also runs test's
dependencies if they are stale. --all selects every check regardless of
any targets given, and --force re-runs every selected check even if its
cached verification is still valid.

Checks run wave by wave, respecting depends_on; within a wave independent
checks run concurrently up to --max-workers.`,
		RunE: runRun,
	}
	cmd.Flags().IntVar(&runMaxWorkers, "max-workers", runtime.NumCPU(), "Maximum concurrent checks per wave")
	cmd.Flags().BoolVar(&runForce, "force", false, "Re-run selected checks even if already verified")
	cmd.Flags().BoolVar(&runAll, "all", false, "Select every check, ignoring any targets given")
	return cmd
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	logger, err := InitLogger(repoPath, debugFlag, verboseFlag)
	if err != nil {
		return HandleCommandError(err)
	}
	defer func() { _ = logger.Sync() }()

	if metricsAddr != "" {
		srv := metrics.NewServer(metricsAddr)
		go func() { _ = srv.Start(ctx) }()
	}

	project, err := loadProject()
	if err != nil {
		return HandleCommandError(err)
	}

	orch, err := orchestrator.New(project, orchestrator.Options{
		MaxWorkers: runMaxWorkers,
		Verbose:    verboseFlag,
		Reporter:   NewReporter("verify run", verboseFlag),
		Logger:     logger,
	})
	if err != nil {
		return HandleCommandError(err)
	}

	results, err := orch.Run(ctx, orchestrator.RunScope{Targets: args, All: runAll, Force: runForce})
	if err != nil {
		if ctx.Err() != nil {
			return HandleCommandError(verrors.NewInterrupt())
		}
		return HandleCommandError(err)
	}

	failed := false
	for _, r := range results {
		if !r.Verified && !r.Skipped {
			failed = true
		}
		if r.Skipped {
			failed = true
		}
	}
	if verboseFlag {
		printResultsText(results)
	}
	if failed {
		return verrors.NewCommandFailure("run", 1, false)
	}
	return nil
}

// loadProject discovers verify.yaml starting from repoPath (walking up
// through parent directories the way git locates a repository root) and
// loads it into a model.Project.
func loadProject() (*model.Project, error) {
	dir, err := config.Discover(repoPath)
	if err != nil {
		return nil, err
	}
	loader := config.NewLoader()
	return loader.Load(dir, nil)
}

func printResultsText(results []orchestrator.CheckResult) {
	for _, r := range results {
		status := "skipped"
		switch {
		case r.Verified:
			status = "verified"
		case r.Skipped:
			status = fmt.Sprintf("skipped (%s)", r.SkipCause)
		default:
			status = fmt.Sprintf("failed (exit %d)", r.ExitCode)
		}
		fmt.Printf("%-30s %s\n", r.Name, status)
	}
}
