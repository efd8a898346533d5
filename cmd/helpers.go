package cmd

import (
	"fmt"
	"os"

	"github.com/user/verify/internal/logging"
	"github.com/user/verify/internal/ui"
)

// InitLogger creates a configured logger for CLI commands, encapsulating
// the same pattern as the teacher's InitLogger: log directory under the
// project root, console output gated on the verbose flag (verbose shows
// log lines instead of the animated progress UI).
func InitLogger(repoPath string, debug bool, verbose bool) (*logging.Logger, error) {
	logDir := ".verify/logs"
	if repoPath != "." {
		logDir = repoPath + "/.verify/logs"
	}

	logCfg := &logging.Config{
		LogDir:         logDir,
		FileLevel:      logging.LevelFromString("info"),
		ConsoleLevel:   logging.LevelFromString("debug"),
		EnableCaller:   debug,
		ConsoleEnabled: verbose,
	}

	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// HandleCommandError prints a command error in the most useful available
// form (GetUserMessage's rich rendering where available, otherwise the bare
// error) and returns it unchanged so callers can `return HandleCommandError(...)`.
func HandleCommandError(err error) error {
	if err == nil {
		return nil
	}
	type userMessenger interface {
		GetUserMessage() string
	}
	if um, ok := err.(userMessenger); ok {
		fmt.Fprintf(os.Stderr, "%s\n", um.GetUserMessage())
		return err
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return err
}

// NewReporter builds the appropriate ui.Reporter for a run: a terminal
// reporter when attached to an interactive stdout and --verbose wasn't
// given, a no-op reporter otherwise (verbose runs show log/command output
// instead, which would otherwise interleave with the animated display).
func NewReporter(title string, verbose bool) ui.Reporter {
	if verbose || !ui.IsInteractive(os.Stdout) {
		return ui.NopReporter{}
	}
	return ui.NewTermReporter(title, os.Stdout)
}
