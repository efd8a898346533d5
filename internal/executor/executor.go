// Package executor runs a check's command, whole or per-file, and
// classifies its outcome (spec.md §4.5). Subprocess invocation follows the
// teacher's CronjobHandler.runAnalysis pattern (exec.CommandContext +
// captured output), generalised from a single fixed subcommand to an
// arbitrary shell command string, with a context timeout and
// process-group kill added since a check's command is untrusted
// user-authored shell, not the trusted "./gendocs analyze" the teacher
// shells out to.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"syscall"
	"time"

	"github.com/user/verify/internal/metrics"
	"github.com/user/verify/internal/model"
)

// Outcome is the result of running a check's command once (whole-check or
// for a single file in per_file mode).
type Outcome struct {
	ExitCode int
	TimedOut bool
	Stdout   string
	Stderr   string
	Duration time.Duration
	Metadata map[string]string
}

// Options configures how commands are invoked.
type Options struct {
	// Shell is the interpreter used to run a check's command string,
	// "sh -c" by default. Exposed for tests and for platforms where the
	// teacher-style shells differ (spec.md treats the exact shell as an
	// external, platform-specific collaborator).
	Shell []string
	// Verbose tees subprocess stdout/stderr to this writer as it runs, in
	// addition to capturing it, matching the teacher's habit of logging
	// CombinedOutput() regardless of success.
	Verbose io.Writer
}

// DefaultOptions returns POSIX `sh -c` invocation with no tee writer.
func DefaultOptions() Options {
	return Options{Shell: []string{"sh", "-c"}}
}

// Run executes a check's command once in dir, honoring def.TimeoutSecs if
// set. env, if non-nil, is appended to the subprocess environment (used to
// set VERIFY_FILE for per-file mode). A timeout kills the whole process
// group, not just the direct child, since shell commands commonly spawn
// their own children.
func Run(ctx context.Context, def model.CheckDef, dir string, env []string, opts Options) (Outcome, error) {
	if def.Command == nil {
		return Outcome{}, fmt.Errorf("check %q has no command to run", def.Name)
	}

	shell := opts.Shell
	if len(shell) == 0 {
		shell = []string{"sh", "-c"}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if def.TimeoutSecs != nil {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(*def.TimeoutSecs)*time.Second)
		defer cancel()
	}

	args := append(append([]string(nil), shell[1:]...), *def.Command)
	cmd := exec.CommandContext(runCtx, shell[0], args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}

	var stdout, stderr bytes.Buffer
	if opts.Verbose != nil {
		cmd.Stdout = io.MultiWriter(&stdout, opts.Verbose)
		cmd.Stderr = io.MultiWriter(&stderr, opts.Verbose)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	outcome := Outcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if runCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		outcome.TimedOut = true
		outcome.ExitCode = -1
		metrics.ChecksTotal.WithLabelValues("timeout").Inc()
		return outcome, nil
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			outcome.ExitCode = exitErr.ExitCode()
			metrics.ChecksTotal.WithLabelValues("failed").Inc()
			return outcome, nil
		}
		return outcome, fmt.Errorf("run check %q: %w", def.Name, err)
	}

	outcome.ExitCode = 0
	outcome.Metadata = ExtractMetadata(def, outcome.Stdout+outcome.Stderr)
	metrics.ChecksTotal.WithLabelValues("passed").Inc()
	metrics.CheckDuration.WithLabelValues(def.Name).Observe(duration.Seconds())
	return outcome, nil
}

// killProcessGroup sends SIGKILL to the whole process group spawned for a
// timed-out command, so descendants the shell forked don't outlive it.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}

// ExtractMetadata applies a check's metadata regex patterns against
// combined stdout+stderr, returning the matched (or replaced) value per
// metadata key. A pattern that does not match is simply absent from the
// result (spec.md §4.5's metadata extraction is best-effort, never fatal).
func ExtractMetadata(def model.CheckDef, combinedOutput string) map[string]string {
	if len(def.Metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(def.Metadata))
	for key, pattern := range def.Metadata {
		re, err := regexp.Compile(pattern.Regex)
		if err != nil {
			continue
		}
		match := re.FindStringSubmatch(combinedOutput)
		if match == nil {
			continue
		}
		if pattern.HasReplace {
			out[key] = re.ReplaceAllString(match[0], pattern.Replacement)
		} else if len(match) > 1 {
			out[key] = match[1]
		} else {
			out[key] = match[0]
		}
	}
	return out
}
