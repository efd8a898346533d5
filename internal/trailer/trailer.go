// Package trailer implements the commit-trailer VCS protocol (spec.md §4.6):
// externalizing proof that a check was verified into a `Verified:` trailer
// on the commit that introduced the change, so CI can check a trailer
// instead of re-running the check. It shells out to the real git binary,
// the same pattern as the teacher's GetCurrentGitCommit in
// internal/cache/cache.go, generalised from a single `git rev-parse` call
// to the trailer-read/write/interpret surface this protocol needs.
package trailer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	verrors "github.com/user/verify/internal/errors"
)

// TrailerKey is the commit trailer token the protocol reads and writes.
const TrailerKey = "Verified"

// Entry is one check's compact (name, truncated-hash) pair as it appears
// inside the trailer value, e.g. "lint:8b3c9fa2".
type Entry struct {
	Check string
	Hash  string // 8-hex-char truncated combined hash
}

func (e Entry) String() string {
	return fmt.Sprintf("%s:%s", e.Check, e.Hash)
}

// run executes git with the given args in dir and returns trimmed stdout.
func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CurrentCommit returns the short HEAD commit hash, or "" if the directory
// is not inside a git work tree.
func CurrentCommit(ctx context.Context, dir string) string {
	out, err := run(ctx, dir, "rev-parse", "--short", "HEAD")
	if err != nil {
		return ""
	}
	return out
}

// FormatValue renders a trailer value from entries, sorted by check name
// for a deterministic, diff-friendly trailer line.
func FormatValue(entries []Entry) string {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Check < sorted[j].Check })
	parts := make([]string, len(sorted))
	for i, e := range sorted {
		parts[i] = e.String()
	}
	return strings.Join(parts, ",")
}

// ParseValue parses a trailer value back into entries. Malformed segments
// (missing the ":" separator) are skipped rather than erroring, since a
// hand-edited commit message should degrade to "no proof for this check"
// rather than abort the whole command.
func ParseValue(value string) []Entry {
	var entries []Entry
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.LastIndex(part, ":")
		if idx < 0 {
			continue
		}
		entries = append(entries, Entry{Check: part[:idx], Hash: part[idx+1:]})
	}
	return entries
}

// ReadCommitTrailers returns the Verified trailer value for a given commit
// ("HEAD" for the current one), or "" if the commit has no such trailer.
func ReadCommitTrailers(ctx context.Context, dir, commit string) (string, error) {
	body, err := run(ctx, dir, "log", "-1", "--format=%B", commit)
	if err != nil {
		return "", verrors.NewIOError(dir, err)
	}
	out, err := runWithStdin(ctx, dir, body, "interpret-trailers", "--parse", "--only-trailers")
	if err != nil {
		return "", verrors.NewIOError(dir, err)
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, TrailerKey+":") {
			return strings.TrimSpace(strings.TrimPrefix(line, TrailerKey+":")), nil
		}
	}
	return "", nil
}

func runWithStdin(ctx context.Context, dir, stdin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// AppendTrailer amends HEAD's commit message to add or replace the
// Verified trailer with value, using `git interpret-trailers --trailer`
// piped through `git commit --amend -F-`. Only the trailer is touched; the
// rest of the message (subject, body, other trailers) is preserved.
func AppendTrailer(ctx context.Context, dir, value string) error {
	body, err := run(ctx, dir, "log", "-1", "--format=%B")
	if err != nil {
		return verrors.NewIOError(dir, err)
	}
	newBody, err := runWithStdin(ctx, dir, body, "interpret-trailers",
		"--trailer", fmt.Sprintf("%s=%s", TrailerKey, value), "--if-exists", "replace", "--trim-empty")
	if err != nil {
		return verrors.NewIOError(dir, err)
	}

	cmd := exec.CommandContext(ctx, "git", "commit", "--amend", "-F-")
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(newBody)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git commit --amend: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Diff reports which expected entries are missing or mismatched against an
// actual parsed trailer, keyed by check name, used to build a
// TrailerMismatch error (spec.md §7).
func Diff(expected, actual []Entry) map[string]string {
	actualByCheck := make(map[string]Entry, len(actual))
	for _, e := range actual {
		actualByCheck[e.Check] = e
	}
	diffs := make(map[string]string)
	for _, exp := range expected {
		act, ok := actualByCheck[exp.Check]
		if !ok {
			diffs[exp.Check] = "missing from trailer"
			continue
		}
		if act.Hash != exp.Hash {
			diffs[exp.Check] = fmt.Sprintf("trailer has %s, expected %s", act.Hash, exp.Hash)
		}
	}
	return diffs
}
