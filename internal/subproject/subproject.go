// Package subproject resolves SubProject checks (a check whose `path`
// field points at a nested verify.yaml) recursively, guarding against a
// sub-project that loops back to one of its own ancestors (spec.md §4.3).
// The canonical-path visited-set pattern is grounded on the Lucho00Cuba-mtc
// merkle engine's circular-symlink detection (other_examples), adapted
// here from filesystem-path cycles during hashing to project-path cycles
// during config resolution.
package subproject

import (
	"path/filepath"

	verrors "github.com/user/verify/internal/errors"
)

// Visited tracks the canonical absolute paths of every project entered so
// far in the current run, so a chain of sub-project references that loops
// back to an ancestor is caught immediately instead of recursing forever.
type Visited struct {
	seen map[string]bool
}

// NewVisited creates an empty visited set seeded with the root project's
// own canonical path.
func NewVisited(rootPath string) (*Visited, error) {
	v := &Visited{seen: map[string]bool{}}
	canon, err := canonicalize(rootPath)
	if err != nil {
		return nil, err
	}
	v.seen[canon] = true
	return v, nil
}

// Enter records entry into a sub-project path, returning a ConfigError if
// that canonical path was already visited in this run.
func (v *Visited) Enter(path string) error {
	canon, err := canonicalize(path)
	if err != nil {
		return verrors.NewConfigFileError(path, err)
	}
	if v.seen[canon] {
		return verrors.NewSubProjectCycleError(canon)
	}
	v.seen[canon] = true
	return nil
}

// Leave removes a path from the visited set once its sub-project's checks
// have finished resolving, allowing sibling branches of the graph to enter
// a project with the same path if it is referenced from more than one
// place (but never from an ancestor of itself).
func (v *Visited) Leave(path string) {
	canon, err := canonicalize(path)
	if err != nil {
		return
	}
	delete(v.seen, canon)
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
