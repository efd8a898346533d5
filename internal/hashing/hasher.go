// Package hashing computes the content-addressed fingerprints the engine
// caches against: per-file fingerprints, the sorted file-set content_hash,
// and the config_hash of a check's execution-affecting definition
// (spec.md §4.1). BLAKE3 is required so that fingerprints stay
// bit-compatible with other implementations that read the same lock file
// or commit trailer.
package hashing

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/zeebo/blake3"

	"github.com/user/verify/internal/model"
)

// DefaultMaxWorkers caps parallel file hashing the way the teacher's
// parallelHashFiles caps parallel SHA256 hashing: enough to saturate disk
// I/O without thrashing it.
const DefaultMaxWorkers = 8

// emptySetHash is the fixed canonical hash of a zero-file content set
// (spec.md §4.1: "the empty set has a fixed canonical hash").
var emptySetHash = hashBytes(nil)

func hashBytes(b []byte) string {
	h := blake3.New()
	_, _ = h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}

// FileFingerprint hashes a file's contents with BLAKE3. Symlinks are
// dereferenced (os.Open follows them); an unreadable file returns an error
// that callers should surface as an IOError aborting the check's staleness
// computation (spec.md §4.1).
func FileFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashJob/hashResult mirror the teacher's hashFileJob/hashFileResult shape,
// generalised from SHA256 to the BLAKE3 fingerprint above.
type hashJob struct {
	relPath  string
	fullPath string
}

type hashResult struct {
	relPath string
	hash    string
	err     error
}

// ParallelFingerprints computes FileFingerprint for every job concurrently
// on a bounded worker pool, the same pattern as the teacher's
// parallelHashFiles: a buffered job channel, N workers, a results channel
// drained into a map.
func ParallelFingerprints(jobs []hashJob, maxWorkers int) (map[string]string, error) {
	if len(jobs) == 0 {
		return map[string]string{}, nil
	}

	workers := maxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > DefaultMaxWorkers {
		workers = DefaultMaxWorkers
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobQueue := make(chan hashJob, len(jobs))
	results := make(chan hashResult, len(jobs))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobQueue {
				hash, err := FileFingerprint(job.fullPath)
				results <- hashResult{relPath: job.relPath, hash: hash, err: err}
			}
		}()
	}

	for _, job := range jobs {
		jobQueue <- job
	}
	close(jobQueue)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make(map[string]string, len(jobs))
	var firstErr error
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		out[r.relPath] = r.hash
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// ResolveFiles expands cache_paths (glob patterns, interpreted relative to
// root) into the deduplicated, sorted set of matched relative paths, using
// forward-slash normalised paths regardless of host OS (spec.md §4.1).
// The order patterns are given in does not affect the result.
func ResolveFiles(root string, patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(os.DirFS(root), pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			rel := filepath.ToSlash(m)
			if _, ok := seen[rel]; ok {
				continue
			}
			info, err := os.Stat(filepath.Join(root, m))
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", m, err)
			}
			if info.IsDir() {
				continue
			}
			seen[rel] = struct{}{}
			out = append(out, rel)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ContentHash resolves cache_paths under root and returns the file-set
// fingerprint (spec.md §4.1): a BLAKE3 hash over the sorted-by-path
// sequence of (relative_path, file_fingerprint), plus the map of relative
// path to fingerprint for per-file progress tracking. An empty match set
// returns the canonical empty-set hash.
func ContentHash(root string, patterns []string, maxWorkers int) (hash string, files map[string]string, err error) {
	relPaths, err := ResolveFiles(root, patterns)
	if err != nil {
		return "", nil, err
	}
	if len(relPaths) == 0 {
		return emptySetHash, map[string]string{}, nil
	}

	jobs := make([]hashJob, len(relPaths))
	for i, rel := range relPaths {
		jobs[i] = hashJob{relPath: rel, fullPath: filepath.Join(root, filepath.FromSlash(rel))}
	}
	fingerprints, err := ParallelFingerprints(jobs, maxWorkers)
	if err != nil {
		return "", nil, err
	}

	h := blake3.New()
	for _, rel := range relPaths {
		_, _ = h.Write([]byte(rel))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(fingerprints[rel]))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), fingerprints, nil
}

// StaleFiles computes the set of matched files whose current fingerprint
// differs from the cached per-file hash (spec.md §4.5 per-file execution).
func StaleFiles(root string, patterns []string, cached map[string]string) ([]string, error) {
	relPaths, err := ResolveFiles(root, patterns)
	if err != nil {
		return nil, err
	}
	var stale []string
	for _, rel := range relPaths {
		fp, err := FileFingerprint(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, err
		}
		if cached[rel] != fp {
			stale = append(stale, rel)
		}
	}
	sort.Strings(stale)
	return stale, nil
}

// ConfigHash fingerprints the execution-affecting fields of a check
// definition: command, cache_paths (order preserving, as written),
// timeout_secs, per_file, and metadata patterns in key order. name and
// depends_on are deliberately excluded (spec.md §4.1) so that renaming a
// check or rewiring its dependencies never, by itself, invalidates it.
func ConfigHash(def model.CheckDef) string {
	var sb strings.Builder

	if def.Command != nil {
		sb.WriteString("command:")
		sb.WriteString(*def.Command)
	} else {
		sb.WriteString("command:<nil>")
	}
	sb.WriteByte('\n')

	sb.WriteString("cache_paths:")
	for _, p := range def.CachePaths {
		sb.WriteString(p)
		sb.WriteByte(',')
	}
	sb.WriteByte('\n')

	sb.WriteString("timeout_secs:")
	if def.TimeoutSecs != nil {
		sb.WriteString(strconv.Itoa(*def.TimeoutSecs))
	} else {
		sb.WriteString("<nil>")
	}
	sb.WriteByte('\n')

	sb.WriteString("per_file:")
	sb.WriteString(strconv.FormatBool(def.PerFile))
	sb.WriteByte('\n')

	keys := make([]string, 0, len(def.Metadata))
	for k := range def.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sb.WriteString("metadata:")
	for _, k := range keys {
		p := def.Metadata[k]
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(p.Regex)
		sb.WriteByte('~')
		if p.HasReplace {
			sb.WriteString(p.Replacement)
		}
		sb.WriteByte(',')
	}

	return hashBytes([]byte(sb.String()))
}

// CombinedHash computes the trailer protocol's combined hash (spec.md §3):
// BLAKE3 of the concatenation configHash || contentHash, both given as hex
// strings. The raw hex bytes are hashed, not their decoded binary form,
// matching spec.md's literal "config_hash || content_hash" concatenation.
func CombinedHash(configHash, contentHash string) string {
	return hashBytes([]byte(configHash + contentHash))
}

// Truncate returns the first n hex characters of a hash, used by the
// trailer protocol's 8-char compact form (spec.md §4.6).
func Truncate(hash string, n int) string {
	if len(hash) <= n {
		return hash
	}
	return hash[:n]
}
