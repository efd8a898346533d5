// Package orchestrator wires the graph, staleness resolver, executor,
// store, and trailer protocol into the engine's top-level operations: run,
// status, and clean (spec.md §4.7); hash, sign, check, and sync are driven
// directly from cmd/ over internal/hashing and internal/trailer. It is the only
// package that knows about all the others; every other internal package
// stays independent and unit-testable.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/verify/internal/config"
	verrors "github.com/user/verify/internal/errors"
	"github.com/user/verify/internal/executor"
	"github.com/user/verify/internal/graph"
	"github.com/user/verify/internal/hashing"
	"github.com/user/verify/internal/logging"
	"github.com/user/verify/internal/model"
	"github.com/user/verify/internal/staleness"
	"github.com/user/verify/internal/store"
	"github.com/user/verify/internal/subproject"
	"github.com/user/verify/internal/trailer"
	"github.com/user/verify/internal/ui"
	"github.com/user/verify/internal/workerpool"
)

// LockFileName is the project-root-relative path to the cache document
// (spec.md's Open Question resolved: verify.lock lives next to
// verify.yaml, not under a dotdir, so it is visible and diffable in git).
const LockFileName = "verify.lock"

// CheckResult is one check's outcome for a single run, used by both the
// `run` and `status` commands' final report. Its own JSON encoding is not
// spec.md §6's documented contract (ReportStatus converts to that); tags
// here keep it from leaking internal Go field names if ever marshalled
// directly, e.g. in debug logging.
type CheckResult struct {
	Name            string               `json:"name"`
	Classification  model.Classification `json:"-"`
	Verified        bool                 `json:"-"`
	Reason          staleness.Reason     `json:"-"`
	StaleDependency string               `json:"-"`
	Ran             bool                 `json:"-"`
	ExitCode        int                  `json:"-"`
	TimedOut        bool                 `json:"-"`
	Skipped         bool                 `json:"-"`
	SkipCause       string               `json:"-"`
	Duration        time.Duration        `json:"-"`
	ConfigHash      string               `json:"-"`
	ContentHash     string               `json:"-"`
	CombinedHash    string               `json:"-"`
	Metadata        map[string]string    `json:"-"`
}

// Status is the JSON-serializable status line spec.md §6 documents for
// `verify status -o json`: {name, status, reason, stale_dependency,
// metadata}. Built from a CheckResult by ReportStatus.
type Status struct {
	Name            string            `json:"name"`
	Status          string            `json:"status"`
	Reason          string            `json:"reason,omitempty"`
	StaleDependency string            `json:"stale_dependency,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ReportStatus converts a CheckResult into the spec.md §6 JSON status
// contract, whose "status" field is one of "verified", "unverified", or
// "untracked" (Untracked checks always re-run, so they are reported as
// untracked rather than verified/unverified).
func (r CheckResult) ReportStatus() Status {
	s := Status{Name: r.Name, StaleDependency: r.StaleDependency, Metadata: r.Metadata}
	switch {
	case r.Classification == model.Untracked:
		s.Status = "untracked"
	case r.Verified:
		s.Status = "verified"
	default:
		s.Status = "unverified"
		s.Reason = r.Reason.String()
	}
	return s
}

// Options configures a run.
type Options struct {
	MaxWorkers int
	Verbose    bool
	Reporter   ui.Reporter
	Logger     *logging.Logger
}

// RunScope narrows a Run to a subset of checks and optionally forces
// re-execution regardless of cached verification (spec.md §4.7's
// `run [targets…] [--force] [--all]`). The zero value runs every check in
// the project, honoring staleness as usual.
type RunScope struct {
	// Targets, when non-empty, scopes the run to these checks and every
	// check they transitively depend on. Ignored when All is set.
	Targets []string
	// All forces the full-project selection even if Targets is set,
	// letting `--all --force` force-rerun everything without naming
	// every check.
	All bool
	// Force treats every selected check as stale, re-running it even if
	// its cached verification is still valid.
	Force bool
}

// Orchestrator runs verify.yaml operations against one project tree.
type Orchestrator struct {
	project *model.Project
	graph   *graph.Graph
	doc     *store.Document
	docMu   sync.Mutex // guards doc.Checks writes from concurrent wave workers
	opts    Options

	// sharedVisited, when set, is used instead of a fresh visited set so a
	// sub-project orchestrator participates in its ancestors' cycle check.
	sharedVisited *subproject.Visited
}

// New validates project's checks into a Graph and loads its lock document,
// returning an Orchestrator ready to run operations.
func New(project *model.Project, opts Options) (*Orchestrator, error) {
	g, err := graph.Build(project.Verifications)
	if err != nil {
		return nil, err
	}
	doc, err := store.Load(lockPath(project.Root))
	if err != nil {
		return nil, err
	}
	if opts.Reporter == nil {
		opts.Reporter = ui.NopReporter{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	return &Orchestrator{project: project, graph: g, doc: doc, opts: opts}, nil
}

func lockPath(root string) string {
	return filepath.Join(root, LockFileName)
}

// snapshotDoc copies the current lock document's check entries under lock,
// giving wave workers a consistent, race-free read view.
func (o *Orchestrator) snapshotDoc() *store.Document {
	o.docMu.Lock()
	defer o.docMu.Unlock()
	checks := make(map[string]store.CheckEntry, len(o.doc.Checks))
	for k, v := range o.doc.Checks {
		checks[k] = v
	}
	return &store.Document{Version: o.doc.Version, Checks: checks}
}

// Run executes every Untracked and stale Tracked check, wave by wave,
// skipping a check whose dependency failed or was itself skipped, and
// persists the updated lock document after each wave completes (so a run
// interrupted mid-way keeps the waves it finished). It returns one
// CheckResult per selected check, in name order, and a non-nil error for
// an unknown target, an unresolvable project root, or a lock document that
// cannot be written after a wave (graph/config errors are surfaced by New,
// not Run).
func (o *Orchestrator) Run(ctx context.Context, scope RunScope) ([]CheckResult, error) {
	selected, err := o.resolveScope(scope)
	if err != nil {
		return nil, err
	}

	pool := workerpool.New(o.opts.MaxWorkers)
	results := make(map[string]CheckResult, len(selected))
	statuses := make(map[string]staleness.Status, len(selected))
	visited := o.sharedVisited
	if visited == nil {
		visited, err = subproject.NewVisited(o.project.Root)
		if err != nil {
			return nil, err
		}
	}

	for _, name := range selected {
		o.opts.Reporter.AddCheck(name)
	}
	o.opts.Reporter.Begin()
	defer o.opts.Reporter.End()

	for _, wave := range o.graph.Waves() {
		type job struct {
			name string
			def  model.CheckDef
		}
		var jobs []job
		for _, name := range wave {
			if !selected[name] {
				continue
			}
			def, _ := o.graph.Check(name)
			jobs = append(jobs, job{name: name, def: def})
		}
		if len(jobs) == 0 {
			continue
		}

		// Snapshot the lock document before dispatching the wave: each
		// worker reads it (via the staleness resolver) while sibling
		// workers concurrently write their own outcomes back through
		// recordSuccess, and Go maps tolerate neither concurrent reads
		// during a write nor concurrent writes to different keys.
		snapshot := o.snapshotDoc()

		tasks := make([]workerpool.Task, len(jobs))
		for i, j := range jobs {
			j := j
			tasks[i] = func(ctx context.Context) (interface{}, error) {
				res, st := o.runOne(ctx, j.def, snapshot, statuses, visited, scope.Force)
				return struct {
					name string
					res  CheckResult
					st   staleness.Status
				}{j.name, res, st}, nil
			}
		}

		outcomes := pool.Run(ctx, tasks)
		for _, o2 := range outcomes {
			if o2.Error != nil {
				continue
			}
			v := o2.Value.(struct {
				name string
				res  CheckResult
				st   staleness.Status
			})
			results[v.name] = v.res
			statuses[v.name] = v.st
		}

		if err := store.Save(lockPath(o.project.Root), o.doc); err != nil {
			return nil, verrors.NewIOError(lockPath(o.project.Root), err)
		}
	}

	o.opts.Reporter.Summary()

	out := make([]CheckResult, 0, len(selected))
	for _, name := range o.graph.Names() {
		if selected[name] {
			out = append(out, results[name])
		}
	}
	return out, nil
}

// resolveScope turns a RunScope into the set of check names a Run should
// dispatch: every check when scope is empty or All is set, otherwise the
// dependency closure of Targets (spec.md §4.7).
func (o *Orchestrator) resolveScope(scope RunScope) (map[string]bool, error) {
	selected := make(map[string]bool, len(o.graph.Names()))
	if scope.All || len(scope.Targets) == 0 {
		for _, name := range o.graph.Names() {
			selected[name] = true
		}
		return selected, nil
	}
	closure, err := o.graph.Closure(scope.Targets)
	if err != nil {
		return nil, err
	}
	for _, name := range closure {
		selected[name] = true
	}
	return selected, nil
}

func (o *Orchestrator) runOne(ctx context.Context, def model.CheckDef, doc *store.Document, priorStatuses map[string]staleness.Status, visited *subproject.Visited, force bool) (CheckResult, staleness.Status) {
	result := CheckResult{Name: def.Name, Classification: model.Classify(def)}

	if result.Classification == model.SubProject {
		o.opts.Reporter.Start(def.Name)
		childRoot := filepath.Join(o.project.Root, *def.Path)
		verified := o.runSubProject(ctx, childRoot, visited)
		result.Verified = verified
		st := staleness.Status{Classification: model.SubProject}
		if verified {
			o.opts.Reporter.Verified(def.Name)
		} else {
			o.opts.Reporter.Failed(def.Name, fmt.Errorf("sub-project has unverified checks"))
		}
		return result, st
	}

	configHash := hashing.ConfigHash(def)
	var contentHash string
	var files map[string]string
	if result.Classification == model.Tracked {
		var err error
		contentHash, files, err = hashing.ContentHash(o.project.Root, def.CachePaths, o.opts.MaxWorkers)
		if err != nil {
			o.opts.Reporter.Failed(def.Name, err)
			return result, staleness.Status{Classification: model.Tracked}
		}
	}
	result.ConfigHash = configHash
	result.ContentHash = contentHash
	result.CombinedHash = hashing.CombinedHash(configHash, contentHash)

	resolver := staleness.NewResolver(doc)
	st := resolver.Resolve(def, configHash, contentHash, priorStatuses, nil)
	if st.Reason != staleness.ReasonDependencyUnverified {
		// Resolve ranks NeverRun and ConfigChanged above a failed
		// dependency and gives Untracked checks no reason at all, yet a
		// check whose dependency did not verify in this run must not run.
		for _, dep := range def.DependsOn {
			if ds, ok := priorStatuses[dep]; ok && ds.Classification != model.SubProject && !ds.Verified {
				st = staleness.Status{Classification: result.Classification, Reason: staleness.ReasonDependencyUnverified, StaleDependency: dep}
				break
			}
		}
	}
	result.Reason = st.Reason
	result.StaleDependency = st.StaleDependency

	if result.Classification == model.Aggregate {
		result.Verified = st.Verified
		if st.Verified {
			o.opts.Reporter.Aggregate(def.Name)
		} else {
			o.opts.Reporter.Failed(def.Name, fmt.Errorf("dependency unverified"))
		}
		return result, st
	}

	if st.Reason == staleness.ReasonDependencyUnverified {
		result.Skipped = true
		result.SkipCause = "dependency unverified"
		o.opts.Reporter.Skipped(def.Name)
		return result, st
	}

	if result.Classification == model.Untracked || !st.Verified || force {
		o.opts.Reporter.Start(def.Name)

		if def.PerFile && result.Classification == model.Tracked {
			return o.runPerFile(ctx, def, doc, configHash, contentHash, files, result, force)
		}

		outcome, err := executor.Run(ctx, def, o.project.Root, nil, executor.DefaultOptions())
		if err != nil {
			o.opts.Reporter.Failed(def.Name, err)
			result.Skipped = true
			result.SkipCause = err.Error()
			return result, staleness.Status{Classification: result.Classification}
		}
		result.Ran = true
		result.ExitCode = outcome.ExitCode
		result.TimedOut = outcome.TimedOut
		result.Duration = outcome.Duration

		if outcome.ExitCode == 0 && !outcome.TimedOut {
			result.Verified = true
			result.Metadata = outcome.Metadata
			o.recordSuccess(def, configHash, contentHash, files, outcome.Metadata)
			o.opts.Reporter.Verified(def.Name)
		} else {
			o.opts.Reporter.Failed(def.Name, verrors.NewCommandFailure(def.Name, outcome.ExitCode, outcome.TimedOut))
		}
		st = staleness.Status{Classification: result.Classification, Verified: result.Verified}
		return result, st
	}

	result.Verified = true
	o.opts.Reporter.Verified(def.Name)
	return result, st
}

// runPerFile executes a per_file check's command once per stale file,
// sequentially, writing the lock document after each file so a run
// interrupted partway through a large file set keeps every file already
// verified (spec.md §4.5). A single file's failure fails the whole check
// but does not discard progress recorded for files that already passed.
func (o *Orchestrator) runPerFile(ctx context.Context, def model.CheckDef, doc *store.Document, configHash, contentHash string, files map[string]string, result CheckResult, force bool) (CheckResult, staleness.Status) {
	prevFiles := map[string]string{}
	if entry, ok := doc.Checks[def.Name]; ok && entry.ConfigHash == configHash {
		prevFiles = entry.Files
	}

	verifiedFiles := make(map[string]string, len(files))
	metadata := map[string]string{}
	relPaths := make([]string, 0, len(files))
	for rel := range files {
		relPaths = append(relPaths, rel)
	}
	sort.Strings(relPaths)

	for _, rel := range relPaths {
		fp := files[rel]
		if !force && prevFiles[rel] == fp {
			verifiedFiles[rel] = fp
			continue
		}

		env := []string{"VERIFY_FILE=" + rel}
		outcome, err := executor.Run(ctx, def, o.project.Root, env, executor.DefaultOptions())
		result.Ran = true
		if err != nil {
			o.opts.Reporter.Failed(def.Name, err)
			result.SkipCause = err.Error()
			o.recordPartial(def, configHash, verifiedFiles)
			return result, staleness.Status{Classification: model.Tracked}
		}
		if outcome.ExitCode != 0 || outcome.TimedOut {
			o.opts.Reporter.Failed(def.Name, verrors.NewCommandFailure(def.Name, outcome.ExitCode, outcome.TimedOut))
			result.ExitCode = outcome.ExitCode
			result.TimedOut = outcome.TimedOut
			o.recordPartial(def, configHash, verifiedFiles)
			return result, staleness.Status{Classification: model.Tracked}
		}

		for k, v := range outcome.Metadata {
			metadata[k] = v
		}
		verifiedFiles[rel] = fp
		o.recordPartial(def, configHash, verifiedFiles)
	}

	result.Verified = true
	if len(metadata) > 0 {
		result.Metadata = metadata
	}
	o.recordSuccess(def, configHash, contentHash, verifiedFiles, result.Metadata)
	o.opts.Reporter.Verified(def.Name)
	return result, staleness.Status{Classification: model.Tracked, Verified: true}
}

// recordPartial persists a per_file check's progress mid-run: the files
// verified so far, with no content_hash yet (the check as a whole is not
// verified until every stale file passes).
func (o *Orchestrator) recordPartial(def model.CheckDef, configHash string, verifiedFiles map[string]string) {
	entry := store.CheckEntry{
		ConfigHash: configHash,
		Files:      copyFileMap(verifiedFiles),
		VerifiedAt: time.Now(),
	}
	o.docMu.Lock()
	o.doc.Checks[def.Name] = entry
	_ = store.Save(lockPath(o.project.Root), o.doc)
	o.docMu.Unlock()
}

func copyFileMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (o *Orchestrator) recordSuccess(def model.CheckDef, configHash, contentHash string, files map[string]string, metadata map[string]string) {
	entry := store.CheckEntry{
		ConfigHash:  configHash,
		ContentHash: contentHash,
		Files:       files,
		GitCommit:   trailer.CurrentCommit(context.Background(), o.project.Root),
		VerifiedAt:  time.Now(),
		Metadata:    metadata,
	}
	o.docMu.Lock()
	o.doc.Checks[def.Name] = entry
	o.docMu.Unlock()
}

// runSubProject recursively loads and runs a nested verify.yaml, returning
// true only if every one of its checks verified. The nested run shares this
// invocation's visited set (so a cycle anywhere in the tree is caught) but
// gets its own lock document, graph, and worker pool sized the same as the
// parent's.
func (o *Orchestrator) runSubProject(ctx context.Context, childRoot string, visited *subproject.Visited) bool {
	if err := visited.Enter(childRoot); err != nil {
		o.opts.Logger.Warn("sub-project cycle", zap.String("path", childRoot))
		return false
	}
	defer visited.Leave(childRoot)

	childProject, err := config.NewLoader().Load(childRoot, nil)
	if err != nil {
		o.opts.Logger.Warn("failed to load sub-project", zap.String("path", childRoot), zap.Error(err))
		return false
	}

	child, err := newChild(childProject, o.opts, visited)
	if err != nil {
		o.opts.Logger.Warn("failed to build sub-project orchestrator", zap.String("path", childRoot), zap.Error(err))
		return false
	}

	results, err := child.Run(ctx, RunScope{})
	if err != nil {
		o.opts.Logger.Warn("sub-project run failed", zap.String("path", childRoot), zap.Error(err))
		return false
	}

	for _, r := range results {
		if !r.Verified {
			return false
		}
	}
	return true
}

// newChild builds a nested Orchestrator for a sub-project, reusing the
// parent's visited set so a cycle through any descendant aborts cleanly,
// and silencing the reporter since sub-project progress is collapsed into
// a single line by the parent's runOne.
func newChild(project *model.Project, parentOpts Options, visited *subproject.Visited) (*Orchestrator, error) {
	g, err := graph.Build(project.Verifications)
	if err != nil {
		return nil, err
	}
	doc, err := store.Load(lockPath(project.Root))
	if err != nil {
		return nil, err
	}
	childOpts := Options{
		MaxWorkers: parentOpts.MaxWorkers,
		Verbose:    parentOpts.Verbose,
		Reporter:   ui.NopReporter{},
		Logger:     parentOpts.Logger,
	}
	return &Orchestrator{project: project, graph: g, doc: doc, opts: childOpts, sharedVisited: visited}, nil
}

// Status reports the current classification of every check without
// running anything: it's Run's resolution pass, no execution, no write.
func (o *Orchestrator) Status(ctx context.Context) ([]CheckResult, error) {
	resolver := staleness.NewResolver(o.doc)
	statuses := make(map[string]staleness.Status, len(o.graph.Names()))
	results := make([]CheckResult, 0, len(o.graph.Names()))

	for _, wave := range o.graph.Waves() {
		for _, name := range wave {
			def, _ := o.graph.Check(name)
			class := model.Classify(def)
			result := CheckResult{Name: name, Classification: class}

			var configHash, contentHash string
			if class == model.Tracked || class == model.Untracked {
				configHash = hashing.ConfigHash(def)
			}
			if class == model.Tracked {
				var err error
				contentHash, _, err = hashing.ContentHash(o.project.Root, def.CachePaths, o.opts.MaxWorkers)
				if err != nil {
					results = append(results, result)
					continue
				}
			}
			result.ConfigHash = configHash
			result.ContentHash = contentHash

			st := resolver.Resolve(def, configHash, contentHash, statuses, nil)
			result.Reason = st.Reason
			result.Verified = st.Verified
			result.StaleDependency = st.StaleDependency
			if entry, ok := o.doc.Checks[name]; ok {
				result.Metadata = entry.Metadata
			}
			statuses[name] = st
			results = append(results, result)
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results, nil
}

// Clean removes a check's lock entry so it is re-verified on the next run.
// With an empty name it replaces the whole document, the equivalent of
// "forget everything was ever verified" (spec.md §4.7's `verify clean`
// with no argument); with a name it deletes just that entry, leaving
// every other check's proof intact (`verify clean <name>`). Cleaning an
// unknown name is a no-op, not an error, matching `rm -f`'s idempotence.
func (o *Orchestrator) Clean(name string) error {
	if name == "" {
		o.doc = store.NewDocument()
	} else {
		delete(o.doc.Checks, name)
	}
	return store.Save(lockPath(o.project.Root), o.doc)
}
