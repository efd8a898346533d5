package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/verify/internal/model"
	"github.com/user/verify/internal/staleness"
	"github.com/user/verify/internal/store"
	"github.com/user/verify/internal/ui"
)

func cmdPtr(s string) *string { return &s }

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newOrchestrator(t *testing.T, root string, project *model.Project) *Orchestrator {
	t.Helper()
	project.Root = root
	o, err := New(project, Options{MaxWorkers: 2, Reporter: ui.NopReporter{}})
	require.NoError(t, err)
	return o
}

func TestRun_TrackedCheckVerifiesThenCachesOnRerun(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	project := &model.Project{Verifications: []model.CheckDef{
		{Name: "lint", Command: cmdPtr("exit 0"), CachePaths: []string{"**/*.go"}},
	}}
	o := newOrchestrator(t, root, project)

	results, err := o.Run(context.Background(), RunScope{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Verified)
	assert.True(t, results[0].Ran)

	o2 := newOrchestrator(t, root, &model.Project{Verifications: project.Verifications})
	results2, err := o2.Run(context.Background(), RunScope{})
	require.NoError(t, err)
	assert.True(t, results2[0].Verified)
	assert.False(t, results2[0].Ran, "unchanged content should be served from cache")
}

func TestRun_FailingCheckBlocksDependentAggregate(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	project := &model.Project{Verifications: []model.CheckDef{
		{Name: "lint", Command: cmdPtr("exit 1"), CachePaths: []string{"**/*.go"}},
		{Name: "ci", DependsOn: []string{"lint"}},
	}}
	o := newOrchestrator(t, root, project)

	results, err := o.Run(context.Background(), RunScope{})
	require.NoError(t, err)

	byName := map[string]CheckResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.False(t, byName["lint"].Verified)
	assert.False(t, byName["ci"].Verified)
	assert.Equal(t, model.Aggregate, byName["ci"].Classification)
}

func TestRun_UntrackedCheckAlwaysRuns(t *testing.T) {
	root := t.TempDir()
	project := &model.Project{Verifications: []model.CheckDef{
		{Name: "always", Command: cmdPtr("exit 0")},
	}}
	o := newOrchestrator(t, root, project)

	first, err := o.Run(context.Background(), RunScope{})
	require.NoError(t, err)
	assert.True(t, first[0].Ran)

	o2 := newOrchestrator(t, root, &model.Project{Verifications: project.Verifications})
	second, err := o2.Run(context.Background(), RunScope{})
	require.NoError(t, err)
	assert.True(t, second[0].Ran, "untracked checks never get cached")
}

func TestRun_PerFileSkipsUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "b.go", "package b\n")

	project := &model.Project{Verifications: []model.CheckDef{
		{Name: "fmt", Command: cmdPtr(`echo "$VERIFY_FILE" >> ran.log`), CachePaths: []string{"**/*.go"}, PerFile: true},
	}}
	o := newOrchestrator(t, root, project)

	results, err := o.Run(context.Background(), RunScope{})
	require.NoError(t, err)
	require.True(t, results[0].Verified)
	require.NoError(t, os.Remove(filepath.Join(root, "ran.log")))

	writeFile(t, root, "a.go", "package a\n\nvar X = 1\n")
	o2 := newOrchestrator(t, root, &model.Project{Verifications: project.Verifications})
	results2, err := o2.Run(context.Background(), RunScope{})
	require.NoError(t, err)
	assert.True(t, results2[0].Verified)
	assert.True(t, results2[0].Ran)

	ran, err := os.ReadFile(filepath.Join(root, "ran.log"))
	require.NoError(t, err)
	assert.Equal(t, "a.go\n", string(ran), "only the changed file is re-run")
}

func TestRun_SubProjectAggregatesNestedResult(t *testing.T) {
	root := t.TempDir()
	childDir := filepath.Join(root, "child")
	require.NoError(t, os.MkdirAll(childDir, 0o755))
	writeFile(t, childDir, "verify.yaml", "verifications:\n  - name: child-check\n    command: exit 0\n    cache_paths:\n      - \"**/*.go\"\n")
	writeFile(t, childDir, "x.go", "package x\n")

	childPath := "child"
	project := &model.Project{Verifications: []model.CheckDef{
		{Name: "nested", Path: &childPath},
	}}
	o := newOrchestrator(t, root, project)

	results, err := o.Run(context.Background(), RunScope{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.SubProject, results[0].Classification)
	assert.True(t, results[0].Verified)
}

func TestRun_TargetsScopeToDependencyClosure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	project := &model.Project{Verifications: []model.CheckDef{
		{Name: "lint", Command: cmdPtr("exit 0"), CachePaths: []string{"**/*.go"}},
		{Name: "test", Command: cmdPtr("exit 0"), CachePaths: []string{"**/*.go"}, DependsOn: []string{"lint"}},
		{Name: "unrelated", Command: cmdPtr("exit 0"), CachePaths: []string{"**/*.go"}},
	}}
	o := newOrchestrator(t, root, project)

	results, err := o.Run(context.Background(), RunScope{Targets: []string{"test"}})
	require.NoError(t, err)

	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	assert.ElementsMatch(t, []string{"lint", "test"}, names)
}

func TestRun_AllIgnoresTargets(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	project := &model.Project{Verifications: []model.CheckDef{
		{Name: "lint", Command: cmdPtr("exit 0"), CachePaths: []string{"**/*.go"}},
		{Name: "unrelated", Command: cmdPtr("exit 0"), CachePaths: []string{"**/*.go"}},
	}}
	o := newOrchestrator(t, root, project)

	results, err := o.Run(context.Background(), RunScope{Targets: []string{"lint"}, All: true})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRun_ForceReRunsAlreadyVerifiedCheck(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	project := &model.Project{Verifications: []model.CheckDef{
		{Name: "lint", Command: cmdPtr("exit 0"), CachePaths: []string{"**/*.go"}},
	}}
	o := newOrchestrator(t, root, project)
	_, err := o.Run(context.Background(), RunScope{})
	require.NoError(t, err)

	o2 := newOrchestrator(t, root, &model.Project{Verifications: project.Verifications})
	results, err := o2.Run(context.Background(), RunScope{Force: true})
	require.NoError(t, err)
	assert.True(t, results[0].Verified)
	assert.True(t, results[0].Ran, "--force re-runs a check even though its cache is still valid")
}

func TestRun_PopulatesMetadataInLockDocument(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	project := &model.Project{Verifications: []model.CheckDef{
		{
			Name:       "cover",
			Command:    cmdPtr("echo coverage: 87.5%"),
			CachePaths: []string{"**/*.go"},
			Metadata:   map[string]model.MetricPattern{"coverage": {Regex: `coverage: (\d+\.\d+)%`}},
		},
	}}
	o := newOrchestrator(t, root, project)

	results, err := o.Run(context.Background(), RunScope{})
	require.NoError(t, err)
	require.True(t, results[0].Verified)
	assert.Equal(t, "87.5", results[0].Metadata["coverage"])

	doc, err := store.Load(lockPath(root))
	require.NoError(t, err)
	assert.Equal(t, "87.5", doc.Checks["cover"].Metadata["coverage"])
}

func TestStatus_ReportsWithoutRunning(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	project := &model.Project{Verifications: []model.CheckDef{
		{Name: "lint", Command: cmdPtr("exit 0"), CachePaths: []string{"**/*.go"}},
	}}
	o := newOrchestrator(t, root, project)

	statuses, err := o.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Verified)
	assert.Equal(t, "lint", statuses[0].Name)
}

func TestRun_ReportsStaleDependencyName(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	project := &model.Project{Verifications: []model.CheckDef{
		{Name: "lint", Command: cmdPtr("exit 1"), CachePaths: []string{"**/*.go"}},
		{Name: "test", Command: cmdPtr("exit 0"), CachePaths: []string{"**/*.go"}, DependsOn: []string{"lint"}},
	}}
	o := newOrchestrator(t, root, project)

	results, err := o.Run(context.Background(), RunScope{})
	require.NoError(t, err)

	byName := map[string]CheckResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Equal(t, staleness.ReasonDependencyUnverified, byName["test"].Reason)
	assert.Equal(t, "lint", byName["test"].StaleDependency)
}

func TestReportStatus_JSONContract(t *testing.T) {
	r := CheckResult{Name: "test", Classification: model.Tracked, StaleDependency: "lint", Reason: staleness.ReasonDependencyUnverified}
	status := r.ReportStatus()
	assert.Equal(t, "test", status.Name)
	assert.Equal(t, "unverified", status.Status)
	assert.Equal(t, "DependencyUnverified", status.Reason)
	assert.Equal(t, "lint", status.StaleDependency)
}

func TestClean_NameOnlyRemovesOneEntry(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	project := &model.Project{Verifications: []model.CheckDef{
		{Name: "lint", Command: cmdPtr("exit 0"), CachePaths: []string{"**/*.go"}},
		{Name: "test", Command: cmdPtr("exit 0"), CachePaths: []string{"**/*.go"}},
	}}
	o := newOrchestrator(t, root, project)
	_, err := o.Run(context.Background(), RunScope{})
	require.NoError(t, err)

	require.NoError(t, o.Clean("lint"))

	doc, err := store.Load(lockPath(root))
	require.NoError(t, err)
	_, lintStillCached := doc.Checks["lint"]
	_, testStillCached := doc.Checks["test"]
	assert.False(t, lintStillCached)
	assert.True(t, testStillCached, "clean with a name must not touch other checks")
}

func TestClean_ClearsLockDocument(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	project := &model.Project{Verifications: []model.CheckDef{
		{Name: "lint", Command: cmdPtr("exit 0"), CachePaths: []string{"**/*.go"}},
	}}
	o := newOrchestrator(t, root, project)
	_, err := o.Run(context.Background(), RunScope{})
	require.NoError(t, err)

	require.NoError(t, o.Clean(""))

	o2 := newOrchestrator(t, root, &model.Project{Verifications: project.Verifications})
	results, err := o2.Run(context.Background(), RunScope{})
	require.NoError(t, err)
	assert.True(t, results[0].Ran, "a cleaned lock document forgets prior verification")
}
