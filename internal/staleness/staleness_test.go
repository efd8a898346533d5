package staleness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/user/verify/internal/model"
	"github.com/user/verify/internal/store"
)

func cmdPtr(s string) *string { return &s }

func newTrackedDef(name string, deps ...string) model.CheckDef {
	return model.CheckDef{Name: name, Command: cmdPtr("echo"), CachePaths: []string{"**/*.go"}, DependsOn: deps}
}

func TestResolve_NeverRun(t *testing.T) {
	doc := store.NewDocument()
	r := NewResolver(doc)
	st := r.Resolve(newTrackedDef("test"), "cfg1", "content1", nil, nil)
	assert.Equal(t, ReasonNeverRun, st.Reason)
	assert.False(t, st.Verified)
}

func TestResolve_NullContentHashIsNeverRun(t *testing.T) {
	doc := store.NewDocument()
	doc.Checks["test"] = store.CheckEntry{ConfigHash: "cfg1", ContentHash: ""}
	r := NewResolver(doc)
	st := r.Resolve(newTrackedDef("test"), "cfg1", "content1", nil, nil)
	assert.Equal(t, ReasonNeverRun, st.Reason)
}

func TestResolve_ConfigChanged(t *testing.T) {
	doc := store.NewDocument()
	doc.Checks["test"] = store.CheckEntry{ConfigHash: "old-cfg", ContentHash: "content1"}
	r := NewResolver(doc)
	st := r.Resolve(newTrackedDef("test"), "new-cfg", "content1", nil, nil)
	assert.Equal(t, ReasonConfigChanged, st.Reason)
}

func TestResolve_FilesChanged(t *testing.T) {
	doc := store.NewDocument()
	doc.Checks["test"] = store.CheckEntry{ConfigHash: "cfg1", ContentHash: "old-content"}
	r := NewResolver(doc)
	st := r.Resolve(newTrackedDef("test"), "cfg1", "new-content", nil, nil)
	assert.Equal(t, ReasonFilesChanged, st.Reason)
}

func TestResolve_Verified(t *testing.T) {
	doc := store.NewDocument()
	doc.Checks["test"] = store.CheckEntry{ConfigHash: "cfg1", ContentHash: "content1"}
	r := NewResolver(doc)
	st := r.Resolve(newTrackedDef("test"), "cfg1", "content1", nil, nil)
	assert.True(t, st.Verified)
	assert.Equal(t, ReasonNone, st.Reason)
}

func TestResolve_DependencyUnverifiedPrecedesFilesChanged(t *testing.T) {
	doc := store.NewDocument()
	doc.Checks["test"] = store.CheckEntry{ConfigHash: "cfg1", ContentHash: "old-content"}
	r := NewResolver(doc)
	deps := map[string]Status{"lint": {Classification: model.Tracked, Verified: false}}
	st := r.Resolve(newTrackedDef("test", "lint"), "cfg1", "new-content", deps, nil)
	assert.Equal(t, ReasonDependencyUnverified, st.Reason)
	assert.Equal(t, "lint", st.StaleDependency)
}

func TestResolve_ConfigChangedPrecedesDependencyUnverified(t *testing.T) {
	doc := store.NewDocument()
	doc.Checks["test"] = store.CheckEntry{ConfigHash: "old-cfg", ContentHash: "content1"}
	r := NewResolver(doc)
	deps := map[string]Status{"lint": {Classification: model.Tracked, Verified: false}}
	st := r.Resolve(newTrackedDef("test", "lint"), "new-cfg", "content1", deps, nil)
	assert.Equal(t, ReasonConfigChanged, st.Reason)
}

func TestResolve_Aggregate(t *testing.T) {
	doc := store.NewDocument()
	r := NewResolver(doc)

	t.Run("all dependencies verified", func(t *testing.T) {
		deps := map[string]Status{"lint": {Classification: model.Tracked, Verified: true}}
		st := r.Resolve(model.CheckDef{Name: "ci", DependsOn: []string{"lint"}}, "", "", deps, nil)
		assert.Equal(t, model.Aggregate, st.Classification)
		assert.True(t, st.Verified)
	})

	t.Run("a dependency is unverified", func(t *testing.T) {
		deps := map[string]Status{"lint": {Classification: model.Tracked, Verified: false}}
		st := r.Resolve(model.CheckDef{Name: "ci", DependsOn: []string{"lint"}}, "", "", deps, nil)
		assert.False(t, st.Verified)
		assert.Equal(t, ReasonDependencyUnverified, st.Reason)
		assert.Equal(t, "lint", st.StaleDependency)
	})
}

func TestResolve_UntrackedAlwaysUnverified(t *testing.T) {
	doc := store.NewDocument()
	r := NewResolver(doc)
	st := r.Resolve(model.CheckDef{Name: "lint", Command: cmdPtr("echo")}, "cfg", "", nil, nil)
	assert.Equal(t, model.Untracked, st.Classification)
	assert.False(t, st.Verified)
}
