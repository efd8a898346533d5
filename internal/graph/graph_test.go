package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/user/verify/internal/errors"
	"github.com/user/verify/internal/model"
)

func cmdPtr(s string) *string { return &s }

func TestBuild_DuplicateName(t *testing.T) {
	_, err := Build([]model.CheckDef{
		{Name: "lint", Command: cmdPtr("echo")},
		{Name: "lint", Command: cmdPtr("echo")},
	})
	require.Error(t, err)
	var ce *verrors.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestBuild_UnknownDependency(t *testing.T) {
	_, err := Build([]model.CheckDef{
		{Name: "test", Command: cmdPtr("echo"), DependsOn: []string{"missing"}},
	})
	require.Error(t, err)
}

func TestBuild_Cycle(t *testing.T) {
	_, err := Build([]model.CheckDef{
		{Name: "a", Command: cmdPtr("echo"), DependsOn: []string{"b"}},
		{Name: "b", Command: cmdPtr("echo"), DependsOn: []string{"a"}},
	})
	require.Error(t, err)
}

func TestBuild_SelfLoop(t *testing.T) {
	_, err := Build([]model.CheckDef{
		{Name: "a", Command: cmdPtr("echo"), DependsOn: []string{"a"}},
	})
	require.Error(t, err)
}

func TestWaves_RespectsDependencies(t *testing.T) {
	g, err := Build([]model.CheckDef{
		{Name: "lint", Command: cmdPtr("echo")},
		{Name: "test", Command: cmdPtr("echo"), DependsOn: []string{"lint"}},
		{Name: "build", Command: cmdPtr("echo")},
		{Name: "ci", DependsOn: []string{"test", "build"}},
	})
	require.NoError(t, err)

	waves := g.Waves()
	require.Len(t, waves, 3)
	assert.Equal(t, []string{"build", "lint"}, waves[0])
	assert.Equal(t, []string{"test"}, waves[1])
	assert.Equal(t, []string{"ci"}, waves[2])
}

func TestTransitiveDependents(t *testing.T) {
	g, err := Build([]model.CheckDef{
		{Name: "lint", Command: cmdPtr("echo")},
		{Name: "test", Command: cmdPtr("echo"), DependsOn: []string{"lint"}},
		{Name: "ci", DependsOn: []string{"test"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ci", "test"}, g.TransitiveDependents("lint"))
	assert.Empty(t, g.TransitiveDependents("ci"))
}

func TestClosure_IncludesTransitiveDependencies(t *testing.T) {
	g, err := Build([]model.CheckDef{
		{Name: "lint", Command: cmdPtr("echo")},
		{Name: "test", Command: cmdPtr("echo"), DependsOn: []string{"lint"}},
		{Name: "ci", DependsOn: []string{"test"}},
		{Name: "unrelated", Command: cmdPtr("echo")},
	})
	require.NoError(t, err)

	closure, err := g.Closure([]string{"ci"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ci", "lint", "test"}, closure)
}

func TestClosure_UnknownTargetErrors(t *testing.T) {
	g, err := Build([]model.CheckDef{
		{Name: "lint", Command: cmdPtr("echo")},
	})
	require.NoError(t, err)

	_, err = g.Closure([]string{"missing"})
	assert.Error(t, err)
}

func TestDependsOnAndDependents(t *testing.T) {
	g, err := Build([]model.CheckDef{
		{Name: "lint", Command: cmdPtr("echo")},
		{Name: "test", Command: cmdPtr("echo"), DependsOn: []string{"lint"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"lint"}, g.DependsOn("test"))
	assert.Equal(t, []string{"test"}, g.Dependents("lint"))
}
