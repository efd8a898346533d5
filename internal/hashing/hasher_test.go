package hashing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/verify/internal/model"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func TestFileFingerprint_Deterministic(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "hello"})
	h1, err := FileFingerprint(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	h2, err := FileFingerprint(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestFileFingerprint_ChangesWithContent(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "hello"})
	before, err := FileFingerprint(filepath.Join(root, "a.txt"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("world"), 0o644))
	after, err := FileFingerprint(filepath.Join(root, "a.txt"))
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestResolveFiles_GlobAndDedup(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.go":        "package a",
		"b.go":        "package b",
		"sub/c.go":    "package c",
		"README.md":   "# readme",
	})

	files, err := ResolveFiles(root, []string{"**/*.go", "a.go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go", "sub/c.go"}, files)
}

func TestContentHash_EmptySetIsCanonical(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "hello"})
	hash, files, err := ContentHash(root, []string{"*.nonexistent"}, 0)
	require.NoError(t, err)
	assert.Equal(t, emptySetHash, hash)
	assert.Empty(t, files)
}

func TestContentHash_OrderIndependent(t *testing.T) {
	root := writeTree(t, map[string]string{"a.go": "a", "b.go": "b"})
	h1, _, err := ContentHash(root, []string{"b.go", "a.go"}, 0)
	require.NoError(t, err)
	h2, _, err := ContentHash(root, []string{"a.go", "b.go"}, 0)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestContentHash_ChangesWhenFileChanges(t *testing.T) {
	root := writeTree(t, map[string]string{"a.go": "a"})
	before, _, err := ContentHash(root, []string{"*.go"}, 0)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("changed"), 0o644))
	after, _, err := ContentHash(root, []string{"*.go"}, 0)
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestStaleFiles(t *testing.T) {
	root := writeTree(t, map[string]string{"a.go": "a", "b.go": "b"})
	_, files, err := ContentHash(root, []string{"*.go"}, 0)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "b.go"), []byte("changed"), 0o644))

	stale, err := StaleFiles(root, []string{"*.go"}, files)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.go"}, stale)
}

func TestConfigHash_ExcludesNameAndDependsOn(t *testing.T) {
	cmd := "go test ./..."
	a := model.CheckDef{Name: "test-a", Command: &cmd, CachePaths: []string{"**/*.go"}, DependsOn: []string{"lint"}}
	b := model.CheckDef{Name: "test-b", Command: &cmd, CachePaths: []string{"**/*.go"}, DependsOn: []string{"build"}}
	assert.Equal(t, ConfigHash(a), ConfigHash(b))
}

func TestConfigHash_ChangesWithCommand(t *testing.T) {
	cmd1 := "go test ./..."
	cmd2 := "go test -race ./..."
	a := model.CheckDef{Name: "test", Command: &cmd1, CachePaths: []string{"**/*.go"}}
	b := model.CheckDef{Name: "test", Command: &cmd2, CachePaths: []string{"**/*.go"}}
	assert.NotEqual(t, ConfigHash(a), ConfigHash(b))
}

func TestConfigHash_MetadataOrderIndependent(t *testing.T) {
	cmd := "go test ./..."
	a := model.CheckDef{Name: "test", Command: &cmd, Metadata: map[string]model.MetricPattern{
		"coverage": {Regex: `(\d+)%`},
		"duration": {Regex: `(\d+)ms`},
	}}
	b := model.CheckDef{Name: "test", Command: &cmd, Metadata: map[string]model.MetricPattern{
		"duration": {Regex: `(\d+)ms`},
		"coverage": {Regex: `(\d+)%`},
	}}
	assert.Equal(t, ConfigHash(a), ConfigHash(b))
}

func TestCombinedHash_Deterministic(t *testing.T) {
	a := CombinedHash("confighash", "contenthash")
	b := CombinedHash("confighash", "contenthash")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, CombinedHash("other", "contenthash"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abcd1234", Truncate("abcd1234567890", 8))
	assert.Equal(t, "abc", Truncate("abc", 8))
}
