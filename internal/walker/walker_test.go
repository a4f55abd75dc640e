package walker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalk_VisitsRegularFilesOnly(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("b"), 0o644))

	var visited []string
	err := Walk(root, func(path string) {
		visited = append(visited, path)
	}, func(path string, err error) {
		t.Fatalf("unexpected per-entry error for %s: %v", path, err)
	})
	require.NoError(t, err)

	assert.Len(t, visited, 2)
}

func TestWalk_SkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	real := filepath.Join(root, "real.txt")
	require.NoError(t, os.WriteFile(real, []byte("a"), 0o644))
	link := filepath.Join(root, "link.txt")
	require.NoError(t, os.Symlink(real, link))

	var visited []string
	err := Walk(root, func(path string) {
		visited = append(visited, path)
	}, func(path string, err error) {})
	require.NoError(t, err)

	assert.Equal(t, []string{real}, visited)
}

func TestWalk_MissingRootIsFatal(t *testing.T) {
	err := Walk(filepath.Join(t.TempDir(), "does-not-exist"), func(string) {}, func(string, error) {})
	assert.Error(t, err)
}

func TestWalk_EmptyDirectoryVisitsNothing(t *testing.T) {
	root := t.TempDir()
	var visited []string
	err := Walk(root, func(path string) {
		visited = append(visited, path)
	}, func(string, error) {})
	require.NoError(t, err)
	assert.Empty(t, visited)
}
