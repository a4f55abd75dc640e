package handler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dircrypt/internal/keymaterial"
	"dircrypt/internal/transform"
)

func testKeyPair(t *testing.T) (*keymaterial.Material, *keymaterial.Material) {
	t.Helper()
	key, err := keymaterial.GenerateKeyPair()
	require.NoError(t, err)

	privatePEM, err := keymaterial.WritePrivatePEM(key)
	require.NoError(t, err)
	publicPEM, err := keymaterial.WritePublicPEM(&key.PublicKey)
	require.NoError(t, err)

	dir := t.TempDir()
	privatePath := filepath.Join(dir, "k.key")
	publicPath := filepath.Join(dir, "k.pub")
	require.NoError(t, os.WriteFile(privatePath, privatePEM, 0o600))
	require.NoError(t, os.WriteFile(publicPath, publicPEM, 0o644))

	pub, err := keymaterial.LoadPublic(publicPath)
	require.NoError(t, err)
	priv, err := keymaterial.LoadPrivate(privatePath)
	require.NoError(t, err)
	return pub, priv
}

func TestTransform_ProcessesNewFile(t *testing.T) {
	pub, _ := testKeyPair(t)
	srcRoot := t.TempDir()
	targetRoot := t.TempDir()

	source := filepath.Join(srcRoot, "doc.txt")
	require.NoError(t, os.WriteFile(source, []byte("hello"), 0o644))

	h := &Handler{Key: pub, TargetRoot: targetRoot, Pool: transform.NewPool(2)}
	outcome, err := h.Transform(context.Background(), source)
	require.NoError(t, err)
	assert.False(t, outcome.Skipped)
	assert.Equal(t, uint64(5), outcome.BytesIn)

	_, err = os.Stat(outcome.OutputPath)
	assert.NoError(t, err)
}

func TestTransform_SkipsFreshTarget(t *testing.T) {
	pub, _ := testKeyPair(t)
	srcRoot := t.TempDir()
	targetRoot := t.TempDir()

	source := filepath.Join(srcRoot, "doc.txt")
	require.NoError(t, os.WriteFile(source, []byte("hello"), 0o644))

	h := &Handler{Key: pub, TargetRoot: targetRoot, Pool: transform.NewPool(2)}
	first, err := h.Transform(context.Background(), source)
	require.NoError(t, err)
	require.False(t, first.Skipped)

	second, err := h.Transform(context.Background(), source)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
}

func TestTransform_ReprocessesWhenSourceNewer(t *testing.T) {
	pub, _ := testKeyPair(t)
	srcRoot := t.TempDir()
	targetRoot := t.TempDir()

	source := filepath.Join(srcRoot, "doc.txt")
	require.NoError(t, os.WriteFile(source, []byte("v1"), 0o644))

	h := &Handler{Key: pub, TargetRoot: targetRoot, Pool: transform.NewPool(2)}
	first, err := h.Transform(context.Background(), source)
	require.NoError(t, err)
	require.False(t, first.Skipped)

	future := time.Now().Add(2 * time.Hour)
	require.NoError(t, os.Chtimes(source, future, future))

	second, err := h.Transform(context.Background(), source)
	require.NoError(t, err)
	assert.False(t, second.Skipped)
}

func TestTransform_SkipsSymlink(t *testing.T) {
	pub, _ := testKeyPair(t)
	srcRoot := t.TempDir()
	targetRoot := t.TempDir()

	real := filepath.Join(srcRoot, "real.txt")
	require.NoError(t, os.WriteFile(real, []byte("hello"), 0o644))
	link := filepath.Join(srcRoot, "link.txt")
	require.NoError(t, os.Symlink(real, link))

	h := &Handler{Key: pub, TargetRoot: targetRoot, Pool: transform.NewPool(2)}
	outcome, err := h.Transform(context.Background(), link)
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
}
