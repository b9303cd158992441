package sync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareFSDetectsContentMismatch(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(a, "f.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(b, "f.txt"), []byte("world"), 0o644))

	err := CompareFS(os.DirFS(a), os.DirFS(b))
	assert.Error(t, err)
}

func TestCompareFSDetectsExtraFile(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(a, "f.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(b, "f.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(b, "extra.txt"), []byte("x"), 0o644))

	err := CompareFS(os.DirFS(a), os.DirFS(b))
	assert.Error(t, err)
}

func TestCompareFSIdenticalTreesSucceed(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(a, "sub"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(b, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(a, "sub", "f.txt"), []byte("same"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(b, "sub", "f.txt"), []byte("same"), 0o644))

	assert.NoError(t, CompareFS(os.DirFS(a), os.DirFS(b)))
}
