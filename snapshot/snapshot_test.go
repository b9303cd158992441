package snapshot

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixtureImage(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "image.bin")
	data := bytes.Repeat([]byte("ssfs-snapshot-fixture-"), 4096)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestWriteRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	imagePath := writeFixtureImage(t, dir)
	want, err := os.ReadFile(imagePath)
	require.NoError(t, err)

	var archive bytes.Buffer
	require.NoError(t, Write(&archive, imagePath))

	restoredPath := filepath.Join(dir, "restored.bin")
	require.NoError(t, Restore(&archive, restoredPath))

	got, err := os.ReadFile(restoredPath)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWriteCompactRestoreCompactRoundTrip(t *testing.T) {
	dir := t.TempDir()
	imagePath := writeFixtureImage(t, dir)
	want, err := os.ReadFile(imagePath)
	require.NoError(t, err)

	var archive bytes.Buffer
	require.NoError(t, WriteCompact(&archive, imagePath))

	restoredPath := filepath.Join(dir, "restored.bin")
	require.NoError(t, RestoreCompact(&archive, restoredPath))

	got, err := os.ReadFile(restoredPath)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWriteCompactProducesSmallerArchiveForRepetitiveData(t *testing.T) {
	dir := t.TempDir()
	imagePath := writeFixtureImage(t, dir)

	var lz4Archive, xzArchive bytes.Buffer
	require.NoError(t, Write(&lz4Archive, imagePath))
	require.NoError(t, WriteCompact(&xzArchive, imagePath))

	assert.Greater(t, lz4Archive.Len(), 0)
	assert.Greater(t, xzArchive.Len(), 0)
	assert.Less(t, xzArchive.Len(), lz4Archive.Len())
}
