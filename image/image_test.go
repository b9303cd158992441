package image

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempImagePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "disk.img")
}

func TestFormatCreatesZeroedImage(t *testing.T) {
	path := tempImagePath(t)
	dev, err := Format(path, 4096)
	require.NoError(t, err)
	defer dev.Close()

	assert.Equal(t, int64(8), dev.SectorCount())

	data, err := dev.Read(0, 8)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 4096), data)
}

func TestWriteThenRead(t *testing.T) {
	path := tempImagePath(t)
	dev, err := Format(path, 4096)
	require.NoError(t, err)
	defer dev.Close()

	payload := make([]byte, SectorSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, dev.Write(2, payload))

	got, err := dev.Read(2, 1)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// untouched sectors remain zero
	other, err := dev.Read(0, 1)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, SectorSize), other)
}

func TestWriteRejectsPartialSector(t *testing.T) {
	path := tempImagePath(t)
	dev, err := Format(path, 4096)
	require.NoError(t, err)
	defer dev.Close()

	err = dev.Write(0, make([]byte, SectorSize-1))
	assert.ErrorIs(t, err, ErrInvalidArg)
}

func TestReadOutOfRange(t *testing.T) {
	path := tempImagePath(t)
	dev, err := Format(path, 4096)
	require.NoError(t, err)
	defer dev.Close()

	_, err = dev.Read(100, 1)
	assert.Error(t, err)
}

func TestOpenFromPathRoundTrips(t *testing.T) {
	path := tempImagePath(t)
	dev, err := Format(path, 4096)
	require.NoError(t, err)

	payload := make([]byte, SectorSize)
	payload[0] = 0xAB
	require.NoError(t, dev.Write(1, payload))
	require.NoError(t, dev.Save())
	require.NoError(t, dev.Close())

	reopened, err := OpenFromPath(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Read(1, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), got[0])
}

func TestSubDevice(t *testing.T) {
	path := tempImagePath(t)
	dev, err := Format(path, 8192)
	require.NoError(t, err)
	defer dev.Close()

	sub, err := dev.SubDevice(4, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), sub.SectorCount())

	payload := make([]byte, SectorSize)
	payload[0] = 0x42
	require.NoError(t, sub.Write(0, payload))

	// that write lands at absolute sector 4 on the parent device
	got, err := dev.Read(4, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), got[0])
}

func TestCreateFromPathRefusesExisting(t *testing.T) {
	path := tempImagePath(t)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	_, err := CreateFromPath(path, 4096)
	assert.Error(t, err)
}
