package inode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	d := DiskInode{
		FileType: TypeDir,
		FileSize: 64,
	}
	d.BlockPointers[0] = 42
	d.BlockPointers[9] = 7

	b := d.Marshal()
	assert.Len(t, b, Size)

	got, err := Unmarshal(b[:])
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestUnmarshalRejectsShortInput(t *testing.T) {
	_, err := Unmarshal(make([]byte, Size-1))
	assert.Error(t, err)
}

func TestSectorAndOffset(t *testing.T) {
	sector, off := SectorAndOffset(0, 2)
	assert.Equal(t, int64(2), sector)
	assert.Equal(t, 0, off)

	sector, off = SectorAndOffset(9, 2)
	assert.Equal(t, int64(3), sector)
	assert.Equal(t, 64, off)
}

func TestFileTypeString(t *testing.T) {
	assert.Equal(t, "file", TypeFile.String())
	assert.Equal(t, "dir", TypeDir.String())
	assert.Equal(t, "none", TypeNone.String())
}
