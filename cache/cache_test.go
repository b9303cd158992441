package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBackend struct {
	sectors map[int64][SectorSize]byte
	reads   int
	writes  int
}

func newMemBackend() *memBackend {
	return &memBackend{sectors: make(map[int64][SectorSize]byte)}
}

func (m *memBackend) Read(blockNo int64, count int) ([]byte, error) {
	m.reads++
	buf := make([]byte, SectorSize*count)
	for i := 0; i < count; i++ {
		s := m.sectors[blockNo+int64(i)]
		copy(buf[i*SectorSize:], s[:])
	}
	return buf, nil
}

func (m *memBackend) Write(blockNo int64, data []byte) error {
	m.writes++
	var s [SectorSize]byte
	copy(s[:], data)
	m.sectors[blockNo] = s
	return nil
}

func TestGetLoadsFromBackend(t *testing.T) {
	be := newMemBackend()
	var s [SectorSize]byte
	s[0] = 7
	be.sectors[5] = s

	c := New(be)
	h, err := c.Get(5)
	require.NoError(t, err)
	data, err := c.Bytes(h)
	require.NoError(t, err)
	assert.Equal(t, byte(7), data[0])
	assert.Equal(t, 1, be.reads)
}

func TestGetHitDoesNotReload(t *testing.T) {
	be := newMemBackend()
	c := New(be)
	h1, err := c.Get(1)
	require.NoError(t, err)
	_, err = c.Get(2)
	require.NoError(t, err)
	h2, err := c.Get(1)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, 2, be.reads)
}

func TestWriteMarksDirtyAndDoesNotFlushImmediately(t *testing.T) {
	be := newMemBackend()
	c := New(be)
	h, err := c.Get(1)
	require.NoError(t, err)
	require.NoError(t, c.Write(h, 0, []byte{1, 2, 3}))
	assert.Equal(t, 0, be.writes, "mid-sector write should not flush")
}

func TestWriteToLastByteFlushesEagerly(t *testing.T) {
	be := newMemBackend()
	c := New(be)
	h, err := c.Get(1)
	require.NoError(t, err)
	tail := make([]byte, 10)
	require.NoError(t, c.Write(h, SectorSize-10, tail))
	assert.Equal(t, 1, be.writes, "write landing on last byte of sector should flush")
}

func TestEvictionFlushesDirtyLRUHead(t *testing.T) {
	be := newMemBackend()
	c := New(be)

	// fill all Size slots
	handles := make([]Handle, Size)
	for i := 0; i < Size; i++ {
		h, err := c.Get(int64(i))
		require.NoError(t, err)
		handles[i] = h
	}
	// dirty the first (LRU head)
	require.NoError(t, c.Write(handles[0], 0, []byte{9}))

	writesBefore := be.writes
	// one more distinct block forces eviction of slot for block 0
	_, err := c.Get(int64(Size))
	require.NoError(t, err)
	assert.Equal(t, writesBefore+1, be.writes, "eviction of a dirty line must flush it")
	assert.Equal(t, byte(9), be.sectors[0][0])
}

func TestLRUPromotionProtectsRecentlyUsed(t *testing.T) {
	be := newMemBackend()
	c := New(be)

	for i := 0; i < Size; i++ {
		_, err := c.Get(int64(i))
		require.NoError(t, err)
	}
	// touch block 0 again, moving it to the MRU end
	_, err := c.Get(0)
	require.NoError(t, err)

	// bringing in one new block should evict block 1 (now LRU head), not block 0
	_, err = c.Get(int64(Size))
	require.NoError(t, err)

	reads := be.reads
	_, err = c.Get(0)
	require.NoError(t, err)
	assert.Equal(t, reads, be.reads, "block 0 should still be resident")
}

func TestStaleHandleRejected(t *testing.T) {
	be := newMemBackend()
	c := New(be)
	h, err := c.Get(1)
	require.NoError(t, err)

	for i := 0; i < Size; i++ {
		_, err := c.Get(int64(100 + i))
		require.NoError(t, err)
	}

	_, err = c.Bytes(h)
	assert.Error(t, err)
}

func TestSaveFlushesAllDirtyLines(t *testing.T) {
	be := newMemBackend()
	c := New(be)
	h1, _ := c.Get(1)
	h2, _ := c.Get(2)
	require.NoError(t, c.Write(h1, 0, []byte{1}))
	require.NoError(t, c.Write(h2, 1, []byte{2}))

	require.NoError(t, c.Save())
	assert.Equal(t, byte(1), be.sectors[1][0])
	assert.Equal(t, byte(2), be.sectors[2][1])
}
