package fs

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cishoon/ssfs/image"
	"github.com/cishoon/ssfs/inode"
)

// newTestFilesystem creates a freshly initialised Filesystem over a 16MB
// image file in t.TempDir(), cleaned up automatically.
func newTestFilesystem(t *testing.T) *Filesystem {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ssfs.img")
	dev, err := image.CreateFromPath(path, 16<<20)
	require.NoError(t, err)

	fsys, err := New(dev)
	require.NoError(t, err)
	require.NoError(t, fsys.Init())
	return fsys
}

func TestInitCreatesStandardLayout(t *testing.T) {
	fsys := newTestFilesystem(t)

	pwd, err := fsys.Pwd()
	require.NoError(t, err)
	assert.Equal(t, "/root", pwd)

	require.NoError(t, fsys.Cd("/"))
	names, err := fsys.Ls()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{".", "..", "root", "home", "etc", "bin", "usr", "dev"}, names)
}

func TestMkdirTouchAndLs(t *testing.T) {
	fsys := newTestFilesystem(t)

	require.NoError(t, fsys.Mkdir("proj"))
	require.NoError(t, fsys.Touch("notes.txt"))

	names, err := fsys.Ls()
	require.NoError(t, err)
	assert.Contains(t, names, "proj")
	assert.Contains(t, names, "notes.txt")

	err = fsys.Mkdir("proj")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	err = fsys.Touch("notes.txt")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCdAndPwdNestedPath(t *testing.T) {
	fsys := newTestFilesystem(t)

	require.NoError(t, fsys.Mkdir("a"))
	require.NoError(t, fsys.Cd("a"))
	require.NoError(t, fsys.Mkdir("b"))
	require.NoError(t, fsys.Cd("b"))

	pwd, err := fsys.Pwd()
	require.NoError(t, err)
	assert.Equal(t, "/root/a/b", pwd)

	require.NoError(t, fsys.Cd(".."))
	pwd, err = fsys.Pwd()
	require.NoError(t, err)
	assert.Equal(t, "/root/a", pwd)

	require.NoError(t, fsys.Cd("/"))
	pwd, err = fsys.Pwd()
	require.NoError(t, err)
	assert.Equal(t, "/", pwd)
}

func TestRmRejectsNonEmptyDirectory(t *testing.T) {
	fsys := newTestFilesystem(t)

	require.NoError(t, fsys.Mkdir("a"))
	require.NoError(t, fsys.Cd("a"))
	require.NoError(t, fsys.Touch("f"))
	require.NoError(t, fsys.Cd(".."))

	err := fsys.Rm("a")
	assert.ErrorIs(t, err, ErrDirNotEmpty)

	require.NoError(t, fsys.Cd("a"))
	require.NoError(t, fsys.Rm("f"))
	require.NoError(t, fsys.Cd(".."))
	require.NoError(t, fsys.Rm("a"))

	assert.False(t, fsys.Exists("/root/a"))
}

func TestRmCompactsEntriesByMovingLastOverRemoved(t *testing.T) {
	fsys := newTestFilesystem(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, fsys.Touch(fmt.Sprintf("f%d", i)))
	}
	require.NoError(t, fsys.Rm("f1"))

	names, err := fsys.Ls()
	require.NoError(t, err)
	assert.NotContains(t, names, "f1")
	assert.Contains(t, names, "f4")
	assert.Contains(t, names, "f0")
	assert.Contains(t, names, "f2")
	assert.Contains(t, names, "f3")
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	fsys := newTestFilesystem(t)
	require.NoError(t, fsys.Touch("f"))

	fd, err := fsys.Open("f")
	require.NoError(t, err)

	payload := []byte("the quick brown fox jumps over the lazy dog")
	n, err := fsys.Write(fd, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	require.NoError(t, fsys.Seek(fd, 0))
	out, err := fsys.Read(fd, uint32(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, out)

	require.NoError(t, fsys.Close(fd))
}

func TestOpenRejectsDirectoryAndDuplicateOpen(t *testing.T) {
	fsys := newTestFilesystem(t)
	require.NoError(t, fsys.Mkdir("d"))
	_, err := fsys.Open("d")
	assert.ErrorIs(t, err, ErrIsADirectory)

	require.NoError(t, fsys.Touch("f"))
	fd1, err := fsys.Open("f")
	require.NoError(t, err)
	_, err = fsys.Open("f")
	assert.ErrorIs(t, err, ErrAlreadyOpen)

	require.NoError(t, fsys.Close(fd1))
	fd2, err := fsys.Open("f")
	require.NoError(t, err)
	assert.Equal(t, fd1, fd2)
}

func TestTooManyOpenFiles(t *testing.T) {
	fsys := newTestFilesystem(t)
	for i := 0; i < MaxOpenFiles; i++ {
		name := fmt.Sprintf("f%d", i)
		require.NoError(t, fsys.Touch(name))
		_, err := fsys.Open(name)
		require.NoError(t, err)
	}
	require.NoError(t, fsys.Touch("overflow"))
	_, err := fsys.Open("overflow")
	assert.ErrorIs(t, err, ErrTooManyOpenFiles)
}

// TestSeekPastEndOfFileThenWriteExtends resolves the design's open question
// on fseek-past-EOF then fwrite: the write must allocate every block it
// traverses, including the hole left by the seek, and file_size must land
// exactly at the end of the written data.
func TestSeekPastEndOfFileThenWriteExtends(t *testing.T) {
	fsys := newTestFilesystem(t)
	require.NoError(t, fsys.Touch("f"))
	fd, err := fsys.Open("f")
	require.NoError(t, err)

	const gap = 4096
	require.NoError(t, fsys.Seek(fd, gap))
	payload := []byte("tail data")
	n, err := fsys.Write(fd, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	require.NoError(t, fsys.Close(fd))

	id, err := fsys.Lookup("f")
	require.NoError(t, err)
	st, err := fsys.Stat(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(gap+len(payload)), st.Size)
}

// TestReadThroughHoleFails documents the design's preserved (if surprising)
// behaviour: a read that lands on an unallocated block fails rather than
// reading back zero bytes.
func TestReadThroughHoleFails(t *testing.T) {
	fsys := newTestFilesystem(t)
	require.NoError(t, fsys.Touch("f"))
	fd, err := fsys.Open("f")
	require.NoError(t, err)

	require.NoError(t, fsys.Seek(fd, 4096))
	_, err = fsys.Write(fd, []byte("x"))
	require.NoError(t, err)

	// Write allocates every block it traverses, so it never leaves a hole
	// behind; punch one by clearing the pointer of logical block 1.
	h, in, err := fsys.getInode(fsys.open[fd].inodeID)
	require.NoError(t, err)
	in.BlockPointers[1] = 0
	require.NoError(t, fsys.inodes.Update(h, in))

	require.NoError(t, fsys.Seek(fd, 512))
	_, err = fsys.Read(fd, 8)
	assert.ErrorIs(t, err, ErrBlockNotAllocated)
}

func TestLargeWriteSpansIndirectBlocks(t *testing.T) {
	fsys := newTestFilesystem(t)
	require.NoError(t, fsys.Touch("big"))
	fd, err := fsys.Open("big")
	require.NoError(t, err)

	data := make([]byte, 5*512+3*512)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := fsys.Write(fd, data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	require.NoError(t, fsys.Seek(fd, 0))
	out, err := fsys.Read(fd, uint32(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, out)
	require.NoError(t, fsys.Close(fd))
}

// TestWriteReachesDoubleIndirectRegion drives a write target past the
// single-indirect capacity (5 direct + 2*128 single-indirect blocks) so
// that AllocNext must build a double-indirect chain.
func TestWriteReachesDoubleIndirectRegion(t *testing.T) {
	fsys := newTestFilesystem(t)
	require.NoError(t, fsys.Touch("deep"))
	fd, err := fsys.Open("deep")
	require.NoError(t, err)

	const gap = (5 + 2*128) * 512
	require.NoError(t, fsys.Seek(fd, gap))
	payload := []byte("past the single-indirect region")
	n, err := fsys.Write(fd, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	require.NoError(t, fsys.Seek(fd, gap))
	out, err := fsys.Read(fd, uint32(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, out)
	require.NoError(t, fsys.Close(fd))
}

func TestRmFreesInodeAndBlocksForReuse(t *testing.T) {
	fsys := newTestFilesystem(t)
	require.NoError(t, fsys.Touch("f"))
	fd, err := fsys.Open("f")
	require.NoError(t, err)
	_, err = fsys.Write(fd, make([]byte, 3000))
	require.NoError(t, err)
	require.NoError(t, fsys.Close(fd))
	require.NoError(t, fsys.Rm("f"))

	for i := 0; i < 50; i++ {
		require.NoError(t, fsys.Touch(fmt.Sprintf("g%d", i)))
	}
}

func TestStatReportsSizeAndType(t *testing.T) {
	fsys := newTestFilesystem(t)
	require.NoError(t, fsys.Touch("f"))
	fd, err := fsys.Open("f")
	require.NoError(t, err)
	_, err = fsys.Write(fd, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, fsys.Close(fd))

	id, err := fsys.Lookup("f")
	require.NoError(t, err)
	st, err := fsys.Stat(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), st.Size)
	assert.Equal(t, inode.TypeFile, st.Type)

	dirID, err := fsys.Lookup("/root")
	require.NoError(t, err)
	dirStat, err := fsys.Stat(dirID)
	require.NoError(t, err)
	assert.Equal(t, inode.TypeDir, dirStat.Type)
}

func TestFListWalksWholeTree(t *testing.T) {
	fsys := newTestFilesystem(t)
	require.NoError(t, fsys.Mkdir("proj"))
	require.NoError(t, fsys.Cd("proj"))
	require.NoError(t, fsys.Touch("a.txt"))
	require.NoError(t, fsys.Cd(".."))
	require.NoError(t, fsys.Touch("b.txt"))

	entries, err := fsys.FList()
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "/")
	assert.Contains(t, names, "/root")
	assert.Contains(t, names, "/root/proj")
	assert.Contains(t, names, "/root/proj/a.txt")
	assert.Contains(t, names, "/root/b.txt")
	assert.NotContains(t, names, "/root/.")
	assert.NotContains(t, names, "/root/..")
}

func TestOpenFilesListsActiveSlots(t *testing.T) {
	fsys := newTestFilesystem(t)
	require.NoError(t, fsys.Touch("f"))
	assert.Empty(t, fsys.OpenFiles())

	fd, err := fsys.Open("f")
	require.NoError(t, err)

	open := fsys.OpenFiles()
	require.Len(t, open, 1)
	assert.Equal(t, fd, open[0].FD)

	require.NoError(t, fsys.Close(fd))
	assert.Empty(t, fsys.OpenFiles())
}

func TestSaveAndReopenPreservesTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ssfs.img")
	dev, err := image.CreateFromPath(path, 16<<20)
	require.NoError(t, err)
	fsys, err := New(dev)
	require.NoError(t, err)
	require.NoError(t, fsys.Init())
	require.NoError(t, fsys.Mkdir("persisted"))
	require.NoError(t, fsys.Touch("file.txt"))
	require.NoError(t, fsys.Close())

	dev2, err := image.OpenFromPath(path)
	require.NoError(t, err)
	reopened, err := New(dev2)
	require.NoError(t, err)

	names, err := reopened.Ls()
	require.NoError(t, err)
	assert.Contains(t, names, "persisted")
	assert.Contains(t, names, "file.txt")
	require.NoError(t, reopened.Close())
}
