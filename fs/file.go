package fs

import (
	"encoding/binary"

	"github.com/cishoon/ssfs/cache"
	"github.com/cishoon/ssfs/directory"
	"github.com/cishoon/ssfs/index"
	"github.com/cishoon/ssfs/inode"
)

// Open resolves path and installs a new open-file-table entry for it, per
// the design's §4.6.3. Fails with ErrIsADirectory if path names a
// directory, and with ErrAlreadyOpen if some other active slot already
// holds the same inode.
func (fs *Filesystem) Open(path string) (int, error) {
	id, err := fs.resolve(path)
	if err != nil {
		return 0, err
	}
	_, in, err := fs.getInode(id)
	if err != nil {
		return 0, err
	}
	if in.IsDir() {
		return 0, ErrIsADirectory
	}

	for _, f := range fs.open {
		if f.busy() && f.inodeID == id {
			return 0, ErrAlreadyOpen
		}
	}
	for fd := range fs.open {
		if !fs.open[fd].busy() {
			fs.open[fd] = openFile{inodeID: id, offset: 0, refCount: 1}
			return fd, nil
		}
	}
	return 0, ErrTooManyOpenFiles
}

// Close decrements fd's reference count, clearing the slot at zero.
func (fs *Filesystem) Close(fd int) error {
	if fd < 0 || fd >= MaxOpenFiles || !fs.open[fd].busy() {
		return ErrNotOpen
	}
	fs.open[fd].refCount--
	if fs.open[fd].refCount == 0 {
		fs.open[fd] = openFile{}
	}
	return nil
}

// Seek overwrites fd's offset unconditionally. Per the design's §4.6.3,
// offsets beyond end-of-file are legal: reads there short-read to zero
// bytes, and writes there extend the file, allocating any traversed holes.
func (fs *Filesystem) Seek(fd int, offset uint32) error {
	if fd < 0 || fd >= MaxOpenFiles || !fs.open[fd].busy() {
		return ErrNotOpen
	}
	fs.open[fd].offset = offset
	return nil
}

// Write appends data at fd's current offset, allocating any block the
// write straddles via IndexWalker.AllocNext, per the design's §4.6.3. On
// ErrOutOfBlocks the write is partial: file_size and the fd's offset are
// left at the last successfully written byte, the documented behaviour
// from the design's §7.
//
// This also resolves the design's §9 open question on fseek-past-EOF then
// fwrite: since a hole's logical block always reads back as unallocated
// regardless of file_size, a write starting past end-of-file repeatedly
// calls AllocNext until the target block is reachable, extending the block
// tree through every block it traverses before the first byte is copied.
func (fs *Filesystem) Write(fd int, data []byte) (int, error) {
	if fd < 0 || fd >= MaxOpenFiles || !fs.open[fd].busy() {
		return 0, ErrNotOpen
	}
	h, in, err := fs.getInode(fs.open[fd].inodeID)
	if err != nil {
		return 0, err
	}

	start := fs.open[fd].offset
	cursor := start
	size := uint32(len(data))
	var written uint32

	for cursor-start < size {
		logical := uint64(cursor / cache.SectorSize)
		phys, err := fs.walker.Lookup(in, logical)
		if err != nil {
			fs.open[fd].offset = cursor
			_ = fs.inodes.Update(h, in)
			return int(written), err
		}
		for phys == 0 {
			if _, err := fs.walker.AllocNext(&in); err != nil {
				fs.open[fd].offset = cursor
				_ = fs.inodes.Update(h, in)
				return int(written), err
			}
			phys, err = fs.walker.Lookup(in, logical)
			if err != nil {
				fs.open[fd].offset = cursor
				_ = fs.inodes.Update(h, in)
				return int(written), err
			}
		}

		ch, err := fs.cache.Get(int64(phys))
		if err != nil {
			return int(written), err
		}
		blockOff := cursor % cache.SectorSize
		n := uint32(cache.SectorSize) - blockOff
		if remaining := size - (cursor - start); n > remaining {
			n = remaining
		}
		chunk := data[cursor-start : cursor-start+n]
		if err := fs.cache.Write(ch, int(blockOff), chunk); err != nil {
			return int(written), err
		}

		cursor += n
		written += n
		if cursor > in.FileSize {
			in.FileSize = cursor
		}
	}

	fs.open[fd].offset = cursor
	if err := fs.inodes.Update(h, in); err != nil {
		return int(written), err
	}
	return int(written), nil
}

// Read copies up to size bytes starting at fd's current offset, stopping
// at file_size, per the design's §4.6.3. A read entirely past end-of-file
// returns zero bytes with no error; a read that crosses a hole fails with
// ErrBlockNotAllocated, the design's documented (if surprising) behaviour.
func (fs *Filesystem) Read(fd int, size uint32) ([]byte, error) {
	if fd < 0 || fd >= MaxOpenFiles || !fs.open[fd].busy() {
		return nil, ErrNotOpen
	}
	_, in, err := fs.getInode(fs.open[fd].inodeID)
	if err != nil {
		return nil, err
	}

	start := fs.open[fd].offset
	cursor := start
	out := make([]byte, 0, size)

	for cursor-start < size && cursor < in.FileSize {
		logical := uint64(cursor / cache.SectorSize)
		phys, err := fs.walker.Lookup(in, logical)
		if err != nil {
			fs.open[fd].offset = cursor
			return out, err
		}
		if phys == 0 {
			fs.open[fd].offset = cursor
			return out, ErrBlockNotAllocated
		}

		ch, err := fs.cache.Get(int64(phys))
		if err != nil {
			return out, err
		}
		data, err := fs.cache.Bytes(ch)
		if err != nil {
			return out, err
		}
		blockOff := cursor % cache.SectorSize
		n := uint32(cache.SectorSize) - blockOff
		if remaining := size - (cursor - start); n > remaining {
			n = remaining
		}
		if remaining := in.FileSize - cursor; n > remaining {
			n = remaining
		}
		out = append(out, data[blockOff:blockOff+n]...)
		cursor += n
	}

	fs.open[fd].offset = cursor
	return out, nil
}

// Cat opens path on a new fd of its own, reads its entire contents from
// offset 0, and closes that fd again. It does not share or touch an fd the
// caller already holds: if path is already open, Open fails and Cat returns
// ErrAlreadyOpen.
func (fs *Filesystem) Cat(path string) ([]byte, error) {
	id, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}
	_, in, err := fs.getInode(id)
	if err != nil {
		return nil, err
	}
	if in.IsDir() {
		return nil, ErrIsADirectory
	}

	fd, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	saved := fs.open[fd].offset
	if err := fs.Seek(fd, 0); err != nil {
		_ = fs.Close(fd)
		return nil, err
	}
	data, err := fs.Read(fd, in.FileSize)
	_ = fs.Seek(fd, saved)
	_ = fs.Close(fd)
	return data, err
}

// Stat describes an inode's size and type, the Go-idiomatic bundling of the
// original source's bare get_file_size return.
type Stat struct {
	Size uint32
	Type inode.FileType
}

// Stat returns the size and type of the inode named by inodeID, mirroring
// the original source's FileSystem::get_file_size.
func (fs *Filesystem) Stat(inodeID uint32) (Stat, error) {
	_, in, err := fs.getInode(inodeID)
	if err != nil {
		return Stat{}, err
	}
	return Stat{Size: in.FileSize, Type: in.FileType}, nil
}

// OpenFileInfo describes one active open-file-table slot, returned by
// OpenFiles for the CLI's diagnostic use.
type OpenFileInfo struct {
	FD      int
	InodeID uint32
	Offset  uint32
}

// OpenFiles lists every active open-file-table slot.
func (fs *Filesystem) OpenFiles() []OpenFileInfo {
	var out []OpenFileInfo
	for fd, f := range fs.open {
		if f.busy() {
			out = append(out, OpenFileInfo{FD: fd, InodeID: f.inodeID, Offset: f.offset})
		}
	}
	return out
}

// FileListEntry is one inode reachable from the root directory, as returned
// by FList.
type FileListEntry struct {
	InodeID uint32
	Name    string
}

// FList walks the whole directory tree from the root and returns every
// reachable inode's id and full path, mirroring the original source's
// declared but never-implemented flist(). "." and ".." entries are skipped
// to avoid revisiting a directory and its ancestors.
func (fs *Filesystem) FList() ([]FileListEntry, error) {
	_, root, err := fs.getInode(rootInodeID)
	if err != nil {
		return nil, err
	}
	out := []FileListEntry{{InodeID: rootInodeID, Name: "/"}}
	if err := fs.walkList(root, "/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (fs *Filesystem) walkList(dir inode.Inode, prefix string, out *[]FileListEntry) error {
	n := dir.FileSize / directory.Size
	for i := uint32(0); i < n; i++ {
		e, err := fs.dirRead(dir, i)
		if err != nil {
			return err
		}
		if e.IsTombstone() || e.Name == "." || e.Name == ".." {
			continue
		}
		childPath := prefix + e.Name
		*out = append(*out, FileListEntry{InodeID: e.InodeID, Name: childPath})

		_, child, err := fs.getInode(e.InodeID)
		if err != nil {
			return err
		}
		if child.IsDir() {
			if err := fs.walkList(child, childPath+"/", out); err != nil {
				return err
			}
		}
	}
	return nil
}

// freeInodeTree releases every block reachable from in's pointer tree —
// data blocks and intermediate index blocks alike — back to the block
// bitmap. The original source's free_memory_inode only releases the leaf
// data blocks, leaking every index block a multi-level file ever allocated;
// this walks the whole tree instead; see DESIGN.md.
func (fs *Filesystem) freeInodeTree(in inode.Inode) error {
	for i := 0; i < 5; i++ {
		if p := in.BlockPointers[i]; p != 0 {
			if err := fs.sb.FreeBlock(p); err != nil {
				return err
			}
		}
	}
	for i := 5; i < 7; i++ {
		if err := fs.freeIndirect(in.BlockPointers[i], 1); err != nil {
			return err
		}
	}
	for i := 7; i < 9; i++ {
		if err := fs.freeIndirect(in.BlockPointers[i], 2); err != nil {
			return err
		}
	}
	return fs.freeIndirect(in.BlockPointers[9], 3)
}

// freeIndirect recursively frees the index blocks and leaf data blocks of
// the subtree rooted at blockNo, which has levels index-block hops before
// its leaves are data pointers, then frees blockNo itself.
func (fs *Filesystem) freeIndirect(blockNo uint32, levels int) error {
	if blockNo == 0 {
		return nil
	}

	h, err := fs.cache.Get(int64(blockNo))
	if err != nil {
		return err
	}
	data, err := fs.cache.Bytes(h)
	if err != nil {
		return err
	}
	children := make([]uint32, index.PointersPerBlock)
	for e := 0; e < index.PointersPerBlock; e++ {
		off := e * 4
		children[e] = binary.LittleEndian.Uint32(data[off : off+4])
	}

	if levels == 1 {
		for _, c := range children {
			if c != 0 {
				if err := fs.sb.FreeBlock(c); err != nil {
					return err
				}
			}
		}
	} else {
		for _, c := range children {
			if err := fs.freeIndirect(c, levels-1); err != nil {
				return err
			}
		}
	}
	return fs.sb.FreeBlock(blockNo)
}
