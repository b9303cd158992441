package fs

import (
	"errors"
	"fmt"

	"github.com/cishoon/ssfs/directory"
	"github.com/cishoon/ssfs/inode"
)

// dirRead decodes the idx'th DirectoryEntry of in, per the design's
// §4.6.2 sector/slot addressing: logical_block = idx/16, slot = idx%16.
func (fs *Filesystem) dirRead(in inode.Inode, idx uint32) (directory.Entry, error) {
	logical := uint64(idx / directory.PerSector)
	slot := int(idx % directory.PerSector)

	phys, err := fs.walker.Lookup(in, logical)
	if err != nil {
		return directory.Entry{}, err
	}
	if phys == 0 {
		return directory.Entry{}, fmt.Errorf("fs: directory entry %d of inode %d: %w", idx, in.ID, ErrBlockNotAllocated)
	}
	h, err := fs.cache.Get(int64(phys))
	if err != nil {
		return directory.Entry{}, err
	}
	data, err := fs.cache.Bytes(h)
	if err != nil {
		return directory.Entry{}, err
	}
	off := slot * directory.Size
	return directory.Unmarshal(data[off : off+directory.Size])
}

// dirWrite overwrites the idx'th DirectoryEntry of *in, which must already
// be within the directory's allocated range (i.e. idx < in.FileSize/32).
func (fs *Filesystem) dirWrite(in *inode.Inode, idx uint32, e directory.Entry) error {
	logical := uint64(idx / directory.PerSector)
	slot := int(idx % directory.PerSector)

	phys, err := fs.walker.Lookup(*in, logical)
	if err != nil {
		return err
	}
	if phys == 0 {
		return fmt.Errorf("fs: directory entry %d of inode %d: %w", idx, in.ID, ErrBlockNotAllocated)
	}
	h, err := fs.cache.Get(int64(phys))
	if err != nil {
		return err
	}
	b := e.Marshal()
	return fs.cache.Write(h, slot*directory.Size, b[:])
}

// findEntry linearly scans in's entries for name, skipping tombstones, per
// the design's §4.6.2: "names are compared as C strings up to 28 bytes."
func (fs *Filesystem) findEntry(in inode.Inode, name string) (directory.Entry, error) {
	n := in.FileSize / directory.Size
	for i := uint32(0); i < n; i++ {
		e, err := fs.dirRead(in, i)
		if err != nil {
			return directory.Entry{}, err
		}
		if !e.IsTombstone() && e.Name == name {
			return e, nil
		}
	}
	return directory.Entry{}, ErrNotFound
}

// nameOfChild finds the name under which childID appears in parent's
// entries, used by Pwd to reconstruct path segments from ".." links.
func (fs *Filesystem) nameOfChild(parent inode.Inode, childID uint32) (string, error) {
	n := parent.FileSize / directory.Size
	for i := uint32(0); i < n; i++ {
		e, err := fs.dirRead(parent, i)
		if err != nil {
			return "", err
		}
		if !e.IsTombstone() && e.InodeID == childID {
			return e.Name, nil
		}
	}
	return "", ErrNotFound
}

// dirAdd inserts e into the directory described by (h, *in), per the design's
// §4.6.2 "Add" rule: reuse a tombstone if one exists; otherwise call
// alloc_next when the entry count is a sector boundary, then append. *in and
// its on-disk record are left updated and persisted.
func (fs *Filesystem) dirAdd(h inode.Handle, in *inode.Inode, e directory.Entry) error {
	n := in.FileSize / directory.Size
	for i := uint32(0); i < n; i++ {
		existing, err := fs.dirRead(*in, i)
		if err != nil {
			return err
		}
		if existing.IsTombstone() {
			return fs.dirWrite(in, i, e)
		}
	}

	if n%directory.PerSector == 0 {
		if _, err := fs.walker.AllocNext(in); err != nil {
			return err
		}
	}
	if err := fs.dirWrite(in, n, e); err != nil {
		return err
	}
	in.FileSize += directory.Size
	return fs.inodes.Update(h, *in)
}

// listDir returns the non-tombstone entry names of in, in storage order.
func (fs *Filesystem) listDir(in inode.Inode) ([]string, error) {
	n := in.FileSize / directory.Size
	names := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		e, err := fs.dirRead(in, i)
		if err != nil {
			return nil, err
		}
		if !e.IsTombstone() {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

// Ls lists the entries of the current directory.
func (fs *Filesystem) Ls() ([]string, error) {
	_, in, err := fs.getInode(fs.cwd)
	if err != nil {
		return nil, err
	}
	return fs.listDir(in)
}

// Mkdir creates a new, empty subdirectory named name in the current
// directory, per the design's §4.6.3.
func (fs *Filesystem) Mkdir(name string) error {
	if err := validateEntryName(name); err != nil {
		return err
	}

	_, parent, err := fs.getInode(fs.cwd)
	if err != nil {
		return err
	}
	if _, err := fs.findEntry(parent, name); err == nil {
		return ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	childID, err := fs.sb.AllocInode()
	if err != nil {
		return err
	}
	blk, err := fs.sb.AllocBlock()
	if err != nil {
		_ = fs.sb.FreeInode(childID)
		return err
	}

	h, err := fs.cache.Get(int64(blk))
	if err != nil {
		return err
	}
	dot := directory.Entry{InodeID: childID, Name: "."}.Marshal()
	if err := fs.cache.Write(h, 0, dot[:]); err != nil {
		return err
	}
	dotdot := directory.Entry{InodeID: fs.cwd, Name: ".."}.Marshal()
	if err := fs.cache.Write(h, directory.Size, dotdot[:]); err != nil {
		return err
	}

	childHandle, err := fs.inodes.Get(childID)
	if err != nil {
		return err
	}
	child := inode.Inode{ID: childID, FileType: inode.TypeDir, FileSize: 2 * directory.Size}
	child.BlockPointers[0] = blk
	if err := fs.inodes.Update(childHandle, child); err != nil {
		return err
	}

	// Re-resolve the parent: the inode-table Get above may have evicted
	// its slot, per the design's §9 note on handles across allocations.
	parentHandle, parent, err := fs.getInode(fs.cwd)
	if err != nil {
		return err
	}
	return fs.dirAdd(parentHandle, &parent, directory.Entry{InodeID: childID, Name: name})
}

// Touch creates a new, empty regular file named name in the current
// directory, per the design's §4.6.3.
func (fs *Filesystem) Touch(name string) error {
	if err := validateEntryName(name); err != nil {
		return err
	}

	_, parent, err := fs.getInode(fs.cwd)
	if err != nil {
		return err
	}
	if _, err := fs.findEntry(parent, name); err == nil {
		return ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	childID, err := fs.sb.AllocInode()
	if err != nil {
		return err
	}
	childHandle, err := fs.inodes.Get(childID)
	if err != nil {
		return err
	}
	child := inode.Inode{ID: childID, FileType: inode.TypeFile}
	if err := fs.inodes.Update(childHandle, child); err != nil {
		return err
	}

	parentHandle, parent, err := fs.getInode(fs.cwd)
	if err != nil {
		return err
	}
	return fs.dirAdd(parentHandle, &parent, directory.Entry{InodeID: childID, Name: name})
}

// Rm removes name from the current directory, per the design's §4.6.2
// "Remove" rule: fails with ErrDirNotEmpty if name is a directory with more
// than its "." and ".." entries; otherwise frees the target inode and its
// block tree, compacts the parent's entry list by moving the last entry
// over the removed slot, and tombstones the vacated last slot.
func (fs *Filesystem) Rm(name string) error {
	_, parent, err := fs.getInode(fs.cwd)
	if err != nil {
		return err
	}

	n := parent.FileSize / directory.Size
	var idx uint32
	var target directory.Entry
	found := false
	for i := uint32(0); i < n; i++ {
		e, err := fs.dirRead(parent, i)
		if err != nil {
			return err
		}
		if !e.IsTombstone() && e.Name == name {
			idx, target, found = i, e, true
			break
		}
	}
	if !found {
		return ErrNotFound
	}

	_, targetInode, err := fs.getInode(target.InodeID)
	if err != nil {
		return err
	}
	if targetInode.IsDir() && targetInode.FileSize/directory.Size > 2 {
		return ErrDirNotEmpty
	}

	// Re-resolve the parent: the inode-table Get above may have evicted it.
	parentHandle, parent, err := fs.getInode(fs.cwd)
	if err != nil {
		return err
	}
	n = parent.FileSize / directory.Size
	last := n - 1
	lastEntry, err := fs.dirRead(parent, last)
	if err != nil {
		return err
	}
	if idx != last {
		if err := fs.dirWrite(&parent, idx, lastEntry); err != nil {
			return err
		}
	}
	if err := fs.dirWrite(&parent, last, directory.Entry{}); err != nil {
		return err
	}
	parent.FileSize -= directory.Size
	if err := fs.inodes.Update(parentHandle, parent); err != nil {
		return err
	}

	// Re-resolve the target once more: the parent-directory traffic above
	// may have evicted its slot too.
	_, targetInode, err = fs.getInode(target.InodeID)
	if err != nil {
		return err
	}
	if err := fs.freeInodeTree(targetInode); err != nil {
		return err
	}
	return fs.sb.FreeInode(target.InodeID)
}
