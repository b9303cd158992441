package inode

// Inode is the in-memory, cached form of a DiskInode: the disk fields plus
// the inode id. The dirty marker is tracked by InodeTable rather than here,
// and no reference count is kept.
type Inode struct {
	ID            uint32
	FileType      FileType
	FileSize      uint32
	BlockPointers [NumPointers]uint32
}

// FromDisk builds an in-memory Inode from its on-disk record and id.
func FromDisk(d DiskInode, id uint32) Inode {
	return Inode{
		ID:            id,
		FileType:      d.FileType,
		FileSize:      d.FileSize,
		BlockPointers: d.BlockPointers,
	}
}

// ToDisk serializes the in-memory fields back into their on-disk form.
func (in Inode) ToDisk() DiskInode {
	return DiskInode{
		FileType:      in.FileType,
		FileSize:      in.FileSize,
		BlockPointers: in.BlockPointers,
	}
}

// IsAllocated reports whether this slot holds a live file or directory.
func (in Inode) IsAllocated() bool {
	return in.FileType != TypeNone
}

// IsFile reports whether this inode describes a regular file.
func (in Inode) IsFile() bool {
	return in.FileType == TypeFile
}

// IsDir reports whether this inode describes a directory.
func (in Inode) IsDir() bool {
	return in.FileType == TypeDir
}
