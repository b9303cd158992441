// Package inode implements the on-disk and in-memory inode records described
// by the design's data model (§3) and the InodeTable collaborator (§4.4).
//
// The 64-byte little-endian record layout below follows the field-by-field
// encoding style of the teacher's filesystem/ext4/inode.go (binary.LittleEndian
// over fixed byte offsets), simplified to the flat, pointer-table structure
// this design specifies rather than ext4's extent tree.
package inode

import (
	"encoding/binary"
	"fmt"
)

// Size is the exact on-disk size, in bytes, of a DiskInode record.
const Size = 64

// PerSector is the number of DiskInode records packed into one 512-byte
// sector.
const PerSector = 8

// NumPointers is the width of the block-pointer array.
const NumPointers = 10

// FileType enumerates what a DiskInode currently holds.
type FileType uint32

const (
	// TypeNone marks an unallocated inode slot.
	TypeNone FileType = iota
	// TypeFile is a regular file.
	TypeFile
	// TypeDir is a directory.
	TypeDir
)

func (t FileType) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeFile:
		return "file"
	case TypeDir:
		return "dir"
	default:
		return fmt.Sprintf("FileType(%d)", uint32(t))
	}
}

// DiskInode is the 64-byte on-disk metadata record for one file or
// directory, per the design's §6 wire layout:
//
//	offset  0  u32  file_type
//	offset  4  u32  file_size
//	offset  8  u32  block_pointers[10]
//	offset 48  u32  padding[4]
type DiskInode struct {
	FileType      FileType
	FileSize      uint32
	BlockPointers [NumPointers]uint32
}

// Marshal encodes d into its 64-byte on-disk form.
func (d DiskInode) Marshal() [Size]byte {
	var b [Size]byte
	binary.LittleEndian.PutUint32(b[0:4], uint32(d.FileType))
	binary.LittleEndian.PutUint32(b[4:8], d.FileSize)
	for i, p := range d.BlockPointers {
		off := 8 + i*4
		binary.LittleEndian.PutUint32(b[off:off+4], p)
	}
	// offset 48..64 is zero padding
	return b
}

// Unmarshal decodes a 64-byte on-disk record into a DiskInode.
func Unmarshal(b []byte) (DiskInode, error) {
	if len(b) < Size {
		return DiskInode{}, fmt.Errorf("inode: record too short: got %d bytes, want %d", len(b), Size)
	}
	var d DiskInode
	d.FileType = FileType(binary.LittleEndian.Uint32(b[0:4]))
	d.FileSize = binary.LittleEndian.Uint32(b[4:8])
	for i := range d.BlockPointers {
		off := 8 + i*4
		d.BlockPointers[i] = binary.LittleEndian.Uint32(b[off : off+4])
	}
	return d, nil
}

// SectorAndOffset returns the physical sector number (relative to
// inodeStart) and the byte offset within that sector of inode id's 64-byte
// record, per the design's §6 packing rule: inode k lives at sector
// k/8 + inodeStart, byte offset (k%8)*64.
func SectorAndOffset(id uint32, inodeStart int64) (sector int64, byteOffset int) {
	sector = int64(id/PerSector) + inodeStart
	byteOffset = int(id%PerSector) * Size
	return
}
