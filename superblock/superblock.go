// Package superblock implements the design's component 4.3: counts, the
// dirty flag, the inode and block allocation bitmaps, and the rotating
// block-allocation cursor.
//
// The inode and block bitmaps are backed by the teacher's util/bitmap
// package unchanged — the same Bitmap type go-diskfs uses for its own
// filesystem free-space tracking, reused here verbatim for ours.
package superblock

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cishoon/ssfs/util/bitmap"
)

// InodeCount and BlockCount are the fixed bitmap widths named in the
// design's §6: "load-bearing for the sector-offset formulas ... and must
// not be changed without recomputing SUPER_BLOCK_SIZE."
const (
	InodeCount = 3968
	BlockCount = 2097152
)

const (
	inodeBitmapBytes = (InodeCount + 7) / 8
	blockBitmapBytes = (BlockCount + 7) / 8

	// headerBytes is block_count + inode_count + dirty_flag + formatted_at
	// + cursor (5 x uint32) + a volume UUID stamp (16 bytes).
	headerBytes = 5*4 + 16

	bodyBytes = headerBytes + inodeBitmapBytes + blockBitmapBytes
)

// Size is the superblock's footprint in sectors, derived from the header and
// bitmap widths above and rounded up to a whole number of 512-byte sectors.
const Size = (bodyBytes + 511) / 512

// sectorSize duplicates image.SectorSize to avoid a dependency on the image
// package from this low-level component.
const sectorSize = 512

// InodeRecordSize and InodeRecordsPerSector mirror inode.Size/PerSector;
// duplicated as plain constants so this package need not import inode;
// inode.Table instead takes InodeStart as a parameter.
const (
	InodeRecordSize       = 64
	InodeRecordsPerSector = 8
)

// InodeStart is the absolute sector number of the first inode-table sector.
const InodeStart = int64(Size)

// InodeSize is the inode table's footprint in sectors: InodeCount records,
// InodeRecordsPerSector per sector.
const InodeSize = (InodeCount + InodeRecordsPerSector - 1) / InodeRecordsPerSector

// BlockStart is the absolute sector number of the first data-region sector.
const BlockStart = InodeStart + InodeSize

// ErrOutOfInodes is returned when no inode bit is free.
var ErrOutOfInodes = errors.New("superblock: out of inodes")

// ErrOutOfBlocks is returned when no (run of) block bit(s) is free.
var ErrOutOfBlocks = errors.New("superblock: out of blocks")

// Superblock holds the counts, dirty flag, allocator cursor, and the inode
// and block bitmaps, per the design's §3 data model.
type Superblock struct {
	BlockCount  uint32
	InodeCount  uint32
	Dirty       bool
	FormattedAt uint32 // unix seconds; the design's "optional superblock stamp"
	VolumeID    uuid.UUID

	cursor      uint32 // last_i: next index to resume the rotating block scan from
	InodeBitmap *bitmap.Bitmap
	BlockBitmap *bitmap.Bitmap
}

// New builds a freshly formatted Superblock: empty bitmaps, cursor at 0, a
// new random VolumeID, and a stamped FormattedAt, mirroring the original
// source's SuperBlock::format().
func New(formattedAt uint32) *Superblock {
	return &Superblock{
		BlockCount:  BlockCount,
		InodeCount:  InodeCount,
		Dirty:       true,
		FormattedAt: formattedAt,
		VolumeID:    uuid.New(),
		InodeBitmap: bitmap.NewBits(InodeCount),
		BlockBitmap: bitmap.NewBits(BlockCount),
	}
}

// AllocInode scans InodeBitmap for the first clear bit with index >= 1 (inode
// 0 is reserved and never allocated), sets it, and returns its index.
func (s *Superblock) AllocInode() (uint32, error) {
	idx := s.InodeBitmap.FirstFree(1)
	if idx < 0 {
		return 0, ErrOutOfInodes
	}
	if err := s.InodeBitmap.Set(idx); err != nil {
		return 0, fmt.Errorf("superblock: alloc inode %d: %w", idx, err)
	}
	s.Dirty = true
	return uint32(idx), nil
}

// FreeInode clears id's bit in InodeBitmap.
func (s *Superblock) FreeInode(id uint32) error {
	if err := s.InodeBitmap.Clear(int(id)); err != nil {
		return fmt.Errorf("superblock: free inode %d: %w", id, err)
	}
	s.Dirty = true
	return nil
}

// AllocBlock performs the rotating first-fit scan of BlockBitmap described
// in the design's §4.3: starting at the cursor, advancing modulo
// BlockCount, skipping bitmap index 0, until a clear bit is found or a full
// cycle completes. On success it sets the bit, advances the cursor past the
// winner, and returns the absolute physical sector number.
func (s *Superblock) AllocBlock() (uint32, error) {
	n := s.BlockCount
	i := s.cursor % n
	for steps := uint32(0); steps < n; steps++ {
		if i != 0 {
			set, err := s.BlockBitmap.IsSet(int(i))
			if err != nil {
				return 0, fmt.Errorf("superblock: alloc block: %w", err)
			}
			if !set {
				if err := s.BlockBitmap.Set(int(i)); err != nil {
					return 0, fmt.Errorf("superblock: alloc block %d: %w", i, err)
				}
				s.cursor = (i + 1) % n
				s.Dirty = true
				return i + uint32(BlockStart), nil
			}
		}
		i = (i + 1) % n
	}
	return 0, ErrOutOfBlocks
}

// AllocContiguousBlocks performs a linear first-fit scan for n consecutive
// clear bits (bitmap index 0 excluded), per the design's §4.3: "Retained for
// completeness; the filesystem itself does not require contiguous runs."
func (s *Superblock) AllocContiguousBlocks(n uint32) (uint32, error) {
	if n == 0 {
		return 0, fmt.Errorf("superblock: cannot allocate 0 contiguous blocks")
	}
	total := s.BlockCount
	for start := uint32(1); start+n <= total; start++ {
		ok := true
		for j := uint32(0); j < n; j++ {
			set, err := s.BlockBitmap.IsSet(int(start + j))
			if err != nil {
				return 0, fmt.Errorf("superblock: alloc contiguous blocks: %w", err)
			}
			if set {
				ok = false
				start += j // skip past the used run on the next ++ too
				break
			}
		}
		if ok {
			for j := uint32(0); j < n; j++ {
				if err := s.BlockBitmap.Set(int(start + j)); err != nil {
					return 0, fmt.Errorf("superblock: alloc contiguous blocks: %w", err)
				}
			}
			s.Dirty = true
			return start + uint32(BlockStart), nil
		}
	}
	return 0, ErrOutOfBlocks
}

// FreeBlock clears blockNo's bit in BlockBitmap. blockNo is an absolute
// physical sector number, as returned by AllocBlock.
func (s *Superblock) FreeBlock(blockNo uint32) error {
	if blockNo < uint32(BlockStart) {
		return fmt.Errorf("superblock: free block: %d is below BlockStart", blockNo)
	}
	idx := blockNo - uint32(BlockStart)
	if err := s.BlockBitmap.Clear(int(idx)); err != nil {
		return fmt.Errorf("superblock: free block %d: %w", blockNo, err)
	}
	s.Dirty = true
	return nil
}

// Marshal encodes the superblock (header + both bitmaps) into Size sectors
// of raw bytes, ready for image.BlockDevice.Write at sector 0.
func (s *Superblock) Marshal() []byte {
	buf := make([]byte, Size*sectorSize)
	binary.LittleEndian.PutUint32(buf[0:4], s.BlockCount)
	binary.LittleEndian.PutUint32(buf[4:8], s.InodeCount)
	dirty := uint32(0)
	if s.Dirty {
		dirty = 1
	}
	binary.LittleEndian.PutUint32(buf[8:12], dirty)
	binary.LittleEndian.PutUint32(buf[12:16], s.FormattedAt)
	binary.LittleEndian.PutUint32(buf[16:20], s.cursor)
	copy(buf[20:36], s.VolumeID[:])

	copy(buf[headerBytes:headerBytes+inodeBitmapBytes], s.InodeBitmap.ToBytes())
	copy(buf[headerBytes+inodeBitmapBytes:headerBytes+inodeBitmapBytes+blockBitmapBytes], s.BlockBitmap.ToBytes())
	return buf
}

// Unmarshal decodes a superblock previously produced by Marshal.
func Unmarshal(buf []byte) (*Superblock, error) {
	if len(buf) < bodyBytes {
		return nil, fmt.Errorf("superblock: record too short: got %d bytes, want at least %d", len(buf), bodyBytes)
	}
	s := &Superblock{}
	s.BlockCount = binary.LittleEndian.Uint32(buf[0:4])
	s.InodeCount = binary.LittleEndian.Uint32(buf[4:8])
	s.Dirty = binary.LittleEndian.Uint32(buf[8:12]) != 0
	s.FormattedAt = binary.LittleEndian.Uint32(buf[12:16])
	s.cursor = binary.LittleEndian.Uint32(buf[16:20])
	copy(s.VolumeID[:], buf[20:36])

	s.InodeBitmap = bitmap.FromBytes(buf[headerBytes : headerBytes+inodeBitmapBytes])
	s.BlockBitmap = bitmap.FromBytes(buf[headerBytes+inodeBitmapBytes : headerBytes+inodeBitmapBytes+blockBitmapBytes])
	return s, nil
}
