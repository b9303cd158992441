// Package index implements the IndexWalker described by the design's
// component 4.5: the stateless translation from (inode, logical block
// index) to a physical sector number across the inode's mixed direct /
// single / double / triple indirect block-pointer tree.
//
// Nothing here is cached state of its own — every lookup and allocation
// reads and writes through the shared cache.BlockCache, in the same style
// the teacher's filesystem/ext4 package walks an extent tree through its
// backing Disk.
package index

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cishoon/ssfs/cache"
	"github.com/cishoon/ssfs/inode"
)

// PointersPerBlock is P in the design's §4.5 table: one 512-byte index
// block holds SectorSize/4 little-endian uint32 pointers.
const PointersPerBlock = cache.SectorSize / 4

// Boundaries of the four index-depth regimes, named after the design's
// §4.5 table.
const (
	directCount    = 5
	singleIndirect = 2 // block_pointers[5], block_pointers[6]
	doubleIndirect = 2 // block_pointers[7], block_pointers[8]

	singleCapacity = PointersPerBlock
	doubleCapacity = PointersPerBlock * PointersPerBlock
)

// MaxLogicalBlock is one past the highest logical block index addressable
// by the ten-pointer tree (5 direct + 2*P single + 2*P² double + P³ triple).
const MaxLogicalBlock = directCount +
	singleIndirect*singleCapacity +
	doubleIndirect*doubleCapacity +
	PointersPerBlock*PointersPerBlock*PointersPerBlock

// ErrOutOfRange is returned by Lookup and AllocNext for a logical block
// index the ten-pointer tree cannot address.
var ErrOutOfRange = errors.New("index: logical block index out of range")

// errSubtreeFull is an internal sentinel: the subtree rooted at a given
// top-level pointer has no free leaf, so AllocNext should try the next one.
// It never escapes this package.
var errSubtreeFull = errors.New("index: subtree full")

// Allocator is the subset of superblock.Superblock that AllocNext needs to
// hand out fresh data and index blocks.
type Allocator interface {
	AllocBlock() (uint32, error)
}

// Walker is the stateless-per-inode IndexWalker: it holds only the shared
// collaborators, never a specific file's state.
type Walker struct {
	cache     *cache.BlockCache
	allocator Allocator
}

// New builds a Walker over the given block cache and block allocator.
func New(c *cache.BlockCache, allocator Allocator) *Walker {
	return &Walker{cache: c, allocator: allocator}
}

// path describes where logical block i lives in the pointer tree: which of
// the ten top-level block_pointers it starts from, how many index-block
// hops follow before reaching the data pointer (0 for direct), and — for
// levels >= 1 — the entry to read at each hop.
type path struct {
	top     int
	levels  int
	entries []int
}

// pathFor classifies a logical block index per the design's §4.5 table.
func pathFor(i uint64) (path, error) {
	const p = uint64(PointersPerBlock)

	switch {
	case i < directCount:
		return path{top: int(i), levels: 0}, nil

	case i < directCount+singleIndirect*p:
		off := i - directCount
		return path{
			top:     directCount + int(off/p),
			levels:  1,
			entries: []int{int(off % p)},
		}, nil

	case i < directCount+singleIndirect*p+doubleIndirect*p*p:
		off := i - directCount - singleIndirect*p
		return path{
			top:     7 + int(off/(p*p)),
			levels:  2,
			entries: []int{int((off / p) % p), int(off % p)},
		}, nil

	case i < uint64(MaxLogicalBlock):
		off := i - directCount - singleIndirect*p - doubleIndirect*p*p
		return path{
			top:    9,
			levels: 3,
			entries: []int{
				int((off / (p * p)) % p),
				int((off / p) % p),
				int(off % p),
			},
		}, nil

	default:
		return path{}, ErrOutOfRange
	}
}

// Lookup returns the physical sector number that logical block i of in maps
// to, or 0 if any pointer along the chain is unallocated — a hole in the
// file, per the design's §4.5: "the caller interprets this as a hole ...
// and refuses to read from it."
func (w *Walker) Lookup(in inode.Inode, i uint64) (uint32, error) {
	p, err := pathFor(i)
	if err != nil {
		return 0, err
	}

	ptr := in.BlockPointers[p.top]
	if p.levels == 0 {
		return ptr, nil
	}
	if ptr == 0 {
		return 0, nil
	}

	blockNo := ptr
	for level := 0; level < p.levels; level++ {
		val, err := w.readPtr(blockNo, p.entries[level])
		if err != nil {
			return 0, err
		}
		if level == p.levels-1 {
			return val, nil
		}
		if val == 0 {
			return 0, nil
		}
		blockNo = val
	}
	return 0, nil
}

// AllocNext walks the tree in lexicographic order and fills the first
// missing slot with a freshly allocated data block, mutating in's
// BlockPointers (and any intermediate index blocks) as needed. The caller
// is responsible for persisting the mutated inode back through its
// InodeTable — AllocNext only ever appends, never re-lays-out, the tree.
func (w *Walker) AllocNext(in *inode.Inode) (uint32, error) {
	groups := []struct {
		start, count, levels int
	}{
		{0, directCount, 0},
		{5, singleIndirect, 1},
		{7, doubleIndirect, 2},
		{9, 1, 3},
	}

	for _, g := range groups {
		for k := 0; k < g.count; k++ {
			top := g.start + k
			if g.levels == 0 {
				if in.BlockPointers[top] != 0 {
					continue
				}
				nb, err := w.allocator.AllocBlock()
				if err != nil {
					return 0, err
				}
				in.BlockPointers[top] = nb
				return nb, nil
			}

			slot := inodePtrSlot{ptr: &in.BlockPointers[top]}
			nb, err := w.allocInBlock(slot, g.levels)
			if errors.Is(err, errSubtreeFull) {
				continue
			}
			if err != nil {
				return 0, err
			}
			return nb, nil
		}
	}
	return 0, fmt.Errorf("index: %w", ErrOutOfRange)
}

// ptrSlot abstracts one physical location a pointer value can live in:
// either a field of an in-memory inode.Inode, or an entry inside a cached
// index-block sector.
type ptrSlot interface {
	get() (uint32, error)
	set(uint32) error
}

type inodePtrSlot struct {
	ptr *uint32
}

func (s inodePtrSlot) get() (uint32, error) { return *s.ptr, nil }
func (s inodePtrSlot) set(v uint32) error   { *s.ptr = v; return nil }

type cachePtrSlot struct {
	w       *Walker
	blockNo uint32
	idx     int
}

func (s cachePtrSlot) get() (uint32, error) { return s.w.readPtr(s.blockNo, s.idx) }
func (s cachePtrSlot) set(v uint32) error   { return s.w.writePtr(s.blockNo, s.idx, v) }

// allocInBlock allocates the next data block within the subtree rooted at
// slot, which has levels >= 1 index-block hops remaining before a data
// pointer. If slot is currently unallocated it creates the whole chain down
// to a fresh data block in one shot; otherwise it scans the existing index
// block's P entries in order, recursing into the first one with room and
// skipping any that are already full. Returns errSubtreeFull if every entry
// is already fully allocated.
func (w *Walker) allocInBlock(slot ptrSlot, levels int) (uint32, error) {
	cur, err := slot.get()
	if err != nil {
		return 0, err
	}
	if cur == 0 {
		return w.createChain(slot, levels)
	}

	blockNo := cur
	for entry := 0; entry < PointersPerBlock; entry++ {
		if levels == 1 {
			val, err := w.readPtr(blockNo, entry)
			if err != nil {
				return 0, err
			}
			if val != 0 {
				continue
			}
			nb, err := w.allocator.AllocBlock()
			if err != nil {
				return 0, err
			}
			if err := w.writePtr(blockNo, entry, nb); err != nil {
				return 0, err
			}
			return nb, nil
		}

		child := cachePtrSlot{w: w, blockNo: blockNo, idx: entry}
		val, err := w.readPtr(blockNo, entry)
		if err != nil {
			return 0, err
		}
		if val == 0 {
			return w.createChain(child, levels-1)
		}
		nb, err := w.allocInBlock(child, levels-1)
		if errors.Is(err, errSubtreeFull) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return nb, nil
	}
	return 0, errSubtreeFull
}

// createChain allocates a brand-new chain of levels freshly zero-filled
// index blocks (levels >= 1), culminating in one freshly allocated data
// block at entry 0 of the innermost one, and writes the chain's root
// pointer into slot. levels == 0 means slot itself is the data pointer.
//
// Every newly allocated index block is zero-filled before use: a block
// bitmap bit recycled from a previously freed file could otherwise still
// hold stale pointer bytes, which AllocNext and Lookup would misread as
// live sector numbers.
func (w *Walker) createChain(slot ptrSlot, levels int) (uint32, error) {
	if levels == 0 {
		nb, err := w.allocator.AllocBlock()
		if err != nil {
			return 0, err
		}
		if err := slot.set(nb); err != nil {
			return 0, err
		}
		return nb, nil
	}

	blockNo, err := w.allocZeroBlock()
	if err != nil {
		return 0, err
	}
	if err := slot.set(blockNo); err != nil {
		return 0, err
	}
	child := cachePtrSlot{w: w, blockNo: blockNo, idx: 0}
	return w.createChain(child, levels-1)
}

// allocZeroBlock allocates a fresh block and writes it through the cache as
// all-zero, so any pointer entries read out of it before being explicitly
// set come back as the "unallocated" sentinel rather than disk garbage.
func (w *Walker) allocZeroBlock() (uint32, error) {
	nb, err := w.allocator.AllocBlock()
	if err != nil {
		return 0, err
	}
	h, err := w.cache.Get(int64(nb))
	if err != nil {
		return 0, fmt.Errorf("index: zero-fill block %d: %w", nb, err)
	}
	var zero [cache.SectorSize]byte
	if err := w.cache.Write(h, 0, zero[:]); err != nil {
		return 0, fmt.Errorf("index: zero-fill block %d: %w", nb, err)
	}
	return nb, nil
}

func (w *Walker) readPtr(blockNo uint32, idx int) (uint32, error) {
	h, err := w.cache.Get(int64(blockNo))
	if err != nil {
		return 0, fmt.Errorf("index: read block %d entry %d: %w", blockNo, idx, err)
	}
	data, err := w.cache.Bytes(h)
	if err != nil {
		return 0, fmt.Errorf("index: read block %d entry %d: %w", blockNo, idx, err)
	}
	off := idx * 4
	return binary.LittleEndian.Uint32(data[off : off+4]), nil
}

func (w *Walker) writePtr(blockNo uint32, idx int, val uint32) error {
	h, err := w.cache.Get(int64(blockNo))
	if err != nil {
		return fmt.Errorf("index: write block %d entry %d: %w", blockNo, idx, err)
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], val)
	if err := w.cache.Write(h, idx*4, b[:]); err != nil {
		return fmt.Errorf("index: write block %d entry %d: %w", blockNo, idx, err)
	}
	return nil
}
