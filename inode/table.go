package inode

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cishoon/ssfs/cache"
)

// PoolSize is the fixed number of in-memory inode slots, per the design's
// §4.4: "Fixed pool of 100 slots."
const PoolSize = 100

// slot holds one pool entry plus the table's own dirty marker, since an
// in-memory Inode (unlike DiskInode) is only ever dirty as a whole record.
type slot struct {
	inode Inode
	dirty bool
}

// Table is the InodeTable collaborator: a pool of in-memory inodes with an
// LRU reclaim policy that writes evicted dirty inodes back through the block
// cache, per the design's §4.4.
type Table struct {
	cache      *cache.BlockCache
	inodeStart int64
	log        *logrus.Logger

	slots []slot
	free  []int
	// loaded is LRU order, oldest (least recently used) first.
	loaded []int
	// index maps a resident inode id to its position in loaded.
	index map[uint32]int
}

// New builds an empty Table of PoolSize slots. inodeStart is the absolute
// sector number of the first inode-table sector on disk (the design's
// INODE_START), needed to translate an inode id to its physical sector.
func New(c *cache.BlockCache, inodeStart int64) *Table {
	t := &Table{
		cache:      c,
		inodeStart: inodeStart,
		log:        logrus.StandardLogger(),
		slots:      make([]slot, PoolSize),
		index:      make(map[uint32]int, PoolSize),
	}
	t.free = make([]int, PoolSize)
	for i := range t.free {
		t.free[i] = i
	}
	return t
}

// SetLogger overrides the logger used for eviction diagnostics.
func (t *Table) SetLogger(l *logrus.Logger) {
	if l != nil {
		t.log = l
	}
}

// Handle is an arena-style reference to a table slot, re-validated against
// its live occupant on every use rather than carried as a pointer, matching
// the design's §9 preference and cache.Handle's approach.
type Handle struct {
	pos int
	id  uint32
}

func (h Handle) stale(t *Table) bool {
	return t.slots[h.pos].inode.ID != h.id
}

// Get resolves inode id to a Handle, loading it through the block cache if
// it is not already resident, per the design's §4.4 resolution order.
func (t *Table) Get(id uint32) (Handle, error) {
	if pos, ok := t.index[id]; ok {
		t.touch(pos)
		return Handle{pos: pos, id: id}, nil
	}

	if n := len(t.free); n > 0 {
		pos := t.free[n-1]
		t.free = t.free[:n-1]
		in, err := t.readFromDisk(id)
		if err != nil {
			t.free = append(t.free, pos)
			return Handle{}, err
		}
		t.slots[pos] = slot{inode: in}
		t.loaded = append(t.loaded, pos)
		t.index[id] = pos
		return Handle{pos: pos, id: id}, nil
	}

	pos := t.loaded[0]
	evicted := t.slots[pos].inode.ID
	if t.slots[pos].dirty {
		t.log.WithFields(logrus.Fields{"evicted": evicted, "incoming": id}).Trace("inode: evicting dirty slot")
		if err := t.writeBack(pos); err != nil {
			return Handle{}, err
		}
	}
	delete(t.index, evicted)
	in, err := t.readFromDisk(id)
	if err != nil {
		return Handle{}, err
	}
	t.slots[pos] = slot{inode: in}
	t.loaded = append(t.loaded[1:], pos)
	t.index[id] = pos
	return Handle{pos: pos, id: id}, nil
}

// touch moves pos to the MRU end of the loaded list.
func (t *Table) touch(pos int) {
	for i, p := range t.loaded {
		if p == pos {
			t.loaded = append(append(t.loaded[:i], t.loaded[i+1:]...), pos)
			return
		}
	}
}

func (t *Table) readFromDisk(id uint32) (Inode, error) {
	sector, byteOffset := SectorAndOffset(id, t.inodeStart)
	ch, err := t.cache.Get(sector)
	if err != nil {
		return Inode{}, fmt.Errorf("inode: load %d: %w", id, err)
	}
	data, err := t.cache.Bytes(ch)
	if err != nil {
		return Inode{}, err
	}
	d, err := Unmarshal(data[byteOffset : byteOffset+Size])
	if err != nil {
		return Inode{}, err
	}
	return FromDisk(d, id), nil
}

// writeBack always serializes the in-memory inode at pos into its 64-byte
// DiskInode form and overwrites the appropriate offset within its inode
// sector through the block cache, per the design's §4.4 write-back note. The
// cache line is marked dirty; the physical disk write happens later.
func (t *Table) writeBack(pos int) error {
	in := t.slots[pos].inode
	sector, byteOffset := SectorAndOffset(in.ID, t.inodeStart)
	ch, err := t.cache.Get(sector)
	if err != nil {
		return fmt.Errorf("inode: write back %d: %w", in.ID, err)
	}
	rec := in.ToDisk().Marshal()
	if err := t.cache.Write(ch, byteOffset, rec[:]); err != nil {
		return fmt.Errorf("inode: write back %d: %w", in.ID, err)
	}
	t.slots[pos].dirty = false
	return nil
}

// Inode returns the live in-memory Inode for h.
func (t *Table) Inode(h Handle) (Inode, error) {
	if h.stale(t) {
		return Inode{}, fmt.Errorf("inode: stale handle for id %d", h.id)
	}
	return t.slots[h.pos].inode, nil
}

// Update replaces the in-memory Inode for h and marks it dirty.
func (t *Table) Update(h Handle, in Inode) error {
	if h.stale(t) {
		return fmt.Errorf("inode: stale handle for id %d", h.id)
	}
	in.ID = h.id
	t.slots[h.pos] = slot{inode: in, dirty: true}
	return nil
}

// Save writes back every resident, dirty inode through the block cache.
func (t *Table) Save() error {
	for pos := range t.slots {
		if t.slots[pos].dirty {
			if err := t.writeBack(pos); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reset clears the table back to its freshly-constructed state, discarding
// any resident inodes without writing them back.
func (t *Table) Reset() {
	for i := range t.slots {
		t.slots[i] = slot{}
	}
	t.free = t.free[:0]
	for i := range t.slots {
		t.free = append(t.free, i)
	}
	t.loaded = t.loaded[:0]
	t.index = make(map[uint32]int, PoolSize)
}
