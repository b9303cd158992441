// Package fs implements the Filesystem façade described by the design's
// component 4.6: the public surface that orchestrates directory lookup,
// mkdir/rm/touch, and open/close/read/write/seek against the lower-level
// BlockDevice, BlockCache, Superblock, InodeTable and IndexWalker
// collaborators.
//
// The method surface and error taxonomy mirror the teacher's
// filesystem/filesystem.go (sentinel errors, a slim façade type wrapping
// several lower-level components), generalised from go-diskfs's read-only
// FAT32/ISO9660/ext4/squashfs views to this design's full read-write,
// path-resolving, open-file-table-backed semantics.
package fs

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cishoon/ssfs/cache"
	"github.com/cishoon/ssfs/directory"
	"github.com/cishoon/ssfs/image"
	"github.com/cishoon/ssfs/index"
	"github.com/cishoon/ssfs/inode"
	"github.com/cishoon/ssfs/superblock"
)

// MaxOpenFiles is the width of the open-file table, matching the original
// source's OPEN_FILE_NUM.
const MaxOpenFiles = 16

// rootInodeID is the fixed inode id of the filesystem root, allocated
// first by Format (inode 0 is reserved).
const rootInodeID = 1

// openFile is one slot of the open-file table.
type openFile struct {
	inodeID  uint32
	offset   uint32
	refCount uint32
}

func (f openFile) busy() bool { return f.refCount > 0 }

// Filesystem is the façade: it owns the backing device and every
// lower-level collaborator, and holds the single process's current-directory
// inode id and open-file table. Per the design's §5 concurrency model, it is
// not safe for concurrent use — all operations are called sequentially from
// a single caller.
type Filesystem struct {
	dev    *image.BlockDevice
	cache  *cache.BlockCache
	inodes *inode.Table
	sb     *superblock.Superblock
	walker *index.Walker

	cwd  uint32
	open [MaxOpenFiles]openFile

	log *logrus.Logger
}

// New mounts a Filesystem over an already-formatted BlockDevice, decoding
// its superblock from sector 0 and restoring the current directory to
// "/root" if it exists, per the original source's constructor.
func New(dev *image.BlockDevice) (*Filesystem, error) {
	sbBuf, err := dev.Read(0, superblock.Size)
	if err != nil {
		return nil, fmt.Errorf("fs: read superblock: %w", err)
	}
	sb, err := superblock.Unmarshal(sbBuf)
	if err != nil {
		return nil, fmt.Errorf("fs: decode superblock: %w", err)
	}

	c := cache.New(dev)
	fsys := &Filesystem{
		dev:    dev,
		cache:  c,
		inodes: inode.New(c, superblock.InodeStart),
		sb:     sb,
		walker: index.New(c, sb),
		cwd:    rootInodeID,
		log:    logrus.StandardLogger(),
	}
	if fsys.Exists("/root") {
		_ = fsys.Cd("/root")
	}
	return fsys, nil
}

// SetLogger overrides the logger used for diagnostics, and propagates it to
// every lower-level collaborator that logs.
func (fs *Filesystem) SetLogger(l *logrus.Logger) {
	if l == nil {
		return
	}
	fs.log = l
	fs.cache.SetLogger(l)
	fs.inodes.SetLogger(l)
	fs.dev.SetLogger(l)
}

// Format zeroes the backing image, reinitialises the superblock and every
// pool, allocates inode #1 as the root directory with "." and ".." both
// pointing to itself, and sets the current directory to the root — per the
// design's §4.6.4.
func (fs *Filesystem) Format() error {
	if err := fs.dev.ZeroFill(); err != nil {
		return fmt.Errorf("fs: format: %w", err)
	}

	fs.sb = superblock.New(uint32(time.Now().Unix()))
	fs.cache = cache.New(fs.dev)
	fs.inodes = inode.New(fs.cache, superblock.InodeStart)
	fs.walker = index.New(fs.cache, fs.sb)
	fs.open = [MaxOpenFiles]openFile{}

	rootBlock, err := fs.sb.AllocBlock()
	if err != nil {
		return fmt.Errorf("fs: format: allocate root block: %w", err)
	}
	h, err := fs.cache.Get(int64(rootBlock))
	if err != nil {
		return fmt.Errorf("fs: format: %w", err)
	}
	dot := directory.Entry{InodeID: rootInodeID, Name: "."}.Marshal()
	if err := fs.cache.Write(h, 0, dot[:]); err != nil {
		return fmt.Errorf("fs: format: write root '.': %w", err)
	}
	dotdot := directory.Entry{InodeID: rootInodeID, Name: ".."}.Marshal()
	if err := fs.cache.Write(h, directory.Size, dotdot[:]); err != nil {
		return fmt.Errorf("fs: format: write root '..': %w", err)
	}

	rootID, err := fs.sb.AllocInode()
	if err != nil {
		return fmt.Errorf("fs: format: allocate root inode: %w", err)
	}
	if rootID != rootInodeID {
		return fmt.Errorf("fs: format: root inode allocated as %d, want %d", rootID, rootInodeID)
	}
	rh, err := fs.inodes.Get(rootID)
	if err != nil {
		return fmt.Errorf("fs: format: %w", err)
	}
	root := inode.Inode{ID: rootID, FileType: inode.TypeDir, FileSize: 2 * directory.Size}
	root.BlockPointers[0] = rootBlock
	if err := fs.inodes.Update(rh, root); err != nil {
		return fmt.Errorf("fs: format: %w", err)
	}

	fs.cwd = rootInodeID
	return nil
}

// Init formats the image and pre-creates the standard top-level directory
// layout, per the design's §4.6.4, then changes into "/root".
func (fs *Filesystem) Init() error {
	if err := fs.Format(); err != nil {
		return err
	}
	for _, name := range []string{"root", "home", "etc", "bin", "usr", "dev"} {
		if err := fs.Mkdir(name); err != nil {
			return fmt.Errorf("fs: init: mkdir %s: %w", name, err)
		}
	}
	return fs.Cd("/root")
}

// Save writes the superblock, every dirty cached inode, and every dirty
// cache line back to the backing device, then flushes the device itself.
// Visibility on the backing image is deferred until this call (or eviction),
// per the design's §5 ordering guarantees.
func (fs *Filesystem) Save() error {
	if err := fs.dev.Write(0, fs.sb.Marshal()); err != nil {
		return fmt.Errorf("fs: save: write superblock: %w", err)
	}
	if err := fs.inodes.Save(); err != nil {
		return fmt.Errorf("fs: save: %w", err)
	}
	if err := fs.cache.Save(); err != nil {
		return fmt.Errorf("fs: save: %w", err)
	}
	return fs.dev.Save()
}

// Close saves the filesystem and releases the backing device, mirroring the
// design's §5 resource-acquisition guarantee that destruction always flushes.
func (fs *Filesystem) Close() error {
	if err := fs.Save(); err != nil {
		_ = fs.dev.Close()
		return err
	}
	return fs.dev.Close()
}

// getInode fetches id's handle and decoded in-memory inode in one step.
func (fs *Filesystem) getInode(id uint32) (inode.Handle, inode.Inode, error) {
	h, err := fs.inodes.Get(id)
	if err != nil {
		return inode.Handle{}, inode.Inode{}, err
	}
	in, err := fs.inodes.Inode(h)
	if err != nil {
		return inode.Handle{}, inode.Inode{}, err
	}
	return h, in, nil
}

func validateEntryName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if len(name) > directory.MaxNameLen {
		return ErrNameTooLong
	}
	return nil
}
