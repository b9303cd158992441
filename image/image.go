// Package image provides the fixed-size, sector-addressable backing store for
// the filesystem core: the BlockDevice described by the design's component 4.1.
//
// Most of the provided functions are thin, intelligent wrappers around a
// github.com/cishoon/ssfs/backend.Storage, the same storage abstraction the
// teacher's disk package builds its Disk type on.
package image

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	times "gopkg.in/djherbis/times.v1"

	"github.com/cishoon/ssfs/backend"
	"github.com/cishoon/ssfs/backend/file"
)

// SectorSize is the fixed size, in bytes, of every addressable unit of I/O.
const SectorSize = 512

// DefaultSize is the default size of a freshly created backing image: 1 GiB.
const DefaultSize int64 = 1 << 30

// ErrInvalidArg is returned when a read or write is not a whole number of sectors.
var ErrInvalidArg = errors.New("image: length must be a multiple of the sector size")

// ErrShortIO is returned when the backend returns fewer bytes than requested.
var ErrShortIO = errors.New("image: short read or write against backing storage")

// BlockDevice is a fixed-size byte array addressable in SectorSize-byte sectors.
// It performs pure whole-sector reads and writes against a backend.Storage; it
// has no notion of caching, dirtiness, or higher-level structure.
type BlockDevice struct {
	backend    backend.Storage
	size       int64
	sectorBase int64 // offset, in sectors, of this device's sector 0 within backend
	log        *logrus.Logger
}

// CreateFromPath creates a new backing image file of the given size (rounded
// up to a whole number of sectors), zero-filled, and returns a BlockDevice
// over it. The file must not already exist.
func CreateFromPath(pathName string, size int64) (*BlockDevice, error) {
	if size <= 0 {
		return nil, errors.New("image: size must be positive")
	}
	size = roundUpToSector(size)
	st, err := file.CreateFromPath(pathName, size)
	if err != nil {
		return nil, fmt.Errorf("image: create %s: %w", pathName, err)
	}
	return newBlockDevice(st, size)
}

// OpenFromPath opens an existing backing image file and returns a BlockDevice
// over its full extent.
func OpenFromPath(pathName string) (*BlockDevice, error) {
	st, err := file.OpenFromPath(pathName, false)
	if err != nil {
		return nil, fmt.Errorf("image: open %s: %w", pathName, err)
	}
	info, err := st.Stat()
	if err != nil {
		return nil, fmt.Errorf("image: stat %s: %w", pathName, err)
	}

	if ts, err := times.Stat(pathName); err == nil {
		logrus.StandardLogger().WithFields(logrus.Fields{
			"path":    pathName,
			"modTime": ts.ModTime(),
		}).Debug("image: opened existing backing file")
	}

	return newBlockDevice(st, info.Size())
}

// Open wraps an already-open backend.Storage of the given size as a
// BlockDevice spanning its full extent.
func Open(st backend.Storage, size int64) (*BlockDevice, error) {
	return newBlockDevice(st, size)
}

// SubDevice carves a region of sectors out of an existing BlockDevice,
// addressed independently starting at its own sector 0. This mirrors the
// teacher's backend.Sub helper, which performs the same carving at the
// backend.Storage level for partition tables; here it lets the filesystem's
// sector-0-relative layout be embedded at an offset within a larger host file
// without the core needing to know about it.
func (d *BlockDevice) SubDevice(sectorOffset, sectorCount int64) (*BlockDevice, error) {
	if sectorOffset < 0 || sectorCount <= 0 || (sectorOffset+sectorCount)*SectorSize > d.size {
		return nil, fmt.Errorf("image: sub-device [%d,+%d) out of range of %d-sector device", sectorOffset, sectorCount, d.size/SectorSize)
	}
	sub := backend.Sub(d.backend, sectorOffset*SectorSize, sectorCount*SectorSize)
	return newBlockDevice(sub, sectorCount*SectorSize)
}

func newBlockDevice(st backend.Storage, size int64) (*BlockDevice, error) {
	return &BlockDevice{
		backend: st,
		size:    size,
		log:     logrus.StandardLogger(),
	}, nil
}

// SetLogger overrides the logger used for debug/trace diagnostics.
func (d *BlockDevice) SetLogger(l *logrus.Logger) {
	if l != nil {
		d.log = l
	}
}

// SectorCount returns the number of SectorSize-byte sectors addressable on
// this device.
func (d *BlockDevice) SectorCount() int64 {
	return d.size / SectorSize
}

// Read reads count whole sectors beginning at blockNo.
func (d *BlockDevice) Read(blockNo int64, count int) ([]byte, error) {
	if count <= 0 {
		return nil, ErrInvalidArg
	}
	if blockNo < 0 || (blockNo+int64(count))*SectorSize > d.size {
		return nil, fmt.Errorf("image: read [%d,+%d) out of range", blockNo, count)
	}
	buf := make([]byte, int64(count)*SectorSize)
	n, err := d.backend.ReadAt(buf, blockNo*SectorSize)
	if err != nil && !errors.Is(err, io.EOF) {
		d.log.WithError(err).WithField("block", blockNo).Error("image: read failed")
		return nil, err
	}
	if n != len(buf) {
		d.log.WithFields(logrus.Fields{"block": blockNo, "want": len(buf), "got": n}).Error("image: short read")
		return nil, ErrShortIO
	}
	return buf, nil
}

// Write writes bytes, which must be a multiple of SectorSize, beginning at blockNo.
func (d *BlockDevice) Write(blockNo int64, data []byte) error {
	if len(data) == 0 || len(data)%SectorSize != 0 {
		return ErrInvalidArg
	}
	if blockNo < 0 || (blockNo*SectorSize+int64(len(data))) > d.size {
		return fmt.Errorf("image: write [%d,+%d) out of range", blockNo, len(data)/SectorSize)
	}
	w, err := d.backend.Writable()
	if err != nil {
		return fmt.Errorf("image: backing storage not writable: %w", err)
	}
	n, err := w.WriteAt(data, blockNo*SectorSize)
	if err != nil {
		d.log.WithError(err).WithField("block", blockNo).Error("image: write failed")
		return err
	}
	if n != len(data) {
		d.log.WithFields(logrus.Fields{"block": blockNo, "want": len(data), "got": n}).Error("image: short write")
		return ErrShortIO
	}
	return nil
}

// Format truncates the image to exactly size bytes of zeroes and reopens it
// for read/write. size is rounded up to a whole number of sectors.
func Format(pathName string, size int64) (*BlockDevice, error) {
	size = roundUpToSector(size)
	st, err := file.CreateFromPath(pathName, size)
	if err == nil {
		return newBlockDevice(st, size)
	}
	// image already exists: zero it in place rather than recreate, since
	// CreateFromPath refuses to clobber an existing file.
	st, err = file.OpenFromPath(pathName, false)
	if err != nil {
		return nil, fmt.Errorf("image: format %s: %w", pathName, err)
	}
	if osFile, err := st.Sys(); err == nil {
		if err := osFile.Truncate(size); err != nil {
			return nil, fmt.Errorf("image: format %s: truncate to %d: %w", pathName, size, err)
		}
	}
	w, err := st.Writable()
	if err != nil {
		return nil, fmt.Errorf("image: format %s: %w", pathName, err)
	}
	zero := make([]byte, 1<<20)
	var off int64
	for off < size {
		n := int64(len(zero))
		if off+n > size {
			n = size - off
		}
		if _, err := w.WriteAt(zero[:n], off); err != nil {
			return nil, fmt.Errorf("image: zero-fill %s at %d: %w", pathName, off, err)
		}
		off += n
	}
	return newBlockDevice(st, size)
}

// ZeroFill overwrites the entire device with zero bytes in place, without
// touching its size. Filesystem.Format uses this to wipe an already-open
// device rather than recreating the backing file, mirroring the chunked
// zero-fill loop the package-level Format function uses for an existing path.
func (d *BlockDevice) ZeroFill() error {
	zero := make([]byte, 1<<20)
	var off int64
	for off < d.size {
		n := int64(len(zero))
		if off+n > d.size {
			n = d.size - off
		}
		if err := d.Write(off/SectorSize, zero[:n]); err != nil {
			return fmt.Errorf("image: zero-fill at %d: %w", off, err)
		}
		off += n
	}
	return nil
}

// Save flushes any OS-buffered writes to stable storage. On platforms that
// support it, this issues an fsync against the backing file descriptor; see
// image_unix.go / image_other.go.
func (d *BlockDevice) Save() error {
	return d.fsync()
}

// Close releases the backing storage handle.
func (d *BlockDevice) Close() error {
	return d.backend.Close()
}

func roundUpToSector(size int64) int64 {
	if rem := size % SectorSize; rem != 0 {
		size += SectorSize - rem
	}
	return size
}
