// Package ssfs implements a single-volume, single-process, Unix-style
// hierarchical filesystem over a fixed-size disk image file.
//
// It does not mount anything, locally or via a VM: Open and Create just
// manipulate the bytes of an image file directly, the way the teacher
// package this module is adapted from manipulates raw disk images rather
// than going through the host kernel.
//
//	fs, err := ssfs.Create("/tmp/disk.img", 64*1024*1024)
//	err = fs.Init() // current directory is now /root
//	err = fs.Mkdir("projects")
//	err = fs.Cd("projects")
//	err = fs.Touch("notes.txt")
//	fd, err := fs.Open("/root/projects/notes.txt")
//	_, err = fs.Write(fd, []byte("hello"))
//	err = fs.Close(fd)
//	err = fs.Close()
package ssfs

import (
	"errors"
	"fmt"
	"os"

	"github.com/cishoon/ssfs/fs"
	"github.com/cishoon/ssfs/image"
)

// Open mounts an existing image file at path. The file must already exist
// and hold a previously-formatted image; its superblock is decoded from
// sector 0.
func Open(path string) (*fs.Filesystem, error) {
	if path == "" {
		return nil, errors.New("ssfs: must pass an image path")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("ssfs: image %s does not exist", path)
	}
	dev, err := image.OpenFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("ssfs: open %s: %w", path, err)
	}
	return fs.New(dev)
}

// Create allocates a new image file of size bytes at path, which must not
// already exist, and mounts it unformatted: callers must call Format or
// Init before using the returned Filesystem.
func Create(path string, size int64) (*fs.Filesystem, error) {
	if path == "" {
		return nil, errors.New("ssfs: must pass an image path")
	}
	if size <= 0 {
		return nil, errors.New("ssfs: must pass a positive image size")
	}
	dev, err := image.CreateFromPath(path, size)
	if err != nil {
		return nil, fmt.Errorf("ssfs: create %s: %w", path, err)
	}
	return fs.New(dev)
}

// CreateAndInit is Create followed by Init: the returned Filesystem is
// already formatted with the standard top-level directory layout and
// positioned at "/root".
func CreateAndInit(path string, size int64) (*fs.Filesystem, error) {
	fsys, err := Create(path, size)
	if err != nil {
		return nil, err
	}
	if err := fsys.Init(); err != nil {
		return nil, fmt.Errorf("ssfs: init %s: %w", path, err)
	}
	return fsys, nil
}

// CreateWithOptions is Create with its image size supplied through
// functional options instead of a positional parameter, falling back to
// image.DefaultSize (1 GiB) when fs.WithImageSize is not given.
func CreateWithOptions(path string, opts ...fs.Option) (*fs.Filesystem, error) {
	o := fs.NewOptions(opts...)
	size := o.ImageSize
	if size <= 0 {
		size = image.DefaultSize
	}
	return Create(path, size)
}
