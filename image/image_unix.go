//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris
// +build aix darwin dragonfly freebsd linux netbsd openbsd solaris

package image

import (
	"golang.org/x/sys/unix"
)

// fsync issues an fsync(2) against the backing file descriptor, if the
// backend exposes an *os.File (it does not for in-memory or non-OS-file
// backends, in which case this is a no-op). This is the same ioctl-vs-no-op
// build-tag split the teacher uses in disk/disk_unix.go, substituting a
// flush for the teacher's BLKRRPART re-read.
func (d *BlockDevice) fsync() error {
	osFile, err := d.backend.Sys()
	if err != nil {
		return nil
	}
	return unix.Fsync(int(osFile.Fd()))
}
