// Package sync copies a host directory tree into an ssfs image and verifies
// the copy, mirroring the teacher's sync package, which did the same
// between a host io/fs.FS and a go-diskfs filesystem.FileSystem. Symlink
// handling and timestamp preservation are dropped: ssfs has neither
// symlinks nor per-inode timestamps in its on-disk format.
package sync

import (
	"fmt"
	"io"
	iofs "io/fs"
	"path"

	"github.com/cishoon/ssfs/fs"
)

// excludedPaths are never copied, matching common noise left by host
// filesystems and version control.
var excludedPaths = map[string]bool{
	"lost+found":                true,
	".DS_Store":                 true,
	"System Volume Information": true,
	".git":                      true,
}

// CopyFileSystem copies every directory and regular file from src into dst,
// starting at dst's current directory.
func CopyFileSystem(src iofs.FS, dst *fs.Filesystem) error {
	return copyDir(src, dst, ".")
}

func copyDir(src iofs.FS, dst *fs.Filesystem, dir string) error {
	entries, err := iofs.ReadDir(src, dir)
	if err != nil {
		return fmt.Errorf("sync: read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if excludedPaths[name] {
			continue
		}

		p := name
		if dir != "." {
			p = path.Join(dir, name)
		}

		if entry.IsDir() {
			if err := dst.Mkdir(name); err != nil {
				return fmt.Errorf("sync: create dir %s: %w", p, err)
			}
			if err := dst.Cd(name); err != nil {
				return fmt.Errorf("sync: enter dir %s: %w", p, err)
			}
			if err := copyDir(src, dst, p); err != nil {
				return err
			}
			if err := dst.Cd(".."); err != nil {
				return fmt.Errorf("sync: leave dir %s: %w", p, err)
			}
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("sync: stat %s: %w", p, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if err := copyOneFile(src, dst, p, name); err != nil {
			return fmt.Errorf("sync: copy file %s: %w", p, err)
		}
	}
	return nil
}

func copyOneFile(src iofs.FS, dst *fs.Filesystem, p, name string) error {
	in, err := src.Open(p)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := dst.Touch(name); err != nil {
		return err
	}
	fd, err := dst.Open(name)
	if err != nil {
		return err
	}
	defer func() { _ = dst.Close(fd) }()

	buf := make([]byte, 32*1024)
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			written, werr := dst.Write(fd, buf[:n])
			if werr != nil {
				return werr
			}
			if written != n {
				return io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	return nil
}
