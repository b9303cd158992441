// Package converter adapts an *fs.Filesystem to the standard library's
// io/fs.FS, the same role the teacher's converter package played for
// go-diskfs's multi-format filesystem.FileSystem interface — so that
// standard-library tooling (fs.WalkDir, fs.ReadFile, http.FileServer) can
// walk an ssfs image read-only without any ssfs-specific API.
package converter

import (
	"io"
	iofs "io/fs"
	"path"
	"strings"
	"time"

	"github.com/cishoon/ssfs/fs"
	"github.com/cishoon/ssfs/inode"
)

// FS wraps an *fs.Filesystem as a read-only io/fs.FS.
type FS struct {
	fsys *fs.Filesystem
}

// New wraps fsys as an io/fs.FS.
func New(fsys *fs.Filesystem) *FS {
	return &FS{fsys: fsys}
}

func absPath(name string) string {
	if name == "." || name == "" {
		return "/"
	}
	return "/" + strings.TrimPrefix(name, "/")
}

// Open implements io/fs.FS.
func (a *FS) Open(name string) (iofs.File, error) {
	if !iofs.ValidPath(name) {
		return nil, &iofs.PathError{Op: "open", Path: name, Err: iofs.ErrInvalid}
	}
	p := absPath(name)
	st, err := a.stat(p)
	if err != nil {
		return nil, &iofs.PathError{Op: "open", Path: name, Err: err}
	}

	base := path.Base(p)
	if st.Type == inode.TypeDir {
		entries, err := a.readDir(p)
		if err != nil {
			return nil, &iofs.PathError{Op: "open", Path: name, Err: err}
		}
		return &dirFile{name: base, st: st, entries: entries}, nil
	}

	fd, err := a.fsys.Open(p)
	if err != nil {
		return nil, &iofs.PathError{Op: "open", Path: name, Err: err}
	}
	return &regularFile{fsys: a.fsys, fd: fd, name: base, st: st}, nil
}

// stat resolves p to its inode id and returns its size/type.
func (a *FS) stat(p string) (fs.Stat, error) {
	id, err := a.fsys.Lookup(p)
	if err != nil {
		return fs.Stat{}, err
	}
	return a.fsys.Stat(id)
}

// ReadDir implements io/fs.ReadDirFS, listing the directory at name.
func (a *FS) ReadDir(name string) ([]iofs.DirEntry, error) {
	if !iofs.ValidPath(name) {
		return nil, &iofs.PathError{Op: "readdir", Path: name, Err: iofs.ErrInvalid}
	}
	entries, err := a.readDir(absPath(name))
	if err != nil {
		return nil, &iofs.PathError{Op: "readdir", Path: name, Err: err}
	}
	return entries, nil
}

// readDir lists p's children by temporarily changing the wrapped
// Filesystem's current directory and restoring it afterwards: the façade
// only exposes Ls() against its own cwd, per the design's single-process,
// single-cwd concurrency model.
func (a *FS) readDir(p string) ([]iofs.DirEntry, error) {
	saved, err := a.fsys.Pwd()
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.fsys.Cd(saved) }()

	if err := a.fsys.Cd(p); err != nil {
		return nil, err
	}
	names, err := a.fsys.Ls()
	if err != nil {
		return nil, err
	}

	entries := make([]iofs.DirEntry, 0, len(names))
	for _, name := range names {
		if name == "." || name == ".." {
			continue
		}
		childPath := p
		if !strings.HasSuffix(childPath, "/") {
			childPath += "/"
		}
		childPath += name
		st, err := a.stat(childPath)
		if err != nil {
			return nil, err
		}
		entries = append(entries, dirEntry{name: name, st: st})
	}
	return entries, nil
}

type fileInfo struct {
	name string
	st   fs.Stat
}

func (fi fileInfo) Name() string { return fi.name }
func (fi fileInfo) Size() int64  { return int64(fi.st.Size) }
func (fi fileInfo) Mode() iofs.FileMode {
	if fi.st.Type == inode.TypeDir {
		return iofs.ModeDir | 0o555
	}
	return 0o444
}
func (fi fileInfo) ModTime() time.Time { return time.Time{} }
func (fi fileInfo) IsDir() bool        { return fi.st.Type == inode.TypeDir }
func (fi fileInfo) Sys() any           { return fi.st }

type dirEntry struct {
	name string
	st   fs.Stat
}

func (d dirEntry) Name() string        { return d.name }
func (d dirEntry) IsDir() bool         { return d.st.Type == inode.TypeDir }
func (d dirEntry) Type() iofs.FileMode { return fileInfo{name: d.name, st: d.st}.Mode().Type() }
func (d dirEntry) Info() (iofs.FileInfo, error) {
	return fileInfo{name: d.name, st: d.st}, nil
}

// regularFile adapts one open ssfs file descriptor to io/fs.File.
type regularFile struct {
	fsys *fs.Filesystem
	fd   int
	name string
	st   fs.Stat
}

func (f *regularFile) Stat() (iofs.FileInfo, error) {
	return fileInfo{name: f.name, st: f.st}, nil
}

func (f *regularFile) Read(b []byte) (int, error) {
	data, err := f.fsys.Read(f.fd, uint32(len(b)))
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, io.EOF
	}
	return copy(b, data), nil
}

func (f *regularFile) Close() error {
	return f.fsys.Close(f.fd)
}

// dirFile adapts a directory listing snapshotted at Open time to
// io/fs.ReadDirFile.
type dirFile struct {
	name    string
	st      fs.Stat
	entries []iofs.DirEntry
	offset  int
}

func (d *dirFile) Stat() (iofs.FileInfo, error) {
	return fileInfo{name: d.name, st: d.st}, nil
}

func (d *dirFile) Read([]byte) (int, error) {
	return 0, &iofs.PathError{Op: "read", Path: d.name, Err: iofs.ErrInvalid}
}

func (d *dirFile) Close() error { return nil }

func (d *dirFile) ReadDir(n int) ([]iofs.DirEntry, error) {
	remaining := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return remaining, nil
	}
	if len(remaining) == 0 {
		return nil, io.EOF
	}
	if n > len(remaining) {
		n = len(remaining)
	}
	d.offset += n
	return remaining[:n], nil
}
