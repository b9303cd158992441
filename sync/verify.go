package sync

import (
	"bytes"
	"fmt"
	"io"
	iofs "io/fs"
	"path"
)

// CompareFS compares two io/fs.FS instances for identical structure and
// contents. It is used to verify a CopyFileSystem import landed correctly,
// by comparing the host source tree against the ssfs image wrapped as an
// io/fs.FS via the converter package.
func CompareFS(origFS, targetFS iofs.FS) error {
	seen := make(map[string]struct{})

	err := iofs.WalkDir(origFS, ".", func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		seen[p] = struct{}{}

		td, err := iofs.Stat(targetFS, p)
		if err != nil {
			return fmt.Errorf("sync: path %q missing in target: %w", p, err)
		}
		if d.IsDir() != td.IsDir() {
			return fmt.Errorf("sync: type mismatch at %q", p)
		}
		if d.IsDir() {
			return nil
		}

		od, err := d.Info()
		if err != nil {
			return err
		}
		if od.Size() != td.Size() {
			return fmt.Errorf("sync: size mismatch at %q: %d vs %d", p, od.Size(), td.Size())
		}
		return compareFileContents(origFS, targetFS, p)
	})
	if err != nil {
		return err
	}

	return iofs.WalkDir(targetFS, ".", func(p string, _ iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if _, ok := seen[p]; !ok {
			return fmt.Errorf("sync: extra path %q in target", p)
		}
		return nil
	})
}

func compareFileContents(a, b iofs.FS, name string) error {
	af, err := a.Open(name)
	if err != nil {
		return err
	}
	defer func() { _ = af.Close() }()

	bf, err := b.Open(name)
	if err != nil {
		return err
	}
	defer func() { _ = bf.Close() }()

	const bufSize = 32 * 1024
	bufA := make([]byte, bufSize)
	bufB := make([]byte, bufSize)

	for {
		na, ea := af.Read(bufA)
		nb, eb := bf.Read(bufB)

		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return fmt.Errorf("sync: content mismatch at %q", path.Clean(name))
		}

		if ea == io.EOF && eb == io.EOF {
			return nil
		}
		if ea != nil && ea != io.EOF {
			return ea
		}
		if eb != nil && eb != io.EOF {
			return eb
		}
	}
}
