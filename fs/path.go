package fs

import "strings"

// parsePath splits p on '/', dropping empty segments, per the design's
// §4.6.1: "parse_path(p) splits on '/' dropping empty segments."
func parsePath(p string) []string {
	raw := strings.Split(p, "/")
	segs := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// resolve walks p from the root (if absolute) or the current directory (if
// relative), treating "." and ".." as ordinary directory entries rather
// than special-cased segments, per the design's §9 note that ".." is data,
// not a language-level reference. Fails with ErrNotFound on any missing
// segment and ErrNotADirectory on traversal through a non-directory
// intermediate.
func (fs *Filesystem) resolve(p string) (uint32, error) {
	current := fs.cwd
	if strings.HasPrefix(p, "/") {
		current = rootInodeID
	}

	for _, seg := range parsePath(p) {
		_, in, err := fs.getInode(current)
		if err != nil {
			return 0, err
		}
		if !in.IsDir() {
			return 0, ErrNotADirectory
		}
		e, err := fs.findEntry(in, seg)
		if err != nil {
			return 0, err
		}
		current = e.InodeID
	}
	return current, nil
}

// Exists reports whether path resolves to an existing inode.
func (fs *Filesystem) Exists(path string) bool {
	_, err := fs.resolve(path)
	return err == nil
}

// Lookup resolves path to the inode id it names.
func (fs *Filesystem) Lookup(path string) (uint32, error) {
	return fs.resolve(path)
}

// Cd changes the current directory to path. An empty path is a no-op, per
// the original source's cd("").
func (fs *Filesystem) Cd(path string) error {
	if path == "" {
		return nil
	}
	id, err := fs.resolve(path)
	if err != nil {
		return err
	}
	_, in, err := fs.getInode(id)
	if err != nil {
		return err
	}
	if !in.IsDir() {
		return ErrNotADirectory
	}
	fs.cwd = id
	return nil
}

// Pwd reconstructs the absolute path of the current directory by walking
// ".." entries up to the root, per the design's §4.6.1.
func (fs *Filesystem) Pwd() (string, error) {
	if fs.cwd == rootInodeID {
		return "/", nil
	}

	var segs []string
	current := fs.cwd
	for current != rootInodeID {
		_, in, err := fs.getInode(current)
		if err != nil {
			return "", err
		}
		parentEntry, err := fs.findEntry(in, "..")
		if err != nil {
			return "", err
		}
		_, parentIn, err := fs.getInode(parentEntry.InodeID)
		if err != nil {
			return "", err
		}
		name, err := fs.nameOfChild(parentIn, current)
		if err != nil {
			return "", err
		}
		segs = append([]string{name}, segs...)
		current = parentEntry.InodeID
	}
	return "/" + strings.Join(segs, "/"), nil
}
