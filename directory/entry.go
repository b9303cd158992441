// Package directory implements the 32-byte DirectoryEntry record from the
// design's §3 and §6: a packed (inode_id, name) pair, 16 to a sector, in the
// same fixed-width, NUL-padded-name style as the teacher's FAT32 and
// squashfs directory entry records.
package directory

import (
	"encoding/binary"
	"fmt"
)

// Size is the exact on-disk size, in bytes, of a DirectoryEntry record.
const Size = 32

// NameLen is the maximum length of a name, excluding any NUL terminator.
const NameLen = 28

// PerSector is the number of DirectoryEntry records packed into one
// 512-byte sector.
const PerSector = 16

// MaxNameLen is the longest name acceptable to mkdir/touch: names must fit,
// NUL-padded, inside the NameLen-byte field.
const MaxNameLen = NameLen - 1

// Entry is one 32-byte directory record: offset 0 a u32 inode id (0 is a
// tombstone), offset 4 a 28-byte NUL-padded name.
type Entry struct {
	InodeID uint32
	Name    string
}

// IsTombstone reports whether this entry is a free slot available for
// reuse, per the design's glossary.
func (e Entry) IsTombstone() bool {
	return e.InodeID == 0
}

// Marshal encodes e into its 32-byte on-disk form. The caller is
// responsible for having validated len(e.Name) <= MaxNameLen beforehand;
// Marshal truncates rather than erroring, since by the time an Entry
// reaches the wire format layer validation has already happened at the
// filesystem façade.
func (e Entry) Marshal() [Size]byte {
	var b [Size]byte
	binary.LittleEndian.PutUint32(b[0:4], e.InodeID)
	name := e.Name
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}
	copy(b[4:4+NameLen], name)
	return b
}

// Unmarshal decodes a 32-byte on-disk record into an Entry.
func Unmarshal(b []byte) (Entry, error) {
	if len(b) < Size {
		return Entry{}, fmt.Errorf("directory: record too short: got %d bytes, want %d", len(b), Size)
	}
	id := binary.LittleEndian.Uint32(b[0:4])
	raw := b[4 : 4+NameLen]
	nul := NameLen
	for i, c := range raw {
		if c == 0 {
			nul = i
			break
		}
	}
	return Entry{InodeID: id, Name: string(raw[:nul])}, nil
}

// ValidateName reports whether name is short enough to store, per the
// design's §4.6.2: "names >= 28 bytes are rejected at the caller."
func ValidateName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("directory: name must not be empty")
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("directory: name %q is %d bytes, longer than the %d-byte limit", name, len(name), MaxNameLen)
	}
	return nil
}
