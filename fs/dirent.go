package fs

import (
	"bytes"
	"fmt"
)

// Dirent is one fixed-size directory entry: a null-padded 16-byte
// filename, an inode number, and a file-type tag (spec.md §3, §6).
// TypeUnknown marks a free slot.
type Dirent struct {
	Name [DirentNameBytes]byte
	INo  uint32
	Type FileType
}

// NewDirent builds a Dirent for name (must be 1-15 bytes), validating the
// length the way sys_mkdir/file_create reject anything longer before it
// ever reaches the directory layer.
func NewDirent(name string, ino uint32, typ FileType) (Dirent, error) {
	if len(name) == 0 || len(name) > MaxNameLength {
		return Dirent{}, fmt.Errorf("fs: %w: filename %q must be 1-%d bytes", ErrInvalid, name, MaxNameLength)
	}
	var d Dirent
	copy(d.Name[:], name)
	d.INo = ino
	d.Type = typ
	return d, nil
}

// NameString returns the entry's filename, trimmed at the first NUL.
func (d Dirent) NameString() string {
	if i := bytes.IndexByte(d.Name[:], 0); i >= 0 {
		return string(d.Name[:i])
	}
	return string(d.Name[:])
}

// Free reports whether this slot is unused.
func (d Dirent) Free() bool { return d.Type == TypeUnknown }

func (d Dirent) marshal(buf []byte) {
	copy(buf[0:DirentNameBytes], d.Name[:])
	putUint32(buf[DirentNameBytes:], d.INo)
	buf[DirentNameBytes+4] = byte(d.Type)
}

func (d *Dirent) unmarshal(buf []byte) {
	copy(d.Name[:], buf[0:DirentNameBytes])
	d.INo = getUint32(buf[DirentNameBytes:])
	d.Type = FileType(buf[DirentNameBytes+4])
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
