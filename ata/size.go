package ata

import (
	"fmt"
	"os"
)

// Sizer is satisfied by backing stores that know their own byte length
// without a Stat/ioctl round trip (e.g. an in-memory RAM disk used by
// tests).
type Sizer interface {
	Size() int64
}

// sizeOf determines a backing store's length in bytes: a Sizer answers
// directly, a regular *os.File uses Stat, and a block/character device
// file falls through to the platform-specific ioctl in size_linux.go /
// size_other.go, the same per-OS split the teacher uses for inode
// timestamps (inode_linux.go / inode_darwin.go).
func sizeOf(bs BlockStore) (uint64, error) {
	if s, ok := bs.(Sizer); ok {
		return uint64(s.Size()), nil
	}

	f, ok := bs.(*os.File)
	if !ok {
		return 0, fmt.Errorf("ata: backing store of type %T does not expose a size", bs)
	}

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.Mode()&os.ModeDevice == 0 {
		return uint64(info.Size()), nil
	}
	return blockDeviceSize(f)
}
