// Package fs implements the nanokernel on-disk file system: the super
// block, block/inode bitmaps, the inode table with direct + single
// indirect addressing, directory entries, path resolution, and the
// create/read/write/seek/delete and mkdir/rmdir/opendir/readdir/stat
// operations built on top of them (spec.md §4.5-§4.7).
//
// Binary records are encoded field-by-field with encoding/binary, the
// same way the teacher decodes a squashfs Superblock/Inode — not through
// a generic marshaling library, since the layout is small, fixed, and
// already dictated byte-for-byte by spec.md §6.
package fs

import "github.com/nanokernel/nanokernel/ata"

const (
	// SectorSize is the fixed block size; sector and block are the same
	// unit throughout nanokernel (spec.md §3).
	SectorSize = ata.SectorSize

	// SuperblockMagic identifies a formatted partition (spec.md §3, §6).
	SuperblockMagic = 0x19590318

	// InodeCount is fixed per spec.md §3: every partition has exactly
	// 4096 inode slots.
	InodeCount = 4096

	// DirectBlocks is the number of direct LBA slots in an inode
	// (i_sectors[0..12)).
	DirectBlocks = 12

	// IndirectLBAsPerBlock is how many 32-bit LBAs fit in one indirect
	// table sector (512 / 4).
	IndirectLBAsPerBlock = SectorSize / 4

	// MaxFileBlocks is the largest number of data blocks one inode can
	// address: 12 direct + 128 indirect.
	MaxFileBlocks = DirectBlocks + IndirectLBAsPerBlock

	// MaxFileSize is the largest regular-file size nanokernel supports,
	// per spec.md §1's non-goal boundary.
	MaxFileSize = MaxFileBlocks * SectorSize

	// MaxNameLength is the largest filename nanokernel supports (15
	// characters, null-padded to 16 bytes on disk).
	MaxNameLength = 15

	// DirentNameBytes is the on-disk width of the filename field.
	DirentNameBytes = 16

	// DirentSize is the fixed on-disk size of one directory entry:
	// name[16] + i_no(4) + f_type(1).
	DirentSize = DirentNameBytes + 4 + 1

	// EntriesPerSector is how many directory entries fit in one sector
	// without crossing the boundary; spec.md §4.6 requires entries never
	// straddle a sector, so any slack at the sector's tail is unused.
	EntriesPerSector = SectorSize / DirentSize

	// RootInode is the partition's root directory inode number.
	RootInode = 0

	// MaxInodesPerPartition bounds the inode table per spec.md §1's
	// non-goal ("partitions holding more than 4096 inodes").
	MaxInodesPerPartition = 4096
)

// FileType tags a directory entry's kind (spec.md §3, §6).
type FileType byte

const (
	TypeUnknown   FileType = 0 // free slot
	TypeRegular   FileType = 1
	TypeDirectory FileType = 2
)

func (t FileType) String() string {
	switch t {
	case TypeUnknown:
		return "unknown"
	case TypeRegular:
		return "regular"
	case TypeDirectory:
		return "directory"
	default:
		return "invalid"
	}
}

// OpenFlag mirrors the open() flags spec.md §4.7/§7 reasons about.
type OpenFlag int

const (
	ORDONLY OpenFlag = 0
	OWRONLY OpenFlag = 1
	ORDWR   OpenFlag = 2
	OCREAT  OpenFlag = 1 << 3
)

func (f OpenFlag) writable() bool {
	return f&0x3 == OWRONLY || f&0x3 == ORDWR
}

// Whence values for Seek, matching spec.md §4.7's sys_lseek.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)
