package fs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
)

// Superblock is the one-sector metadata record at partition start LBA + 1
// (spec.md §3, §6). Fields are encoded/decoded in declaration order via
// reflection, the same trick super.go uses for the squashfs superblock:
// it keeps the wire format and the Go struct definition as one source of
// truth instead of a hand-written field-by-field codec that can drift.
type Superblock struct {
	Magic              uint32
	SectorCount        uint32
	InodeCount         uint32
	PartitionBaseLBA   uint64
	BlockBitmapLBA     uint64
	BlockBitmapSectors uint32
	InodeBitmapLBA     uint64
	InodeBitmapSectors uint32
	InodeTableLBA      uint64
	InodeTableSectors  uint32
	DataStartLBA       uint64
	RootInode          uint32
	DirEntrySize       uint32
}

// binarySize returns the encoded length in bytes of every exported field.
func (s *Superblock) binarySize() int {
	v := reflect.ValueOf(s).Elem()
	sz := 0
	for i := 0; i < v.NumField(); i++ {
		sz += int(v.Field(i).Type().Size())
	}
	return sz
}

// MarshalBinary encodes the superblock in native little-endian order, no
// byte-swapping, per spec.md §6.
func (s *Superblock) MarshalBinary() ([]byte, error) {
	buf := &bytes.Buffer{}
	v := reflect.ValueOf(s).Elem()
	for i := 0; i < v.NumField(); i++ {
		if err := binary.Write(buf, binary.LittleEndian, v.Field(i).Interface()); err != nil {
			return nil, err
		}
	}
	out := make([]byte, SectorSize)
	copy(out, buf.Bytes())
	return out, nil
}

// UnmarshalBinary decodes a superblock from a sector's worth of bytes and
// validates the magic number.
func (s *Superblock) UnmarshalBinary(data []byte) error {
	v := reflect.ValueOf(s).Elem()
	r := bytes.NewReader(data)
	for i := 0; i < v.NumField(); i++ {
		if err := binary.Read(r, binary.LittleEndian, v.Field(i).Addr().Interface()); err != nil {
			return err
		}
	}
	if s.Magic != SuperblockMagic {
		return fmt.Errorf("fs: %w: bad superblock magic 0x%x", ErrInvalid, s.Magic)
	}
	return nil
}

// superblockLBA is where the superblock lives within a partition, always
// one sector past the partition's own start LBA (spec.md §3, §6).
const superblockLBA = 1

func readSuperblock(p *Partition) (*Superblock, error) {
	buf := make([]byte, SectorSize)
	if err := p.disk().Read(p.startLBA()+superblockLBA, buf, 1); err != nil {
		return nil, err
	}
	sb := &Superblock{}
	if err := sb.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	return sb, nil
}

func writeSuperblock(p *Partition, sb *Superblock) error {
	buf, err := sb.MarshalBinary()
	if err != nil {
		return err
	}
	return p.disk().Write(p.startLBA()+superblockLBA, buf, 1)
}
