package fs

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"sync"

	"github.com/nanokernel/nanokernel/ksync"
)

// DiskInode is the fixed on-disk inode record (spec.md §3, §6): an inode
// number, its size in bytes, 12 direct block LBAs, and one indirect LBA
// slot. Encoded with the same reflect-driven Marshal/Unmarshal as
// Superblock.
type DiskInode struct {
	INo     uint32
	ISize   uint32
	ISectors [DirectBlocks + 1]uint32
}

func (d *DiskInode) binarySize() int {
	return int(reflect.TypeOf(*d).Size())
}

func (d *DiskInode) marshal(buf []byte) error {
	w := bytes.NewBuffer(buf[:0])
	v := reflect.ValueOf(d).Elem()
	for i := 0; i < v.NumField(); i++ {
		if err := binary.Write(w, binary.LittleEndian, v.Field(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func (d *DiskInode) unmarshal(buf []byte) error {
	r := bytes.NewReader(buf)
	v := reflect.ValueOf(d).Elem()
	for i := 0; i < v.NumField(); i++ {
		if err := binary.Read(r, binary.LittleEndian, v.Field(i).Addr().Interface()); err != nil {
			return err
		}
	}
	return nil
}

// Inode is the in-memory, shared-by-reference handle every open file or
// directory holds. Per-open fields (OpenCount, WriteDeny) live only here,
// never on disk.
type Inode struct {
	part *Partition

	mu sync.Mutex // guards DiskInode field mutation during writes

	DiskInode

	OpenCount int
	writeDeny bool
	writeSema *ksync.Sema // TryDown-style guard for the write-deny flag
}

// inodeSlotLBA returns the LBA holding ino's on-disk slot and its byte
// offset within that sector. One inode occupies one "slot"; a sector
// holds SectorSize/sizeof(DiskInode) slots.
func (p *Partition) inodeSlotLBA(ino uint32) (uint64, int) {
	slotSize := (&DiskInode{}).binarySize()
	perSector := SectorSize / slotSize
	sectorIdx := uint64(ino) / uint64(perSector)
	offset := int(uint64(ino)%uint64(perSector)) * slotSize
	return p.super.InodeTableLBA + sectorIdx, offset
}

// Open returns the in-memory inode for ino, loading it from disk on
// first access and bumping OpenCount on every subsequent call (spec.md
// §4.5). Directories and pipes share the exact same lifecycle.
func (p *Partition) Open(ino uint32) (*Inode, error) {
	p.mu.Lock()
	if existing, ok := p.openInodes[ino]; ok {
		existing.OpenCount++
		p.mu.Unlock()
		return existing, nil
	}
	p.mu.Unlock()

	lba, offset := p.inodeSlotLBA(ino)
	sector := make([]byte, SectorSize)
	if err := p.disk().Read(p.startLBA()+lba, sector, 1); err != nil {
		return nil, err
	}

	in := &Inode{part: p, OpenCount: 1, writeSema: ksync.NewSema(1)}
	slotSize := in.binarySize()
	if err := in.unmarshal(sector[offset : offset+slotSize]); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if existing, ok := p.openInodes[ino]; ok {
		// Lost the race against a concurrent Open; use theirs.
		existing.OpenCount++
		p.mu.Unlock()
		return existing, nil
	}
	p.openInodes[ino] = in
	p.mu.Unlock()
	return in, nil
}

// Dup bumps f's underlying inode's open-count without touching disk, the
// counterpart to fileClose's decrement — used when fork shares an fd
// across tasks (spec.md §4.10 step 7) rather than reopening the inode.
func (p *Partition) Dup(f *OpenFile) {
	p.mu.Lock()
	f.Inode.OpenCount++
	p.mu.Unlock()
}

// Close decrements OpenCount; at zero the in-memory copy is evicted. The
// on-disk record is untouched (only Release destroys it).
func (p *Partition) Close(in *Inode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	in.OpenCount--
	if in.OpenCount <= 0 {
		delete(p.openInodes, in.INo)
	}
}

// Sync writes ino's three on-disk fields back to its slot, preserving any
// unrelated bytes sharing the sector (spec.md §4.5).
func (p *Partition) Sync(in *Inode) error {
	lba, offset := p.inodeSlotLBA(in.INo)
	sector := make([]byte, SectorSize)
	if err := p.disk().Read(p.startLBA()+lba, sector, 1); err != nil {
		return err
	}

	in.mu.Lock()
	slotSize := in.binarySize()
	slot := make([]byte, slotSize)
	err := in.marshal(slot)
	in.mu.Unlock()
	if err != nil {
		return err
	}
	copy(sector[offset:offset+slotSize], slot)

	return p.disk().Write(p.startLBA()+lba, sector, 1)
}

// Release frees every block the inode references (direct and indirect)
// and finally its own inode bit, and removes in from the open-inode cache
// whatever its OpenCount; callers pass an open handle and do not Close it
// afterward (spec.md §4.5).
func (p *Partition) Release(in *Inode) error {
	in.mu.Lock()
	sectors := in.ISectors
	in.mu.Unlock()

	for i := 0; i < DirectBlocks; i++ {
		if sectors[i] == 0 {
			continue
		}
		if err := p.freeBlock(p.blockLBAToBitIdx(uint64(sectors[i]))); err != nil {
			return err
		}
	}

	if sectors[DirectBlocks] != 0 {
		indirectLBA := uint64(sectors[DirectBlocks])
		table := make([]byte, SectorSize)
		if err := p.disk().Read(p.startLBA()+indirectLBA, table, 1); err != nil {
			return err
		}
		for i := 0; i < IndirectLBAsPerBlock; i++ {
			lba := binary.LittleEndian.Uint32(table[i*4:])
			if lba == 0 {
				continue
			}
			if err := p.freeBlock(p.blockLBAToBitIdx(uint64(lba))); err != nil {
				return err
			}
		}
		if err := p.freeBlock(p.blockLBAToBitIdx(indirectLBA)); err != nil {
			return err
		}
	}

	p.mu.Lock()
	delete(p.openInodes, in.INo)
	p.mu.Unlock()

	return p.freeInode(int(in.INo))
}

// Size returns in's i_size in bytes. The inode carries no file type:
// nanokernel tracks type via the parent directory entry (spec.md §3 draws
// no f_type on DiskInode), so callers that need it pass the type they
// already resolved via directory search.
func (in *Inode) Size() uint32 { return in.ISize }
