package fs

import (
	"io"

	"github.com/nanokernel/nanokernel/ksync"
)

// OpenFile is the in-memory record of one open regular file: the shared
// Inode handle, the flags it was opened with, and its read/write cursor
// (spec.md §4.7's "file" object, minus the fd-table/global-slot
// bookkeeping that belongs to the proc package's FileTable).
type OpenFile struct {
	Inode    *Inode
	Flags    OpenFlag
	Position uint32
}

// blocksFor returns the number of 512-byte blocks needed to hold n bytes.
func blocksFor(n uint32) int {
	if n == 0 {
		return 0
	}
	return int((n-1)/SectorSize) + 1
}

// fileCreate implements the file_create half of sys_open (spec.md §4.7):
// allocate an inode, link it into parent under name as a regular file,
// and sync both records. On failure the inode bit is rolled back.
func (p *Partition) fileCreate(parent *Inode, name string, flags OpenFlag) (*OpenFile, error) {
	inoNum := p.allocInode()
	if inoNum == -1 {
		return nil, ErrNoSpace
	}
	if err := p.syncInodeBitmapSector(inoNum); err != nil {
		return nil, err
	}

	in := &Inode{part: p, OpenCount: 1, writeSema: ksync.NewSema(1)}
	in.INo = uint32(inoNum)

	entry, err := NewDirent(name, in.INo, TypeRegular)
	if err != nil {
		_ = p.freeInode(inoNum)
		return nil, err
	}
	if err := p.syncEntry(parent, entry); err != nil {
		_ = p.freeInode(inoNum)
		return nil, err
	}

	if err := p.Sync(parent); err != nil {
		return nil, err
	}
	if err := p.Sync(in); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.openInodes[in.INo] = in
	p.mu.Unlock()

	of := &OpenFile{Inode: in, Flags: flags}
	if flags.writable() {
		if !in.tryAcquireWrite() {
			return nil, ErrBusy // unreachable: the inode was just created
		}
	}
	return of, nil
}

// fileOpen implements the file_open half of sys_open: reopen an existing
// inode and, for a writer, fail immediately if write_deny is already set
// rather than blocking (spec.md §4.7).
func (p *Partition) fileOpen(ino uint32, flags OpenFlag) (*OpenFile, error) {
	in, err := p.Open(ino)
	if err != nil {
		return nil, err
	}
	if flags.writable() {
		if !in.tryAcquireWrite() {
			p.Close(in)
			return nil, ErrBusy
		}
	}
	return &OpenFile{Inode: in, Flags: flags}, nil
}

// fileClose clears write_deny (if held) and closes the underlying inode
// (spec.md §4.7).
func (p *Partition) fileClose(f *OpenFile) {
	if f.Flags.writable() {
		f.Inode.releaseWrite()
	}
	p.Close(f.Inode)
	f.Inode = nil
}

// growFile extends in's block list to hold targetBlocks blocks,
// allocating direct slots first and then the indirect table/region
// exactly once each (spec.md §4.7's three allocation regimes: all-direct,
// crossing into indirect for the first time, and staying in the indirect
// region). Every block allocated during a failed call is rolled back.
func (p *Partition) growFile(in *Inode, targetBlocks int) error {
	existing, err := p.blockLBAs(in)
	if err != nil {
		return err
	}
	cur := len(existing)
	if targetBlocks <= cur {
		return nil
	}
	if targetBlocks > MaxFileBlocks {
		return ErrTooLarge
	}

	var allocatedBits []int
	tableBit := -1
	rollback := func() {
		for _, bit := range allocatedBits {
			_ = p.freeBlock(bit)
		}
		if tableBit != -1 {
			_ = p.freeBlock(tableBit)
		}
	}

	in.mu.Lock()
	indirectLBA := uint64(in.ISectors[DirectBlocks])
	in.mu.Unlock()

	var table [IndirectLBAsPerBlock]uint32
	tableDirty := false
	if indirectLBA != 0 {
		table, err = p.readIndirectTable(indirectLBA)
		if err != nil {
			return err
		}
	}

	for idx := cur; idx < targetBlocks; idx++ {
		lba, bit := p.allocBlock()
		if lba == -1 {
			rollback()
			return ErrNoSpace
		}
		if err := p.syncBlockBitmapSector(bit); err != nil {
			rollback()
			return err
		}

		if idx < DirectBlocks {
			in.mu.Lock()
			in.ISectors[idx] = uint32(lba)
			in.mu.Unlock()
			allocatedBits = append(allocatedBits, bit)
			continue
		}

		if indirectLBA == 0 {
			newTableLBA, newTableBit := p.allocBlock()
			if newTableLBA == -1 {
				_ = p.freeBlock(bit)
				rollback()
				return ErrNoSpace
			}
			if err := p.syncBlockBitmapSector(newTableBit); err != nil {
				_ = p.freeBlock(bit)
				rollback()
				return err
			}
			indirectLBA = uint64(newTableLBA)
			tableBit = newTableBit
			in.mu.Lock()
			in.ISectors[DirectBlocks] = uint32(newTableLBA)
			in.mu.Unlock()
		}

		table[idx-DirectBlocks] = uint32(lba)
		tableDirty = true
		allocatedBits = append(allocatedBits, bit)
	}

	if tableDirty {
		if err := p.writeIndirectTable(indirectLBA, table); err != nil {
			rollback()
			return err
		}
	}
	return nil
}

// fileWrite appends count bytes to f's inode: position is always set to
// i_size implicitly, ignoring any prior lseek (spec.md §9's documented
// append-only limitation — an explicit lseek does not reposition a
// following write). The first touched block is read back so bytes
// preceding the append point survive; every later block is written fresh.
func (p *Partition) fileWrite(f *OpenFile, buf []byte) (int, error) {
	in := f.Inode
	count := uint32(len(buf))
	if count == 0 {
		return 0, nil
	}

	in.mu.Lock()
	size := in.ISize
	in.mu.Unlock()

	if uint64(size)+uint64(count) > MaxFileSize {
		return 0, ErrTooLarge
	}

	existingBlocks := blocksFor(size)
	targetBlocks := blocksFor(size + count)
	if err := p.growFile(in, targetBlocks); err != nil {
		return 0, err
	}

	lbas, err := p.blockLBAs(in)
	if err != nil {
		return 0, err
	}

	var written uint32
	pos := size
	for written < count {
		blockIdx := int(pos / SectorSize)
		offInBlock := int(pos % SectorSize)
		lba := lbas[blockIdx]

		sector := make([]byte, SectorSize)
		if blockIdx < existingBlocks {
			if err := p.disk().Read(p.startLBA()+uint64(lba), sector, 1); err != nil {
				return int(written), err
			}
		}

		n := SectorSize - offInBlock
		if remaining := count - written; uint32(n) > remaining {
			n = int(remaining)
		}
		copy(sector[offInBlock:offInBlock+n], buf[written:written+uint32(n)])

		if err := p.disk().Write(p.startLBA()+uint64(lba), sector, 1); err != nil {
			return int(written), err
		}

		written += uint32(n)
		pos += uint32(n)

		in.mu.Lock()
		in.ISize += uint32(n)
		in.mu.Unlock()
		f.Position = pos
	}

	return int(written), p.Sync(in)
}

// fileRead clips count to the bytes remaining before i_size and copies
// block by block from f.Position, advancing it (spec.md §4.7). Returns
// io.EOF (with 0 bytes) once the cursor has reached i_size.
func (p *Partition) fileRead(f *OpenFile, buf []byte) (int, error) {
	in := f.Inode
	in.mu.Lock()
	size := in.ISize
	in.mu.Unlock()

	if f.Position >= size {
		return 0, io.EOF
	}

	count := uint32(len(buf))
	if f.Position+count > size {
		count = size - f.Position
	}
	if count == 0 {
		return 0, nil
	}

	lbas, err := p.blockLBAs(in)
	if err != nil {
		return 0, err
	}

	var read uint32
	pos := f.Position
	for read < count {
		blockIdx := int(pos / SectorSize)
		if blockIdx >= len(lbas) {
			break
		}
		offInBlock := int(pos % SectorSize)
		lba := lbas[blockIdx]

		sector := make([]byte, SectorSize)
		if err := p.disk().Read(p.startLBA()+uint64(lba), sector, 1); err != nil {
			return int(read), err
		}

		n := SectorSize - offInBlock
		if remaining := count - read; uint32(n) > remaining {
			n = int(remaining)
		}
		copy(buf[read:read+uint32(n)], sector[offInBlock:offInBlock+n])

		read += uint32(n)
		pos += uint32(n)
	}

	f.Position = pos
	return int(read), nil
}

// Seek repositions f.Position per SEEK_SET/CUR/END, rejecting any result
// outside [0, i_size] (spec.md §4.7): size itself is a valid position —
// lseek(fd, 0, SEEK_END) on a file of size N must land at N, one past
// the last byte, the way every Unix lseek behaves (spec.md §8 scenario
// #3).
func (f *OpenFile) Seek(offset int64, whence Whence) (int64, error) {
	in := f.Inode
	in.mu.Lock()
	size := int64(in.ISize)
	in.mu.Unlock()

	var newPos int64
	switch whence {
	case SeekSet:
		newPos = offset
	case SeekCur:
		newPos = int64(f.Position) + offset
	case SeekEnd:
		newPos = size + offset
	default:
		return 0, ErrInvalid
	}
	if newPos < 0 || newPos > size {
		return 0, ErrInvalid
	}
	f.Position = uint32(newPos)
	return newPos, nil
}
