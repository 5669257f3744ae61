package fs

// This file implements spec.md §4.6: search, sync_entry, delete_entry,
// dir_read/rewind, dir_is_empty, dir_remove. A directory's i_size tracks
// the number of currently-live entries (2 * DirentSize for a fresh
// directory holding only "." and ".."), not the byte span of its
// allocated blocks — free slots left by delete_entry are reused by a
// later sync_entry before any new block is allocated.

// search scans dir's data blocks for name, returning the matching entry
// and true, or an unset Dirent and false if none matches (spec.md §4.6).
func (p *Partition) search(dir *Inode, name string) (Dirent, bool, error) {
	lbas, err := p.blockLBAs(dir)
	if err != nil {
		return Dirent{}, false, err
	}
	for _, lba := range lbas {
		sector := make([]byte, SectorSize)
		if err := p.disk().Read(p.startLBA()+uint64(lba), sector, 1); err != nil {
			return Dirent{}, false, err
		}
		for s := 0; s < EntriesPerSector; s++ {
			off := s * DirentSize
			var d Dirent
			d.unmarshal(sector[off : off+DirentSize])
			if !d.Free() && d.NameString() == name {
				return d, true, nil
			}
		}
	}
	return Dirent{}, false, nil
}

// syncEntry writes entry into the first free slot of dir, allocating a
// new data block (and, the first time a directory grows past 12 blocks,
// a fresh indirect table) only when every existing block is full
// (spec.md §4.6).
func (p *Partition) syncEntry(dir *Inode, entry Dirent) error {
	lbas, err := p.blockLBAs(dir)
	if err != nil {
		return err
	}

	// 1. reuse a free slot in an already-allocated block.
	for _, lba := range lbas {
		sector := make([]byte, SectorSize)
		if err := p.disk().Read(p.startLBA()+uint64(lba), sector, 1); err != nil {
			return err
		}
		for s := 0; s < EntriesPerSector; s++ {
			off := s * DirentSize
			var d Dirent
			d.unmarshal(sector[off : off+DirentSize])
			if !d.Free() {
				continue
			}
			entry.marshal(sector[off : off+DirentSize])
			if err := p.disk().Write(p.startLBA()+uint64(lba), sector, 1); err != nil {
				return err
			}
			dir.mu.Lock()
			dir.ISize += DirentSize
			dir.mu.Unlock()
			return nil
		}
	}

	// 2. every allocated block is full: grow the directory by one block.
	k := len(lbas)
	if k >= MaxFileBlocks {
		return ErrNoSpace
	}

	switch {
	case k < DirectBlocks:
		blockLBA, bitIdx := p.allocBlock()
		if blockLBA == -1 {
			return ErrNoSpace
		}
		if err := p.syncBlockBitmapSector(bitIdx); err != nil {
			return err
		}
		sector := make([]byte, SectorSize)
		entry.marshal(sector[0:DirentSize])
		if err := p.disk().Write(p.startLBA()+uint64(blockLBA), sector, 1); err != nil {
			return err
		}
		dir.mu.Lock()
		dir.ISectors[k] = uint32(blockLBA)
		dir.ISize += DirentSize
		dir.mu.Unlock()
		return nil

	case k == DirectBlocks:
		tableLBA, tableBit := p.allocBlock()
		if tableLBA == -1 {
			return ErrNoSpace
		}
		if err := p.syncBlockBitmapSector(tableBit); err != nil {
			return err
		}
		dataLBA, dataBit := p.allocBlock()
		if dataLBA == -1 {
			_ = p.freeBlock(tableBit)
			return ErrNoSpace
		}
		if err := p.syncBlockBitmapSector(dataBit); err != nil {
			return err
		}

		var table [IndirectLBAsPerBlock]uint32
		table[0] = uint32(dataLBA)
		if err := p.writeIndirectTable(uint64(tableLBA), table); err != nil {
			return err
		}

		sector := make([]byte, SectorSize)
		entry.marshal(sector[0:DirentSize])
		if err := p.disk().Write(p.startLBA()+uint64(dataLBA), sector, 1); err != nil {
			return err
		}

		dir.mu.Lock()
		dir.ISectors[DirectBlocks] = uint32(tableLBA)
		dir.ISize += DirentSize
		dir.mu.Unlock()
		return nil

	default:
		dir.mu.Lock()
		indirectLBA := uint64(dir.ISectors[DirectBlocks])
		dir.mu.Unlock()

		table, err := p.readIndirectTable(indirectLBA)
		if err != nil {
			return err
		}
		slot := k - DirectBlocks

		dataLBA, dataBit := p.allocBlock()
		if dataLBA == -1 {
			return ErrNoSpace
		}
		if err := p.syncBlockBitmapSector(dataBit); err != nil {
			return err
		}
		table[slot] = uint32(dataLBA)
		if err := p.writeIndirectTable(indirectLBA, table); err != nil {
			return err
		}

		sector := make([]byte, SectorSize)
		entry.marshal(sector[0:DirentSize])
		if err := p.disk().Write(p.startLBA()+uint64(dataLBA), sector, 1); err != nil {
			return err
		}

		dir.mu.Lock()
		dir.ISize += DirentSize
		dir.mu.Unlock()
		return nil
	}
}

// deleteEntry clears the unique slot whose inode number is inodeNo
// (never "." or ".."), freeing the containing block too if it held no
// other entry and isn't the directory's first block (spec.md §4.6).
func (p *Partition) deleteEntry(dir *Inode, inodeNo uint32) error {
	lbas, err := p.blockLBAs(dir)
	if err != nil {
		return err
	}

	for blockPos, lba := range lbas {
		sector := make([]byte, SectorSize)
		if err := p.disk().Read(p.startLBA()+uint64(lba), sector, 1); err != nil {
			return err
		}

		matchSlot := -1
		liveCount := 0
		for s := 0; s < EntriesPerSector; s++ {
			off := s * DirentSize
			var d Dirent
			d.unmarshal(sector[off : off+DirentSize])
			if d.Free() {
				continue
			}
			liveCount++
			if d.INo == inodeNo && d.NameString() != "." && d.NameString() != ".." {
				matchSlot = s
			}
		}
		if matchSlot == -1 {
			continue
		}

		off := matchSlot * DirentSize
		var empty Dirent
		empty.marshal(sector[off : off+DirentSize])
		if err := p.disk().Write(p.startLBA()+uint64(lba), sector, 1); err != nil {
			return err
		}

		dir.mu.Lock()
		dir.ISize -= DirentSize
		dir.mu.Unlock()

		if liveCount-1 == 0 && blockPos != 0 {
			if err := p.freeBlock(p.blockLBAToBitIdx(uint64(lba))); err != nil {
				return err
			}
			if err := p.unlinkBlockFromInode(dir, lba); err != nil {
				return err
			}
		}

		return p.Sync(dir)
	}
	return ErrNotFound
}

// unlinkBlockFromInode removes lba from dir's direct slots or indirect
// table, freeing the indirect table's own block too if that empties it
// entirely (spec.md §4.6).
func (p *Partition) unlinkBlockFromInode(in *Inode, lba uint32) error {
	in.mu.Lock()
	for i := 0; i < DirectBlocks; i++ {
		if in.ISectors[i] == lba {
			in.ISectors[i] = 0
			in.mu.Unlock()
			return nil
		}
	}
	indirectLBA := in.ISectors[DirectBlocks]
	in.mu.Unlock()
	if indirectLBA == 0 {
		return nil
	}

	table, err := p.readIndirectTable(uint64(indirectLBA))
	if err != nil {
		return err
	}
	found := false
	for i := range table {
		if table[i] == lba {
			table[i] = 0
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	allZero := true
	for _, v := range table {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		if err := p.freeBlock(p.blockLBAToBitIdx(uint64(indirectLBA))); err != nil {
			return err
		}
		in.mu.Lock()
		in.ISectors[DirectBlocks] = 0
		in.mu.Unlock()
		return nil
	}
	return p.writeIndirectTable(uint64(indirectLBA), table)
}

// DirCursor walks a directory's live entries in block/slot order,
// skipping free slots, backing sys_readdir/sys_rewinddir (spec.md §4.6).
type DirCursor struct {
	p        *Partition
	dir      *Inode
	blockIdx int
	slotIdx  int
}

// NewDirCursor returns a cursor positioned at the start of dir.
func (p *Partition) NewDirCursor(dir *Inode) *DirCursor {
	return &DirCursor{p: p, dir: dir}
}

// Rewind resets the cursor to the beginning.
func (c *DirCursor) Rewind() {
	c.blockIdx = 0
	c.slotIdx = 0
}

// Next returns the next live entry, or false once the directory is
// exhausted.
func (c *DirCursor) Next() (Dirent, bool, error) {
	lbas, err := c.p.blockLBAs(c.dir)
	if err != nil {
		return Dirent{}, false, err
	}
	for c.blockIdx < len(lbas) {
		lba := lbas[c.blockIdx]
		sector := make([]byte, SectorSize)
		if err := c.p.disk().Read(c.p.startLBA()+uint64(lba), sector, 1); err != nil {
			return Dirent{}, false, err
		}
		for c.slotIdx < EntriesPerSector {
			off := c.slotIdx * DirentSize
			var d Dirent
			d.unmarshal(sector[off : off+DirentSize])
			c.slotIdx++
			if !d.Free() {
				return d, true, nil
			}
		}
		c.slotIdx = 0
		c.blockIdx++
	}
	return Dirent{}, false, nil
}

// dirIsEmpty reports whether dir holds only "." and "..".
func dirIsEmpty(dir *Inode) bool {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	return dir.ISize == 2*DirentSize
}

// dirRemove implements rmdir's core: child must be empty and must never
// have grown past its first block (spec.md §4.6).
func (p *Partition) dirRemove(parent *Inode, childIno uint32, child *Inode) error {
	if !dirIsEmpty(child) {
		return ErrNotEmpty
	}
	child.mu.Lock()
	for i := 1; i <= DirectBlocks; i++ {
		if child.ISectors[i] != 0 {
			child.mu.Unlock()
			return ErrNotEmpty
		}
	}
	child.mu.Unlock()

	if err := p.deleteEntry(parent, childIno); err != nil {
		return err
	}
	return p.Release(child)
}
