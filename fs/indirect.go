package fs

import "encoding/binary"

// readIndirectTable reads the 128-entry LBA table stored at lba.
func (p *Partition) readIndirectTable(lba uint64) ([IndirectLBAsPerBlock]uint32, error) {
	var table [IndirectLBAsPerBlock]uint32
	buf := make([]byte, SectorSize)
	if err := p.disk().Read(p.startLBA()+lba, buf, 1); err != nil {
		return table, err
	}
	for i := range table {
		table[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return table, nil
}

func (p *Partition) writeIndirectTable(lba uint64, table [IndirectLBAsPerBlock]uint32) error {
	buf := make([]byte, SectorSize)
	for i, v := range table {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return p.disk().Write(p.startLBA()+lba, buf, 1)
}

// blockLBAs returns every non-zero block LBA referenced by in, in logical
// order: direct slots 0..11 first, then the indirect table's 128 slots if
// present (spec.md §3, §4.5).
func (p *Partition) blockLBAs(in *Inode) ([]uint32, error) {
	in.mu.Lock()
	sectors := in.ISectors
	in.mu.Unlock()

	out := make([]uint32, 0, MaxFileBlocks)
	for i := 0; i < DirectBlocks; i++ {
		if sectors[i] != 0 {
			out = append(out, sectors[i])
		}
	}
	if sectors[DirectBlocks] != 0 {
		table, err := p.readIndirectTable(uint64(sectors[DirectBlocks]))
		if err != nil {
			return nil, err
		}
		for _, lba := range table {
			if lba != 0 {
				out = append(out, lba)
			}
		}
	}
	return out, nil
}
