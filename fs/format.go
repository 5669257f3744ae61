package fs

import (
	"fmt"
	"log"

	"github.com/nanokernel/nanokernel/ata"
	"github.com/nanokernel/nanokernel/bitmap"
)

// FormatOptions controls Format's layout choices. A zero InodeCount
// falls back to the package constant InodeCount; any other value is used
// as given to size the inode bitmap and inode table.
type FormatOptions struct {
	InodeCount uint32
}

// DefaultFormatOptions returns the layout spec.md §3 mandates.
func DefaultFormatOptions() FormatOptions {
	return FormatOptions{InodeCount: InodeCount}
}

// Format lays out a fresh superblock, block/inode bitmaps, inode table,
// and an empty root directory on part, the hosted equivalent of mkfs
// (spec.md §3, §6). It does not mount the result; call Open afterward.
func Format(part *ata.Partition, opts FormatOptions) error {
	if opts.InodeCount == 0 {
		opts = DefaultFormatOptions()
	}

	totalSectors := part.SectorCount
	if totalSectors < 64 {
		return fmt.Errorf("fs: formatting %s: %w: partition too small (%d sectors)", part.Name, ErrInvalid, totalSectors)
	}

	slotSize := (&DiskInode{}).binarySize()
	slotsPerSector := SectorSize / slotSize // slots never straddle a sector (see inodeSlotLBA)
	inodeTableSectors := uint32((int(opts.InodeCount) + slotsPerSector - 1) / slotsPerSector)

	dataBlocks := totalSectors - uint64(2+inodeTableSectors) // superblock + inode table, bitmaps sized against what remains
	blockBitmapSectors := uint32((dataBlocks/8 + uint64(SectorSize-1)) / SectorSize)
	if blockBitmapSectors == 0 {
		blockBitmapSectors = 1
	}
	inodeBitmapSectors := uint32((uint64(opts.InodeCount)/8 + uint64(SectorSize-1)) / SectorSize)
	if inodeBitmapSectors == 0 {
		inodeBitmapSectors = 1
	}

	sb := &Superblock{
		Magic:              SuperblockMagic,
		SectorCount:        uint32(totalSectors),
		InodeCount:         opts.InodeCount,
		PartitionBaseLBA:   part.StartLBA,
		BlockBitmapLBA:     2,
		BlockBitmapSectors: blockBitmapSectors,
		InodeBitmapLBA:     2 + uint64(blockBitmapSectors),
		InodeBitmapSectors: inodeBitmapSectors,
		InodeTableLBA:      2 + uint64(blockBitmapSectors) + uint64(inodeBitmapSectors),
		InodeTableSectors:  inodeTableSectors,
		RootInode:          RootInode,
		DirEntrySize:       DirentSize,
	}
	sb.DataStartLBA = sb.InodeTableLBA + uint64(inodeTableSectors)
	if sb.DataStartLBA >= totalSectors {
		return fmt.Errorf("fs: formatting %s: %w: metadata does not leave room for data blocks", part.Name, ErrNoSpace)
	}

	p := &Partition{part: part, super: sb, openInodes: make(map[uint32]*Inode)}
	p.blockBitmap = bitmap.New(int(blockBitmapSectors) * SectorSize * 8)
	p.inodeBitmap = bitmap.New(int(inodeBitmapSectors) * SectorSize * 8)

	if err := writeSuperblock(p, sb); err != nil {
		return err
	}

	rootIdx := p.allocInode()
	if rootIdx != RootInode {
		return fmt.Errorf("fs: formatting %s: %w: root inode allocation returned %d", part.Name, ErrInvalid, rootIdx)
	}
	rootBlockLBA, rootBit := p.allocBlock()
	if rootBlockLBA == -1 {
		return fmt.Errorf("fs: formatting %s: %w: no space for root directory block", part.Name, ErrNoSpace)
	}

	sector := make([]byte, SectorSize)
	dot, _ := NewDirent(".", RootInode, TypeDirectory)
	dotdot, _ := NewDirent("..", RootInode, TypeDirectory)
	dot.marshal(sector[0:DirentSize])
	dotdot.marshal(sector[DirentSize : 2*DirentSize])
	if err := p.disk().Write(p.startLBA()+uint64(rootBlockLBA), sector, 1); err != nil {
		return err
	}

	root := &DiskInode{INo: RootInode, ISize: 2 * DirentSize}
	root.ISectors[0] = uint32(rootBlockLBA)
	rootSlot := make([]byte, slotSize)
	if err := root.marshal(rootSlot); err != nil {
		return err
	}
	tableSector := make([]byte, SectorSize)
	copy(tableSector, rootSlot)
	if err := p.disk().Write(p.startLBA()+sb.InodeTableLBA, tableSector, 1); err != nil {
		return err
	}

	if err := p.syncBlockBitmapSector(rootBit); err != nil {
		return err
	}
	if err := p.syncInodeBitmapSector(rootIdx); err != nil {
		return err
	}
	log.Printf("fs: formatted %s: %d inodes, %d data blocks", part.Name, opts.InodeCount, dataBlocks)
	return nil
}
