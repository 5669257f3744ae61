package ata

import (
	"encoding/binary"
	"fmt"
)

const (
	mbrEntryOffset = 446
	mbrEntrySize   = 16
	mbrSigOffset   = 510
	mbrSignature   = 0x55AA

	partTypeEmpty    = 0x00
	partTypeExtended = 0x05

	// PartTypeNanokernel tags the one primary partition cmd/mkimg
	// writes; there is no real-world OS type byte for this format, so
	// this picks an unassigned slot the way experimental/private
	// filesystems traditionally have.
	PartTypeNanokernel = 0x7F

	maxPrimary = 4
	maxLogical = 8
)

// Partition is a discovered partition: its location on disk, and the
// short name ("sdb1") assigned during the scan (spec.md §4.3).
type Partition struct {
	Name         string
	Disk         *Disk
	StartLBA     uint64
	SectorCount  uint64
}

// PartitionTable is the caller-owned collection every discovered
// partition is appended to. Spec.md §9 calls out partition_list as
// global mutable state to avoid hiding; nanokernel instead has
// filesys_init-equivalents take one of these by reference.
type PartitionTable struct {
	Partitions []*Partition
}

type rawEntry struct {
	status   byte
	chsStart [3]byte
	typ      byte
	chsEnd   [3]byte
	startLBA uint32
	sectors  uint32
}

func parseEntry(b []byte) rawEntry {
	var e rawEntry
	e.status = b[0]
	copy(e.chsStart[:], b[1:4])
	e.typ = b[4]
	copy(e.chsEnd[:], b[5:8])
	e.startLBA = binary.LittleEndian.Uint32(b[8:12])
	e.sectors = binary.LittleEndian.Uint32(b[12:16])
	return e
}

// ScanDisk reads disk's MBR (and any chained extended boot records) and
// appends every non-empty, non-extended partition to table, named
// "sd<letter><index>": primaries 1..=4, logicals 5..=(4+maxLogical),
// capped at 8 logicals per spec.md §4.3.
func ScanDisk(table *PartitionTable, disk *Disk, letter byte) error {
	sector := make([]byte, SectorSize)
	if err := disk.Read(0, sector, 1); err != nil {
		return fmt.Errorf("ata: reading MBR of %s: %w", disk.Name, err)
	}
	if binary.LittleEndian.Uint16(sector[mbrSigOffset:]) != mbrSignature {
		return fmt.Errorf("ata: %s: missing 0x55AA boot signature", disk.Name)
	}

	logicalIdx := 5
	for i := 0; i < maxPrimary; i++ {
		off := mbrEntryOffset + i*mbrEntrySize
		e := parseEntry(sector[off : off+mbrEntrySize])
		if e.typ == partTypeEmpty {
			continue
		}
		if e.typ == partTypeExtended {
			if err := scanExtended(table, disk, letter, uint64(e.startLBA), uint64(e.startLBA), &logicalIdx); err != nil {
				return err
			}
			continue
		}
		table.Partitions = append(table.Partitions, &Partition{
			Name:        fmt.Sprintf("sd%c%d", letter, i+1),
			Disk:        disk,
			StartLBA:    uint64(e.startLBA),
			SectorCount: uint64(e.sectors),
		})
	}
	return nil
}

// scanExtended walks one node of the extended-partition chain. extBase is
// the LBA of the first EBR, the anchor the chain link in entry 1 is
// relative to; ebrLBA is this node's own EBR location, the anchor entry
// 0's logical-partition start_lba is relative to.
func scanExtended(table *PartitionTable, disk *Disk, letter byte, extBase, ebrLBA uint64, logicalIdx *int) error {
	if *logicalIdx > 4+maxLogical {
		return nil
	}

	sector := make([]byte, SectorSize)
	if err := disk.Read(ebrLBA, sector, 1); err != nil {
		return fmt.Errorf("ata: reading EBR of %s at lba %d: %w", disk.Name, ebrLBA, err)
	}
	if binary.LittleEndian.Uint16(sector[mbrSigOffset:]) != mbrSignature {
		return fmt.Errorf("ata: %s: EBR at lba %d missing boot signature", disk.Name, ebrLBA)
	}

	// Entry 0 describes this node's logical partition; entry 1, if
	// present and type 0x05, chains to the next EBR.
	e0 := parseEntry(sector[mbrEntryOffset : mbrEntryOffset+mbrEntrySize])
	e1 := parseEntry(sector[mbrEntryOffset+mbrEntrySize : mbrEntryOffset+2*mbrEntrySize])

	if e0.typ != partTypeEmpty && e0.typ != partTypeExtended {
		if *logicalIdx <= 4+maxLogical {
			table.Partitions = append(table.Partitions, &Partition{
				Name:        fmt.Sprintf("sd%c%d", letter, *logicalIdx),
				Disk:        disk,
				StartLBA:    ebrLBA + uint64(e0.startLBA),
				SectorCount: uint64(e0.sectors),
			})
			*logicalIdx++
		}
	}

	if e1.typ == partTypeExtended {
		return scanExtended(table, disk, letter, extBase, extBase+uint64(e1.startLBA), logicalIdx)
	}
	return nil
}

// WriteMBR writes a single primary partition entry (PartTypeNanokernel,
// startLBA..startLBA+sectorCount) plus the 0x55AA boot signature, the
// write-side counterpart to ScanDisk — used by cmd/mkimg to lay down a
// fresh image's partition table before fs.Format runs.
func WriteMBR(disk *Disk, startLBA, sectorCount uint64) error {
	sector := make([]byte, SectorSize)

	off := mbrEntryOffset
	sector[off] = 0x80 // boot flag: active
	sector[off+4] = PartTypeNanokernel
	binary.LittleEndian.PutUint32(sector[off+8:], uint32(startLBA))
	binary.LittleEndian.PutUint32(sector[off+12:], uint32(sectorCount))

	binary.LittleEndian.PutUint16(sector[mbrSigOffset:], mbrSignature)

	return disk.Write(0, sector, 1)
}
