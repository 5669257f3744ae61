package ata_test

import (
	"encoding/binary"
	"testing"

	"github.com/nanokernel/nanokernel/ata"
)

func putEntry(sector []byte, idx int, typ byte, startLBA, sectors uint32) {
	off := 446 + idx*16
	sector[off] = 0
	sector[off+4] = typ
	binary.LittleEndian.PutUint32(sector[off+8:], startLBA)
	binary.LittleEndian.PutUint32(sector[off+12:], sectors)
}

func sign(sector []byte) {
	sector[510] = 0x55
	sector[511] = 0xAA
}

func TestScanDiskPrimaryAndExtended(t *testing.T) {
	const totalSectors = 2000
	d := newTestDisk(t, totalSectors)

	mbr := make([]byte, ata.SectorSize)
	putEntry(mbr, 0, 0x83, 100, 200)  // primary sdX1
	putEntry(mbr, 1, 0x05, 400, 1000) // extended, EBR at LBA 400
	sign(mbr)
	if err := d.Write(0, mbr, 1); err != nil {
		t.Fatalf("write mbr: %v", err)
	}

	// First EBR at 400: logical partition at 400+1=401, size 100;
	// chains to a second EBR at 400+150=550.
	ebr1 := make([]byte, ata.SectorSize)
	putEntry(ebr1, 0, 0x83, 1, 100)
	putEntry(ebr1, 1, 0x05, 150, 300)
	sign(ebr1)
	if err := d.Write(400, ebr1, 1); err != nil {
		t.Fatalf("write ebr1: %v", err)
	}

	// Second EBR at 400+150=550: logical partition at 551, size 50, end
	// of chain.
	ebr2 := make([]byte, ata.SectorSize)
	putEntry(ebr2, 0, 0x83, 1, 50)
	sign(ebr2)
	if err := d.Write(550, ebr2, 1); err != nil {
		t.Fatalf("write ebr2: %v", err)
	}

	table := &ata.PartitionTable{}
	if err := ata.ScanDisk(table, d, 'b'); err != nil {
		t.Fatalf("ScanDisk: %v", err)
	}

	if len(table.Partitions) != 3 {
		t.Fatalf("expected 3 partitions, got %d: %+v", len(table.Partitions), table.Partitions)
	}

	p0 := table.Partitions[0]
	if p0.Name != "sdb1" || p0.StartLBA != 100 || p0.SectorCount != 200 {
		t.Errorf("primary partition wrong: %+v", p0)
	}

	p1 := table.Partitions[1]
	if p1.Name != "sdb5" || p1.StartLBA != 401 || p1.SectorCount != 100 {
		t.Errorf("first logical partition wrong: %+v", p1)
	}

	p2 := table.Partitions[2]
	if p2.Name != "sdb6" || p2.StartLBA != 551 || p2.SectorCount != 50 {
		t.Errorf("second logical partition wrong: %+v", p2)
	}
}
