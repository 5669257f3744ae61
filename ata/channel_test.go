package ata_test

import (
	"bytes"
	"sync"
	"testing"

	"github.com/nanokernel/nanokernel/ata"
)

func newTestDisk(t *testing.T, sectors int) *ata.Disk {
	t.Helper()
	ch := ata.NewChannel(ata.PrimaryPortBase, ata.PrimaryIRQ)
	ram := ata.NewRAMDisk(int64(sectors) * ata.SectorSize)
	d, err := ata.NewDisk("sda", ch, false, ram)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	return d
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	d := newTestDisk(t, 4)

	want := bytes.Repeat([]byte{0xAB}, ata.SectorSize*2)
	if err := d.Write(1, want, 2); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := make([]byte, ata.SectorSize*2)
	if err := d.Read(1, got, 2); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(want, got) {
		t.Fatalf("round trip mismatch")
	}
}

func TestReadChunksAcrossCommandBoundary(t *testing.T) {
	// 600 sectors forces three commands (256 + 256 + 88).
	d := newTestDisk(t, 700)

	want := make([]byte, 600*ata.SectorSize)
	for i := range want {
		want[i] = byte(i)
	}
	if err := d.Write(0, want, 600); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := make([]byte, 600*ata.SectorSize)
	if err := d.Read(0, got, 600); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(want, got) {
		t.Fatalf("chunked round trip mismatch")
	}

	stats := d.Channel.Stats()
	if stats.Requests != 6 { // 3 commands each for write + read
		t.Fatalf("expected 6 dispatched commands, got %d", stats.Requests)
	}
}

func TestChannelSerializesConcurrentRequests(t *testing.T) {
	d := newTestDisk(t, 8)
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buf := bytes.Repeat([]byte{byte(i)}, ata.SectorSize)
			if err := d.Write(uint64(i), buf, 1); err != nil {
				t.Errorf("concurrent write %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		buf := make([]byte, ata.SectorSize)
		if err := d.Read(uint64(i), buf, 1); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		want := bytes.Repeat([]byte{byte(i)}, ata.SectorSize)
		if !bytes.Equal(buf, want) {
			t.Fatalf("sector %d: concurrent writes were not serialized correctly", i)
		}
	}
}
