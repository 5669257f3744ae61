package bitmap_test

import (
	"testing"

	"github.com/nanokernel/nanokernel/bitmap"
)

func TestScanFirstFreeRun(t *testing.T) {
	b := bitmap.New(16)
	for i := 0; i < 3; i++ {
		b.Set(i, true)
	}
	idx := b.Scan(1)
	if idx != 3 {
		t.Fatalf("Scan(1) = %d, want 3", idx)
	}
}

func TestScanExhausted(t *testing.T) {
	b := bitmap.New(8)
	for i := 0; i < 8; i++ {
		b.Set(i, true)
	}
	if idx := b.Scan(1); idx != -1 {
		t.Fatalf("Scan(1) on full bitmap = %d, want -1", idx)
	}
}

func TestSetTestRoundTrip(t *testing.T) {
	b := bitmap.New(64)
	b.Set(40, true)
	if !b.Test(40) {
		t.Fatal("expected bit 40 to be set")
	}
	if b.Test(39) || b.Test(41) {
		t.Fatal("neighboring bits should remain clear")
	}
	b.Set(40, false)
	if b.Test(40) {
		t.Fatal("expected bit 40 to be cleared")
	}
}

func TestWrapSharesUnderlyingBytes(t *testing.T) {
	raw := make([]byte, 4)
	b := bitmap.Wrap(raw, 32)
	b.Set(0, true)
	if raw[0] != 1 {
		t.Fatalf("expected Wrap to mutate the caller's slice in place, got %08b", raw[0])
	}
}

func TestScanRunLongerThanOne(t *testing.T) {
	b := bitmap.New(32)
	b.Set(5, true)
	idx := b.Scan(4)
	if idx != 0 {
		t.Fatalf("Scan(4) = %d, want 0 (bits 0-4 already form a clear run of 4 ahead of the set bit)", idx)
	}
}
