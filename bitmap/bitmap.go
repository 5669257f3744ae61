// Package bitmap implements the bit array used for both the block bitmap
// and the inode bitmap (spec.md §4.4): scan for the first run of n clear
// bits, set a single bit, and test a single bit. The file system never
// frees more than one bit per call, so only Scan needs to reason about
// runs.
package bitmap

import (
	gobitmap "github.com/boljen/go-bitmap"
)

// Bitmap is a fixed-length bit array backed by a byte slice, the same
// slice that gets persisted sector-by-sector via bitmap_sync.
type Bitmap struct {
	raw  gobitmap.Bitmap
	bits int
}

// New allocates a zeroed bitmap holding nbits bits.
func New(nbits int) *Bitmap {
	return Wrap(make([]byte, ByteLen(nbits)), nbits)
}

// Wrap adapts an existing byte slice (typically just read from disk) as a
// bitmap of nbits bits. The slice is used directly, not copied, so Set
// mutates the caller's buffer in place — required so bitmap_sync can
// persist exactly the bytes the in-memory bitmap holds.
func Wrap(raw []byte, nbits int) *Bitmap {
	return &Bitmap{raw: gobitmap.Bitmap(raw), bits: nbits}
}

// ByteLen reports how many bytes are needed to hold nbits bits.
func ByteLen(nbits int) int {
	return (nbits + 7) / 8
}

// Bytes returns the backing byte slice, for bitmap_sync to write out.
func (b *Bitmap) Bytes() []byte {
	return []byte(b.raw)
}

// Len reports the number of bits the bitmap holds.
func (b *Bitmap) Len() int {
	return b.bits
}

// Test reports whether bit i is set.
func (b *Bitmap) Test(i int) bool {
	return b.raw.Get(i)
}

// Set assigns bit i.
func (b *Bitmap) Set(i int, value bool) {
	b.raw.Set(i, value)
}

// Scan returns the index of the first run of n consecutive clear bits, or
// -1 if the bitmap has no such run. Block allocation asks for n=1 always;
// Scan supports wider runs so the same type also serves a hypothetical
// contiguous allocator without change.
func (b *Bitmap) Scan(n int) int {
	if n <= 0 {
		return -1
	}
	run := 0
	start := -1
	for i := 0; i < b.bits; i++ {
		if !b.raw.Get(i) {
			if run == 0 {
				start = i
			}
			run++
			if run == n {
				return start
			}
		} else {
			run = 0
			start = -1
		}
	}
	return -1
}
