package fs_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/nanokernel/nanokernel/ata"
	"github.com/nanokernel/nanokernel/fs"
)

// testSectors is sized for fs.FormatOptions{InodeCount: testInodeCount}:
// enough data blocks to hold a 71680-byte file plus a handful of
// directories, small enough that tests stay fast.
const (
	testSectors    = 1024
	testInodeCount = 64
)

func newTestPartition(t *testing.T) *fs.Partition {
	t.Helper()
	ch := ata.NewChannel(ata.PrimaryPortBase, ata.PrimaryIRQ)
	ram := ata.NewRAMDisk(int64(testSectors) * ata.SectorSize)
	disk, err := ata.NewDisk("sdb", ch, false, ram)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	part := &ata.Partition{Name: "sdb1", Disk: disk, StartLBA: 0, SectorCount: uint64(testSectors)}

	if err := fs.Format(part, fs.FormatOptions{InodeCount: testInodeCount}); err != nil {
		t.Fatalf("Format: %v", err)
	}
	p, err := fs.Open(part)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return p
}

func TestFormatRootDirectoryInvariant(t *testing.T) {
	p := newTestPartition(t)

	root, err := p.Open(fs.RootInode)
	if err != nil {
		t.Fatalf("Open root: %v", err)
	}
	defer p.Close(root)

	if root.Size() != 2*fs.DirentSize {
		t.Fatalf("root i_size = %d, want %d", root.Size(), 2*fs.DirentSize)
	}

	cur := p.NewDirCursor(root)
	dot, ok, err := cur.Next()
	if err != nil || !ok {
		t.Fatalf("reading '.': ok=%v err=%v", ok, err)
	}
	if dot.NameString() != "." || dot.INo != fs.RootInode || dot.Type != fs.TypeDirectory {
		t.Fatalf("'.' entry = %+v", dot)
	}

	dotdot, ok, err := cur.Next()
	if err != nil || !ok {
		t.Fatalf("reading '..': ok=%v err=%v", ok, err)
	}
	if dotdot.NameString() != ".." || dotdot.INo != fs.RootInode || dotdot.Type != fs.TypeDirectory {
		t.Fatalf("'..' entry = %+v", dotdot)
	}

	if _, ok, _ := cur.Next(); ok {
		t.Fatalf("root directory has more than '.' and '..'")
	}
}

func TestDirectorySizeInvariantAfterMkdir(t *testing.T) {
	p := newTestPartition(t)
	cwd := fs.RootCWD()

	if err := p.SysMkdir(cwd, "/d"); err != nil {
		t.Fatalf("SysMkdir: %v", err)
	}

	st, err := p.SysStat(cwd, "/d")
	if err != nil {
		t.Fatalf("SysStat: %v", err)
	}
	if st.Size%fs.DirentSize != 0 || st.Size == 0 {
		t.Fatalf("/d i_size = %d, not a positive multiple of entry size", st.Size)
	}
}

func TestOpenCreateExclusivity(t *testing.T) {
	p := newTestPartition(t)
	cwd := fs.RootCWD()

	f, err := p.SysOpen(cwd, "/a.txt", fs.OCREAT|fs.ORDWR)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	p.SysClose(f)

	if _, err := p.SysOpen(cwd, "/a.txt", fs.OCREAT|fs.ORDWR); !errors.Is(err, fs.ErrExists) {
		t.Fatalf("second O_CREAT open: got %v, want ErrExists", err)
	}

	f2, err := p.SysOpen(cwd, "/a.txt", fs.ORDWR)
	if err != nil {
		t.Fatalf("plain reopen should succeed: %v", err)
	}
	p.SysClose(f2)
}

func TestUnlinkInvariant(t *testing.T) {
	p := newTestPartition(t)
	cwd := fs.RootCWD()

	f, err := p.SysOpen(cwd, "/b.txt", fs.OCREAT|fs.ORDWR)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := p.SysWrite(f, []byte("hello world, this has more than one block of data")); err != nil {
		t.Fatalf("write: %v", err)
	}
	p.SysClose(f)

	before := p.Stat()

	if err := p.SysUnlink(cwd, "/b.txt"); err != nil {
		t.Fatalf("unlink: %v", err)
	}

	if _, err := p.SysOpen(cwd, "/b.txt", fs.ORDONLY); !errors.Is(err, fs.ErrNotFound) {
		t.Fatalf("open after unlink: got %v, want ErrNotFound", err)
	}
	if _, err := p.SysStat(cwd, "/b.txt"); !errors.Is(err, fs.ErrNotFound) {
		t.Fatalf("stat after unlink: got %v, want ErrNotFound", err)
	}

	after := p.Stat()
	if after.FreeBlocks <= before.FreeBlocks {
		t.Fatalf("unlink did not free data blocks: before=%d after=%d", before.FreeBlocks, after.FreeBlocks)
	}
	if after.FreeInodes != before.FreeInodes+1 {
		t.Fatalf("unlink did not free the inode bit: before=%d after=%d", before.FreeInodes, after.FreeInodes)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 511, 512, 513, 60000, fs.MaxFileSize}
	for _, n := range sizes {
		n := n
		t.Run("", func(t *testing.T) {
			p := newTestPartition(t)
			cwd := fs.RootCWD()

			want := bytes.Repeat([]byte{0xCD}, n)
			for i := range want {
				want[i] = byte(i)
			}

			f, err := p.SysOpen(cwd, "/round.bin", fs.OCREAT|fs.ORDWR)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if n > 0 {
				written, err := p.SysWrite(f, want)
				if err != nil {
					t.Fatalf("write: %v", err)
				}
				if written != n {
					t.Fatalf("wrote %d, want %d", written, n)
				}
			}
			if _, err := p.SysLseek(f, 0, fs.SeekSet); err != nil && n > 0 {
				t.Fatalf("lseek: %v", err)
			}

			got := make([]byte, n)
			var read int
			for read < n {
				m, err := p.SysRead(f, got[read:])
				if m == 0 && err != nil {
					break
				}
				read += m
				if m == 0 {
					break
				}
			}
			if read != n {
				t.Fatalf("read %d bytes, want %d", read, n)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("round trip mismatch for n=%d", n)
			}
			p.SysClose(f)
		})
	}
}

func TestIndirectBlockUsage(t *testing.T) {
	p := newTestPartition(t)
	cwd := fs.RootCWD()

	f, err := p.SysOpen(cwd, "/big.bin", fs.OCREAT|fs.ORDWR)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	buf := make([]byte, 60000)
	if _, err := p.SysWrite(f, buf); err != nil {
		t.Fatalf("write: %v", err)
	}

	end, err := p.SysLseek(f, 0, fs.SeekEnd)
	if err != nil {
		t.Fatalf("lseek end: %v", err)
	}
	if end != 60000 {
		t.Fatalf("lseek(END) = %d, want %d", end, 60000)
	}
	if f.Inode.ISectors[fs.DirectBlocks] == 0 {
		t.Fatalf("60000-byte file has no indirect block")
	}
	p.SysClose(f)
}

func TestSmallFileHasNoIndirectBlock(t *testing.T) {
	p := newTestPartition(t)
	cwd := fs.RootCWD()

	f, err := p.SysOpen(cwd, "/small.bin", fs.OCREAT|fs.ORDWR)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := p.SysWrite(f, bytes.Repeat([]byte{1}, 4000)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if lba := f.Inode.ISectors[fs.DirectBlocks]; lba != 0 {
		t.Fatalf("4000-byte file uses an indirect block at lba %d", lba)
	}
	p.SysClose(f)

	st, err := p.SysStat(cwd, "/small.bin")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Size != 4000 {
		t.Fatalf("size = %d, want 4000", st.Size)
	}
}

func TestMkdirRmdirIdempotence(t *testing.T) {
	p := newTestPartition(t)
	cwd := fs.RootCWD()

	if err := p.SysMkdir(cwd, "/d"); err != nil {
		t.Fatalf("first mkdir: %v", err)
	}
	if err := p.SysMkdir(cwd, "/d"); !errors.Is(err, fs.ErrExists) {
		t.Fatalf("second mkdir: got %v, want ErrExists", err)
	}

	if err := p.SysRmdir(cwd, "/d"); err != nil {
		t.Fatalf("first rmdir: %v", err)
	}
	if err := p.SysRmdir(cwd, "/d"); !errors.Is(err, fs.ErrNotFound) {
		t.Fatalf("second rmdir: got %v, want ErrNotFound", err)
	}
}

func TestChdirGetcwd(t *testing.T) {
	p := newTestPartition(t)
	cwd := fs.RootCWD()

	if err := p.SysMkdir(cwd, "/d"); err != nil {
		t.Fatalf("mkdir /d: %v", err)
	}
	if err := p.SysMkdir(cwd, "/d/e"); err != nil {
		t.Fatalf("mkdir /d/e: %v", err)
	}
	if err := p.SysChdir(cwd, "/d/e"); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	got, err := p.SysGetcwd(cwd)
	if err != nil {
		t.Fatalf("getcwd: %v", err)
	}
	if got != "/d/e" {
		t.Fatalf("getcwd = %q, want \"/d/e\"", got)
	}
}

func TestRmdirRefusesRootAndNonEmpty(t *testing.T) {
	p := newTestPartition(t)
	cwd := fs.RootCWD()

	if err := p.SysRmdir(cwd, "/"); !errors.Is(err, fs.ErrInvalid) {
		t.Fatalf("rmdir root: got %v, want ErrInvalid", err)
	}

	if err := p.SysMkdir(cwd, "/d"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := p.SysOpen(cwd, "/d/f.txt", fs.OCREAT|fs.ORDWR); err != nil {
		t.Fatalf("create /d/f.txt: %v", err)
	}
	if err := p.SysRmdir(cwd, "/d"); !errors.Is(err, fs.ErrNotEmpty) {
		t.Fatalf("rmdir non-empty: got %v, want ErrNotEmpty", err)
	}
}
