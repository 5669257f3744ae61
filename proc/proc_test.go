package proc_test

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/nanokernel/nanokernel/ata"
	"github.com/nanokernel/nanokernel/fs"
	"github.com/nanokernel/nanokernel/proc"
)

const testSectors = 1024

func newTestPartition(t *testing.T) *fs.Partition {
	t.Helper()
	ch := ata.NewChannel(ata.PrimaryPortBase, ata.PrimaryIRQ)
	ram := ata.NewRAMDisk(int64(testSectors) * ata.SectorSize)
	disk, err := ata.NewDisk("sdb", ch, false, ram)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	part := &ata.Partition{Name: "sdb1", Disk: disk, StartLBA: 0, SectorCount: uint64(testSectors)}

	if err := fs.Format(part, fs.FormatOptions{InodeCount: 64}); err != nil {
		t.Fatalf("Format: %v", err)
	}
	p, err := fs.Open(part)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return p
}

func TestTaskLifecycleExitReap(t *testing.T) {
	part := newTestPartition(t)
	sched := proc.NewScheduler()

	done := make(chan struct{})
	task := sched.Spawn(part, "worker", func(_ *proc.Task, argv []string) int {
		close(done)
		return 7
	}, nil)
	task.Run(sched)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}

	for task.State() != proc.Hanging {
		time.Sleep(time.Millisecond)
	}
}

func TestExitReparentsChildrenToInit(t *testing.T) {
	part := newTestPartition(t)
	sched := proc.NewScheduler()

	init := sched.Spawn(part, "init", func(_ *proc.Task, argv []string) int { return 0 }, nil)
	if init.Pid != 1 {
		t.Fatalf("first spawned task has pid %d, want 1", init.Pid)
	}

	mid := sched.Fork(init)
	grandchild := sched.Fork(mid)

	// mid exits while grandchild is still alive; grandchild must be
	// reparented to init rather than stranded.
	sched.Exit(mid, 0)

	if grandchild.ParentPid != init.Pid {
		t.Fatalf("grandchild ParentPid = %d, want init pid %d", grandchild.ParentPid, init.Pid)
	}

	// init reaps mid first (its direct, original child)...
	pid, _, err := sched.Wait(init)
	if err != nil {
		t.Fatalf("wait (mid): %v", err)
	}
	if pid != mid.Pid {
		t.Fatalf("wait returned pid %d, want mid's pid %d", pid, mid.Pid)
	}

	// ...then reaps the reparented grandchild once it exits too.
	sched.Exit(grandchild, 3)
	pid, code, err := sched.Wait(init)
	if err != nil {
		t.Fatalf("wait (grandchild): %v", err)
	}
	if pid != grandchild.Pid {
		t.Fatalf("wait returned pid %d, want reparented grandchild %d", pid, grandchild.Pid)
	}
	if code != 3 {
		t.Fatalf("wait returned code %d, want 3", code)
	}
}

func TestForkSharesOpenFileAndBumpsRefcount(t *testing.T) {
	part := newTestPartition(t)
	sched := proc.NewScheduler()

	parent := sched.Spawn(part, "parent", func(_ *proc.Task, argv []string) int {
		return 0
	}, nil)

	fd, err := parent.Open("/shared.txt", fs.OCREAT|fs.ORDWR)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := parent.Write(fd, []byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}

	st, err := part.SysStat(parent.CWD, "/shared.txt")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	inBefore, err := part.Open(st.InodeNo)
	if err != nil {
		t.Fatalf("open inode: %v", err)
	}
	openCountBefore := inBefore.OpenCount
	part.Close(inBefore)

	child := sched.Fork(parent)

	inAfter, err := part.Open(st.InodeNo)
	if err != nil {
		t.Fatalf("open inode: %v", err)
	}
	openCountAfter := inAfter.OpenCount
	part.Close(inAfter)

	if openCountAfter != openCountBefore+1 {
		t.Fatalf("fork did not bump inode open-count: before=%d after=%d", openCountBefore, openCountAfter)
	}

	if _, err := child.Write(fd, []byte("!")); err != nil {
		t.Fatalf("child write via shared fd: %v", err)
	}

	if err := parent.Close(fd); err != nil {
		t.Fatalf("parent close: %v", err)
	}
	if err := child.Close(fd); err != nil {
		t.Fatalf("child close: %v", err)
	}
}

func TestPipeForkWaitPingPong(t *testing.T) {
	part := newTestPartition(t)
	sched := proc.NewScheduler()

	var stdout bytes.Buffer
	parent := sched.Spawn(part, "shell", func(_ *proc.Task, argv []string) int { return 0 }, nil)
	parent.Stdout = &stdout

	r, w, err := parent.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}

	child := sched.Fork(parent)
	if err := parent.Close(w); err != nil {
		t.Fatalf("parent close write end: %v", err)
	}
	if err := child.Close(r); err != nil {
		t.Fatalf("child close read end: %v", err)
	}

	const msg = "ping"
	if _, err := child.Write(w, []byte(msg)); err != nil {
		t.Fatalf("child write: %v", err)
	}
	if err := child.Close(w); err != nil {
		t.Fatalf("child close write end: %v", err)
	}
	sched.Exit(child, 0)

	pid, code, err := sched.Wait(parent)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if pid != child.Pid {
		t.Fatalf("wait returned pid %d, want %d", pid, child.Pid)
	}
	if code != 0 {
		t.Fatalf("wait returned code %d, want 0", code)
	}

	buf := make([]byte, 16)
	n, err := parent.Read(r, buf)
	if err != nil {
		t.Fatalf("parent read: %v", err)
	}
	if got := string(buf[:n]); got != msg {
		t.Fatalf("parent read %q, want %q", got, msg)
	}
}

func TestFdRedirect(t *testing.T) {
	part := newTestPartition(t)
	sched := proc.NewScheduler()
	task := sched.Spawn(part, "t", func(_ *proc.Task, argv []string) int { return 0 }, nil)

	fd, err := task.Open("/out.txt", fs.OCREAT|fs.ORDWR)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := task.FdRedirect(1, fd); err != nil {
		t.Fatalf("redirect: %v", err)
	}
	if _, err := task.Write(1, []byte("redirected")); err != nil {
		t.Fatalf("write via redirected stdout: %v", err)
	}
	if err := task.Close(fd); err != nil {
		t.Fatalf("close: %v", err)
	}

	rfd, err := task.Open("/out.txt", fs.ORDONLY)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	buf := make([]byte, 32)
	n, err := task.Read(rfd, buf)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.HasPrefix(string(buf[:n]), "redirected") {
		t.Fatalf("got %q, want prefix \"redirected\"", buf[:n])
	}
	task.Close(rfd)
}

// buildELF32 assembles a minimal one-segment ELF32 image: a 52-byte
// header, one PT_LOAD program header, and payload bytes, field-by-field
// the same way proc's own ParseELF32 decodes it.
func buildELF32(entry, vaddr uint32, payload []byte, memsz uint32) []byte {
	const (
		headerSize = 52
		phdrSize   = 32
	)
	out := make([]byte, headerSize+phdrSize+len(payload))

	out[0], out[1], out[2], out[3] = 0x7f, 'E', 'L', 'F'
	out[4] = 1 // EI_CLASS = ELFCLASS32
	binary.LittleEndian.PutUint32(out[24:], entry)
	binary.LittleEndian.PutUint32(out[28:], headerSize) // e_phoff
	binary.LittleEndian.PutUint16(out[42:], phdrSize)    // e_phentsize
	binary.LittleEndian.PutUint16(out[44:], 1)           // e_phnum

	ph := out[headerSize:]
	binary.LittleEndian.PutUint32(ph[0:], 1) // PT_LOAD
	binary.LittleEndian.PutUint32(ph[4:], headerSize+phdrSize)
	binary.LittleEndian.PutUint32(ph[8:], vaddr)
	binary.LittleEndian.PutUint32(ph[16:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(ph[20:], memsz)

	copy(out[headerSize+phdrSize:], payload)
	return out
}

func TestExecLoadsELF32ImageIntoAddressSpace(t *testing.T) {
	part := newTestPartition(t)
	sched := proc.NewScheduler()
	task := sched.Spawn(part, "loader", func(_ *proc.Task, argv []string) int { return 0 }, nil)

	const vaddr = 2 * proc.PageSize
	payload := []byte("PAYLOAD!")
	raw := buildELF32(vaddr, vaddr, payload, 16)

	if err := part.SysMkdir(task.CWD, "/bin"); err != nil {
		t.Fatalf("mkdir /bin: %v", err)
	}
	fd, err := task.Open("/bin/hello", fs.OCREAT|fs.ORDWR)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := task.Write(fd, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := task.Close(fd); err != nil {
		t.Fatalf("close: %v", err)
	}

	seen := make(chan []byte, 1)
	reg := proc.NewRegistry()
	reg.Register("/bin/hello", func(t *proc.Task, argv []string) int {
		page := t.Space.Page(2)
		seen <- append([]byte(nil), page[:len(payload)]...)
		return 42
	})

	if err := reg.Exec(task, "/bin/hello", []string{"hello"}); err != nil {
		t.Fatalf("exec: %v", err)
	}
	task.Run(sched)

	select {
	case got := <-seen:
		if string(got) != string(payload) {
			t.Fatalf("loaded segment = %q, want %q", got, payload)
		}
	case <-time.After(time.Second):
		t.Fatal("exec'd program never ran")
	}

	for task.State() != proc.Hanging {
		time.Sleep(time.Millisecond)
	}
}

func TestExecRejectsInvalidELF(t *testing.T) {
	part := newTestPartition(t)
	sched := proc.NewScheduler()
	task := sched.Spawn(part, "loader", func(_ *proc.Task, argv []string) int { return 0 }, nil)

	if err := part.SysMkdir(task.CWD, "/bin"); err != nil {
		t.Fatalf("mkdir /bin: %v", err)
	}
	fd, err := task.Open("/bin/garbage", fs.OCREAT|fs.ORDWR)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := task.Write(fd, []byte("not an elf image")); err != nil {
		t.Fatalf("write: %v", err)
	}
	task.Close(fd)

	reg := proc.NewRegistry()
	reg.Register("/bin/garbage", func(_ *proc.Task, argv []string) int { return 0 })

	if err := reg.Exec(task, "/bin/garbage", nil); err == nil {
		t.Fatal("exec of a non-ELF file succeeded, want an error")
	}
}

func TestExecFallsBackToRegistryWithoutBackingFile(t *testing.T) {
	part := newTestPartition(t)
	sched := proc.NewScheduler()
	task := sched.Spawn(part, "shell", func(_ *proc.Task, argv []string) int { return 0 }, nil)

	ran := make(chan struct{})
	reg := proc.NewRegistry()
	reg.Register("pwd", func(_ *proc.Task, argv []string) int {
		close(ran)
		return 0
	})

	if err := reg.Exec(task, "pwd", []string{"pwd"}); err != nil {
		t.Fatalf("exec: %v", err)
	}
	task.Run(sched)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("builtin fallback never ran")
	}
}
