package proc

import (
	"sync"

	"github.com/nanokernel/nanokernel/fs"
)

// FDTable is a task's fixed 8-entry local fd table: slots 0-2 are
// reserved raw values (keyboard, console, console); the rest map to
// indices in the shared FileTable (spec.md §4.8).
type FDTable struct {
	mu    sync.Mutex
	slots [8]int
	files *FileTable
}

// NewFDTable returns a table with 0/1/2 wired to the reserved global
// slots and the rest empty.
func NewFDTable(files *FileTable) *FDTable {
	fd := &FDTable{files: files}
	fd.slots[0], fd.slots[1], fd.slots[2] = 0, 1, 2
	for i := 3; i < len(fd.slots); i++ {
		fd.slots[i] = -1
	}
	return fd
}

// Global resolves a local fd to its global slot index.
func (fd *FDTable) Global(localFd int) (int, error) {
	if localFd < 0 || localFd >= len(fd.slots) {
		return -1, ErrBadFD
	}
	fd.mu.Lock()
	defer fd.mu.Unlock()
	g := fd.slots[localFd]
	if g == -1 {
		return -1, ErrBadFD
	}
	return g, nil
}

// Install claims the first free local fd (starting at 3) and points it
// at globalSlot.
func (fd *FDTable) Install(globalSlot int) (int, error) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	for i := 3; i < len(fd.slots); i++ {
		if fd.slots[i] == -1 {
			fd.slots[i] = globalSlot
			return i, nil
		}
	}
	return -1, ErrBadFD
}

// Redirect implements fd_redirect(old_local, new_local): point fd[old]
// at either the raw value (new_local < 3) or the global slot new_local
// already resolves to (spec.md §4.8).
func (fd *FDTable) Redirect(oldLocal, newLocal int) error {
	if oldLocal < 0 || oldLocal >= len(fd.slots) {
		return ErrBadFD
	}
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if newLocal < 3 {
		fd.slots[oldLocal] = newLocal
		return nil
	}
	if newLocal >= len(fd.slots) || fd.slots[newLocal] == -1 {
		return ErrBadFD
	}
	fd.slots[oldLocal] = fd.slots[newLocal]
	return nil
}

// Close implements the close-accounting spec.md §4.8 describes: a pipe
// fd decrements its global slot's open-count; a regular file runs
// fs.SysClose. The local fd becomes -1 either way.
func (fd *FDTable) Close(p *fs.Partition, localFd int) error {
	if localFd < 0 || localFd >= len(fd.slots) {
		return ErrBadFD
	}
	fd.mu.Lock()
	g := fd.slots[localFd]
	if g == -1 {
		fd.mu.Unlock()
		return ErrBadFD
	}
	fd.slots[localFd] = -1
	fd.mu.Unlock()

	if g < 3 {
		return nil
	}
	slot := fd.files.get(g)
	if slot == nil {
		return nil
	}
	switch slot.Kind {
	case SlotPipe:
		fd.files.releasePipe(g)
	case SlotRegular:
		p.SysClose(slot.File)
		fd.files.free(g)
	}
	return nil
}

// CloseAll closes every local fd ≥3 still open, the fd-table half of a
// process exiting: the kernel reclaims every descriptor a task forgot to
// close rather than leaking its reference forever.
func (fd *FDTable) CloseAll(p *fs.Partition) {
	for i := 3; i < len(fd.slots); i++ {
		fd.mu.Lock()
		open := fd.slots[i] != -1
		fd.mu.Unlock()
		if open {
			fd.Close(p, i)
		}
	}
}

// Clone copies fd's slot mapping for fork, bumping the refcount of every
// referenced global slot so parent and child share it (spec.md §4.10
// step 7).
func (fd *FDTable) Clone(p *fs.Partition) *FDTable {
	fd.mu.Lock()
	slots := fd.slots
	fd.mu.Unlock()

	out := &FDTable{files: fd.files, slots: slots}
	for _, g := range slots {
		if g < 3 {
			continue
		}
		fd.files.dup(p, g)
	}
	return out
}
