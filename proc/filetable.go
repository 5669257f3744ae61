package proc

import (
	"sync"

	"github.com/nanokernel/nanokernel/fs"
)

// SlotKind tags what a global file-table slot holds.
type SlotKind int

const (
	SlotKeyboard SlotKind = iota
	SlotConsole
	SlotRegular
	SlotPipe
)

// GlobalSlot is one entry of the global open-file table (spec.md §4.8).
// Regular-file slots lean on fs.Inode.OpenCount for refcounting; only
// pipe slots carry their own RefCount, the hosted analogue of "the
// position field reused as an open-count" (spec.md §4.9).
type GlobalSlot struct {
	Kind     SlotKind
	File     *fs.OpenFile
	Pipe     *Pipe
	RefCount int
}

// FileTable is the 32-slot global open-file table; slots 0-2 are
// reserved for keyboard/console (spec.md §4.8).
type FileTable struct {
	mu    sync.Mutex
	slots [32]*GlobalSlot
}

// NewFileTable returns a table with its three reserved slots installed.
func NewFileTable() *FileTable {
	ft := &FileTable{}
	ft.slots[0] = &GlobalSlot{Kind: SlotKeyboard}
	ft.slots[1] = &GlobalSlot{Kind: SlotConsole}
	ft.slots[2] = &GlobalSlot{Kind: SlotConsole}
	return ft
}

func (ft *FileTable) get(i int) *GlobalSlot {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if i < 0 || i >= len(ft.slots) {
		return nil
	}
	return ft.slots[i]
}

func (ft *FileTable) free(i int) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.slots[i] = nil
}

// getFreeSlot scans from index 3, the reserved-slot boundary (spec.md
// §4.8's get_free_slot_in_global).
func (ft *FileTable) getFreeSlot() int {
	for i := 3; i < len(ft.slots); i++ {
		if ft.slots[i] == nil {
			return i
		}
	}
	return -1
}

// NewRegular installs an already-opened file into a fresh global slot.
func (ft *FileTable) NewRegular(f *fs.OpenFile) (int, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	i := ft.getFreeSlot()
	if i == -1 {
		return -1, ErrTableFull
	}
	ft.slots[i] = &GlobalSlot{Kind: SlotRegular, File: f}
	return i, nil
}

// NewPipe installs a fresh Pipe with an initial open-count of 2, one per
// end pipe(2) hands back (spec.md §4.9).
func (ft *FileTable) NewPipe() (int, *Pipe, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	i := ft.getFreeSlot()
	if i == -1 {
		return -1, nil, ErrTableFull
	}
	p := newPipe()
	ft.slots[i] = &GlobalSlot{Kind: SlotPipe, Pipe: p, RefCount: 2}
	return i, p, nil
}

// dup bumps slot i's refcount for a shared fd (fork): a pipe's own
// RefCount, or the regular file's underlying inode open-count (spec.md
// §4.10 step 7).
func (ft *FileTable) dup(p *fs.Partition, i int) {
	slot := ft.get(i)
	if slot == nil {
		return
	}
	switch slot.Kind {
	case SlotPipe:
		ft.mu.Lock()
		slot.RefCount++
		ft.mu.Unlock()
	case SlotRegular:
		p.Dup(slot.File)
	}
}

// releasePipe decrements slot i's pipe refcount, freeing the slot at
// zero (spec.md §4.8's pipe close accounting).
func (ft *FileTable) releasePipe(i int) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	slot := ft.slots[i]
	if slot == nil || slot.Kind != SlotPipe {
		return
	}
	slot.RefCount--
	if slot.RefCount <= 0 {
		ft.slots[i] = nil
	}
}
