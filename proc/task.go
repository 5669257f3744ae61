// Package proc implements the process/thread lifecycle primitives spec.md
// §4.8-§4.10 describe: the fd/file-table facade, pipes, and
// fork/exec/wait/exit. Each Task is a goroutine standing in for a
// scheduled thread; "returning through the interrupt-exit path" becomes
// the goroutine's entry point invoking the loaded Program directly
// (spec.md §4.10).
package proc

import (
	"fmt"
	"io"
	"sync"

	"github.com/nanokernel/nanokernel/fs"
)

// State mirrors the task states spec.md §4.10/§5 names.
type State int

const (
	Ready State = iota
	Running
	Waiting
	Hanging // zombie: exited, not yet reaped by a wait()
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Waiting:
		return "waiting"
	case Hanging:
		return "hanging"
	default:
		return "unknown"
	}
}

// AddressSpace stands in for the page directory spec.md §4.10 describes:
// a map of page-aligned frames keyed by virtual page number. Paging
// itself (page faults, protection bits) is an out-of-scope external
// collaborator per spec.md §1, so this is only ever copied wholesale or
// indexed by page number, never walked as a tree.
type AddressSpace struct {
	mu     sync.Mutex
	frames map[uint32][]byte
}

// PageSize is the frame granularity AddressSpace copies at (spec.md
// §4.10's "for each virtual page marked in the parent's bitmap").
const PageSize = 4096

// NewAddressSpace returns an empty address space.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{frames: make(map[uint32][]byte)}
}

// Page returns page's backing frame, allocating a fresh zeroed one on
// first touch.
func (a *AddressSpace) Page(page uint32) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.frames[page]
	if !ok {
		f = make([]byte, PageSize)
		a.frames[page] = f
	}
	return f
}

// Clone returns a deep copy of a, the per-page copy fork() performs
// instead of a kernel staging page plus page-directory swaps (spec.md
// §4.10 step 5) — both are a verbatim byte-for-byte copy; only the
// mechanism used to reach each frame differs, and that mechanism is the
// MMU's business, not this module's.
func (a *AddressSpace) Clone() *AddressSpace {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := NewAddressSpace()
	for page, frame := range a.frames {
		cp := make([]byte, len(frame))
		copy(cp, frame)
		out.frames[page] = cp
	}
	return out
}

// Task is one schedulable unit: a goroutine, an fd table, an address
// space, and a current-directory pointer (spec.md §4.10).
type Task struct {
	Pid       int
	ParentPid int
	Name      string

	Partition *fs.Partition
	CWD       *fs.CWD
	Space     *AddressSpace
	FDs       *FDTable

	// Stdin/Stdout back the keyboard queue and console fds (spec.md
	// §4.8); cmd/nsh wires these to the shell's own stdin/stdout, and
	// pipeline stages reach a pipe through fd redirection instead.
	Stdin  io.Reader
	Stdout io.Writer

	mu       sync.Mutex
	state    State
	exitCode int
	children []int
	waitCh   chan struct{}

	entry func(t *Task, argv []string) int
	argv  []string
}

// Scheduler owns the pid space and the all-tasks list spec.md §4.10
// describes as a global (kept here, not package-level, per spec.md §9's
// guidance against hidden global init order).
type Scheduler struct {
	mu      sync.Mutex
	nextPid int
	tasks   map[int]*Task
	files   *FileTable
}

// NewScheduler returns an empty scheduler with a fresh global file table
// (spec.md §4.8's reserved slots 0-2 already installed).
func NewScheduler() *Scheduler {
	return &Scheduler{
		nextPid: 1,
		tasks:   make(map[int]*Task),
		files:   NewFileTable(),
	}
}

// Files returns the scheduler's global open-file table.
func (s *Scheduler) Files() *FileTable { return s.files }

// Spawn creates a parentless task under the next free pid (pid 1, init's
// traditional slot, when it is the scheduler's first task), running entry
// with argv once started.
func (s *Scheduler) Spawn(part *fs.Partition, name string, entry func(t *Task, argv []string) int, argv []string) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Task{
		Pid:       s.nextPid,
		ParentPid: 0,
		Name:      name,
		Partition: part,
		CWD:       fs.RootCWD(),
		Space:     NewAddressSpace(),
		FDs:       NewFDTable(s.files),
		state:     Ready,
		waitCh:    make(chan struct{}),
		entry:     entry,
		argv:      argv,
	}
	s.nextPid++
	s.tasks[t.Pid] = t
	return t
}

// Run starts t's goroutine. Exit is called automatically when entry
// returns, the hosted analogue of a process falling off sys_exit.
func (t *Task) Run(s *Scheduler) {
	t.mu.Lock()
	t.state = Running
	t.mu.Unlock()
	go func() {
		code := t.entry(t, t.argv)
		s.Exit(t, code)
	}()
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Lookup returns the task for pid, or nil.
func (s *Scheduler) Lookup(pid int) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[pid]
}

func (s *Scheduler) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := ""
	for _, t := range s.tasks {
		out += fmt.Sprintf("%d\t%s\t%s\n", t.Pid, t.State(), t.Name)
	}
	return out
}
