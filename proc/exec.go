package proc

import (
	"errors"
	"fmt"
	"io"

	"github.com/nanokernel/nanokernel/fs"
)

// Program is a loaded executable's entry point: the task running it
// (for fd/cwd/partition access, the userspace analogue of a process's
// own context) plus argv in, exit status out.
type Program func(t *Task, argv []string) int

// Registry resolves an executable path to a Program. Since this module
// is a hosted Go process rather than ring 0, arbitrary machine code
// can't actually be executed: when path names a real file on the
// task's partition, Exec opens it, validates it as an ELF32 image
// (elf.go), and loads its PT_LOAD segments into a fresh AddressSpace —
// exactly the "validate and load" step spec.md §4.10 describes — but
// the code that actually runs after that load is still whichever Go
// function the registry holds for that path, the userspace analogue of
// "jumping to the loaded program's entry point". A path with no
// backing file (a shell builtin with nothing on disk) skips the ELF
// step and resolves straight from the registry.
type Registry struct {
	progs map[string]Program
}

// NewRegistry returns an empty program registry.
func NewRegistry() *Registry { return &Registry{progs: make(map[string]Program)} }

// Register installs prog under path.
func (r *Registry) Register(path string, prog Program) { r.progs[path] = prog }

// Exec implements sys_execv: resolve path, forge a fresh address space,
// and replace t's entry point and argv (spec.md §4.10). On success it
// returns nil, and the task picks up the new entry the next time Run is
// called on it.
func (r *Registry) Exec(t *Task, path string, argv []string) error {
	prog, ok := r.progs[path]

	raw, err := readFile(t, path)
	switch {
	case err == nil:
		img, perr := ParseELF32(raw)
		if perr != nil {
			return fmt.Errorf("proc: %s: %w", path, perr)
		}
		if !ok {
			return fmt.Errorf("proc: %s: ELF image has no registered entry point", path)
		}
		space := NewAddressSpace()
		img.Load(space)

		t.mu.Lock()
		t.Space = space
		t.entry = prog
		t.argv = argv
		t.mu.Unlock()
		return nil
	case errors.Is(err, fs.ErrNotFound):
		if !ok {
			return fmt.Errorf("proc: no such executable %q", path)
		}
		t.mu.Lock()
		t.Space = NewAddressSpace()
		t.entry = prog
		t.argv = argv
		t.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("proc: %s: %w", path, err)
	}
}

// readFile opens path on t's partition and reads it whole, the ELF
// loader's input (spec.md §4.10 step 2). It uses its own fd, never
// touching t's fd table, since exec happens before the new image's
// descriptors exist.
func readFile(t *Task, path string) ([]byte, error) {
	f, err := t.Partition.SysOpen(t.CWD, path, fs.ORDONLY)
	if err != nil {
		return nil, err
	}
	defer t.Partition.SysClose(f)

	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := t.Partition.SysRead(f, buf)
		out = append(out, buf[:n]...)
		if err == io.EOF || n == 0 {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
