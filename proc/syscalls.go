package proc

import (
	"io"

	"github.com/nanokernel/nanokernel/fs"
)

// Open implements sys_open, installing the resulting OpenFile into a
// fresh global slot and the task's fd table (spec.md §4.7, §4.8).
func (t *Task) Open(path string, flags fs.OpenFlag) (int, error) {
	f, err := t.Partition.SysOpen(t.CWD, path, flags)
	if err != nil {
		return -1, err
	}
	g, err := t.FDs.files.NewRegular(f)
	if err != nil {
		t.Partition.SysClose(f)
		return -1, err
	}
	local, err := t.FDs.Install(g)
	if err != nil {
		t.FDs.files.free(g)
		t.Partition.SysClose(f)
		return -1, err
	}
	return local, nil
}

// Read implements sys_read's dispatch: fd 0 (unless redirected) reads
// the keyboard queue; a pipe fd routes to Pipe.Read; otherwise a
// regular-file read (spec.md §4.8).
func (t *Task) Read(localFd int, buf []byte) (int, error) {
	g, err := t.FDs.Global(localFd)
	if err != nil {
		return -1, err
	}
	if g == 0 {
		return t.readKeyboard(buf)
	}
	if g < 3 {
		return -1, ErrBadFD
	}
	slot := t.FDs.files.get(g)
	if slot == nil {
		return -1, ErrBadFD
	}
	switch slot.Kind {
	case SlotPipe:
		return slot.Pipe.Read(buf), nil
	case SlotRegular:
		n, err := t.Partition.SysRead(slot.File, buf)
		if err == io.EOF {
			return n, nil
		}
		return n, err
	default:
		return -1, ErrBadFD
	}
}

// Write implements sys_write's dispatch: fds 1/2 (unless redirected)
// write the console.
func (t *Task) Write(localFd int, buf []byte) (int, error) {
	g, err := t.FDs.Global(localFd)
	if err != nil {
		return -1, err
	}
	if g == 1 || g == 2 {
		return t.writeConsole(buf)
	}
	if g == 0 {
		return -1, ErrBadFD
	}
	slot := t.FDs.files.get(g)
	if slot == nil {
		return -1, ErrBadFD
	}
	switch slot.Kind {
	case SlotPipe:
		return slot.Pipe.Write(buf), nil
	case SlotRegular:
		return t.Partition.SysWrite(slot.File, buf)
	default:
		return -1, ErrBadFD
	}
}

// Close implements sys_close's dispatch.
func (t *Task) Close(localFd int) error {
	return t.FDs.Close(t.Partition, localFd)
}

// Pipe implements pipe(2): a single global slot, with two distinct local
// fds in this task's own table both resolving to it (spec.md §4.9).
func (t *Task) Pipe() (readFd, writeFd int, err error) {
	g, _, err := t.FDs.files.NewPipe()
	if err != nil {
		return -1, -1, err
	}
	readFd, err = t.FDs.Install(g)
	if err != nil {
		t.FDs.files.free(g)
		return -1, -1, err
	}
	writeFd, err = t.FDs.Install(g)
	if err != nil {
		_ = t.FDs.Close(t.Partition, readFd)
		return -1, -1, err
	}
	return readFd, writeFd, nil
}

// FdRedirect implements fd_redirect(old_local, new_local) (spec.md
// §4.8), used by cmd/nsh to wire up shell pipelines.
func (t *Task) FdRedirect(oldLocal, newLocal int) error {
	return t.FDs.Redirect(oldLocal, newLocal)
}

func (t *Task) readKeyboard(buf []byte) (int, error) {
	if t.Stdin == nil {
		return 0, io.EOF
	}
	return t.Stdin.Read(buf)
}

func (t *Task) writeConsole(buf []byte) (int, error) {
	if t.Stdout == nil {
		return len(buf), nil
	}
	return t.Stdout.Write(buf)
}
