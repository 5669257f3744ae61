package main

import (
	"fmt"
	"time"

	"github.com/nanokernel/nanokernel/fs"
	"github.com/nanokernel/nanokernel/proc"
)

// newBuiltinRegistry wires every shell builtin except cd (which mutates
// the caller's own CWD and so can never run in a forked child) into a
// proc.Registry, the "files" a forked child's exec resolves by name.
func newBuiltinRegistry(sched *proc.Scheduler) *proc.Registry {
	reg := proc.NewRegistry()
	reg.Register("pwd", biPwd)
	reg.Register("ls", biLs)
	reg.Register("mkdir", biMkdir)
	reg.Register("rmdir", biRmdir)
	reg.Register("rm", biRm)
	reg.Register("touch", biTouch)
	reg.Register("echo", biEcho)
	reg.Register("clear", biClear)
	reg.Register("help", biHelp)
	reg.Register("date", biDate)
	reg.Register("ps", func(t *proc.Task, argv []string) int {
		fmt.Fprint(taskWriter{t}, sched.String())
		return 0
	})
	return reg
}

// fprintf/fprint helpers write through a task's fd 1, so builtins honor
// pipeline redirection exactly like any other stage.
func fprintf(t *proc.Task, format string, args ...interface{}) {
	fmt.Fprintf(taskWriter{t}, format, args...)
}

type taskWriter struct{ t *proc.Task }

func (w taskWriter) Write(p []byte) (int, error) { return w.t.Write(1, p) }

func biPwd(t *proc.Task, argv []string) int {
	cwd, err := t.Partition.SysGetcwd(t.CWD)
	if err != nil {
		fprintf(t, "pwd: %v\n", err)
		return -1
	}
	fprintf(t, "%s\n", cwd)
	return 0
}

func biLs(t *proc.Task, argv []string) int {
	long := false
	path := "."
	for _, a := range argv[1:] {
		if a == "-l" {
			long = true
			continue
		}
		path = a
	}

	d, err := t.Partition.SysOpendir(t.CWD, path)
	if err != nil {
		fprintf(t, "ls: %v\n", err)
		return -1
	}
	defer t.Partition.SysClosedir(d)

	for {
		ent, ok, err := t.Partition.SysReaddir(d)
		if err != nil {
			fprintf(t, "ls: %v\n", err)
			return -1
		}
		if !ok {
			break
		}
		if ent.Free() {
			continue
		}
		if long {
			fprintf(t, "%-6s %8d %s\n", ent.Type, 0, ent.NameString())
		} else {
			fprintf(t, "%s\n", ent.NameString())
		}
	}
	return 0
}

func biMkdir(t *proc.Task, argv []string) int {
	if len(argv) < 2 {
		fprintf(t, "mkdir: missing operand\n")
		return -1
	}
	if err := t.Partition.SysMkdir(t.CWD, argv[1]); err != nil {
		fprintf(t, "mkdir: %v\n", err)
		return -1
	}
	return 0
}

func biRmdir(t *proc.Task, argv []string) int {
	if len(argv) < 2 {
		fprintf(t, "rmdir: missing operand\n")
		return -1
	}
	if err := t.Partition.SysRmdir(t.CWD, argv[1]); err != nil {
		fprintf(t, "rmdir: %v\n", err)
		return -1
	}
	return 0
}

func biRm(t *proc.Task, argv []string) int {
	if len(argv) < 2 {
		fprintf(t, "rm: missing operand\n")
		return -1
	}
	if err := t.Partition.SysUnlink(t.CWD, argv[1]); err != nil {
		fprintf(t, "rm: %v\n", err)
		return -1
	}
	return 0
}

func biTouch(t *proc.Task, argv []string) int {
	if len(argv) < 2 {
		fprintf(t, "touch: missing operand\n")
		return -1
	}
	f, err := t.Partition.SysOpen(t.CWD, argv[1], fs.OCREAT|fs.ORDWR)
	if err != nil {
		fprintf(t, "touch: %v\n", err)
		return -1
	}
	t.Partition.SysClose(f)
	return 0
}

func biEcho(t *proc.Task, argv []string) int {
	for i, a := range argv[1:] {
		if i > 0 {
			fprintf(t, " ")
		}
		fprintf(t, "%s", a)
	}
	fprintf(t, "\n")
	return 0
}

func biClear(t *proc.Task, argv []string) int {
	fprintf(t, "\033[2J\033[H")
	return 0
}

func biHelp(t *proc.Task, argv []string) int {
	fprintf(t, "cd pwd ls [-l] mkdir rmdir rm touch echo [> file] ps clear help date, and cmd | cmd | ...\n")
	info := t.Partition.Stat()
	fprintf(t, "fs: %d/%d blocks free, %d/%d inodes free\n", info.FreeBlocks, info.TotalBlocks, info.FreeInodes, info.TotalInodes)
	return 0
}

func biDate(t *proc.Task, argv []string) int {
	fprintf(t, "%s\n", time.Now().Format(time.RFC1123))
	return 0
}
