package proc

import "github.com/nanokernel/nanokernel/fs"

// Fork implements sys_fork (spec.md §4.10): the child gets a copy of the
// parent's fd table (shared global slots, refcounts bumped rather than
// reopened) and a deep copy of its address space, a fresh pid, and is
// linked into both the scheduler's task table and the parent's child
// list. Fork returns the child to the caller; starting its goroutine (so
// it "returns 0 via the forged stack frame") is Run's job, called
// separately once the child's entry point is set.
func (s *Scheduler) Fork(parent *Task) *Task {
	s.mu.Lock()
	pid := s.nextPid
	s.nextPid++
	s.mu.Unlock()

	parent.mu.Lock()
	child := &Task{
		Pid:       pid,
		ParentPid: parent.Pid,
		Name:      parent.Name + "_fork",
		Partition: parent.Partition,
		CWD:       &fs.CWD{Ino: parent.CWD.Ino},
		Space:     parent.Space.Clone(),
		Stdin:     parent.Stdin,
		Stdout:    parent.Stdout,
		state:     Ready,
		waitCh:    make(chan struct{}),
		entry:     parent.entry,
		argv:      parent.argv,
	}
	parent.children = append(parent.children, pid)
	entryFDs := parent.FDs
	parent.mu.Unlock()

	child.FDs = entryFDs.Clone(parent.Partition)

	s.mu.Lock()
	s.tasks[pid] = child
	s.mu.Unlock()

	return child
}
