package proc

import (
	"log"
	"sync"
)

// Exit implements exit(): record the task's status, mark it Hanging
// (zombie) until reaped, wake any parent blocked in Wait, reparent any
// surviving children to init (pid 1), and reclaim every fd the task
// never closed itself (spec.md §4.10).
func (s *Scheduler) Exit(t *Task, code int) {
	t.mu.Lock()
	if t.state == Hanging {
		t.mu.Unlock()
		return
	}
	t.state = Hanging
	t.exitCode = code
	children := append([]int(nil), t.children...)
	t.children = nil
	close(t.waitCh)
	t.mu.Unlock()

	s.reparent(children, t.Pid)

	log.Printf("proc: pid %d (%s) exited, code=%d", t.Pid, t.Name, code)
	t.FDs.CloseAll(t.Partition)
}

// reparent hands every pid in children over to init (pid 1), the way a
// real kernel keeps orphaned processes reapable instead of losing them
// once their original parent is gone. A task exiting before init itself
// exists (or exiting as init) simply drops its children.
func (s *Scheduler) reparent(children []int, exitingPid int) {
	if len(children) == 0 || exitingPid == 1 {
		return
	}
	init := s.Lookup(1)
	if init == nil {
		return
	}
	for _, pid := range children {
		if child := s.Lookup(pid); child != nil {
			child.mu.Lock()
			child.ParentPid = 1
			child.mu.Unlock()
		}
	}
	init.mu.Lock()
	init.children = append(init.children, children...)
	init.mu.Unlock()
}

// Wait implements wait(): block until any child has exited, reap it, and
// return its pid and exit status. A childless task gets ErrNoChild
// immediately rather than blocking forever (spec.md §4.10).
func (s *Scheduler) Wait(parent *Task) (int, int, error) {
	for {
		parent.mu.Lock()
		if len(parent.children) == 0 {
			parent.mu.Unlock()
			return -1, 0, ErrNoChild
		}
		children := append([]int(nil), parent.children...)
		parent.mu.Unlock()

		var pending []chan struct{}
		for _, pid := range children {
			child := s.Lookup(pid)
			if child == nil {
				continue
			}
			child.mu.Lock()
			state, code, ch := child.state, child.exitCode, child.waitCh
			child.mu.Unlock()
			if state == Hanging {
				s.reap(parent, pid)
				return pid, code, nil
			}
			pending = append(pending, ch)
		}
		waitAny(pending)
	}
}

// waitAny blocks until any one of chans is closed.
func waitAny(chans []chan struct{}) {
	if len(chans) == 0 {
		return
	}
	done := make(chan struct{})
	var once sync.Once
	for _, c := range chans {
		c := c
		go func() {
			<-c
			once.Do(func() { close(done) })
		}()
	}
	<-done
}

// reap drops pid from parent's child list and the scheduler's task
// table once its status has been collected.
func (s *Scheduler) reap(parent *Task, pid int) {
	parent.mu.Lock()
	for i, c := range parent.children {
		if c == pid {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			break
		}
	}
	parent.mu.Unlock()

	s.mu.Lock()
	delete(s.tasks, pid)
	s.mu.Unlock()
}
