package ksync_test

import (
	"testing"

	"github.com/nanokernel/nanokernel/ksync"
)

func TestMutexReentrant(t *testing.T) {
	m := ksync.NewMutex()
	task := "task-a"

	m.Acquire(task)
	m.Acquire(task) // recursive, must not deadlock
	if !m.HeldBy(task) {
		t.Fatal("expected task to hold mutex")
	}

	m.Release(task)
	if !m.HeldBy(task) {
		t.Fatal("mutex released too early, depth should still be 1")
	}
	m.Release(task)
	if m.HeldBy(task) {
		t.Fatal("mutex should be free after matching releases")
	}
}

func TestMutexReleaseByNonOwnerPanics(t *testing.T) {
	m := ksync.NewMutex()
	m.Acquire("owner")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic releasing a mutex not held by caller")
		}
	}()
	m.Release("someone-else")
}

func TestMutexExcludesOtherOwner(t *testing.T) {
	m := ksync.NewMutex()
	m.Acquire("a")

	acquired := make(chan struct{})
	go func() {
		m.Acquire("b")
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second owner acquired mutex while first still held it")
	default:
	}

	m.Release("a")
	<-acquired
	if !m.HeldBy("b") {
		t.Fatal("expected b to now hold the mutex")
	}
}
