package ksync_test

import (
	"testing"
	"time"

	"github.com/nanokernel/nanokernel/ksync"
)

func TestSemaDownBlocksUntilUp(t *testing.T) {
	s := ksync.NewSema(0)
	done := make(chan struct{})

	go func() {
		s.Down()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Down returned before Up")
	case <-time.After(20 * time.Millisecond):
	}

	s.Up()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Down never returned after Up")
	}
}

func TestSemaTryDown(t *testing.T) {
	s := ksync.NewSema(1)
	if !s.TryDown() {
		t.Fatal("TryDown should succeed when value is 1")
	}
	if s.TryDown() {
		t.Fatal("TryDown should fail when value is 0")
	}
	s.Up()
	if !s.TryDown() {
		t.Fatal("TryDown should succeed again after Up")
	}
}

func TestSemaFIFOWakeOrder(t *testing.T) {
	s := ksync.NewSema(0)
	order := make(chan int, 3)

	for i := 0; i < 3; i++ {
		i := i
		go func() {
			// stagger registration so waiters enqueue in index order
			time.Sleep(time.Duration(i) * 5 * time.Millisecond)
			s.Down()
			order <- i
		}()
	}

	time.Sleep(30 * time.Millisecond)

	got := make([]int, 3)
	for i := 0; i < 3; i++ {
		// one Up at a time, so each woken waiter reports before the next wakes
		s.Up()
		select {
		case got[i] = <-order:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for waiter to wake")
		}
	}
	for i, v := range got {
		if v != i {
			t.Errorf("wake order[%d] = %d, want %d", i, v, i)
		}
	}
}
