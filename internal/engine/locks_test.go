package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLockAcquireRelease(t *testing.T) {
	l := NewSolutionLocks()
	if err := l.Acquire(context.Background(), "r1", 0, time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	l.Release("r1")
	if err := l.Acquire(context.Background(), "r1", 0, time.Second); err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	l.Release("r1")
}

func TestLockBusyTimesOut(t *testing.T) {
	l := NewSolutionLocks()
	if err := l.Acquire(context.Background(), "r1", 0, time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	err := l.Acquire(context.Background(), "r1", 0, 20*time.Millisecond)
	if !errors.Is(err, ErrResourceBusy) {
		t.Fatalf("err = %v, want ErrResourceBusy", err)
	}
	l.Release("r1")
}

func TestLockIndependentIDs(t *testing.T) {
	l := NewSolutionLocks()
	if err := l.Acquire(context.Background(), "r1", 0, time.Second); err != nil {
		t.Fatalf("acquire r1: %v", err)
	}
	if err := l.Acquire(context.Background(), "r2", 0, 10*time.Millisecond); err != nil {
		t.Fatalf("acquire r2 should not contend: %v", err)
	}
	l.Release("r1")
	l.Release("r2")
}

func TestLockGrantsByPriorityThenFIFO(t *testing.T) {
	l := NewSolutionLocks()
	if err := l.Acquire(context.Background(), "r1", 0, time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup
	enqueue := func(name string, rank int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background(), "r1", rank, 5*time.Second); err != nil {
				t.Errorf("%s: %v", name, err)
				return
			}
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			l.Release("r1")
		}()
		// Give the goroutine time to enqueue so seq order is deterministic.
		time.Sleep(30 * time.Millisecond)
	}
	enqueue("standard_1", 0)
	enqueue("urgent", 1)
	enqueue("standard_2", 0)
	enqueue("emergency", 2)

	l.Release("r1")
	wg.Wait()

	want := []string{"emergency", "urgent", "standard_1", "standard_2"}
	if len(order) != len(want) {
		t.Fatalf("grants = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("grant order = %v, want %v", order, want)
		}
	}
}

func TestLockCanceledWaiter(t *testing.T) {
	l := NewSolutionLocks()
	if err := l.Acquire(context.Background(), "r1", 0, time.Second); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx, "r1", 0, 5*time.Second) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	// The holder can still release and the lock is reusable.
	l.Release("r1")
	if err := l.Acquire(context.Background(), "r1", 0, time.Second); err != nil {
		t.Fatalf("re-acquire after cancel: %v", err)
	}
	l.Release("r1")
}
