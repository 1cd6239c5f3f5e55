package engine

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

// ErrResourceBusy means a conflicting adaptation holds the solution and the
// caller's budget would be exhausted by queueing behind it.
var ErrResourceBusy = errors.New("solution is locked by an in-flight adaptation")

type waiter struct {
	rank  int // higher preempts
	seq   uint64
	ch    chan struct{}
	index int
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }
func (h waiterHeap) Less(i, j int) bool {
	if h[i].rank != h[j].rank {
		return h[i].rank > h[j].rank
	}
	return h[i].seq < h[j].seq // FIFO within a priority class
}
func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}
func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return w
}

type lockState struct {
	held    bool
	waiters waiterHeap
}

// SolutionLocks serializes adaptations per solution ID. Waiters are granted
// priority-first, FIFO within a class; a waiter whose budget expires before
// the grant fails with ErrResourceBusy instead of blocking forever.
type SolutionLocks struct {
	mu  sync.Mutex
	seq uint64
	m   map[string]*lockState
}

func NewSolutionLocks() *SolutionLocks {
	return &SolutionLocks{m: map[string]*lockState{}}
}

// Acquire takes the lock for id, queueing for at most maxWait.
func (l *SolutionLocks) Acquire(ctx context.Context, id string, rank int, maxWait time.Duration) error {
	l.mu.Lock()
	st := l.m[id]
	if st == nil {
		st = &lockState{}
		l.m[id] = st
	}
	if !st.held {
		st.held = true
		l.mu.Unlock()
		return nil
	}
	l.seq++
	w := &waiter{rank: rank, seq: l.seq, ch: make(chan struct{})}
	heap.Push(&st.waiters, w)
	l.mu.Unlock()

	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
	case <-timer.C:
	}
	// Expired: remove ourselves, or give the lock back if the grant raced
	// the timeout.
	l.mu.Lock()
	if w.index >= 0 && w.index < len(st.waiters) && st.waiters[w.index] == w {
		heap.Remove(&st.waiters, w.index)
		l.mu.Unlock()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrResourceBusy
	}
	l.releaseLocked(id, st)
	l.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return ErrResourceBusy
}

// Release hands the lock to the highest-priority waiter, or frees it.
func (l *SolutionLocks) Release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.m[id]
	if st == nil {
		return
	}
	l.releaseLocked(id, st)
}

func (l *SolutionLocks) releaseLocked(id string, st *lockState) {
	if len(st.waiters) > 0 {
		w := heap.Pop(&st.waiters).(*waiter)
		close(w.ch) // lock stays held, ownership transfers
		return
	}
	st.held = false
	delete(l.m, id)
}
