package brood

import (
	"container/heap"
	"time"
)

// deadlineEntry snapshots a scope's deadline at registration time.
// Entries are invalidated lazily: a scope bumps its generation when
// the deadline changes or the scope exits, and stale entries are
// skipped when popped.
type deadlineEntry struct {
	at  time.Time
	gen uint64
	s   *Scope
}

// deadlineIndex is a min-heap of pending scope deadlines ordered by
// absolute wake time. Owned solely by the control thread.
type deadlineIndex struct {
	entries deadlineHeap
}

func (d *deadlineIndex) push(s *Scope) {
	heap.Push(&d.entries, deadlineEntry{at: s.deadline, gen: s.dlGen, s: s})
}

// prune discards stale entries from the top of the heap.
func (d *deadlineIndex) prune() {
	for len(d.entries) > 0 {
		e := d.entries[0]
		if e.gen == e.s.dlGen && !e.s.exited && !e.s.canceled {
			return
		}
		heap.Pop(&d.entries)
	}
}

// earliest returns the next pending wake time, if any.
func (d *deadlineIndex) earliest() (time.Time, bool) {
	d.prune()
	if len(d.entries) == 0 {
		return time.Time{}, false
	}
	return d.entries[0].at, true
}

// expire cancels every scope whose deadline is at or before now.
func (d *deadlineIndex) expire(now time.Time) {
	for {
		d.prune()
		if len(d.entries) == 0 || d.entries[0].at.After(now) {
			return
		}
		e := heap.Pop(&d.entries).(deadlineEntry)
		e.s.cancelByDeadline()
	}
}

func (d *deadlineIndex) empty() bool {
	d.prune()
	return len(d.entries) == 0
}

type deadlineHeap []deadlineEntry

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h deadlineHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *deadlineHeap) Push(x any) { *h = append(*h, x.(deadlineEntry)) }

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
