package brood

import "sync"

// entryQueue is the cross-thread inbox: foreign threads append
// zero-argument callbacks under the lock, and the control thread
// swaps the buffer out once per scheduler iteration. Submitting also
// fires the poller's out-of-band wake so a blocked poll returns
// promptly. This and the thread cache's dispatch structures are the
// only scheduler state ever touched off the control thread.
type entryQueue struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   func()
}

func newEntryQueue(wake func()) *entryQueue {
	return &entryQueue{wake: wake}
}

func (q *entryQueue) submit(fn func()) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrRunFinished
	}
	q.queue = append(q.queue, fn)
	q.mu.Unlock()
	q.wake()
	return nil
}

// drain takes the pending callbacks. Control thread only; callbacks
// submitted from one thread run in submission order.
func (q *entryQueue) drain() []func() {
	q.mu.Lock()
	cbs := q.queue
	q.queue = nil
	q.mu.Unlock()
	return cbs
}

func (q *entryQueue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue) == 0
}

// close permanently rejects further submissions and returns the
// callbacks accepted but not yet drained. A successful submit promises
// execution, so the caller must still run these.
func (q *entryQueue) close() []func() {
	q.mu.Lock()
	q.closed = true
	cbs := q.queue
	q.queue = nil
	q.mu.Unlock()
	return cbs
}

// Token lets foreign threads inject work into the run loop. Obtain
// one on the control thread with Task.Token, then hand it to any
// thread.
type Token struct {
	q *entryQueue
}

// Token returns a handle for submitting callbacks to this task's
// scheduler from other threads.
func (t *Task) Token() *Token {
	return &Token{q: t.r.entryq}
}

// Submit schedules fn to run exactly once on the control thread at
// the start of some future scheduler iteration, waking a blocked poll
// if necessary. Callbacks submitted from the same thread run in
// submission order. After the run has permanently stopped, Submit
// returns ErrRunFinished and fn never runs; a callback accepted before
// the stop still runs, at the latest during teardown.
//
// Submit is safe to call from any thread, including the control
// thread itself.
func (tk *Token) Submit(fn func()) error {
	return tk.q.submit(fn)
}
