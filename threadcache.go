package brood

import (
	"sync"
	"time"
)

// threadCache keeps a pool of reusable worker threads for executing
// blocking calls on behalf of the control thread. Workers outlive
// individual jobs and are retired after sitting idle past the
// configured timeout. The idle list is the only state shared with
// worker threads; inflight is control-thread-only bookkeeping for
// deadlock detection.
type threadCache struct {
	mu          sync.Mutex
	idle        []*worker
	spawned     int
	idleTimeout time.Duration
	q           *entryQueue
	inflight    int
}

type worker struct {
	jobs chan func()
}

func newThreadCache(q *entryQueue, idleTimeout time.Duration) *threadCache {
	return &threadCache{q: q, idleTimeout: idleTimeout}
}

// dispatch hands a job to an idle worker, spawning a new one only
// when none is available.
func (tc *threadCache) dispatch(job func()) {
	tc.mu.Lock()
	var w *worker
	if n := len(tc.idle); n > 0 {
		w = tc.idle[n-1]
		tc.idle = tc.idle[:n-1]
	} else {
		tc.spawned++
	}
	tc.mu.Unlock()
	if w == nil {
		w = &worker{jobs: make(chan func())}
		go w.loop(tc)
	}
	w.jobs <- job
}

// workersSpawned reports how many worker threads have ever been
// created.
func (tc *threadCache) workersSpawned() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.spawned
}

func (tc *threadCache) idleCount() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.idle)
}

func (w *worker) loop(tc *threadCache) {
	job := <-w.jobs // dispatch hands a job right after spawning
	for {
		job()

		tc.mu.Lock()
		tc.idle = append(tc.idle, w)
		tc.mu.Unlock()

		timer := time.NewTimer(tc.idleTimeout)
		select {
		case job = <-w.jobs:
			timer.Stop()
			continue
		case <-timer.C:
		}

		// The timer fired, but dispatch may have popped this worker
		// concurrently, in which case a job is already on the way.
		tc.mu.Lock()
		retired := false
		for i, idle := range tc.idle {
			if idle == w {
				tc.idle = append(tc.idle[:i], tc.idle[i+1:]...)
				retired = true
				break
			}
		}
		tc.mu.Unlock()
		if retired {
			return
		}
		job = <-w.jobs
	}
}

// RunBlocking executes fn on a worker thread and parks the task until
// the result returns through the entry queue. Worker failures are
// delivered as the error result, not as scheduler faults.
//
// Cancelling the waiting task does not interrupt fn: the wait
// resolves immediately with the cancellation signal while fn keeps
// running in the background, and the worker rejoins the pool only
// once fn finishes ("abandon, don't abort").
func (t *Task) RunBlocking(fn func() (any, error)) (any, error) {
	if err := t.CheckCancel(); err != nil {
		return nil, err
	}

	tc := t.r.threads
	tc.inflight++

	// Owned by the control thread: set by the abort handler, read by
	// the entry-queue callback, both of which run on the control
	// thread.
	var abandoned bool

	tc.dispatch(func() {
		v, err := fn()
		_ = tc.q.submit(func() {
			tc.inflight--
			if !abandoned {
				t.Unpark(v, err)
			}
		})
		// A failed submit means the run already finished; the result
		// has nowhere to go.
	})

	return t.Park(func(*Scope) Abort {
		abandoned = true
		return AbortSucceeded
	})
}

// Blocking is a typed convenience wrapper around Task.RunBlocking.
func Blocking[T any](t *Task, fn func() (T, error)) (T, error) {
	v, err := t.RunBlocking(func() (any, error) {
		v, err := fn()
		return v, err
	})
	if v == nil {
		var zero T
		return zero, err
	}
	return v.(T), err
}
