package brood

import (
	"fmt"
	"time"
)

// Direction selects which kind of readiness a task waits for.
type Direction int

const (
	// DirRead waits for the descriptor to become readable.
	DirRead Direction = iota
	// DirWrite waits for the descriptor to become writable.
	DirWrite
)

func (d Direction) String() string {
	if d == DirWrite {
		return "write"
	}
	return "read"
}

const (
	maskRead uint8 = 1 << iota
	maskWrite
)

// readyEvent is one readiness notification reported by the platform
// backend.
type readyEvent struct {
	fd     int
	read   bool
	write  bool
	wakeup bool
}

// fdWaiters tracks the at-most-one waiting task per direction for a
// descriptor, and the interest mask currently armed in the kernel.
type fdWaiters struct {
	read  *Task
	write *Task
	armed uint8
}

// poller multiplexes readiness notifications for the tasks blocked on
// I/O. The registration table is owned solely by the control thread;
// the only cross-thread entry point is wake, which the entry queue
// uses to interrupt a blocking poll. Platform backends (epoll on
// Linux, kqueue on Darwin) implement platformPoller.
type poller struct {
	waiters map[int]*fdWaiters
	nwait   int
	pp      platformPoller
}

func newPoller() (*poller, error) {
	p := &poller{waiters: make(map[int]*fdWaiters)}
	if err := p.pp.init(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *poller) close() { p.pp.close() }

// wake interrupts a blocking poll. Safe to call from any thread; a
// wake requested before or during a poll makes that poll return
// without waiting out its timeout.
func (p *poller) wake() { p.pp.wake() }

// waiterCount returns the number of registered waits, excluding the
// out-of-band wake descriptor.
func (p *poller) waiterCount() int { return p.nwait }

// waitFD registers interest in fd for the given direction and parks t
// until the descriptor is ready or the wait is cancelled. Only one
// task may wait per (fd, direction) at a time; a second registration
// is a usage error reported as ErrBusy.
func (p *poller) waitFD(t *Task, fd int, dir Direction) error {
	w := p.waiters[fd]
	if w == nil {
		w = &fdWaiters{}
		p.waiters[fd] = w
	}
	slot := &w.read
	if dir == DirWrite {
		slot = &w.write
	}
	if *slot != nil {
		return fmt.Errorf("%w: fd %d, %s", ErrBusy, fd, dir)
	}
	*slot = t
	p.nwait++
	if err := p.arm(fd, w); err != nil {
		*slot = nil
		p.nwait--
		p.cleanup(fd, w)
		return fmt.Errorf("brood: register fd %d: %w", fd, err)
	}

	_, err := t.Park(func(*Scope) Abort {
		p.retract(fd, dir)
		return AbortSucceeded
	})
	return err
}

// retract removes a registration. Resuming an already-retracted wait
// is impossible afterwards: the slot is empty, so a late readiness
// event for it is ignored.
func (p *poller) retract(fd int, dir Direction) {
	w := p.waiters[fd]
	if w == nil {
		return
	}
	slot := &w.read
	if dir == DirWrite {
		slot = &w.write
	}
	if *slot == nil {
		return
	}
	*slot = nil
	p.nwait--
	// Kernel deregistration is best effort; the descriptor may
	// already be closed by the time the wait is abandoned.
	_ = p.arm(fd, w)
	p.cleanup(fd, w)
}

func (p *poller) cleanup(fd int, w *fdWaiters) {
	if w.read == nil && w.write == nil && w.armed == 0 {
		delete(p.waiters, fd)
	}
}

// arm reconciles the kernel-side interest for fd with the waiters
// present.
func (p *poller) arm(fd int, w *fdWaiters) error {
	var want uint8
	if w.read != nil {
		want |= maskRead
	}
	if w.write != nil {
		want |= maskWrite
	}
	if want == w.armed {
		return nil
	}
	if err := p.pp.arm(fd, w.armed, want); err != nil {
		return err
	}
	w.armed = want
	return nil
}

// dispatch wakes the waiters for one readiness event, retracting each
// registration before the unpark so every wait resolves exactly once.
// Error and hangup conditions wake both directions; the waiter
// discovers the condition on its next I/O attempt.
func (p *poller) dispatch(ev readyEvent) int {
	w := p.waiters[ev.fd]
	if w == nil {
		return 0
	}
	woken := 0
	if ev.read && w.read != nil {
		t := w.read
		p.retract(ev.fd, DirRead)
		t.Unpark(nil, nil)
		woken++
	}
	if ev.write && w.write != nil {
		t := w.write
		p.retract(ev.fd, DirWrite)
		t.Unpark(nil, nil)
		woken++
	}
	return woken
}

// poll blocks until a registered descriptor is ready, the timeout
// elapses, or a wake arrives. A negative timeout blocks indefinitely.
// Returns the number of waits woken.
func (p *poller) poll(timeout time.Duration) (int, error) {
	events, err := p.pp.wait(timeout)
	if err != nil {
		return 0, err
	}
	ready := 0
	for _, ev := range events {
		if ev.wakeup {
			p.pp.drainWake()
			continue
		}
		ready += p.dispatch(ev)
	}
	return ready, nil
}

// WaitReadable parks the task until fd is ready for reading, an
// enclosing scope cancels, or the descriptor reports an error
// condition. The registration is cleanly retracted on cancellation.
func (t *Task) WaitReadable(fd int) error {
	t.Logf("WAIT fd=%d read", fd)
	return t.r.poller.waitFD(t, fd, DirRead)
}

// WaitWritable parks the task until fd is ready for writing.
func (t *Task) WaitWritable(fd int) error {
	t.Logf("WAIT fd=%d write", fd)
	return t.r.poller.waitFD(t, fd, DirWrite)
}
