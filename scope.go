package brood

import (
	"errors"
	"time"
)

// Scope is a nestable cancellation and deadline boundary. A scope is
// entered with Task.Scope and exited when the supplied function
// returns; the scopes entered by a task and its descendants form a
// tree rooted at the runtime's top scope.
//
// Cancelling a scope (explicitly or by deadline expiry) schedules
// delivery of a *Cancelled signal to every task inside the scope or
// an unshielded descendant, at each task's next checkpoint. The scope
// that produced a cancellation catches it on exit; Task.Scope then
// returns nil and CaughtCancel reports true.
//
// All Scope methods must be called on the control thread.
type Scope struct {
	r        *runner
	owner    *Task
	parent   *Scope
	children map[*Scope]struct{}
	tasks    map[*Task]struct{}
	deadline time.Time
	dlGen    uint64
	shield   bool
	canceled bool
	timedOut bool
	caught   bool
	exited   bool
}

// ScopeOption configures a scope at entry.
type ScopeOption func(*Scope)

// WithDeadline sets the absolute time at which the scope cancels
// itself. The zero time means no deadline.
func WithDeadline(at time.Time) ScopeOption {
	return func(s *Scope) { s.deadline = at }
}

// WithTimeout sets the scope's deadline relative to the current time.
func WithTimeout(d time.Duration) ScopeOption {
	return func(s *Scope) { s.deadline = s.r.clock.Now().Add(d) }
}

// WithShield marks the scope as shielded: cancellation originating
// from enclosing scopes does not reach tasks currently inside it.
// Cancellation of the shielded scope itself still works.
func WithShield() ScopeOption {
	return func(s *Scope) { s.shield = true }
}

// Scope enters a new cancel scope, runs fn inside it, and exits the
// scope when fn returns. If fn returns the *Cancelled produced by
// this scope, Scope swallows it and returns nil; inspect the scope's
// CaughtCancel to distinguish that case. Any other error, including a
// cancellation belonging to an enclosing scope, propagates.
//
// Scopes nest strictly: fn must not leak s for use after return, and
// suspending operations performed inside fn run under s.
func (t *Task) Scope(fn func(s *Scope) error, opts ...ScopeOption) error {
	s := &Scope{
		r:        t.r,
		owner:    t,
		parent:   t.scope,
		children: make(map[*Scope]struct{}),
		tasks:    make(map[*Task]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.parent.children[s] = struct{}{}
	delete(s.parent.tasks, t)
	s.tasks[t] = struct{}{}
	t.scope = s
	if !s.deadline.IsZero() {
		t.r.deadlines.push(s)
	}

	err := fn(s)

	if t.scope != s {
		panic("brood: cancel scopes exited out of order")
	}
	t.scope = s.parent
	delete(s.tasks, t)
	s.parent.tasks[t] = struct{}{}
	delete(s.parent.children, s)
	s.exited = true
	s.dlGen++ // invalidate any pending deadline entry

	var c *Cancelled
	if errors.As(err, &c) && c.scope == s {
		s.caught = true
		if t.raised == s {
			t.raised = nil
		}
		return nil
	}
	if t.raised == s {
		// The scope's own cancellation was resolved below, e.g. a
		// nursery folding sibling cancellations into an aggregate.
		t.raised = nil
	}
	if err == nil && t.raised != nil && t.raised.canceled && !t.raised.exited {
		panic("brood: cancellation signal for an enclosing scope was swallowed")
	}
	return err
}

// Cancel cancels the scope: every task inside it or an unshielded
// descendant receives a *Cancelled at its next checkpoint, and tasks
// blocked at an abortable wait are woken immediately. Cancelling an
// already-cancelled or exited scope is a no-op.
func (s *Scope) Cancel() {
	if s.canceled || s.exited {
		return
	}
	s.canceled = true
	s.r.log.Debug().Str("cause", s.cancelCause()).Log("scope cancelled")
	s.deliver()
}

func (s *Scope) cancelByDeadline() {
	if s.canceled || s.exited {
		return
	}
	s.timedOut = true
	s.Cancel()
}

func (s *Scope) cancelCause() string {
	if s.timedOut {
		return "deadline"
	}
	return "explicit"
}

// deliver walks the scope subtree, skipping shielded and exited
// branches, and attempts cancellation delivery to each task found.
func (s *Scope) deliver() {
	for t := range s.tasks {
		s.r.deliverCancel(t)
	}
	for c := range s.children {
		if c.shield || c.exited {
			continue
		}
		c.deliver()
	}
}

// Cancelled reports whether Cancel has been called (or the deadline
// passed) on this scope.
func (s *Scope) Cancelled() bool { return s.canceled }

// TimedOut reports whether the scope was cancelled by its deadline.
func (s *Scope) TimedOut() bool { return s.timedOut }

// CaughtCancel reports whether the scope caught its own cancellation
// signal on exit.
func (s *Scope) CaughtCancel() bool { return s.caught }

// Deadline returns the scope's current deadline; the zero time means
// none.
func (s *Scope) Deadline() time.Time { return s.deadline }

// SetDeadline replaces the scope's deadline. Passing the zero time
// removes it. Shortening a deadline takes effect on the next
// scheduler iteration.
func (s *Scope) SetDeadline(at time.Time) {
	if s.exited {
		panic("brood: SetDeadline on exited scope")
	}
	s.dlGen++
	s.deadline = at
	if !at.IsZero() && !s.canceled {
		s.r.deadlines.push(s)
	}
}

// Shielded reports whether the scope currently shields its tasks from
// enclosing cancellation.
func (s *Scope) Shielded() bool { return s.shield }

// SetShield changes the scope's shielding. Dropping a shield while an
// enclosing scope is cancelled re-delivers that cancellation to the
// tasks inside.
func (s *Scope) SetShield(on bool) {
	if s.exited {
		panic("brood: SetShield on exited scope")
	}
	if s.shield == on {
		return
	}
	s.shield = on
	if on {
		return
	}
	for a := s.parent; a != nil; a = a.parent {
		if a.canceled {
			s.deliver()
			return
		}
		if a.shield {
			return
		}
	}
}

// raiseCancel mints the cancellation signal for delivery to t,
// recording it as in flight so scope exits can detect a swallowed
// signal.
func (s *Scope) raiseCancel(t *Task) error {
	t.raised = s
	return &Cancelled{scope: s}
}
