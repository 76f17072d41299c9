package brood

import (
	"errors"
)

// Nursery is the structured-concurrency container: children spawned
// with Go belong to the nursery, and the nursery block only returns
// once every child has produced an outcome.
//
// Failure policy: the first child (or body) failure cancels the
// nursery's scope, so siblings receive cancellation at their next
// checkpoint, but children already completing may still fail and all
// failures are retained. On close, zero failures return nil, exactly
// one is returned as-is, and several combine into an *AggregateError.
type Nursery struct {
	owner       *Task
	scope       *Scope
	children    int
	closed      bool
	waiting     bool
	failures    []error
	outerCancel *Cancelled
}

// Nursery opens a nursery, runs fn as its body on the owning task,
// then waits for all spawned children before returning the combined
// outcome. A failure returned by the body counts as one more leaf
// alongside child failures.
func (t *Task) Nursery(fn func(n *Nursery) error) error {
	return t.Scope(func(s *Scope) error {
		n := &Nursery{owner: t, scope: s}
		n.collect(fn(n))
		n.closed = true

		for n.children > 0 {
			n.waiting = true
			// Children cannot be abandoned: cancellation reaches them
			// through the nursery scope while the owner keeps waiting.
			_, _ = t.Park(func(*Scope) Abort { return AbortFailed })
			n.waiting = false
		}

		// Cancellation that landed while waiting still has to
		// surface, e.g. an enclosing scope cancelled after the last
		// child exited.
		if err := t.CheckCancel(); err != nil {
			n.collect(err)
		}

		if err := Aggregate(n.failures...); err != nil {
			return err
		}
		if n.outerCancel != nil {
			return n.outerCancel
		}
		if s.canceled {
			return s.raiseCancel(t)
		}
		return nil
	})
}

// Go spawns a child task running fn. The child's cancel-scope stack
// starts at the nursery's scope. Spawning after the nursery body has
// returned is a usage error.
func (n *Nursery) Go(name string, fn TaskFunc) {
	if n.closed {
		panic("brood: Nursery.Go after the nursery block returned")
	}
	n.children++
	child := n.owner.r.newTask(n.owner.ctx, name, fn, n, n.scope)
	n.owner.r.reschedule(child, unpark{})
}

// Cancel cancels the nursery's scope, delivering cancellation to the
// body and every child at their next checkpoints.
func (n *Nursery) Cancel() { n.scope.Cancel() }

// Scope returns the nursery's cancel scope.
func (n *Nursery) Scope() *Scope { return n.scope }

// collect files one outcome from the body or a child: failures are
// retained (the first one cancels the nursery), the nursery scope's
// own cancellation is absorbed, and a cancellation belonging to an
// enclosing scope is re-raised after close.
func (n *Nursery) collect(err error) {
	if err == nil {
		return
	}
	var c *Cancelled
	if errors.As(err, &c) {
		if c.scope == n.scope {
			return
		}
		if n.outerCancel == nil {
			n.outerCancel = c
		}
		return
	}
	n.failures = append(n.failures, err)
	n.scope.Cancel()
}

// childExited runs on the control thread when a child task finishes.
func (n *Nursery) childExited(child *Task) {
	n.children--
	n.collect(child.outcome)
	if n.closed && n.children == 0 && n.waiting {
		n.owner.Unpark(nil, nil)
	}
}
