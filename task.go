package brood

import (
	"context"
	"fmt"
	"runtime/trace"
	"strings"
	"time"

	"github.com/webriots/coro"
)

const (
	taskTraceTaskType   = "brood-run"
	taskTraceRegionType = "brood-task"
	taskTraceCategory   = "brood"
)

// TaskFunc is the body of a task. The context carries the task and is
// threaded through every scheduler-facing call; returning a non-nil
// error is the task's failure outcome.
type TaskFunc func(ctx context.Context, t *Task) error

// unpark is the value delivered to a suspended task when it resumes:
// either the wait's result or the cancellation that replaced it.
type unpark struct {
	val any
	err error
}

// Task is one schedulable unit of suspended/resumed logic. A task is
// owned by exactly one nursery (the root task by the runtime itself),
// runs only on the control thread, and suspends only at checkpoints.
type Task struct {
	r       *runner
	ctx     context.Context
	name    string
	id      int64
	nursery *Nursery
	scope   *Scope
	suspend func() unpark
	resume  func(unpark) (struct{}, bool)
	cancelC func()
	abort   AbortFunc
	next    unpark
	raised  *Scope
	outcome error
	parked  bool
	done    bool
}

// Abort is an abort handler's verdict when cancellation reaches a
// parked task.
type Abort int

const (
	// AbortSucceeded means the wait was cleanly retracted; the task
	// resumes immediately with the cancellation signal.
	AbortSucceeded Abort = iota
	// AbortFailed means the wait cannot be interrupted; the task
	// stays parked and picks the cancellation up later.
	AbortFailed
)

// AbortFunc is called on the control thread when cancellation reaches
// a parked task. It must retract whatever registration the wait made
// (poller interest, waiter-queue entry) before returning
// AbortSucceeded.
type AbortFunc func(*Scope) Abort

func (r *runner) newTask(ctx context.Context, name string, fn TaskFunc, n *Nursery, base *Scope) *Task {
	t := &Task{
		r:       r,
		name:    name,
		id:      r.nextID,
		nursery: n,
		scope:   base,
	}
	r.nextID++
	base.tasks[t] = struct{}{}
	t.ctx = withTaskContext(ctx, t)

	resume, cancel := coro.New(
		func(yield func(struct{}) unpark, suspend func() unpark) (z struct{}) {
			region := trace.StartRegion(t.ctx, taskTraceRegionType)
			defer region.End()
			t.suspend = suspend
			t.outcome = fn(t.ctx, t)
			return
		},
	)

	t.resume = resume
	t.cancelC = cancel
	r.tasks[t] = struct{}{}
	r.live++
	if r.hooks.TaskSpawned != nil {
		r.hooks.TaskSpawned(t)
	}
	t.Log("SPAWN")
	return t
}

// Name returns the name given at spawn.
func (t *Task) Name() string { return t.name }

// Context returns the task's context. It carries the task itself (see
// TaskFromContext) and the context passed to Run.
func (t *Task) Context() context.Context { return t.ctx }

// cancelledScope walks the task's scope stack from the inside out and
// returns the outermost cancelled scope whose signal can reach the
// task, or nil. A shielded scope stops the walk after considering
// itself, so its own cancellation still fires.
func (t *Task) cancelledScope() *Scope {
	var found *Scope
	for s := t.scope; s != nil; s = s.parent {
		if s.canceled {
			found = s
		}
		if s.shield {
			break
		}
	}
	return found
}

// CheckCancel is the first half of a checkpoint: it raises the
// pending cancellation signal, if any, without yielding. Use it
// before waits that must not introduce an extra schedule point.
func (t *Task) CheckCancel() error {
	if s := t.cancelledScope(); s != nil {
		return s.raiseCancel(t)
	}
	return nil
}

// Checkpoint is a full checkpoint: it raises any pending cancellation
// and otherwise yields to the scheduler exactly once, so a loop of
// pure computation that calls Checkpoint periodically cannot starve
// other tasks.
func (t *Task) Checkpoint() error {
	if err := t.CheckCancel(); err != nil {
		return err
	}
	t.Log("YIELD")
	t.r.reschedule(t, unpark{})
	t.suspend()
	return t.CheckCancel()
}

// Park suspends the task until another component calls Unpark, or
// until cancellation aborts the wait. The abort handler is invoked
// when cancellation reaches the parked task; a nil handler always
// succeeds. If cancellation is already pending, the wait is aborted
// before suspending.
//
// Park is the low-level primitive external synchronization
// collaborators build on; most code wants the higher-level waits.
func (t *Task) Park(abort AbortFunc) (any, error) {
	if s := t.cancelledScope(); s != nil {
		verdict := AbortSucceeded
		if abort != nil {
			verdict = abort(s)
		}
		if verdict == AbortSucceeded {
			return nil, s.raiseCancel(t)
		}
	}
	t.parked = true
	t.abort = abort
	t.Log("PARK")
	v := t.suspend()
	return v.val, v.err
}

// Unpark resumes a task parked by Park, delivering val and err as the
// wait's result. Must be called on the control thread; the task
// actually resumes in a subsequent scheduler batch.
func (t *Task) Unpark(val any, err error) {
	if !t.parked {
		panic("brood: Unpark of a task that is not parked")
	}
	t.parked = false
	t.abort = nil
	t.r.reschedule(t, unpark{val: val, err: err})
}

// Sleep suspends the task for at least d. It returns early with the
// cancellation signal if an enclosing scope cancels.
func (t *Task) Sleep(d time.Duration) error {
	return t.SleepUntil(t.r.clock.Now().Add(d))
}

// SleepUntil suspends the task until the given absolute time.
func (t *Task) SleepUntil(at time.Time) error {
	return t.Scope(func(s *Scope) error {
		_, err := t.Park(nil)
		return err
	}, WithDeadline(at))
}

// Log emits a trace log entry for the task when runtime tracing is
// enabled.
func (t *Task) Log(msg string) {
	if trace.IsEnabled() {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s#%d %s", t.name, t.id, msg)
		trace.Log(t.ctx, taskTraceCategory, sb.String())
	}
}

// Logf is like Log with formatting.
func (t *Task) Logf(format string, args ...any) {
	if trace.IsEnabled() {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s#%d ", t.name, t.id)
		fmt.Fprintf(&sb, format, args...)
		trace.Log(t.ctx, taskTraceCategory, sb.String())
	}
}
