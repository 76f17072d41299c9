package brood

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime/trace"
	"time"

	"github.com/gammazero/deque"
	"github.com/joeycumines/logiface"
)

const defaultWorkerIdleTimeout = 10 * time.Second

// Runtime holds the configuration for runs. A Runtime is reusable;
// each Run call drives an independent scheduler to completion.
type Runtime struct {
	cfg config
}

type config struct {
	clock       Clock
	seed        uint64
	seeded      bool
	log         *logiface.Logger[logiface.Event]
	hooks       Hooks
	idleTimeout time.Duration
}

// Option configures a Runtime.
type Option func(*config)

// WithClock replaces the scheduler's clock, typically with a
// MockClock in tests.
func WithClock(c Clock) Option {
	return func(cfg *config) { cfg.clock = c }
}

// WithSeed fixes the seed for the scheduler's deliberate shuffling of
// each runnable batch, making task interleaving reproducible. Without
// it every run draws a fresh seed to surface ordering assumptions.
func WithSeed(seed uint64) Option {
	return func(cfg *config) {
		cfg.seed = seed
		cfg.seeded = true
	}
}

// WithLogger attaches a structured logger for scheduler lifecycle
// events. A nil logger disables logging.
func WithLogger(log *logiface.Logger[logiface.Event]) Option {
	return func(cfg *config) { cfg.log = log }
}

// WithHooks attaches instrumentation callbacks.
func WithHooks(h Hooks) Option {
	return func(cfg *config) { cfg.hooks = h }
}

// WithWorkerIdleTimeout sets how long a blocking-call worker thread
// may sit idle before it is retired.
func WithWorkerIdleTimeout(d time.Duration) Option {
	return func(cfg *config) { cfg.idleTimeout = d }
}

// New creates a Runtime with the given options.
func New(opts ...Option) *Runtime {
	cfg := config{
		clock:       systemClock{},
		idleTimeout: defaultWorkerIdleTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Runtime{cfg: cfg}
}

// Run is shorthand for New(opts...).Run(ctx, fn).
func Run(ctx context.Context, fn TaskFunc, opts ...Option) error {
	return New(opts...).Run(ctx, fn)
}

// Run executes fn as the root task and drives the scheduler until no
// live tasks remain. It returns the root task's outcome, or a
// scheduler-level failure such as ErrNoProgress.
func (rt *Runtime) Run(ctx context.Context, fn TaskFunc) error {
	r, err := newRunner(rt.cfg, ctx)
	if err != nil {
		return err
	}
	return r.run(fn)
}

// runner is the per-run scheduler state. Everything here is owned by
// the control thread; foreign threads interact only through the entry
// queue and the thread cache's dispatch structures.
type runner struct {
	cfg       config
	ctx       context.Context
	clock     Clock
	rng       *rand.Rand
	log       *logiface.Logger[logiface.Event]
	hooks     Hooks
	runq      deque.Deque[*Task]
	deadlines deadlineIndex
	poller    *poller
	entryq    *entryQueue
	threads   *threadCache
	rootScope *Scope
	single    singleFlight
	locals    map[any]any
	tasks     map[*Task]struct{}
	live      int
	nextID    int64
	rootErr   error
}

func newRunner(cfg config, ctx context.Context) (*runner, error) {
	seed := cfg.seed
	if !cfg.seeded {
		seed = rand.Uint64()
	}
	r := &runner{
		cfg:   cfg,
		ctx:   ctx,
		clock: cfg.clock,
		rng:   rand.New(rand.NewPCG(seed, seed)),
		log:   cfg.log,
		hooks: cfg.hooks,
		tasks: make(map[*Task]struct{}),
	}
	r.rootScope = &Scope{
		r:        r,
		children: make(map[*Scope]struct{}),
		tasks:    make(map[*Task]struct{}),
	}
	p, err := newPoller()
	if err != nil {
		return nil, fmt.Errorf("brood: init poller: %w", err)
	}
	r.poller = p
	r.entryq = newEntryQueue(p.wake)
	r.threads = newThreadCache(r.entryq, cfg.idleTimeout)
	return r, nil
}

func (r *runner) run(fn TaskFunc) error {
	ctx, tracer := trace.NewTask(r.ctx, taskTraceTaskType)
	defer tracer.End()
	defer r.teardown()

	r.log.Debug().Log("run starting")

	root := r.newTask(ctx, "main", fn, nil, r.rootScope)
	r.reschedule(root, unpark{})

	for r.live > 0 {
		r.runBatch()
		if r.live == 0 {
			break
		}

		r.deadlines.expire(r.clock.Now())

		for _, cb := range r.entryq.drain() {
			cb()
		}

		timeout, blockForever := r.pollTimeout()
		if blockForever && r.poller.waiterCount() == 0 &&
			r.entryq.empty() && r.threads.inflight == 0 {
			r.log.Err().Log("no progress possible")
			return ErrNoProgress
		}

		if r.hooks.BeforeIOWait != nil {
			r.hooks.BeforeIOWait(timeout)
		}
		ready, err := r.poller.poll(timeout)
		if err != nil {
			return fmt.Errorf("brood: poll: %w", err)
		}
		if r.hooks.AfterIOWait != nil {
			r.hooks.AfterIOWait(ready)
		}

		for _, cb := range r.entryq.drain() {
			cb()
		}

		r.deadlines.expire(r.clock.Now())
	}

	r.log.Debug().Log("run finished")
	return r.rootErr
}

// runBatch snapshots the runnable queue, shuffles it with the seeded
// generator, and steps every task in it. Tasks made runnable while
// the batch executes wait for the next batch, which keeps any single
// task from starving the rest.
func (r *runner) runBatch() {
	n := r.runq.Len()
	if n == 0 {
		return
	}
	batch := make([]*Task, n)
	for i := range batch {
		batch[i] = r.runq.PopFront()
	}
	r.rng.Shuffle(n, func(i, j int) {
		batch[i], batch[j] = batch[j], batch[i]
	})
	if r.hooks.BeforeBatch != nil {
		r.hooks.BeforeBatch(n)
	}
	for _, t := range batch {
		r.step(t)
	}
	if r.hooks.AfterBatch != nil {
		r.hooks.AfterBatch()
	}
}

// pollTimeout bounds the poller wait by the earliest pending deadline
// and by pending runnable work. The second result reports that no
// deadline exists and the queue is empty, i.e. the poll would block
// indefinitely.
func (r *runner) pollTimeout() (time.Duration, bool) {
	if r.runq.Len() > 0 {
		return 0, false
	}
	if at, ok := r.deadlines.earliest(); ok {
		return r.clock.Until(at), false
	}
	return -1, true
}

func (r *runner) reschedule(t *Task, v unpark) {
	t.next = v
	r.runq.PushBack(t)
}

func (r *runner) step(t *Task) {
	v := t.next
	t.next = unpark{}
	if _, ok := t.resume(v); ok {
		return
	}
	r.taskExited(t)
}

func (r *runner) taskExited(t *Task) {
	t.done = true
	t.Log("EXIT")
	delete(t.scope.tasks, t)
	delete(r.tasks, t)
	r.live--
	if r.hooks.TaskExited != nil {
		r.hooks.TaskExited(t)
	}
	if t.nursery != nil {
		t.nursery.childExited(t)
		return
	}
	r.rootErr = t.outcome
}

// deliverCancel attempts to deliver a pending cancellation to a
// parked task by aborting its wait. Running and runnable tasks pick
// the cancellation up at their next checkpoint instead.
func (r *runner) deliverCancel(t *Task) {
	if t.done || !t.parked {
		return
	}
	s := t.cancelledScope()
	if s == nil {
		return
	}
	verdict := AbortSucceeded
	if t.abort != nil {
		verdict = t.abort(s)
	}
	if verdict != AbortSucceeded {
		return
	}
	t.parked = false
	t.abort = nil
	r.reschedule(t, unpark{err: s.raiseCancel(t)})
}

// teardown permanently stops the run: late Token.Submit calls fail
// with ErrRunFinished, coroutines that never completed (deadlock
// path) are torn down, and the poller's descriptors are closed.
// Callbacks that won the race against close still run here, so an
// accepted submission is never dropped.
func (r *runner) teardown() {
	for _, cb := range r.entryq.close() {
		cb()
	}
	for t := range r.tasks {
		t.cancelC()
	}
	r.poller.close()
}
