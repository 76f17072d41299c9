package brood

import "time"

// Hooks are optional scheduler instrumentation callbacks, invoked on
// the control thread. Tests use them for deterministic clock and
// scheduling-order control; leave fields nil to skip.
type Hooks struct {
	// BeforeBatch runs before a batch of runnable tasks executes,
	// with the batch size.
	BeforeBatch func(runnable int)

	// AfterBatch runs after every task in a batch has been stepped.
	AfterBatch func()

	// BeforeIOWait runs before the poller blocks. A negative timeout
	// means the poll would block indefinitely.
	BeforeIOWait func(timeout time.Duration)

	// AfterIOWait runs after the poller returns, with the number of
	// ready registrations it woke.
	AfterIOWait func(ready int)

	// TaskSpawned runs when a task is created.
	TaskSpawned func(t *Task)

	// TaskExited runs when a task produces its outcome.
	TaskExited func(t *Task)
}
