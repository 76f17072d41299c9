// Package brood is a cooperative concurrency runtime. It multiplexes
// many logical tasks onto a single control thread, delivers structured
// cancellation through nestable scopes, waits for I/O readiness with
// the platform poller, and bridges blocking calls and foreign threads
// back into the scheduler.
//
// Key components:
//
//   - Task: a coroutine-like unit of work. Tasks suspend only at
//     checkpoints (I/O waits, sleeps, explicit yields, blocking-call
//     waits) and otherwise run atomically with respect to each other.
//
//   - Scope: a nestable cancellation and deadline boundary. Every
//     checkpoint consults the enclosing scopes; cancellation surfaces
//     as a *Cancelled error caught by the scope that produced it.
//
//   - Nursery: the structured-concurrency container. A nursery only
//     closes once every child has reported an outcome, and multiple
//     independent failures combine into an *AggregateError.
//
//   - Token: a cross-thread handle for injecting callbacks into the
//     control thread, waking a blocked poll promptly.
//
//   - RunBlocking: runs a blocking function on a cached worker thread
//     and parks the calling task until the result comes back through
//     the entry queue.
//
//   - Synchronization primitives: Mutex, WaitGroup and single-flight
//     deduplication built on the scheduler's parking mechanism.
//
//   - RunVar: run-local storage shared by every task of one Run call
//     and isolated between runs.
package brood
