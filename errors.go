package brood

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoProgress is reported when the scheduler has no runnable
	// tasks, no pending deadlines, no registered I/O interest and no
	// in-flight blocking calls. Blocking at that point could never
	// end, so the run terminates with this failure instead.
	ErrNoProgress = errors.New("brood: deadlock detected: no task can ever run again")

	// ErrRunFinished is returned by Token.Submit after the runtime
	// has permanently stopped.
	ErrRunFinished = errors.New("brood: run already finished")

	// ErrBusy is returned when a second task registers interest in a
	// file descriptor and direction that already has a waiter.
	ErrBusy = errors.New("brood: another task is already waiting on this resource")
)

// Cancelled is the cancellation signal delivered at checkpoints when
// an enclosing scope has been cancelled or its deadline has passed.
// It must be allowed to propagate; the scope that produced it catches
// it automatically on exit. Swallowing it elsewhere is a usage error
// that the scope machinery reports where it can detect it.
type Cancelled struct {
	scope *Scope
}

func (c *Cancelled) Error() string { return "brood: task cancelled" }

// IsCancelled reports whether err is (or wraps) a cancellation
// signal.
func IsCancelled(err error) bool {
	var c *Cancelled
	return errors.As(err, &c)
}

// AggregateError combines multiple independent failures raised by
// concurrently-failing tasks. Errors holds the leaves in collection
// order; nested aggregates are flattened one level at construction so
// every leaf remains individually inspectable.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d tasks failed:", len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("\n\t")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap returns the contained errors, enabling errors.Is and
// errors.As to match against every leaf.
func (e *AggregateError) Unwrap() []error { return e.Errors }

// Aggregate collapses a collection of failures into a single error
// value. Nil entries are dropped. Zero failures yield nil, exactly
// one yields that failure unchanged, and more than one yields an
// *AggregateError. An *AggregateError passed in contributes its
// leaves rather than nesting, so flattening is lossless.
func Aggregate(errs ...error) error {
	var leaves []error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if agg, ok := err.(*AggregateError); ok {
			leaves = append(leaves, agg.Errors...)
			continue
		}
		leaves = append(leaves, err)
	}
	switch len(leaves) {
	case 0:
		return nil
	case 1:
		return leaves[0]
	}
	return &AggregateError{Errors: leaves}
}
