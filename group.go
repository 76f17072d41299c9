package brood

import (
	"context"
	"fmt"
)

// All runs the given functions as concurrent child tasks and waits
// for every one of them. Failures follow nursery semantics: a single
// failure is returned as-is after cancelling the rest, multiple
// failures are combined into an *AggregateError.
func All(t *Task, fns ...TaskFunc) error {
	if len(fns) == 0 {
		return t.CheckCancel()
	}
	return t.Nursery(func(n *Nursery) error {
		for i, fn := range fns {
			n.Go(fmt.Sprintf("all-%d", i), fn)
		}
		return nil
	})
}

// Race runs the given functions as concurrent child tasks; the first
// to finish wins, the rest are cancelled, and the winner's outcome is
// returned. Outcomes of cancelled losers are discarded, but a loser
// that fails for its own reasons before the cancellation lands still
// surfaces through nursery aggregation.
func Race(t *Task, fns ...TaskFunc) error {
	if len(fns) == 0 {
		return t.CheckCancel()
	}
	var (
		decided bool
		outcome error
	)
	err := t.Nursery(func(n *Nursery) error {
		for i, fn := range fns {
			fn := fn
			n.Go(fmt.Sprintf("race-%d", i), func(ctx context.Context, t *Task) error {
				err := fn(ctx, t)
				if decided {
					return err
				}
				decided = true
				outcome = err
				n.Cancel()
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	return outcome
}
