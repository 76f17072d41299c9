package brood

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScopeTimeout(t *testing.T) {
	r := require.New(t)

	start := time.Unix(1000, 0)
	clk := NewMockClock(start)

	var sc *Scope
	err := Run(context.Background(), func(_ context.Context, task *Task) error {
		return task.Scope(func(s *Scope) error {
			sc = s
			return task.Sleep(time.Minute)
		}, WithTimeout(time.Second))
	}, WithClock(clk))
	r.NoError(err)
	r.True(sc.Cancelled())
	r.True(sc.TimedOut())
	r.True(sc.CaughtCancel())
	r.Equal(start.Add(time.Second), clk.Now())
}

func TestScopeExplicitCancel(t *testing.T) {
	r := require.New(t)

	var sc *Scope
	var sleepErr error
	err := Run(context.Background(), func(_ context.Context, task *Task) error {
		return task.Scope(func(s *Scope) error {
			sc = s
			s.Cancel()
			sleepErr = task.Sleep(time.Hour)
			return sleepErr
		})
	})
	r.NoError(err)
	r.True(IsCancelled(sleepErr))
	r.True(sc.CaughtCancel())
	r.False(sc.TimedOut())
}

func TestScopeShield(t *testing.T) {
	r := require.New(t)

	clk := NewMockClock(time.Unix(1000, 0))

	var order []string
	err := Run(context.Background(), func(_ context.Context, task *Task) error {
		return task.Nursery(func(n *Nursery) error {
			n.Go("shielded", func(_ context.Context, task *Task) error {
				err := task.Scope(func(s *Scope) error {
					if err := task.Sleep(time.Second); err != nil {
						return err
					}
					order = append(order, "slept")
					return nil
				}, WithShield())
				if err != nil {
					return err
				}
				// The cancellation held off by the shield lands at the
				// first checkpoint after it exits.
				err = task.CheckCancel()
				if IsCancelled(err) {
					order = append(order, "cancelled")
				}
				return err
			})
			n.Cancel()
			return nil
		})
	}, WithClock(clk))
	r.NoError(err)
	r.Equal([]string{"slept", "cancelled"}, order)
}

func TestScopeSetShieldDrop(t *testing.T) {
	r := require.New(t)

	var sleepErr error
	err := Run(context.Background(), func(_ context.Context, task *Task) error {
		return task.Nursery(func(n *Nursery) error {
			n.Go("worker", func(_ context.Context, task *Task) error {
				serr := task.Scope(func(s *Scope) error {
					if err := task.Checkpoint(); err != nil {
						return err
					}
					r.True(s.Shielded())
					s.SetShield(false)
					// The enclosing nursery was cancelled while the
					// shield was up; dropping it re-delivers.
					sleepErr = task.Sleep(time.Hour)
					return sleepErr
				}, WithShield())
				return serr
			})
			n.Cancel()
			return nil
		})
	})
	r.NoError(err)
	r.True(IsCancelled(sleepErr))
}

func TestScopeNestedCancelOutermostWins(t *testing.T) {
	r := require.New(t)

	var outer, inner *Scope
	var innerErr error
	err := Run(context.Background(), func(_ context.Context, task *Task) error {
		return task.Scope(func(o *Scope) error {
			outer = o
			innerErr = task.Scope(func(i *Scope) error {
				inner = i
				o.Cancel()
				i.Cancel()
				return task.Checkpoint()
			})
			return innerErr
		})
	})
	r.NoError(err)
	// The signal belongs to the outermost cancelled scope, so the inner
	// scope propagates it and only the outer one catches.
	r.Error(innerErr)
	r.True(IsCancelled(innerErr))
	r.False(inner.CaughtCancel())
	r.True(outer.CaughtCancel())
}

func TestSwallowedCancellationPanics(t *testing.T) {
	r := require.New(t)

	r.Panics(func() {
		_ = Run(context.Background(), func(_ context.Context, task *Task) error {
			return task.Scope(func(outer *Scope) error {
				return task.Scope(func(inner *Scope) error {
					outer.Cancel()
					_ = task.CheckCancel() // drop the signal on the floor
					return nil
				})
			})
		})
	})
}

func TestScopeSetDeadlineExtends(t *testing.T) {
	r := require.New(t)

	start := time.Unix(1000, 0)
	clk := NewMockClock(start)

	var sc *Scope
	err := Run(context.Background(), func(_ context.Context, task *Task) error {
		return task.Scope(func(s *Scope) error {
			sc = s
			s.SetDeadline(start.Add(10 * time.Second))
			return task.Sleep(time.Minute)
		}, WithTimeout(time.Second))
	}, WithClock(clk))
	r.NoError(err)
	r.True(sc.TimedOut())
	r.Equal(start.Add(10*time.Second), clk.Now())
}

func TestScopeDeadlineRemoved(t *testing.T) {
	r := require.New(t)

	start := time.Unix(1000, 0)
	clk := NewMockClock(start)

	err := Run(context.Background(), func(_ context.Context, task *Task) error {
		return task.Scope(func(s *Scope) error {
			r.Equal(start.Add(time.Second), s.Deadline())
			s.SetDeadline(time.Time{})
			return task.Sleep(5 * time.Second)
		}, WithTimeout(time.Second))
	}, WithClock(clk))
	r.NoError(err)
	r.Equal(start.Add(5*time.Second), clk.Now())
}

func TestSleepCancelledByEnclosingScope(t *testing.T) {
	r := require.New(t)

	clk := NewMockClock(time.Unix(1000, 0))

	var sleepErr error
	err := Run(context.Background(), func(_ context.Context, task *Task) error {
		return task.Nursery(func(n *Nursery) error {
			n.Go("sleeper", func(_ context.Context, task *Task) error {
				sleepErr = task.Sleep(time.Hour)
				return sleepErr
			})
			n.Cancel()
			return nil
		})
	}, WithClock(clk))
	r.NoError(err)
	r.True(IsCancelled(sleepErr))
}
