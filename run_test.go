package brood

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunRootOutcome(t *testing.T) {
	r := require.New(t)

	boom := errors.New("UH OH")
	err := Run(context.Background(), func(_ context.Context, task *Task) error {
		return boom
	})
	r.Equal(boom, err)

	r.NoError(Run(context.Background(), func(_ context.Context, task *Task) error {
		return nil
	}))
}

func TestCheckpointInterleaving(t *testing.T) {
	r := require.New(t)

	var order []string
	err := Run(context.Background(), func(_ context.Context, task *Task) error {
		return task.Nursery(func(n *Nursery) error {
			for _, name := range []string{"a", "b"} {
				name := name
				n.Go(name, func(_ context.Context, task *Task) error {
					for i := 0; i < 3; i++ {
						order = append(order, name)
						if err := task.Checkpoint(); err != nil {
							return err
						}
					}
					return nil
				})
			}
			return nil
		})
	})
	r.NoError(err)
	r.Len(order, 6)

	// Both tasks are runnable in every batch, so the log pairs up: one
	// entry from each task per batch, in shuffled order.
	for i := 0; i < 6; i += 2 {
		pair := order[i : i+2]
		r.ElementsMatch([]string{"a", "b"}, pair)
	}
}

func TestSeedReproducesOrder(t *testing.T) {
	r := require.New(t)

	runOnce := func(seed uint64) []string {
		var order []string
		err := Run(context.Background(), func(_ context.Context, task *Task) error {
			return task.Nursery(func(n *Nursery) error {
				for i := 0; i < 4; i++ {
					name := fmt.Sprintf("task-%d", i)
					n.Go(name, func(_ context.Context, task *Task) error {
						for j := 0; j < 3; j++ {
							order = append(order, name)
							if err := task.Checkpoint(); err != nil {
								return err
							}
						}
						return nil
					})
				}
				return nil
			})
		}, WithSeed(seed))
		r.NoError(err)
		return order
	}

	r.Equal(runOnce(42), runOnce(42))
}

func TestDeadlockDetected(t *testing.T) {
	r := require.New(t)

	err := Run(context.Background(), func(_ context.Context, task *Task) error {
		_, err := task.Park(nil) // nobody will ever unpark this
		return err
	})
	r.ErrorIs(err, ErrNoProgress)
}

func TestSleepMockClock(t *testing.T) {
	r := require.New(t)

	start := time.Unix(1000, 0)
	clk := NewMockClock(start)

	began := time.Now()
	err := Run(context.Background(), func(_ context.Context, task *Task) error {
		return task.Sleep(5 * time.Second)
	}, WithClock(clk))
	r.NoError(err)
	r.Equal(start.Add(5*time.Second), clk.Now())
	r.Less(time.Since(began), time.Second)
}

func TestHooks(t *testing.T) {
	r := require.New(t)

	batches := 0
	spawned := 0
	exited := 0
	err := Run(context.Background(), func(_ context.Context, task *Task) error {
		return task.Nursery(func(n *Nursery) error {
			for i := 0; i < 3; i++ {
				n.Go(fmt.Sprintf("child-%d", i), func(_ context.Context, task *Task) error {
					return task.Checkpoint()
				})
			}
			return nil
		})
	}, WithHooks(Hooks{
		BeforeBatch: func(runnable int) {
			r.Positive(runnable)
			batches++
		},
		TaskSpawned: func(*Task) { spawned++ },
		TaskExited:  func(*Task) { exited++ },
	}))
	r.NoError(err)
	r.Positive(batches)
	r.Equal(4, spawned) // root plus three children
	r.Equal(4, exited)
}

func TestPanicPropagates(t *testing.T) {
	r := require.New(t)

	r.Panics(func() {
		_ = Run(context.Background(), func(_ context.Context, task *Task) error {
			panic("UH OH")
		})
	})
}

func TestTaskFromContext(t *testing.T) {
	r := require.New(t)

	err := Run(context.Background(), func(ctx context.Context, task *Task) error {
		found, ok := TaskFromContext(ctx)
		r.True(ok)
		r.Same(task, found)
		r.Same(task, MustTaskFromContext(ctx))
		r.Equal("main", task.Name())
		return nil
	})
	r.NoError(err)

	_, ok := TaskFromContext(context.Background())
	r.False(ok)
	r.Panics(func() { MustTaskFromContext(context.Background()) })
}
