package brood

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenSubmit(t *testing.T) {
	r := require.New(t)

	const threads, per = 4, 25
	total := 0
	err := Run(context.Background(), func(_ context.Context, task *Task) error {
		tok := task.Token()
		for i := 0; i < threads; i++ {
			go func() {
				for j := 0; j < per; j++ {
					_ = tok.Submit(func() {
						// Runs on the control thread, so plain
						// increments are safe.
						total++
						if total == threads*per {
							task.Unpark(nil, nil)
						}
					})
				}
			}()
		}
		_, err := task.Park(nil) // woken by the final callback
		return err
	})
	r.NoError(err)
	r.Equal(threads*per, total)
}

func TestTokenSubmitOrdering(t *testing.T) {
	r := require.New(t)

	var got []int
	err := Run(context.Background(), func(_ context.Context, task *Task) error {
		tok := task.Token()
		go func() {
			for i := 0; i < 50; i++ {
				i := i
				_ = tok.Submit(func() {
					got = append(got, i)
					if i == 49 {
						task.Unpark(nil, nil)
					}
				})
			}
		}()
		_, err := task.Park(nil)
		return err
	})
	r.NoError(err)

	// Callbacks from a single thread run in submission order.
	r.Len(got, 50)
	for i, v := range got {
		r.Equal(i, v)
	}
}

func TestTokenSubmitShutdownRace(t *testing.T) {
	r := require.New(t)

	// Hammer the window between the run loop exiting and teardown
	// rejecting submissions: every accepted callback must execute,
	// even one accepted while the run is shutting down.
	for i := 0; i < 100; i++ {
		var accepted, executed atomic.Int64
		ready := make(chan *Token, 1)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok := <-ready
			for tok.Submit(func() { executed.Add(1) }) == nil {
				accepted.Add(1)
			}
		}()

		err := Run(context.Background(), func(_ context.Context, task *Task) error {
			ready <- task.Token()
			return task.Checkpoint()
		})
		r.NoError(err)
		wg.Wait()
		r.Equal(accepted.Load(), executed.Load())
	}
}

func TestTokenSubmitAfterRunFinished(t *testing.T) {
	r := require.New(t)

	var tok *Token
	err := Run(context.Background(), func(_ context.Context, task *Task) error {
		tok = task.Token()
		return nil
	})
	r.NoError(err)

	ran := false
	r.ErrorIs(tok.Submit(func() { ran = true }), ErrRunFinished)
	r.False(ran)
}
