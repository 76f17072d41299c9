package brood

import "github.com/gammazero/deque"

// sema is a counting semaphore for tasks. It keeps a count of
// available resources and a FIFO queue of waiting tasks; release hands
// a resource directly to the longest-waiting task so a late arrival
// cannot barge past the queue.
type sema struct {
	noCopy noCopy
	v      uint32
	w      deque.Deque[*Task]
}

// acquire takes one resource, parking the task until release provides
// one. A cancelled wait leaves the queue cleanly and returns the
// cancellation signal.
func (s *sema) acquire(t *Task) error {
	if err := t.CheckCancel(); err != nil {
		return err
	}
	if s.v > 0 {
		s.v--
		return nil
	}

	s.w.PushBack(t)
	_, err := t.Park(func(*Scope) Abort {
		i := s.w.Index(func(q *Task) bool { return q == t })
		if i < 0 {
			return AbortFailed
		}
		s.w.Remove(i)
		return AbortSucceeded
	})
	return err
}

// release returns one resource. If a task is waiting it receives the
// resource directly; otherwise the count grows.
func (s *sema) release() {
	if s.w.Len() == 0 {
		s.v++
		return
	}
	s.w.PopFront().Unpark(nil, nil)
}

func (s *sema) waitCount() int { return s.w.Len() }
