package brood

import "github.com/gammazero/deque"

// Mutex provides mutual exclusion between tasks. Only one task holds
// the lock at a time; others park until it is released. Ownership is
// handed directly to the longest waiter on Unlock, so the lock is
// fair and a task resumed from Lock holds it unconditionally.
//
// The zero value is an unlocked mutex. A Mutex belongs to a single
// run; it is not safe for use from foreign threads.
type Mutex struct {
	noCopy  noCopy
	owner   *Task
	waiters deque.Deque[*Task]
}

// Lock acquires the mutex for the given task, parking it until the
// mutex is available. A cancelled wait returns the cancellation
// signal without the lock.
func (m *Mutex) Lock(t *Task) error {
	if err := t.CheckCancel(); err != nil {
		return err
	}
	if m.owner == nil {
		m.owner = t
		return nil
	}

	m.waiters.PushBack(t)
	_, err := t.Park(func(*Scope) Abort {
		i := m.waiters.Index(func(q *Task) bool { return q == t })
		if i < 0 {
			return AbortFailed
		}
		m.waiters.Remove(i)
		return AbortSucceeded
	})
	// Ownership was assigned by Unlock before the wake, so success
	// needs no further state change here.
	return err
}

// Unlock releases the mutex, handing it to the next waiter if one
// exists.
func (m *Mutex) Unlock() {
	if m.owner == nil {
		panic("brood: Unlock of an unlocked Mutex")
	}
	if m.waiters.Len() == 0 {
		m.owner = nil
		return
	}
	next := m.waiters.PopFront()
	m.owner = next
	next.Unpark(nil, nil)
}

// WaitCount returns the number of tasks waiting to acquire the mutex.
func (m *Mutex) WaitCount() int {
	return m.waiters.Len()
}
