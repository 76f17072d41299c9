package brood

// WaitGroup waits for a collection of tasks to finish. Tasks call
// Add(1) when work starts and Done when it finishes; Wait parks the
// caller until the counter reaches zero.
//
// The zero value is ready to use.
type WaitGroup struct {
	noCopy noCopy
	n      int32
	sema   sema
}

// Add adds delta to the counter. When the counter reaches zero every
// waiting task is resumed. A negative counter panics.
func (wg *WaitGroup) Add(delta int) {
	wg.n += int32(delta)

	if wg.n < 0 {
		panic("brood: negative WaitGroup counter")
	}

	if delta > 0 && wg.n == int32(delta) && wg.sema.waitCount() != 0 {
		panic("brood: WaitGroup misuse: Add called concurrently with Wait")
	}

	if wg.n > 0 {
		return
	}

	for wg.sema.waitCount() != 0 {
		wg.sema.release()
	}
}

// Done decrements the counter by one.
func (wg *WaitGroup) Done() {
	wg.Add(-1)
}

// Wait parks the calling task until the counter is zero. A cancelled
// wait returns the cancellation signal; the group is unaffected.
func (wg *WaitGroup) Wait(t *Task) error {
	if wg.n == 0 {
		return nil
	}
	return wg.sema.acquire(t)
}
