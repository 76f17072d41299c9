package brood

// singleFlightCall is one in-flight execution that duplicate callers
// share.
type singleFlightCall struct {
	wg   WaitGroup
	val  any
	err  error
	dups int
}

// singleFlight deduplicates concurrent calls with the same key. Tasks
// run on one control thread, so no locking is needed; duplicates park
// on the call's WaitGroup until the first caller finishes.
type singleFlight struct {
	m map[any]*singleFlightCall
}

func (g *singleFlight) do(t *Task, key any, fn func() (any, error)) (v any, err error, shared bool) {
	if g.m == nil {
		g.m = make(map[any]*singleFlightCall)
	}

	if c, ok := g.m[key]; ok {
		c.dups++
		if werr := c.wg.Wait(t); werr != nil {
			return nil, werr, false
		}
		return c.val, c.err, true
	}

	c := new(singleFlightCall)
	c.wg.Add(1)
	g.m[key] = c

	g.doCall(c, key, fn)
	return c.val, c.err, c.dups > 0
}

// doCall runs fn and records its result, removing the in-flight entry
// so later calls start fresh. fn may suspend; duplicates arriving
// while it is suspended still share this call.
func (g *singleFlight) doCall(c *singleFlightCall, key any, fn func() (any, error)) {
	defer func() {
		c.wg.Done()
		if g.m[key] == c {
			delete(g.m, key)
		}
	}()

	c.val, c.err = fn()
}

// Do executes fn, deduplicating concurrent calls with the same key
// within the run: while one task's fn is in flight, other tasks
// calling Do with an equal key park and share its result. The shared
// result reports whether the value came from another caller's
// execution. A duplicate whose wait is cancelled returns the
// cancellation signal and no value.
func (t *Task) Do(key any, fn func() (any, error)) (any, error, bool) {
	return t.r.single.do(t, key, fn)
}
