package brood

// RunVar is run-scoped storage: a value bound inside one Run call is
// visible to every task of that run and to no other run, so package
// level RunVars can carry per-run state without leaking between
// concurrent or sequential runs. The zero state of a RunVar in a run
// is "unset" unless a default was provided.
//
// Like all scheduler state, the backing storage belongs to the control
// thread; Get and Set must be called from task code or entry-queue
// callbacks.
type RunVar[T any] struct {
	name       string
	def        T
	hasDefault bool
}

// NewRunVar declares a run-local variable. The name is for diagnostics
// only; identity is the returned pointer.
func NewRunVar[T any](name string) *RunVar[T] {
	return &RunVar[T]{name: name}
}

// NewRunVarWithDefault declares a run-local variable whose Get falls
// back to def in runs where no value was set.
func NewRunVarWithDefault[T any](name string, def T) *RunVar[T] {
	return &RunVar[T]{name: name, def: def, hasDefault: true}
}

func (v *RunVar[T]) String() string { return "<RunVar " + v.name + ">" }

// Get returns the value bound in the current run, or the declared
// default. The second result reports whether either was available.
func (v *RunVar[T]) Get(t *Task) (T, bool) {
	if val, ok := t.r.locals[v]; ok {
		return val.(T), true
	}
	if v.hasDefault {
		return v.def, true
	}
	var zero T
	return zero, false
}

// Set binds val for the remainder of the run and returns a restore
// function that reinstates the previous state, including "unset".
// Restores must nest like scopes: innermost first. Calling a restore
// twice is a usage error.
func (v *RunVar[T]) Set(t *Task, val T) (restore func()) {
	r := t.r
	if r.locals == nil {
		r.locals = make(map[any]any)
	}
	prev, had := r.locals[v]
	r.locals[v] = val
	restored := false
	return func() {
		if restored {
			panic("brood: RunVar restore already used")
		}
		restored = true
		if had {
			r.locals[v] = prev
			return
		}
		delete(r.locals, v)
	}
}
