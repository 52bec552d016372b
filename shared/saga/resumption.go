package saga

import (
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"
)

// outcome is what a suspended step receives: a resume payload or a failure
type outcome struct {
	payload State
	err     error
}

// waiter is a single-assignment future. Only the first fulfill wins; every later
// attempt (duplicate delivery, timeout racing a response) is rejected.
type waiter struct {
	step      string
	done      chan outcome
	fulfilled atomic.Bool
}

func newWaiter(step string) *waiter {
	return &waiter{
		step: step,
		done: make(chan outcome, 1),
	}
}

func (w *waiter) fulfill(o outcome) bool {
	if !w.fulfilled.CompareAndSwap(false, true) {
		return false
	}
	w.done <- o
	return true
}

// resumptions correlates saga IDs with the step currently suspended on them
type resumptions struct {
	mu      deadlock.Mutex
	waiters map[string]*waiter
}

func newResumptions() *resumptions {
	return &resumptions{waiters: make(map[string]*waiter)}
}

// register installs a waiter for sagaID. It must happen before the step dispatches its
// external request so that a fast response always finds it.
func (r *resumptions) register(sagaID, step string) *waiter {
	w := newWaiter(step)

	r.mu.Lock()
	r.waiters[sagaID] = w
	r.mu.Unlock()

	return w
}

// remove drops the waiter if it is still the one registered for sagaID
func (r *resumptions) remove(sagaID string, w *waiter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.waiters[sagaID] == w {
		delete(r.waiters, sagaID)
	}
}

// fulfill delivers o to the waiter of sagaID. It reports false when nothing is
// suspended on that ID or when another delivery already won.
func (r *resumptions) fulfill(sagaID string, o outcome) bool {
	r.mu.Lock()
	w, ok := r.waiters[sagaID]
	r.mu.Unlock()

	if !ok {
		return false
	}
	return w.fulfill(o)
}

func (r *resumptions) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
