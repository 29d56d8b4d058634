package phasebarrier

import (
	"sync"
	"time"
)

// event is a level-triggered, manually-reset event. Waiters that arrive
// while the event is set pass straight through; Set releases every current
// waiter at once. Set and Reset are idempotent, which the barrier relies on
// when membership changes race with phase completion.
type event struct {
	mu  sync.Mutex
	ch  chan struct{} // closed while set, replaced on Reset
	set bool
}

func newEvent(initiallySet bool) *event {
	e := &event{ch: make(chan struct{})}
	if initiallySet {
		e.set = true
		close(e.ch)
	}
	return e
}

// Set signals the event, releasing all current and future waiters until the
// next Reset. No-op if already set.
func (e *event) Set() {
	e.mu.Lock()
	if !e.set {
		e.set = true
		close(e.ch)
	}
	e.mu.Unlock()
}

// Reset returns the event to the unsignaled state. No-op if already clear.
//
// Waiters that sampled the broadcast channel before a Set+Reset pair still
// observe the closed channel, and therefore the Set. That is the level
// trigger the barrier needs: an event only transitions set while the phase
// its waiters arrived in is completing.
func (e *event) Reset() {
	e.mu.Lock()
	if e.set {
		e.set = false
		e.ch = make(chan struct{})
	}
	e.mu.Unlock()
}

// IsSet reports whether the event is currently signaled.
func (e *event) IsSet() bool {
	e.mu.Lock()
	set := e.set
	e.mu.Unlock()
	return set
}

// waitOne blocks until the event is signaled or timeout elapses, returning
// true if signaled. A negative timeout waits forever.
func (e *event) waitOne(timeout time.Duration) bool {
	e.mu.Lock()
	if e.set {
		e.mu.Unlock()
		return true
	}
	ch := e.ch
	e.mu.Unlock()

	if timeout < 0 {
		<-ch
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}
