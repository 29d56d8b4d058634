package phasebarrier

import (
	"runtime"
	"sync/atomic"
)

// Hooks lets an embedding runtime observe the points at which barrier
// operations may block or spin. A cooperative runtime can use
// EnterBlocking/ExitBlocking to mark the enclosed wait as safe to suspend
// around, and Safepoint to poll for suspension requests between CAS
// retries. No data flows through the hooks.
//
// All fields are optional; nil funcs are skipped.
type Hooks struct {
	// EnterBlocking runs immediately before a wait that may block.
	EnterBlocking func()
	// ExitBlocking runs immediately after a potentially-blocking wait.
	ExitBlocking func()
	// Safepoint runs on every CAS retry spin, after yielding.
	Safepoint func()
}

// Package-level hooks, shared by all barriers. Blocking behavior is an
// infrastructure cross-cutting concern of the hosting runtime, not of any
// individual barrier instance.
var packageHooks atomic.Pointer[Hooks]

// SetHooks installs the package-level Hooks. Passing nil restores the
// default (no-op) behavior. Safe to call concurrently, though it is
// intended for process initialization.
func SetHooks(h *Hooks) {
	if h == nil {
		packageHooks.Store(nil)
		return
	}
	c := *h
	packageHooks.Store(&c)
}

func enterBlocking() {
	if h := packageHooks.Load(); h != nil && h.EnterBlocking != nil {
		h.EnterBlocking()
	}
}

func exitBlocking() {
	if h := packageHooks.Load(); h != nil && h.ExitBlocking != nil {
		h.ExitBlocking()
	}
}

// spin is the back-off between CAS retries.
func spin() {
	runtime.Gosched()
	if h := packageHooks.Load(); h != nil && h.Safepoint != nil {
		h.Safepoint()
	}
}
