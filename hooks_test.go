package phasebarrier

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSetHooks_blockingWaitsBracketed(t *testing.T) {
	var enters, exits atomic.Int64
	SetHooks(&Hooks{
		EnterBlocking: func() { enters.Add(1) },
		ExitBlocking:  func() { exits.Add(1) },
	})
	defer SetHooks(nil)

	b := New(2, nil)
	if b.SignalAndTimedWait(5 * time.Millisecond) {
		t.Fatal(`expected the wait to time out`)
	}

	if n := enters.Load(); n < 1 {
		t.Fatalf(`expected at least one blocking region, got %d`, n)
	}
	if enters.Load() != exits.Load() {
		t.Fatalf(`unbalanced blocking region: %d enters, %d exits`, enters.Load(), exits.Load())
	}
}

func TestSetHooks_nilFieldsAndNilHooks(t *testing.T) {
	SetHooks(&Hooks{}) // all fields nil
	defer SetHooks(nil)

	b := New(2, nil)
	if b.SignalAndTimedWait(time.Millisecond) {
		t.Fatal(`expected the wait to time out`)
	}

	SetHooks(nil) // restore defaults
	spin()        // must not panic
	enterBlocking()
	exitBlocking()
}

func TestSetHooks_copiesValue(t *testing.T) {
	var calls atomic.Int64
	h := Hooks{Safepoint: func() { calls.Add(1) }}
	SetHooks(&h)
	defer SetHooks(nil)

	h.Safepoint = nil // mutating the caller's copy must not affect the installed hooks
	spin()

	if calls.Load() != 1 {
		t.Fatalf(`expected the installed safepoint to run once, got %d`, calls.Load())
	}
}
