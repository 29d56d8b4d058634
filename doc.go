// Package phasebarrier provides a reusable, multi-phase rendezvous barrier,
// at which a dynamically sized set of participants block until all have
// arrived, then release together into the next phase.
//
// # Architecture
//
// A [Barrier] packs its membership into a single lock-free 32-bit word,
// holding the registered participant total, the number already arrived this
// phase, and a one-bit phase sense. All membership transitions (arrival,
// [Barrier.AddParticipants], [Barrier.RemoveParticipants]) are CAS updates
// on that word; the barrier blocks only on one of two alternating
// level-triggered events, selected by the phase sense. An optional callback
// runs exactly once per phase, on the participant that completes it, before
// any other participant is released.
//
// Two events are required, not one: alternating them avoids the A-B-A race
// between a waiter being released for phase N and the event being reset for
// phase N+1. Waiters additionally bound each individual event wait and
// re-check the phase between waits, so a participant cannot be stranded by
// a neighboring phase completing and resetting its event while it sleeps.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Arrival, add, and remove are
// lock-free; the only blocking points are event waits, each of which is
// bracketed by the configurable [Hooks], allowing an embedding cooperative
// runtime to observe (and safely suspend around) blocking operations.
//
// Misuse is a programming error and panics with a typed error value: more
// arrivals than registered participants ([OverArrivalError]), growing past
// [MaxParticipants] ([TooManyParticipantsError]), removing more
// participants than could still rendezvous ([RemoveUnderflowError]), or
// destroying a barrier with arrivals in flight ([DestroyInUseError]).
// A participant must not re-enter the same barrier from its own callback.
//
// # Usage
//
//	b := phasebarrier.New(workers, &phasebarrier.Config{
//	    Callback: func() { merge() },
//	})
//	for i := 0; i < workers; i++ {
//	    go func() {
//	        for step := 0; step < steps; step++ {
//	            produce(step)
//	            b.SignalAndWait()
//	        }
//	    }()
//	}
//
// [Barrier.SignalAndTimedWait] bounds the wait; on timeout it rolls the
// arrival back and returns false, leaving the barrier exactly as if the
// call had not been made.
package phasebarrier
