package phasebarrier

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// InfiniteWait may be passed as the timeout of
// [Barrier.SignalAndTimedWait], to wait without bound. Any negative
// duration behaves identically.
const InfiniteWait time.Duration = -1

// Bounds on the individual event waits performed while a participant is
// blocked at the barrier. Waits start at discontinuousWaitInitial and
// double each iteration up to discontinuousWaitCeiling, re-checking the
// phase in between, so a participant whose event was reset by a
// neighboring phase completion is never stranded.
const (
	discontinuousWaitInitial = 100 * time.Millisecond
	discontinuousWaitCeiling = 10 * time.Second
)

type (
	// Config models optional configuration, for New.
	Config struct {
		// Callback, if non-nil, runs exactly once per phase, on the
		// participant that completes it, after the phase sense flips and
		// before any waiter is released. State it captures replaces the
		// usual opaque user-data pointer.
		//
		// WARNING: Panics in Callback propagate to the completing
		// participant, with the phase counter and events not yet advanced.
		// A Callback must not signal or wait on its own barrier.
		Callback func()

		// Logger optionally receives debug and trace output, e.g. phase
		// completions and membership changes. May be nil (the default),
		// disabling logging.
		Logger *logiface.Logger[logiface.Event]
	}

	// Barrier is a multi-phase rendezvous point for a dynamically sized
	// set of participants. Instances must be initialized using the New
	// factory, and must not be copied.
	//
	// When the current phase is completed:
	//
	//   - first the phase sense is negated and the arrived count zeroed
	//     (one CAS);
	//   - then the callback runs;
	//   - then the phase counter is incremented;
	//   - then the event for the opposite phase is reset;
	//   - then the event for the completed phase is set, unblocking the
	//     waiters.
	//
	// These steps happen non-atomically. Signal, add, and remove each have
	// to work out which step a concurrent completion is in, which is the
	// main source of complication below.
	Barrier struct {
		// betteralign:ignore

		counts    countsWord                       // packed current/total/sense, CAS only
		phase     atomic.Int64                     // completed phase count
		evenEvent *event                           // set when an even phase completes
		oddEvent  *event                           // set when an odd phase completes
		callback  func()                           // configurable
		log       *logiface.Logger[logiface.Event] // configurable
	}
)

// New initializes a new Barrier with the given number of participants,
// which must be in [0, MaxParticipants]. The provided config may be nil.
//
// A barrier with zero participants is valid, but participants must be
// added before anything signals it.
func New(totalParticipants int, config *Config) *Barrier {
	if totalParticipants < 0 {
		panic(`phasebarrier: negative participant count`)
	}
	if totalParticipants > MaxParticipants {
		panic(&TooManyParticipantsError{Requested: totalParticipants})
	}

	barrier := Barrier{
		evenEvent: newEvent(false),
		oddEvent:  newEvent(true),
	}
	barrier.counts.Store(0, totalParticipants, true)

	if config != nil {
		barrier.callback = config.Callback
		barrier.log = config.Logger
	}

	return &barrier
}

// Destroy releases the barrier's events. The caller must ensure no arrival
// is in flight: Destroy panics with a [DestroyInUseError] if any
// participant has signaled the current phase, and it is the caller's
// responsibility that no participant is inside a wait.
func (x *Barrier) Destroy() {
	current, _, _ := unpackCounts(x.counts.Load())
	if current != 0 {
		panic(&DestroyInUseError{Current: current})
	}
	// release both, so a racing waiter cannot hang on a dead barrier
	x.evenEvent.Set()
	x.oddEvent.Set()
}

// AddParticipants registers n additional participants, returning the phase
// they join. May block until a concurrent phase completion has finished
// flipping the events, so the new participants cannot slip through a stale
// event. Panics with a [TooManyParticipantsError] if the total would
// exceed MaxParticipants.
func (x *Barrier) AddParticipants(n int) int64 {
	if n < 0 {
		panic(`phasebarrier: negative participant count`)
	}

	for {
		word := x.counts.Load()
		current, total, sense := unpackCounts(word)
		if n+total > MaxParticipants {
			panic(&TooManyParticipantsError{Requested: n, Total: total})
		}

		if !x.counts.CompareAndSwap(word, current, n+total, sense) {
			spin()
			continue
		}

		// Figure out if the new participants join the current phase or the
		// next one: a phase counter that disagrees with the sense means the
		// sense was flipped (the phase was finished) but the completer
		// hasn't advanced the counter yet.
		phase := x.phase.Load()
		newPhase := phase
		if sense != (phase%2 == 0) {
			newPhase = phase + 1

			// joining the next phase: wait on the opposite event, so the
			// completer has finished resetting and setting the events
			// before the new participants proceed
			evt := x.evenEvent
			if sense {
				evt = x.oddEvent
			}
			enterBlocking()
			evt.waitOne(InfiniteWait)
			exitBlocking()
		} else if sense && x.evenEvent.IsSet() {
			// The phase counter was already advanced but the events not yet
			// flipped. Reset here, otherwise this participant's own
			// SignalAndWait would sail through a set event while the other
			// participants have not arrived.
			x.evenEvent.Reset()
		} else if !sense && x.oddEvent.IsSet() {
			x.oddEvent.Reset()
		}

		x.log.Debug().
			Int(`added`, n).
			Int(`total`, n+total).
			Int64(`phase`, newPhase).
			Log(`participants added`)

		return newPhase
	}
}

// RemoveParticipants deregisters n participants. If every remaining
// participant has already arrived, the removal completes the current phase
// exactly as a final arrival would, callback included. Panics with a
// [RemoveUnderflowError] if n exceeds the registered total, or if the
// removal would leave fewer registered participants than have arrived.
func (x *Barrier) RemoveParticipants(n int) {
	if n < 0 {
		panic(`phasebarrier: negative participant count`)
	}

	for {
		word := x.counts.Load()
		current, total, sense := unpackCounts(word)
		if n > total || total-n < current {
			panic(&RemoveUnderflowError{Removed: n, Current: current, Total: total})
		}

		remaining := total - n

		if remaining > 0 && current == remaining {
			// all the remaining participants have already arrived
			if x.counts.CompareAndSwap(word, 0, remaining, !sense) {
				x.finishPhase(sense)
				break
			}
		} else if x.counts.CompareAndSwap(word, current, remaining, sense) {
			break
		}

		spin()
	}

	x.log.Debug().
		Int(`removed`, n).
		Log(`participants removed`)
}

// SignalAndWait signals that the calling participant has reached the
// barrier, and blocks until all other participants arrive.
func (x *Barrier) SignalAndWait() {
	x.SignalAndTimedWait(InfiniteWait)
}

// SignalAndTimedWait signals that the calling participant has reached the
// barrier, and blocks until all other participants arrive, or timeout
// elapses. A negative timeout (see InfiniteWait) waits without bound.
//
// It returns true if the phase completed, and false if the timeout elapsed
// first, in which case the arrival has been rolled back, as if the call
// had not been made. The last participant to arrive never blocks: it runs
// the callback, advances the phase, releases the others, and returns true.
//
// Panics with an [OverArrivalError] if more participants signal the
// current phase than are registered.
func (x *Barrier) SignalAndTimedWait(timeout time.Duration) bool {
	var (
		senseBefore bool
		phase       int64
	)

	// try to add ourselves to the count of arrived participants
	for {
		word := x.counts.Load()
		current, total, sense := unpackCounts(word)
		phase = x.phase.Load()
		senseBefore = sense

		if total == 0 {
			panic(`phasebarrier: signal on a barrier with no participants`)
		}

		// A zero arrived count with a sense that disagrees with the phase
		// counter means a full phase's worth of arrivals was consumed
		// before the counter advanced: more threads signaled than total.
		if current == 0 && sense != (phase%2 == 0) {
			panic(&OverArrivalError{State: word, Phase: phase, Total: total})
		}

		if current+1 == total {
			// last to arrive: finish the phase, never blocking
			if x.counts.CompareAndSwap(word, 0, total, !sense) {
				x.finishPhase(sense)
				return true
			}
		} else if x.counts.CompareAndSwap(word, current+1, total, sense) {
			break
		}

		spin()
	}

	// not every participant has arrived, wait on this phase's event
	evt := x.oddEvent
	if senseBefore {
		evt = x.evenEvent
	}

	if x.discontinuousWait(evt, timeout, phase) {
		return true
	}

	// timed out: try to roll back our arrival
	for {
		word := x.counts.Load()
		current, total, senseNow := unpackCounts(word)

		// The phase is finished if the phase counter advanced or the sense
		// changed. Both must be checked:
		//  1. the sense may have flipped before the completer updated the
		//     counter;
		//  2. the counter may have advanced with the sense flipped twice,
		//     because the next phase also terminated.
		if phase < x.phase.Load() || senseBefore != senseNow {
			// We lost the race to time out. Don't return before the events
			// are flipped, otherwise this participant could re-enter the
			// next phase against a stale set event and pass straight
			// through it.
			x.waitForCurrentPhase(evt, phase)
			return true
		}

		if x.counts.CompareAndSwap(word, current-1, total, senseBefore) {
			x.log.Trace().
				Int64(`phase`, phase).
				Dur(`timeout`, timeout).
				Log(`arrival rolled back`)
			return false
		}

		spin()
	}
}

// finishPhase runs on the participant whose CAS zeroed the arrived count
// and flipped the sense. observedSense is the sense of the phase being
// completed. The ordering is mandatory; see the Barrier doc comment.
func (x *Barrier) finishPhase(observedSense bool) {
	if x.callback != nil {
		x.callback()
	}

	phase := x.phase.Add(1)

	if observedSense {
		x.oddEvent.Reset()
		x.evenEvent.Set()
	} else {
		x.evenEvent.Reset()
		x.oddEvent.Set()
	}

	x.log.Trace().
		Int64(`phase`, phase).
		Bool(`evenPhase`, observedSense).
		Log(`phase completed`)
}

// discontinuousWait waits on evt in bounded slices, re-checking the phase
// counter in between, rather than blocking on the event outright. This
// avoids the race where the next phase finishes while this participant is
// blocked (because a participant was removed, or another joined the next
// phase in its place) and resets the event under it. Returns true if the
// phase completed, false if timeout elapsed first.
func (x *Barrier) discontinuousWait(evt *event, timeout time.Duration, observedPhase int64) bool {
	maxWait := discontinuousWaitInitial

	for observedPhase == x.phase.Load() {
		wait := maxWait
		if timeout >= 0 && timeout < wait {
			wait = timeout
		}

		enterBlocking()
		signaled := evt.waitOne(wait)
		exitBlocking()

		if signaled {
			return true
		}

		if timeout >= 0 {
			if timeout <= wait {
				return false
			}
			timeout -= wait
		}

		if maxWait < discontinuousWaitCeiling {
			maxWait = min(maxWait<<1, discontinuousWaitCeiling)
		}
	}

	// the observed phase is over, but the events may not be flipped yet
	x.waitForCurrentPhase(evt, observedPhase)

	return true
}

// waitForCurrentPhase spins until either the event is set, or the phase
// counter has advanced more than once past observedPhase, meaning the next
// phase finished as well and the event was already reset again.
func (x *Barrier) waitForCurrentPhase(evt *event, observedPhase int64) {
	for !evt.IsSet() && x.phase.Load()-observedPhase <= 1 {
		spin()
	}
}

// ParticipantCount returns the number of registered participants. A
// snapshot read, it does not synchronize with concurrent arrivals.
func (x *Barrier) ParticipantCount() int {
	_, total, _ := unpackCounts(x.counts.Load())
	return total
}

// ParticipantsRemaining returns the number of registered participants that
// have not yet arrived in the current phase. A snapshot read.
func (x *Barrier) ParticipantsRemaining() int {
	current, total, _ := unpackCounts(x.counts.Load())
	return total - current
}

// CurrentPhase returns the number of completed phases. The initial phase
// is 0, and the value is non-decreasing.
func (x *Barrier) CurrentPhase() int64 {
	return x.phase.Load()
}

// String returns a diagnostic snapshot of the barrier's state.
func (x *Barrier) String() string {
	current, total, sense := unpackCounts(x.counts.Load())
	return fmt.Sprintf(`phasebarrier.Barrier{current: %d, total: %d, evenPhase: %t, phase: %d}`,
		current, total, sense, x.phase.Load())
}
