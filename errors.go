package phasebarrier

import (
	"fmt"
)

// All barrier misuse is a programming error, and the offending call panics.
// The misuse cases below panic with typed error values, so tests and crash
// handlers can match on the cause via recover; a negative participant count,
// or a signal on a barrier with no participants, panics with a plain string.

// OverArrivalError reports that more participants signaled the barrier than
// were registered. It is detected when the arrived count is zero while the
// phase sense disagrees with the phase counter, meaning a full phase's
// worth of arrivals has already been consumed.
type OverArrivalError struct {
	State uint32 // packed counts word at detection
	Phase int64
	Total int
}

// Error implements the error interface.
func (e *OverArrivalError) Error() string {
	return fmt.Sprintf(
		`phasebarrier: current count is 0 but phase %d does not match the phase sense (state %#x): too many participants signaled, expected %d`,
		e.Phase, e.State, e.Total,
	)
}

// TooManyParticipantsError reports an attempt to register more than
// MaxParticipants participants.
type TooManyParticipantsError struct {
	Requested int // participants being added
	Total     int // participants already registered
}

// Error implements the error interface.
func (e *TooManyParticipantsError) Error() string {
	return fmt.Sprintf(
		`phasebarrier: adding %d participants to %d would exceed the maximum of %d`,
		e.Requested, e.Total, MaxParticipants,
	)
}

// RemoveUnderflowError reports a RemoveParticipants call that would either
// remove more participants than are registered, or leave fewer registered
// participants than have already arrived.
type RemoveUnderflowError struct {
	Removed int
	Current int
	Total   int
}

// Error implements the error interface.
func (e *RemoveUnderflowError) Error() string {
	return fmt.Sprintf(
		`phasebarrier: cannot remove %d of %d participants with %d already arrived`,
		e.Removed, e.Total, e.Current,
	)
}

// DestroyInUseError reports a Destroy call while participants are inside
// the current phase.
type DestroyInUseError struct {
	Current int
}

// Error implements the error interface.
func (e *DestroyInUseError) Error() string {
	return fmt.Sprintf(`phasebarrier: destroy with %d arrivals in flight`, e.Current)
}
