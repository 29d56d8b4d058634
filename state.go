package phasebarrier

import (
	"sync/atomic"
)

// Bit layout of the packed counts word. Bit 15 is reserved.
const (
	totalMask    = 0x0000_7fff // registered participants
	currentMask  = 0x7fff_0000 // participants arrived this phase
	currentShift = 16
	senseMask    = 0x8000_0000 // stored inverted: clear while the phase is even
)

// MaxParticipants is the largest number of participants a Barrier supports,
// bounded by the width of the total field in the packed counts word.
const MaxParticipants = totalMask

// packCounts combines the arrived count, the registered total, and the phase
// sense into a single word. A true sense (even phase) leaves bit 31 clear.
func packCounts(current, total int, sense bool) uint32 {
	word := (uint32(current) & totalMask) << currentShift
	word |= uint32(total) & totalMask
	if !sense {
		word |= senseMask
	}
	return word
}

// unpackCounts is the inverse of packCounts.
func unpackCounts(word uint32) (current, total int, sense bool) {
	current = int((word & currentMask) >> currentShift)
	total = int(word & totalMask)
	sense = word&senseMask == 0
	return
}

// countsWord is the barrier's hot word, a lock-free packed state updated
// exclusively via CAS. Cache-line padding prevents false sharing with the
// phase counter and events.
type countsWord struct { // betteralign:ignore
	_ [64]byte      // Cache line padding (before value) //nolint:unused
	v atomic.Uint32 // Packed counts
	_ [60]byte      // Pad to complete cache line (64 - 4 = 60) //nolint:unused
}

// Load returns the current packed word atomically.
func (s *countsWord) Load() uint32 {
	return s.v.Load()
}

// Store atomically replaces the packed word. Only valid before the barrier
// is shared; concurrent updates must go through CompareAndSwap.
func (s *countsWord) Store(current, total int, sense bool) {
	s.v.Store(packCounts(current, total, sense))
}

// CompareAndSwap attempts to replace old with the packed form of the given
// fields, returning true on success. A false return means another
// participant won the race and the caller must re-read and retry.
func (s *countsWord) CompareAndSwap(old uint32, current, total int, sense bool) bool {
	return s.v.CompareAndSwap(old, packCounts(current, total, sense))
}
