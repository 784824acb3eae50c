// Package ledger computes derived availability figures from stored
// capacity counters. Everything here is a pure function over current
// counts: no storage access, no side effects, safe to call repeatedly.
// Callers are responsible for feeding it counters read at decision time,
// not cached snapshots.
package ledger

// SessionRemaining returns the remaining capacity of a session. The
// reported value never goes negative even when an override has pushed the
// underlying count past capacity.
func SessionRemaining(capacity, checkedIn int) int {
	if remaining := capacity - checkedIn; remaining > 0 {
		return remaining
	}
	return 0
}

// ProductAvailability returns a product's availability: the minimum
// remaining capacity across its included sessions. One full session makes
// the whole product unavailable regardless of room elsewhere. A product
// with no included sessions has nothing to admit against and reports 0.
func ProductAvailability(sessionRemaining ...int) int {
	if len(sessionRemaining) == 0 {
		return 0
	}
	min := sessionRemaining[0]
	for _, r := range sessionRemaining[1:] {
		if r < min {
			min = r
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

// AtCapacity reports whether an event has no remaining capacity.
func AtCapacity(capacity, checkedIn int) bool {
	return checkedIn >= capacity
}
