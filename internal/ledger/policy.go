package ledger

// Denial enumerates capacity-based admission denials. The override flag
// bypasses exactly these two denials and nothing else: duplicate check-ins,
// unknown attendees, and incomplete waivers are enforced outside this table
// and are never bypassable.
type Denial int

const (
	// DenyNone means capacity does not block the admission.
	DenyNone Denial = iota
	// DenyEventFull: the event is at capacity and the attendee is
	// waitlisted. Confirmed attendees hold a ticket against the event
	// total and are not turned away at event level.
	DenyEventFull
	// DenySessionFull: a session included by the attendee's product has
	// no remaining capacity. Enforced for every attendee, since the
	// session counter may only exceed capacity through an override.
	DenySessionFull
)

// EvaluateAdmission applies the capacity policy to counters read at
// decision time. sessionRemaining carries the remaining capacity of each
// session the attendee's product includes; pass nil for attendees without
// a product mapping, which are checked at event level only.
func EvaluateAdmission(eventCapacity, eventCheckedIn int, waitlisted bool, sessionRemaining []int, override bool) Denial {
	if override {
		return DenyNone
	}
	for _, remaining := range sessionRemaining {
		if remaining <= 0 {
			return DenySessionFull
		}
	}
	if waitlisted && AtCapacity(eventCapacity, eventCheckedIn) {
		return DenyEventFull
	}
	return DenyNone
}
