// Package repository implements all database access for the check-in
// engine. It uses pgx directly (no ORM); every admission mutation runs in
// a single transaction with the event row locked as the serialization
// point, and the unique index on active check-ins as the final duplicate
// arbiter.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyCheckedIn is returned when an active check-in already exists
// for the attendee.
var ErrAlreadyCheckedIn = errors.New("attendee already checked in")

// ErrCapacityExceeded is returned when the event is at capacity and the
// waitlisted attendee was not admitted with an override.
var ErrCapacityExceeded = errors.New("capacity exceeded, override required")

// ErrSessionFull is returned when a session included by the attendee's
// product has no remaining capacity and no override was supplied.
var ErrSessionFull = errors.New("session capacity exceeded, override required")

// ErrWaiverIncomplete is returned when the attendee has not completed the
// waiver. Never bypassable, including by capacity overrides.
var ErrWaiverIncomplete = errors.New("waiver must be completed before check-in")

// ErrNoActiveCheckIn is returned by undo when there is nothing to undo.
var ErrNoActiveCheckIn = errors.New("attendee has no active check-in")

// ErrManualEntryMissing rejects manual-entry check-ins without a payload.
var ErrManualEntryMissing = errors.New("manual entry requires manual_entry_data")

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
