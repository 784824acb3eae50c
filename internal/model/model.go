// Package model defines the core domain types for the check-in engine.
package model

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// RegistrationStatus is the lifecycle state of an attendee's registration.
// The checked-in state is a denormalized mirror of CheckIn existence; the
// CheckIn row is the authoritative admitted signal.
type RegistrationStatus string

const (
	StatusConfirmed RegistrationStatus = "confirmed"
	StatusWaitlist  RegistrationStatus = "waitlist"
	StatusCancelled RegistrationStatus = "cancelled"
	StatusCheckedIn RegistrationStatus = "checked-in"
	StatusNoShow    RegistrationStatus = "no-show"
)

// Event is a bookable event with an overall capacity. CheckedInCount is a
// stored counter maintained transactionally alongside check-in inserts and
// removals; it is never recomputed from aggregates at decision time.
type Event struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	Capacity       int       `json:"capacity"`
	CheckedInCount int       `json:"checked_in_count"`
	Published      bool      `json:"published"`
	CreatedAt      time.Time `json:"created_at"`
}

// Session belongs to one Event and is the unit capacity is enforced against.
type Session struct {
	ID             uuid.UUID `json:"id"`
	EventID        uuid.UUID `json:"event_id"`
	Name           string    `json:"name"`
	Capacity       int       `json:"capacity"`
	CheckedInCount int       `json:"checked_in_count"`
}

// Product is a ticket type granting access to one or more sessions.
type Product struct {
	ID         uuid.UUID   `json:"id"`
	EventID    uuid.UUID   `json:"event_id"`
	Name       string      `json:"name"`
	SessionIDs []uuid.UUID `json:"session_ids"`
}

// Attendee is one registration: exactly one row per (event, user).
type Attendee struct {
	ID              uuid.UUID          `json:"id"`
	EventID         uuid.UUID          `json:"event_id"`
	UserID          uuid.UUID          `json:"user_id"`
	ProductID       *uuid.UUID         `json:"product_id,omitempty"`
	Name            string             `json:"name"`
	Email           string             `json:"email"`
	TicketNumber    string             `json:"ticket_number,omitempty"`
	Status          RegistrationStatus `json:"registration_status"`
	WaiverCompleted bool               `json:"waiver_completed"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// CheckIn records a single admission. At most one active CheckIn exists per
// attendee; an administrative undo deletes the row and reverts the attendee.
type CheckIn struct {
	ID               uuid.UUID       `json:"id"`
	AttendeeID       uuid.UUID       `json:"attendee_id"`
	EventID          uuid.UUID       `json:"event_id"`
	StaffID          uuid.UUID       `json:"staff_id"`
	CheckInTime      time.Time       `json:"check_in_time"`
	Notes            string          `json:"notes,omitempty"`
	OverrideCapacity bool            `json:"override_capacity"`
	IsManualEntry    bool            `json:"is_manual_entry"`
	ManualEntryData  json.RawMessage `json:"manual_entry_data,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// AuditAction categorizes audit trail entries.
type AuditAction string

const (
	AuditCheckIn AuditAction = "check-in"
	AuditUndo    AuditAction = "undo"
)

// AuditLogEntry is an immutable record of an admission decision. Entries are
// only ever appended, inside the same transaction as the mutation they
// describe.
type AuditLogEntry struct {
	ID          uuid.UUID       `json:"id"`
	EventID     uuid.UUID       `json:"event_id"`
	AttendeeID  *uuid.UUID      `json:"attendee_id,omitempty"`
	Action      AuditAction     `json:"action"`
	Description string          `json:"description"`
	ActorID     *uuid.UUID      `json:"actor_id,omitempty"`
	OldValues   json.RawMessage `json:"old_values,omitempty"`
	NewValues   json.RawMessage `json:"new_values,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SyncStatus is the server-side state of a replayed offline queue entry.
type SyncStatus string

const (
	SyncPending    SyncStatus = "pending"
	SyncCompleted  SyncStatus = "completed"
	SyncConflicted SyncStatus = "conflict"
	SyncFailed     SyncStatus = "failed"
)

// OfflineQueueEntry is a check-in recorded on a disconnected client,
// submitted later for replay. LocalID is assigned by the client and is the
// handle conflicts refer back to.
type OfflineQueueEntry struct {
	ID               uuid.UUID       `json:"id"`
	LocalID          string          `json:"local_id"`
	EventID          uuid.UUID       `json:"event_id"`
	UserID           uuid.UUID       `json:"user_id"`
	AttendeeID       uuid.UUID       `json:"attendee_id"`
	CheckInTime      time.Time       `json:"check_in_time"`
	Notes            string          `json:"notes,omitempty"`
	OverrideCapacity bool            `json:"override_capacity"`
	IsManualEntry    bool            `json:"is_manual_entry"`
	ManualEntryData  json.RawMessage `json:"manual_entry_data,omitempty"`
	Status           SyncStatus      `json:"sync_status"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	SyncedAt         *time.Time      `json:"synced_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ConflictClassification names the reason a replayed entry could not be
// applied. Every non-success outcome maps to exactly one classification;
// nothing is dropped without a conflict record.
type ConflictClassification string

const (
	ConflictDuplicate        ConflictClassification = "duplicate_checkin"
	ConflictCapacityExceeded ConflictClassification = "capacity_exceeded"
	ConflictAttendeeNotFound ConflictClassification = "attendee_not_found"
	ConflictWaiverIncomplete ConflictClassification = "waiver_incomplete"
	ConflictUnclassified     ConflictClassification = "unclassified"
)

// ConflictResolution is how a conflict was (or must be) settled.
type ConflictResolution string

const (
	ResolutionAuto   ConflictResolution = "auto_resolved"
	ResolutionManual ConflictResolution = "manual_required"
)

// SyncConflict is the write-once output of reconciliation for one failed
// queue entry. Manual conflicts stay visible until explicitly resolved.
type SyncConflict struct {
	ID             uuid.UUID              `json:"id"`
	LocalID        string                 `json:"local_id"`
	AttendeeID     uuid.UUID              `json:"attendee_id"`
	EventID        uuid.UUID              `json:"event_id"`
	Classification ConflictClassification `json:"classification"`
	Resolution     ConflictResolution     `json:"resolution"`
	Detail         string                 `json:"detail,omitempty"`
	ResolvedBy     *uuid.UUID             `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time             `json:"resolved_at,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// CapacitySnapshot is the cached per-event capacity figure served to
// dashboards. It is advisory: admission decisions recompute from the stored
// counters, never from a snapshot.
type CapacitySnapshot struct {
	TotalCapacity  int  `json:"total_capacity"`
	CheckedInCount int  `json:"checked_in_count"`
	WaitlistCount  int  `json:"waitlist_count"`
	AvailableSpots int  `json:"available_spots"`
	AtCapacity     bool `json:"at_capacity"`
}

// ProductAvailability is a product's derived availability: the minimum
// remaining capacity across its included sessions.
type ProductAvailability struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Available int       `json:"available"`
}

// RecentCheckIn is one row of the dashboard's recent-activity feed.
type RecentCheckIn struct {
	AttendeeID    uuid.UUID `json:"attendee_id"`
	AttendeeName  string    `json:"attendee_name"`
	CheckInTime   time.Time `json:"check_in_time"`
	StaffID       uuid.UUID `json:"staff_id"`
	IsManualEntry bool      `json:"is_manual_entry"`
}
