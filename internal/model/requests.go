package model

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// CheckInRequest is the payload for a single online admission attempt.
type CheckInRequest struct {
	AttendeeID       string          `json:"attendee_id" validate:"required,uuid"`
	StaffID          string          `json:"staff_id" validate:"required,uuid"`
	CheckInTime      time.Time       `json:"check_in_time"`
	Notes            string          `json:"notes,omitempty" validate:"max=2000"`
	OverrideCapacity bool            `json:"override_capacity"`
	IsManualEntry    bool            `json:"is_manual_entry"`
	ManualEntryData  json.RawMessage `json:"manual_entry_data,omitempty"`
}

// CheckInResponse reports a committed admission.
type CheckInResponse struct {
	Success      bool              `json:"success"`
	AttendeeID   uuid.UUID         `json:"attendee_id"`
	CheckInTime  time.Time         `json:"check_in_time"`
	Message      string            `json:"message"`
	Capacity     *CapacitySnapshot `json:"capacity"`
	AuditLogID   uuid.UUID         `json:"audit_log_id"`
	OverrideUsed bool              `json:"override_used"`
}

// SyncBatchRequest carries locally-queued offline actions for replay.
// Entries are applied in the order given.
type SyncBatchRequest struct {
	UserID  string                  `json:"user_id" validate:"required,uuid"`
	Entries []SyncBatchEntryRequest `json:"entries" validate:"required,min=1,max=500,dive"`
}

// SyncBatchEntryRequest is one offline-recorded check-in action.
type SyncBatchEntryRequest struct {
	LocalID          string          `json:"local_id" validate:"required,max=100"`
	EventID          string          `json:"event_id" validate:"required,uuid"`
	AttendeeID       string          `json:"attendee_id" validate:"required,uuid"`
	CheckInTime      time.Time       `json:"check_in_time" validate:"required"`
	Notes            string          `json:"notes,omitempty" validate:"max=2000"`
	OverrideCapacity bool            `json:"override_capacity"`
	IsManualEntry    bool            `json:"is_manual_entry"`
	ManualEntryData  json.RawMessage `json:"manual_entry_data,omitempty"`
}

// BatchResult summarises one reconciliation pass. ProcessedCount counts
// committed admissions only; every other outcome appears in Conflicts.
type BatchResult struct {
	ProcessedCount int            `json:"processed_count"`
	Conflicts      []SyncConflict `json:"conflicts"`
}

// SyncSummary is the dashboard's offline-sync status block.
type SyncSummary struct {
	PendingCount  int       `json:"pending_count"`
	ConflictCount int       `json:"conflict_count"`
	LastSync      time.Time `json:"last_sync"`
}

// DashboardResponse is the staff-facing view of one event.
type DashboardResponse struct {
	EventID        uuid.UUID             `json:"event_id"`
	EventName      string                `json:"event_name"`
	EventStatus    string                `json:"event_status"`
	Capacity       *CapacitySnapshot     `json:"capacity"`
	Products       []ProductAvailability `json:"products"`
	RecentCheckIns []RecentCheckIn       `json:"recent_check_ins"`
	Sync           SyncSummary           `json:"sync"`
}

// AttendeeFilter narrows the staff attendee listing.
type AttendeeFilter struct {
	Search   string
	Status   RegistrationStatus
	Page     int
	PageSize int
}

// AttendeePage is one page of the staff attendee listing.
type AttendeePage struct {
	EventID    uuid.UUID  `json:"event_id"`
	Attendees  []Attendee `json:"attendees"`
	TotalCount int        `json:"total_count"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
}

// AdmitParams is everything the store needs to commit one admission
// atomically: the check-in row, the attendee status flip, the counter
// increments, and the audit entry all ride the same transaction.
type AdmitParams struct {
	AttendeeID       uuid.UUID
	StaffID          uuid.UUID
	CheckInTime      time.Time
	Notes            string
	OverrideCapacity bool
	IsManualEntry    bool
	ManualEntryData  json.RawMessage
}

// AdmissionOutcome is what a committed admission produced.
type AdmissionOutcome struct {
	CheckIn    *CheckIn
	AuditLogID uuid.UUID
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
