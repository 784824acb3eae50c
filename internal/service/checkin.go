// Package service implements business logic and orchestration between the
// HTTP handlers and the repository layer: the check-in admission path, the
// event dashboard, and offline batch reconciliation.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/doorlist/checkin-engine/internal/cache"
	"github.com/doorlist/checkin-engine/internal/model"
	"github.com/doorlist/checkin-engine/internal/repository"
)

// EventStore reads events, attendees, and derived capacity figures.
type EventStore interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error)
	GetAttendee(ctx context.Context, id uuid.UUID) (*model.Attendee, error)
	EventCapacity(ctx context.Context, eventID uuid.UUID) (*model.CapacitySnapshot, error)
	ProductAvailabilities(ctx context.Context, eventID uuid.UUID) ([]model.ProductAvailability, error)
	RecentCheckIns(ctx context.Context, eventID uuid.UUID, limit int) ([]model.RecentCheckIn, error)
	ListAttendees(ctx context.Context, eventID uuid.UUID, filter model.AttendeeFilter) (*model.AttendeePage, error)
}

// CheckInStore commits and reverses admissions atomically.
type CheckInStore interface {
	Admit(ctx context.Context, p model.AdmitParams) (*model.AdmissionOutcome, error)
	RemoveCheckIn(ctx context.Context, attendeeID, staffID uuid.UUID) (uuid.UUID, error)
	ActiveCheckIn(ctx context.Context, attendeeID uuid.UUID) (*model.CheckIn, error)
}

// AuditStore reads the append-only audit trail.
type AuditStore interface {
	Recent(ctx context.Context, eventID uuid.UUID, limit int) ([]model.AuditLogEntry, error)
}

// SyncStore persists offline queue entries and conflicts.
type SyncStore interface {
	SaveQueueEntry(ctx context.Context, e *model.OfflineQueueEntry) error
	SaveConflict(ctx context.Context, c *model.SyncConflict) error
	PendingSyncCount(ctx context.Context, userID uuid.UUID) (int, error)
	ResolveConflict(ctx context.Context, conflictID, staffID uuid.UUID) error
	EventSyncSummary(ctx context.Context, eventID uuid.UUID) (*model.SyncSummary, error)
}

const recentCheckInLimit = 5

// CheckInService orchestrates the admission path. The store transaction is
// the correctness mechanism; the service's attendee pre-checks only shortcut
// obvious failures, and the cache it maintains is read by dashboards, never
// by admission decisions.
type CheckInService struct {
	events   EventStore
	checkins CheckInStore
	audits   AuditStore
	sync     SyncStore
	cache    *cache.SnapshotCache
	log      zerolog.Logger
}

// NewCheckInService constructs a CheckInService with its dependencies.
func NewCheckInService(
	events EventStore,
	checkins CheckInStore,
	audits AuditStore,
	sync SyncStore,
	snapshots *cache.SnapshotCache,
	log zerolog.Logger,
) *CheckInService {
	return &CheckInService{
		events:   events,
		checkins: checkins,
		audits:   audits,
		sync:     sync,
		cache:    snapshots,
		log:      log,
	}
}

// CheckIn validates and commits one online admission.
func (s *CheckInService) CheckIn(ctx context.Context, req model.CheckInRequest) (*model.CheckInResponse, error) {
	attendeeID, err := uuid.Parse(req.AttendeeID)
	if err != nil {
		return nil, fmt.Errorf("attendee_id is not a valid uuid")
	}
	staffID, err := uuid.Parse(req.StaffID)
	if err != nil {
		return nil, fmt.Errorf("staff_id is not a valid uuid")
	}
	checkInTime := req.CheckInTime
	if checkInTime.IsZero() {
		checkInTime = time.Now().UTC()
	}

	// Fast-path rejections before opening a transaction. The store
	// re-validates all of this atomically; skipping these checks would
	// only change latency, not outcomes.
	attendee, err := s.events.GetAttendee(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	if !attendee.WaiverCompleted {
		return nil, repository.ErrWaiverIncomplete
	}

	outcome, err := s.admit(ctx, model.AdmitParams{
		AttendeeID:       attendeeID,
		StaffID:          staffID,
		CheckInTime:      checkInTime,
		Notes:            req.Notes,
		OverrideCapacity: req.OverrideCapacity,
		IsManualEntry:    req.IsManualEntry,
		ManualEntryData:  req.ManualEntryData,
	})
	if err != nil {
		return nil, err
	}

	// The snapshot is read for the response only, never written back to
	// the cache: a concurrent admission may have committed and evicted
	// between this read and a Set, and reinstating the older figure would
	// hide that admission until the TTL. The next dashboard miss
	// recomputes instead.
	snapshot, err := s.events.EventCapacity(ctx, outcome.CheckIn.EventID)
	if err != nil {
		// The admission committed; a failed snapshot read must not turn
		// the response into an error.
		s.log.Warn().Err(err).Stringer("event_id", outcome.CheckIn.EventID).
			Msg("capacity snapshot unavailable after check-in")
		snapshot = nil
	}

	return &model.CheckInResponse{
		Success:      true,
		AttendeeID:   attendeeID,
		CheckInTime:  outcome.CheckIn.CheckInTime,
		Message:      "Check-in successful",
		Capacity:     snapshot,
		AuditLogID:   outcome.AuditLogID,
		OverrideUsed: outcome.CheckIn.OverrideCapacity,
	}, nil
}

// admit commits one admission through the store and keeps the cache
// contract: the event's snapshot is evicted before the admission is
// reported complete. Shared by the online path and batch reconciliation.
func (s *CheckInService) admit(ctx context.Context, p model.AdmitParams) (*model.AdmissionOutcome, error) {
	if p.IsManualEntry && len(p.ManualEntryData) == 0 {
		return nil, repository.ErrManualEntryMissing
	}
	if !p.IsManualEntry {
		p.ManualEntryData = nil
	}

	outcome, err := s.checkins.Admit(ctx, p)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(outcome.CheckIn.EventID)

	s.log.Info().
		Stringer("attendee_id", p.AttendeeID).
		Stringer("staff_id", p.StaffID).
		Bool("override", p.OverrideCapacity).
		Stringer("event_id", outcome.CheckIn.EventID).
		Msg("check-in committed")
	return outcome, nil
}

// Undo reverses an admission and evicts the event's cached snapshot.
func (s *CheckInService) Undo(ctx context.Context, attendeeID, staffID uuid.UUID) error {
	eventID, err := s.checkins.RemoveCheckIn(ctx, attendeeID, staffID)
	if err != nil {
		return err
	}
	s.cache.Invalidate(eventID)

	s.log.Info().
		Stringer("attendee_id", attendeeID).
		Stringer("staff_id", staffID).
		Msg("check-in undone")
	return nil
}

// Dashboard assembles the staff view of an event. The capacity figure is
// served from the admission cache when fresh.
func (s *CheckInService) Dashboard(ctx context.Context, eventID uuid.UUID) (*model.DashboardResponse, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	snapshot, ok := s.cache.Get(eventID)
	if !ok {
		fresh, err := s.events.EventCapacity(ctx, eventID)
		if err != nil {
			return nil, err
		}
		snapshot = *fresh
		s.cache.Set(eventID, snapshot)
	}

	products, err := s.events.ProductAvailabilities(ctx, eventID)
	if err != nil {
		return nil, err
	}
	recent, err := s.events.RecentCheckIns(ctx, eventID, recentCheckInLimit)
	if err != nil {
		return nil, err
	}
	syncSummary, err := s.sync.EventSyncSummary(ctx, eventID)
	if err != nil {
		return nil, err
	}

	return &model.DashboardResponse{
		EventID:        eventID,
		EventName:      event.Name,
		EventStatus:    eventStatus(event, time.Now().UTC()),
		Capacity:       &snapshot,
		Products:       products,
		RecentCheckIns: recent,
		Sync:           *syncSummary,
	}, nil
}

// RecentActivity returns the newest audit entries for an event.
func (s *CheckInService) RecentActivity(ctx context.Context, eventID uuid.UUID, limit int) ([]model.AuditLogEntry, error) {
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.audits.Recent(ctx, eventID, limit)
}

// Attendees returns one page of the staff attendee listing.
func (s *CheckInService) Attendees(ctx context.Context, eventID uuid.UUID, filter model.AttendeeFilter) (*model.AttendeePage, error) {
	if _, err := s.events.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.events.ListAttendees(ctx, eventID, filter)
}

func eventStatus(e *model.Event, now time.Time) string {
	switch {
	case now.Before(e.StartsAt):
		return "upcoming"
	case now.After(e.EndsAt):
		return "ended"
	default:
		return "active"
	}
}
