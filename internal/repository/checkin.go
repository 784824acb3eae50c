package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doorlist/checkin-engine/internal/ledger"
	"github.com/doorlist/checkin-engine/internal/model"
)

// CheckInRepository owns the atomic admission and undo transactions.
type CheckInRepository struct {
	db *pgxpool.Pool
}

// NewCheckInRepository constructs a CheckInRepository.
func NewCheckInRepository(db *pgxpool.Pool) *CheckInRepository {
	return &CheckInRepository{db: db}
}

// Admit commits a single admission as one atomic unit: the check-in row,
// the attendee status flip, the event and session counter increments, and
// the audit entry all succeed or none do.
//
// The event row is locked FOR UPDATE up front so concurrent admissions for
// the same event serialize on the capacity counters. The unique index on
// check_ins(attendee_id) is the final arbiter for duplicates: even if two
// transactions race past the existence check, only one insert commits.
func (r *CheckInRepository) Admit(ctx context.Context, p model.AdmitParams) (*model.AdmissionOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Lock the attendee and its event row. Everything below reads counters
	// under this lock, so the capacity decision is made against current
	// counts, never a snapshot.
	var (
		eventID         uuid.UUID
		productID       *uuid.UUID
		status          model.RegistrationStatus
		waiverCompleted bool
		attendeeName    string
		capacity        int
		checkedIn       int
	)
	err = tx.QueryRow(ctx,
		`SELECT a.event_id, a.product_id, a.registration_status, a.waiver_completed, a.name,
		        e.capacity, e.checked_in_count
		 FROM attendees a
		 JOIN events e ON e.id = a.event_id
		 WHERE a.id = $1
		 FOR UPDATE OF a, e`,
		p.AttendeeID,
	).Scan(&eventID, &productID, &status, &waiverCompleted, &attendeeName, &capacity, &checkedIn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock attendee and event: %w", err)
	}

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM check_ins WHERE attendee_id = $1)`,
		p.AttendeeID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check existing check-in: %w", err)
	}
	if exists {
		err = ErrAlreadyCheckedIn
		return nil, err
	}

	if !waiverCompleted {
		err = ErrWaiverIncomplete
		return nil, err
	}

	// Lock and read the sessions the attendee's product includes, so the
	// per-session counters are current and protected for the increment.
	var sessionIDs []uuid.UUID
	var sessionRemaining []int
	if productID != nil {
		rows, qErr := tx.Query(ctx,
			`SELECT s.id, s.capacity, s.checked_in_count
			 FROM sessions s
			 JOIN product_sessions ps ON ps.session_id = s.id
			 WHERE ps.product_id = $1
			 ORDER BY s.id
			 FOR UPDATE OF s`,
			*productID,
		)
		if qErr != nil {
			err = fmt.Errorf("lock product sessions: %w", qErr)
			return nil, err
		}
		for rows.Next() {
			var id uuid.UUID
			var sCap, sCount int
			if err = rows.Scan(&id, &sCap, &sCount); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan session: %w", err)
			}
			sessionIDs = append(sessionIDs, id)
			sessionRemaining = append(sessionRemaining, ledger.SessionRemaining(sCap, sCount))
		}
		rows.Close()
		if err = rows.Err(); err != nil {
			return nil, fmt.Errorf("read product sessions: %w", err)
		}
	}

	switch ledger.EvaluateAdmission(capacity, checkedIn, status == model.StatusWaitlist, sessionRemaining, p.OverrideCapacity) {
	case ledger.DenyEventFull:
		err = ErrCapacityExceeded
		return nil, err
	case ledger.DenySessionFull:
		err = ErrSessionFull
		return nil, err
	}

	now := time.Now().UTC()
	checkIn := &model.CheckIn{
		ID:               uuid.New(),
		AttendeeID:       p.AttendeeID,
		EventID:          eventID,
		StaffID:          p.StaffID,
		CheckInTime:      p.CheckInTime.UTC(),
		Notes:            p.Notes,
		OverrideCapacity: p.OverrideCapacity,
		IsManualEntry:    p.IsManualEntry,
		ManualEntryData:  p.ManualEntryData,
		CreatedAt:        now,
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO check_ins (id, attendee_id, event_id, staff_id, check_in_time,
		                        notes, override_capacity, is_manual_entry, manual_entry_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		checkIn.ID, checkIn.AttendeeID, checkIn.EventID, checkIn.StaffID, checkIn.CheckInTime,
		nullIfEmpty(checkIn.Notes), checkIn.OverrideCapacity, checkIn.IsManualEntry, checkIn.ManualEntryData, checkIn.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = ErrAlreadyCheckedIn
			return nil, err
		}
		return nil, fmt.Errorf("insert check-in: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE attendees SET registration_status = $2, updated_at = $3 WHERE id = $1`,
		p.AttendeeID, model.StatusCheckedIn, now,
	)
	if err != nil {
		return nil, fmt.Errorf("update attendee status: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE events SET checked_in_count = checked_in_count + 1 WHERE id = $1`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("increment event counter: %w", err)
	}

	if len(sessionIDs) > 0 {
		_, err = tx.Exec(ctx,
			`UPDATE sessions SET checked_in_count = checked_in_count + 1 WHERE id = ANY($1)`,
			sessionIDs,
		)
		if err != nil {
			return nil, fmt.Errorf("increment session counters: %w", err)
		}
	}

	newValues, err := json.Marshal(map[string]any{
		"status":            model.StatusCheckedIn,
		"check_in_time":     checkIn.CheckInTime,
		"staff_id":          p.StaffID,
		"override_capacity": p.OverrideCapacity,
		"is_manual_entry":   p.IsManualEntry,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal audit values: %w", err)
	}
	description := fmt.Sprintf("Check-in completed for %s", attendeeName)
	if p.OverrideCapacity {
		description += " (capacity override)"
	}
	auditID, err := appendAudit(ctx, tx, auditEntry{
		EventID:     eventID,
		AttendeeID:  &p.AttendeeID,
		Action:      model.AuditCheckIn,
		Description: description,
		ActorID:     &p.StaffID,
		OldValues:   mustMarshalStatus(status),
		NewValues:   newValues,
		CreatedAt:   now,
	})
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit admission: %w", err)
	}

	return &model.AdmissionOutcome{CheckIn: checkIn, AuditLogID: auditID}, nil
}

// RemoveCheckIn is the administrative undo. It deletes the active
// check-in, reverts the attendee to confirmed, decrements the counters the
// admission incremented, and appends an undo audit entry, all atomically.
// It returns the event id so the caller can evict the admission cache.
func (r *CheckInRepository) RemoveCheckIn(ctx context.Context, attendeeID, staffID uuid.UUID) (uuid.UUID, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var (
		eventID      uuid.UUID
		productID    *uuid.UUID
		attendeeName string
	)
	err = tx.QueryRow(ctx,
		`SELECT a.event_id, a.product_id, a.name
		 FROM attendees a
		 JOIN events e ON e.id = a.event_id
		 WHERE a.id = $1
		 FOR UPDATE OF a, e`,
		attendeeID,
	).Scan(&eventID, &productID, &attendeeName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("lock attendee and event: %w", err)
	}

	var checkInTime time.Time
	var overrideUsed bool
	err = tx.QueryRow(ctx,
		`DELETE FROM check_ins WHERE attendee_id = $1 RETURNING check_in_time, override_capacity`,
		attendeeID,
	).Scan(&checkInTime, &overrideUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrNoActiveCheckIn
			return uuid.Nil, err
		}
		return uuid.Nil, fmt.Errorf("delete check-in: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx,
		`UPDATE attendees SET registration_status = $2, updated_at = $3 WHERE id = $1`,
		attendeeID, model.StatusConfirmed, now,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("revert attendee status: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE events SET checked_in_count = checked_in_count - 1 WHERE id = $1 AND checked_in_count > 0`,
		eventID,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decrement event counter: %w", err)
	}

	if productID != nil {
		_, err = tx.Exec(ctx,
			`UPDATE sessions SET checked_in_count = checked_in_count - 1
			 WHERE checked_in_count > 0
			   AND id IN (SELECT session_id FROM product_sessions WHERE product_id = $1)`,
			*productID,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("decrement session counters: %w", err)
		}
	}

	oldValues, err := json.Marshal(map[string]any{
		"status":            model.StatusCheckedIn,
		"check_in_time":     checkInTime,
		"override_capacity": overrideUsed,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal audit values: %w", err)
	}
	_, err = appendAudit(ctx, tx, auditEntry{
		EventID:     eventID,
		AttendeeID:  &attendeeID,
		Action:      model.AuditUndo,
		Description: fmt.Sprintf("Check-in undone for %s", attendeeName),
		ActorID:     &staffID,
		OldValues:   oldValues,
		NewValues:   mustMarshalStatus(model.StatusConfirmed),
		CreatedAt:   now,
	})
	if err != nil {
		return uuid.Nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit undo: %w", err)
	}
	return eventID, nil
}

// ActiveCheckIn returns the attendee's current check-in, or
// ErrNoActiveCheckIn when none exists. Used by reconciliation to compare
// timestamps on duplicate conflicts.
func (r *CheckInRepository) ActiveCheckIn(ctx context.Context, attendeeID uuid.UUID) (*model.CheckIn, error) {
	var c model.CheckIn
	var notes *string
	err := r.db.QueryRow(ctx,
		`SELECT id, attendee_id, event_id, staff_id, check_in_time,
		        notes, override_capacity, is_manual_entry, manual_entry_data, created_at
		 FROM check_ins WHERE attendee_id = $1`,
		attendeeID,
	).Scan(&c.ID, &c.AttendeeID, &c.EventID, &c.StaffID, &c.CheckInTime,
		&notes, &c.OverrideCapacity, &c.IsManualEntry, &c.ManualEntryData, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveCheckIn
		}
		return nil, fmt.Errorf("get active check-in: %w", err)
	}
	if notes != nil {
		c.Notes = *notes
	}
	return &c, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func mustMarshalStatus(status model.RegistrationStatus) json.RawMessage {
	b, _ := json.Marshal(map[string]any{"status": status})
	return b
}
