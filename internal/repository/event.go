package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doorlist/checkin-engine/internal/ledger"
	"github.com/doorlist/checkin-engine/internal/model"
)

// EventRepository handles reads for events, attendees, and the derived
// capacity figures the dashboard serves.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// GetEvent returns a single event or ErrNotFound.
func (r *EventRepository) GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	var e model.Event
	err := r.db.QueryRow(ctx,
		`SELECT id, name, starts_at, ends_at, capacity, checked_in_count, published, created_at
		 FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Name, &e.StartsAt, &e.EndsAt, &e.Capacity, &e.CheckedInCount, &e.Published, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

// GetAttendee returns a single attendee or ErrNotFound.
func (r *EventRepository) GetAttendee(ctx context.Context, id uuid.UUID) (*model.Attendee, error) {
	var a model.Attendee
	var ticketNumber *string
	err := r.db.QueryRow(ctx,
		`SELECT id, event_id, user_id, product_id, name, email, ticket_number,
		        registration_status, waiver_completed, created_at, updated_at
		 FROM attendees WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.EventID, &a.UserID, &a.ProductID, &a.Name, &a.Email, &ticketNumber,
		&a.Status, &a.WaiverCompleted, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attendee: %w", err)
	}
	if ticketNumber != nil {
		a.TicketNumber = *ticketNumber
	}
	return &a, nil
}

// EventCapacity computes a fresh capacity snapshot from the stored
// counters. Callers wanting the cached figure go through the admission
// cache; this always hits the store.
func (r *EventRepository) EventCapacity(ctx context.Context, eventID uuid.UUID) (*model.CapacitySnapshot, error) {
	var capacity, checkedIn, waitlist int
	err := r.db.QueryRow(ctx,
		`SELECT e.capacity, e.checked_in_count,
		        (SELECT count(*) FROM attendees a
		         WHERE a.event_id = e.id AND a.registration_status = $2)
		 FROM events e WHERE e.id = $1`,
		eventID, model.StatusWaitlist,
	).Scan(&capacity, &checkedIn, &waitlist)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("event capacity: %w", err)
	}
	return &model.CapacitySnapshot{
		TotalCapacity:  capacity,
		CheckedInCount: checkedIn,
		WaitlistCount:  waitlist,
		AvailableSpots: ledger.SessionRemaining(capacity, checkedIn),
		AtCapacity:     ledger.AtCapacity(capacity, checkedIn),
	}, nil
}

// ProductAvailabilities derives availability for every product of an
// event: the minimum remaining capacity across each product's included
// sessions.
func (r *EventRepository) ProductAvailabilities(ctx context.Context, eventID uuid.UUID) ([]model.ProductAvailability, error) {
	rows, err := r.db.Query(ctx,
		`SELECT p.id, p.name, s.capacity, s.checked_in_count
		 FROM products p
		 LEFT JOIN product_sessions ps ON ps.product_id = p.id
		 LEFT JOIN sessions s ON s.id = ps.session_id
		 WHERE p.event_id = $1
		 ORDER BY p.name, p.id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("query product sessions: %w", err)
	}
	defer rows.Close()

	var out []model.ProductAvailability
	remaining := make(map[uuid.UUID][]int)
	for rows.Next() {
		var (
			id        uuid.UUID
			name      string
			sCapacity *int
			sCount    *int
		)
		if err := rows.Scan(&id, &name, &sCapacity, &sCount); err != nil {
			return nil, fmt.Errorf("scan product session: %w", err)
		}
		if _, seen := remaining[id]; !seen {
			remaining[id] = nil
			out = append(out, model.ProductAvailability{ProductID: id, Name: name})
		}
		if sCapacity != nil && sCount != nil {
			remaining[id] = append(remaining[id], ledger.SessionRemaining(*sCapacity, *sCount))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read product sessions: %w", err)
	}

	for i := range out {
		out[i].Available = ledger.ProductAvailability(remaining[out[i].ProductID]...)
	}
	return out, nil
}

// RecentCheckIns returns the newest check-ins for an event, newest first.
func (r *EventRepository) RecentCheckIns(ctx context.Context, eventID uuid.UUID, limit int) ([]model.RecentCheckIn, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.db.Query(ctx,
		`SELECT c.attendee_id, a.name, c.check_in_time, c.staff_id, c.is_manual_entry
		 FROM check_ins c
		 JOIN attendees a ON a.id = c.attendee_id
		 WHERE c.event_id = $1
		 ORDER BY c.check_in_time DESC
		 LIMIT $2`,
		eventID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent check-ins: %w", err)
	}
	defer rows.Close()

	var recent []model.RecentCheckIn
	for rows.Next() {
		var rc model.RecentCheckIn
		if err := rows.Scan(&rc.AttendeeID, &rc.AttendeeName, &rc.CheckInTime, &rc.StaffID, &rc.IsManualEntry); err != nil {
			return nil, fmt.Errorf("scan recent check-in: %w", err)
		}
		recent = append(recent, rc)
	}
	return recent, rows.Err()
}

// ListAttendees returns one page of an event's attendees for the staff
// check-in view, optionally narrowed by search term and status.
func (r *EventRepository) ListAttendees(ctx context.Context, eventID uuid.UUID, filter model.AttendeeFilter) (*model.AttendeePage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 50
	}

	where := []string{"event_id = $1"}
	args := []any{eventID}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d OR ticket_number ILIKE $%d)", n, n, n))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("registration_status = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	err := r.db.QueryRow(ctx, "SELECT count(*) FROM attendees WHERE "+cond, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count attendees: %w", err)
	}

	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)
	query := fmt.Sprintf(
		`SELECT id, event_id, user_id, product_id, name, email, ticket_number,
		        registration_status, waiver_completed, created_at, updated_at
		 FROM attendees
		 WHERE %s
		 ORDER BY registration_status, name
		 LIMIT $%d OFFSET $%d`,
		cond, len(args)-1, len(args),
	)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	var attendees []model.Attendee
	for rows.Next() {
		var a model.Attendee
		var ticketNumber *string
		if err := rows.Scan(&a.ID, &a.EventID, &a.UserID, &a.ProductID, &a.Name, &a.Email, &ticketNumber,
			&a.Status, &a.WaiverCompleted, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		if ticketNumber != nil {
			a.TicketNumber = *ticketNumber
		}
		attendees = append(attendees, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &model.AttendeePage{
		EventID:    eventID,
		Attendees:  attendees,
		TotalCount: total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
	}, nil
}
