package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doorlist/checkin-engine/internal/model"
)

// auditEntry is the internal shape appended inside mutation transactions.
type auditEntry struct {
	EventID     uuid.UUID
	AttendeeID  *uuid.UUID
	Action      model.AuditAction
	Description string
	ActorID     *uuid.UUID
	OldValues   json.RawMessage
	NewValues   json.RawMessage
	CreatedAt   time.Time
}

// appendAudit inserts an audit row within the caller's transaction, so the
// entry commits or rolls back together with the mutation it describes. The
// table has no update or delete path anywhere in this package.
func appendAudit(ctx context.Context, tx pgx.Tx, e auditEntry) (uuid.UUID, error) {
	id := uuid.New()
	_, err := tx.Exec(ctx,
		`INSERT INTO audit_log (id, event_id, attendee_id, action_type, description,
		                        actor_id, old_values, new_values, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, e.EventID, e.AttendeeID, e.Action, e.Description,
		e.ActorID, e.OldValues, e.NewValues, e.CreatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("append audit entry: %w", err)
	}
	return id, nil
}

// AuditRepository reads the append-only audit trail.
type AuditRepository struct {
	db *pgxpool.Pool
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// Recent returns the newest audit entries for an event, newest first.
func (r *AuditRepository) Recent(ctx context.Context, eventID uuid.UUID, limit int) ([]model.AuditLogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, event_id, attendee_id, action_type, description,
		        actor_id, old_values, new_values, created_at
		 FROM audit_log
		 WHERE event_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		eventID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditLogEntry
	for rows.Next() {
		var e model.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.EventID, &e.AttendeeID, &e.Action, &e.Description,
			&e.ActorID, &e.OldValues, &e.NewValues, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
