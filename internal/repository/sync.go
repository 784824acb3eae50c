package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doorlist/checkin-engine/internal/model"
)

// SyncRepository persists offline queue entries and their conflicts.
type SyncRepository struct {
	db *pgxpool.Pool
}

// NewSyncRepository constructs a SyncRepository.
func NewSyncRepository(db *pgxpool.Pool) *SyncRepository {
	return &SyncRepository{db: db}
}

// SaveQueueEntry records the server-side outcome of one replayed entry.
// Upserting on (user_id, local_id) keeps wholesale batch retries
// idempotent: a re-replayed entry overwrites its previous outcome instead
// of duplicating the row.
func (r *SyncRepository) SaveQueueEntry(ctx context.Context, e *model.OfflineQueueEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO offline_sync_queue
		   (id, local_id, event_id, user_id, attendee_id, check_in_time,
		    notes, override_capacity, is_manual_entry, manual_entry_data,
		    sync_status, error_message, synced_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (user_id, local_id) DO UPDATE
		 SET sync_status = EXCLUDED.sync_status,
		     error_message = EXCLUDED.error_message,
		     synced_at = EXCLUDED.synced_at`,
		e.ID, e.LocalID, e.EventID, e.UserID, e.AttendeeID, e.CheckInTime,
		nullIfEmpty(e.Notes), e.OverrideCapacity, e.IsManualEntry, e.ManualEntryData,
		e.Status, nullIfEmpty(e.ErrorMessage), e.SyncedAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save queue entry: %w", err)
	}
	return nil
}

// SaveConflict records one reconciliation conflict. Conflicts are
// write-once; resolution state changes go through ResolveConflict.
func (r *SyncRepository) SaveConflict(ctx context.Context, c *model.SyncConflict) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO sync_conflicts
		   (id, local_id, attendee_id, event_id, classification, resolution, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.LocalID, c.AttendeeID, c.EventID, c.Classification, c.Resolution,
		nullIfEmpty(c.Detail), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save sync conflict: %w", err)
	}
	return nil
}

// PendingSyncCount counts a user's unresolved queue entries: those never
// replayed plus those stuck on a conflict awaiting manual review.
func (r *SyncRepository) PendingSyncCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM offline_sync_queue
		 WHERE user_id = $1 AND sync_status IN ($2, $3)`,
		userID, model.SyncPending, model.SyncConflicted,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pending sync count: %w", err)
	}
	return count, nil
}

// ResolveConflict marks a manual_required conflict as addressed and
// releases the queue entry it blocked. Resolving an unknown, auto-resolved,
// or already-resolved conflict returns ErrNotFound.
func (r *SyncRepository) ResolveConflict(ctx context.Context, conflictID, staffID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE sync_conflicts
		 SET resolved_by = $2, resolved_at = $3
		 WHERE id = $1 AND resolution = $4 AND resolved_at IS NULL`,
		conflictID, staffID, now, model.ResolutionManual,
	)
	if err != nil {
		return fmt.Errorf("resolve conflict: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = ErrNotFound
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE offline_sync_queue q
		 SET sync_status = $2, synced_at = $3
		 FROM sync_conflicts c
		 WHERE c.id = $1 AND q.local_id = c.local_id AND q.attendee_id = c.attendee_id`,
		conflictID, model.SyncCompleted, now,
	)
	if err != nil {
		return fmt.Errorf("release queue entry: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit conflict resolution: %w", err)
	}
	return nil
}

// EventSyncSummary summarises offline-sync state for one event's
// dashboard.
func (r *SyncRepository) EventSyncSummary(ctx context.Context, eventID uuid.UUID) (*model.SyncSummary, error) {
	var summary model.SyncSummary
	var lastSync *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT
		   (SELECT count(*) FROM offline_sync_queue
		    WHERE event_id = $1 AND sync_status IN ($2, $3)),
		   (SELECT count(*) FROM sync_conflicts
		    WHERE event_id = $1 AND resolution = $4 AND resolved_at IS NULL),
		   (SELECT max(synced_at) FROM offline_sync_queue WHERE event_id = $1)`,
		eventID, model.SyncPending, model.SyncConflicted, model.ResolutionManual,
	).Scan(&summary.PendingCount, &summary.ConflictCount, &lastSync)
	if err != nil {
		return nil, fmt.Errorf("event sync summary: %w", err)
	}
	if lastSync != nil {
		summary.LastSync = *lastSync
	}
	return &summary, nil
}
