package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/doorlist/checkin-engine/internal/model"
	"github.com/doorlist/checkin-engine/internal/repository"
)

// SyncService replays batches of offline-recorded check-ins against
// authoritative state. Every admission goes through the same processor as
// online check-ins; this service never writes check-in rows itself.
type SyncService struct {
	checkin *CheckInService
	store   SyncStore
	log     zerolog.Logger
}

// NewSyncService constructs a SyncService.
func NewSyncService(checkin *CheckInService, store SyncStore, log zerolog.Logger) *SyncService {
	return &SyncService{checkin: checkin, store: store, log: log}
}

// ProcessBatch replays entries strictly in the order supplied. Committed
// admissions count toward ProcessedCount; every rejected entry yields a
// SyncConflict, never a silent drop. A hard store failure aborts the
// remaining entries and returns the partial result alongside the error;
// entries committed before the failure stay committed, and the caller
// retries the batch wholesale (replays of already-committed entries come
// back as duplicate_checkin conflicts, which keeps the retry safe).
func (s *SyncService) ProcessBatch(ctx context.Context, userID uuid.UUID, entries []model.OfflineQueueEntry) (*model.BatchResult, error) {
	result := &model.BatchResult{Conflicts: []model.SyncConflict{}}

	for i := range entries {
		entry := &entries[i]
		entry.UserID = userID

		_, err := s.checkin.admit(ctx, model.AdmitParams{
			AttendeeID:       entry.AttendeeID,
			StaffID:          userID,
			CheckInTime:      entry.CheckInTime,
			Notes:            entry.Notes,
			OverrideCapacity: entry.OverrideCapacity,
			IsManualEntry:    entry.IsManualEntry,
			ManualEntryData:  entry.ManualEntryData,
		})

		now := time.Now().UTC()
		if err == nil {
			entry.Status = model.SyncCompleted
			entry.SyncedAt = &now
			if saveErr := s.store.SaveQueueEntry(ctx, entry); saveErr != nil {
				return result, fmt.Errorf("record queue entry %q: %w", entry.LocalID, saveErr)
			}
			result.ProcessedCount++
			continue
		}

		if !isBusinessRejection(err) {
			// Store unavailable or similar: abort the remainder of the
			// batch. Nothing committed so far is rolled back.
			s.log.Error().Err(err).Str("local_id", entry.LocalID).
				Int("processed", result.ProcessedCount).
				Msg("batch replay aborted on hard failure")
			return result, fmt.Errorf("replay entry %q: %w", entry.LocalID, err)
		}

		conflict, cErr := s.buildConflict(ctx, entry, err)
		if cErr != nil {
			return result, cErr
		}

		if conflict.Resolution == model.ResolutionAuto {
			entry.Status = model.SyncCompleted
			entry.SyncedAt = &now
		} else {
			entry.Status = model.SyncConflicted
		}
		entry.ErrorMessage = err.Error()
		if saveErr := s.store.SaveQueueEntry(ctx, entry); saveErr != nil {
			return result, fmt.Errorf("record queue entry %q: %w", entry.LocalID, saveErr)
		}
		if saveErr := s.store.SaveConflict(ctx, conflict); saveErr != nil {
			return result, fmt.Errorf("record conflict for %q: %w", entry.LocalID, saveErr)
		}
		result.Conflicts = append(result.Conflicts, *conflict)
	}

	s.log.Info().
		Stringer("user_id", userID).
		Int("entries", len(entries)).
		Int("processed", result.ProcessedCount).
		Int("conflicts", len(result.Conflicts)).
		Msg("offline batch reconciled")
	return result, nil
}

// buildConflict classifies one rejected entry and decides its resolution.
// Only duplicate check-ins whose offline timestamp is strictly earlier
// than the server's auto-resolve; capacity conflicts always require a
// human because admitting past capacity has physical consequences.
func (s *SyncService) buildConflict(ctx context.Context, entry *model.OfflineQueueEntry, rejection error) (*model.SyncConflict, error) {
	conflict := &model.SyncConflict{
		ID:         uuid.New(),
		LocalID:    entry.LocalID,
		AttendeeID: entry.AttendeeID,
		EventID:    entry.EventID,
		Resolution: model.ResolutionManual,
		Detail:     rejection.Error(),
		CreatedAt:  time.Now().UTC(),
	}

	switch {
	case errors.Is(rejection, repository.ErrAlreadyCheckedIn):
		conflict.Classification = model.ConflictDuplicate
		server, err := s.checkin.checkins.ActiveCheckIn(ctx, entry.AttendeeID)
		switch {
		case err == nil && entry.CheckInTime.Before(server.CheckInTime):
			// The offline device admitted first; the server record stands
			// and the conflict is informational only.
			conflict.Resolution = model.ResolutionAuto
			conflict.Detail = fmt.Sprintf(
				"offline check-in at %s predates server check-in at %s",
				entry.CheckInTime.UTC().Format(time.RFC3339),
				server.CheckInTime.UTC().Format(time.RFC3339),
			)
		case err == nil || errors.Is(err, repository.ErrNoActiveCheckIn):
			// Later-or-equal timestamp, or the server check-in vanished
			// under an undo mid-replay: leave it to a human.
		default:
			return nil, fmt.Errorf("compare server check-in for %q: %w", entry.LocalID, err)
		}
	case errors.Is(rejection, repository.ErrCapacityExceeded), errors.Is(rejection, repository.ErrSessionFull):
		conflict.Classification = model.ConflictCapacityExceeded
	case errors.Is(rejection, repository.ErrNotFound):
		conflict.Classification = model.ConflictAttendeeNotFound
	case errors.Is(rejection, repository.ErrWaiverIncomplete):
		conflict.Classification = model.ConflictWaiverIncomplete
	default:
		conflict.Classification = model.ConflictUnclassified
	}
	return conflict, nil
}

// isBusinessRejection separates admission outcomes that classify into
// conflicts from hard store failures that abort the batch.
func isBusinessRejection(err error) bool {
	return errors.Is(err, repository.ErrAlreadyCheckedIn) ||
		errors.Is(err, repository.ErrCapacityExceeded) ||
		errors.Is(err, repository.ErrSessionFull) ||
		errors.Is(err, repository.ErrNotFound) ||
		errors.Is(err, repository.ErrWaiverIncomplete) ||
		errors.Is(err, repository.ErrManualEntryMissing)
}

// PendingCount reports a user's unresolved offline queue entries.
func (s *SyncService) PendingCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.store.PendingSyncCount(ctx, userID)
}

// ResolveConflict marks a manual_required conflict as addressed.
func (s *SyncService) ResolveConflict(ctx context.Context, conflictID, staffID uuid.UUID) error {
	if err := s.store.ResolveConflict(ctx, conflictID, staffID); err != nil {
		return err
	}
	s.log.Info().
		Stringer("conflict_id", conflictID).
		Stringer("staff_id", staffID).
		Msg("sync conflict resolved")
	return nil
}
