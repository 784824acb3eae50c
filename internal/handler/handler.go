// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/doorlist/checkin-engine/internal/model"
	"github.com/doorlist/checkin-engine/internal/repository"
)

// CheckInProcessor is the admission-side service surface the handlers use.
type CheckInProcessor interface {
	CheckIn(ctx context.Context, req model.CheckInRequest) (*model.CheckInResponse, error)
	Undo(ctx context.Context, attendeeID, staffID uuid.UUID) error
	Dashboard(ctx context.Context, eventID uuid.UUID) (*model.DashboardResponse, error)
	RecentActivity(ctx context.Context, eventID uuid.UUID, limit int) ([]model.AuditLogEntry, error)
	Attendees(ctx context.Context, eventID uuid.UUID, filter model.AttendeeFilter) (*model.AttendeePage, error)
}

// Reconciler is the offline-sync service surface the handlers use.
type Reconciler interface {
	ProcessBatch(ctx context.Context, userID uuid.UUID, entries []model.OfflineQueueEntry) (*model.BatchResult, error)
	PendingCount(ctx context.Context, userID uuid.UUID) (int, error)
	ResolveConflict(ctx context.Context, conflictID, staffID uuid.UUID) error
}

// Handler holds all HTTP handlers for the check-in API.
type Handler struct {
	checkin  CheckInProcessor
	sync     Reconciler
	validate *validator.Validate
}

// New constructs a Handler.
func New(checkin CheckInProcessor, sync Reconciler) *Handler {
	return &Handler{
		checkin:  checkin,
		sync:     sync,
		validate: validator.New(),
	}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps domain sentinels onto HTTP statuses. Anything
// unmapped is a store or internal failure, never a caller mistake: it
// comes back 503 with a generic message so connection details stay out of
// responses. 400 is reserved for decode and validation errors.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrNoActiveCheckIn):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrAlreadyCheckedIn),
		errors.Is(err, repository.ErrCapacityExceeded),
		errors.Is(err, repository.ErrSessionFull):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrWaiverIncomplete):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, repository.ErrManualEntryMissing):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	}
}

func urlUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

// ─── Check-in ─────────────────────────────────────────────────────────────────

// CheckIn handles POST /api/check-in
// Validates and commits a single online admission.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req model.CheckInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	resp, err := h.checkin.CheckIn(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// UndoCheckIn handles DELETE /api/check-in/{attendeeID}?staff_id=...
// Administrative reversal of an admission.
func (h *Handler) UndoCheckIn(w http.ResponseWriter, r *http.Request) {
	attendeeID, err := urlUUID(r, "attendeeID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid attendee id")
		return
	}
	staffID, err := uuid.Parse(r.URL.Query().Get("staff_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "staff_id query parameter must be a uuid")
		return
	}

	if err := h.checkin.Undo(r.Context(), attendeeID, staffID); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ─── Event views ──────────────────────────────────────────────────────────────

// Dashboard handles GET /api/events/{eventID}/dashboard
// Returns capacity, product availability, recent check-ins, and sync state.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	eventID, err := urlUUID(r, "eventID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	resp, err := h.checkin.Dashboard(r.Context(), eventID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Attendees handles GET /api/events/{eventID}/attendees
// Supports search, status filter, and pagination for the staff view.
func (h *Handler) Attendees(w http.ResponseWriter, r *http.Request) {
	eventID, err := urlUUID(r, "eventID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	q := r.URL.Query()
	filter := model.AttendeeFilter{
		Search: q.Get("search"),
		Status: model.RegistrationStatus(q.Get("status")),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PageSize, _ = strconv.Atoi(q.Get("page_size"))

	page, err := h.checkin.Attendees(r.Context(), eventID, filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if page.Attendees == nil {
		page.Attendees = []model.Attendee{}
	}

	writeJSON(w, http.StatusOK, page)
}

// AuditLog handles GET /api/events/{eventID}/audit
// Returns recent audit entries, newest first.
func (h *Handler) AuditLog(w http.ResponseWriter, r *http.Request) {
	eventID, err := urlUUID(r, "eventID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.checkin.RecentActivity(r.Context(), eventID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if entries == nil {
		entries = []model.AuditLogEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

// ─── Offline sync ─────────────────────────────────────────────────────────────

// batchErrorResponse reports a batch aborted by a hard store failure,
// including the work that committed before the abort.
type batchErrorResponse struct {
	Error          string               `json:"error"`
	ProcessedCount int                  `json:"processed_count"`
	Conflicts      []model.SyncConflict `json:"conflicts"`
}

// SyncBatch handles POST /api/sync/batch
// Replays a batch of offline check-ins in the order supplied.
func (h *Handler) SyncBatch(w http.ResponseWriter, r *http.Request) {
	var req model.SyncBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "user_id is not a valid uuid")
		return
	}

	entries := make([]model.OfflineQueueEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		eventID, err := uuid.Parse(e.EventID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "entry "+e.LocalID+": event_id is not a valid uuid")
			return
		}
		attendeeID, err := uuid.Parse(e.AttendeeID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "entry "+e.LocalID+": attendee_id is not a valid uuid")
			return
		}
		entries = append(entries, model.OfflineQueueEntry{
			LocalID:          e.LocalID,
			EventID:          eventID,
			UserID:           userID,
			AttendeeID:       attendeeID,
			CheckInTime:      e.CheckInTime,
			Notes:            e.Notes,
			OverrideCapacity: e.OverrideCapacity,
			IsManualEntry:    e.IsManualEntry,
			ManualEntryData:  e.ManualEntryData,
		})
	}

	result, err := h.sync.ProcessBatch(r.Context(), userID, entries)
	if err != nil {
		// Transient failure mid-batch: report what committed so the
		// client can retry the batch wholesale.
		writeJSON(w, http.StatusServiceUnavailable, batchErrorResponse{
			Error:          err.Error(),
			ProcessedCount: result.ProcessedCount,
			Conflicts:      result.Conflicts,
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// PendingSyncCount handles GET /api/sync/pending?user_id=...
func (h *Handler) PendingSyncCount(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "user_id query parameter must be a uuid")
		return
	}

	count, err := h.sync.PendingCount(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"pending_count": count})
}

// ResolveConflict handles POST /api/sync/conflicts/{conflictID}/resolve
// Marks a manual_required conflict as addressed by a staff member.
func (h *Handler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	conflictID, err := urlUUID(r, "conflictID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conflict id")
		return
	}

	var body struct {
		StaffID string `json:"staff_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	staffID, err := uuid.Parse(body.StaffID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "staff_id is not a valid uuid")
		return
	}

	if err := h.sync.ResolveConflict(r.Context(), conflictID, staffID); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
