package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/doorlist/checkin-engine/internal/model"
	"github.com/doorlist/checkin-engine/internal/repository"
)

// stubEngine satisfies both service interfaces with canned outcomes so the
// handlers can be driven through httptest without the real services.
type stubEngine struct {
	checkInErr   error
	undoErr      error
	dashboardErr error
	batchResult  *model.BatchResult
	batchErr     error
	pending      int
	pendingErr   error
	resolveErr   error
}

func (s *stubEngine) CheckIn(_ context.Context, req model.CheckInRequest) (*model.CheckInResponse, error) {
	if s.checkInErr != nil {
		return nil, s.checkInErr
	}
	attendeeID, _ := uuid.Parse(req.AttendeeID)
	return &model.CheckInResponse{
		Success:     true,
		AttendeeID:  attendeeID,
		CheckInTime: time.Now().UTC(),
		Message:     "Check-in successful",
	}, nil
}

func (s *stubEngine) Undo(context.Context, uuid.UUID, uuid.UUID) error {
	return s.undoErr
}

func (s *stubEngine) Dashboard(_ context.Context, eventID uuid.UUID) (*model.DashboardResponse, error) {
	if s.dashboardErr != nil {
		return nil, s.dashboardErr
	}
	return &model.DashboardResponse{EventID: eventID, Capacity: &model.CapacitySnapshot{}}, nil
}

func (s *stubEngine) RecentActivity(context.Context, uuid.UUID, int) ([]model.AuditLogEntry, error) {
	return nil, nil
}

func (s *stubEngine) Attendees(_ context.Context, eventID uuid.UUID, _ model.AttendeeFilter) (*model.AttendeePage, error) {
	return &model.AttendeePage{EventID: eventID}, nil
}

func (s *stubEngine) ProcessBatch(context.Context, uuid.UUID, []model.OfflineQueueEntry) (*model.BatchResult, error) {
	if s.batchResult != nil {
		return s.batchResult, s.batchErr
	}
	return &model.BatchResult{Conflicts: []model.SyncConflict{}}, s.batchErr
}

func (s *stubEngine) PendingCount(context.Context, uuid.UUID) (int, error) {
	return s.pending, s.pendingErr
}

func (s *stubEngine) ResolveConflict(context.Context, uuid.UUID, uuid.UUID) error {
	return s.resolveErr
}

// newTestRouter mounts the handlers on the same routes main builds.
func newTestRouter(stub *stubEngine) http.Handler {
	h := New(stub, stub)
	r := chi.NewRouter()
	r.Get("/health", HealthCheck)
	r.Route("/api", func(r chi.Router) {
		r.Post("/check-in", h.CheckIn)
		r.Delete("/check-in/{attendeeID}", h.UndoCheckIn)
		r.Route("/events/{eventID}", func(r chi.Router) {
			r.Get("/dashboard", h.Dashboard)
			r.Get("/attendees", h.Attendees)
			r.Get("/audit", h.AuditLog)
		})
		r.Route("/sync", func(r chi.Router) {
			r.Post("/batch", h.SyncBatch)
			r.Get("/pending", h.PendingSyncCount)
			r.Post("/conflicts/{conflictID}/resolve", h.ResolveConflict)
		})
	})
	return r
}

func mustBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(b)
}

func doRequest(t *testing.T, router http.Handler, method, target string, body *bytes.Reader) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, body)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func validCheckInBody() model.CheckInRequest {
	return model.CheckInRequest{
		AttendeeID: uuid.New().String(),
		StaffID:    uuid.New().String(),
	}
}

func TestCheckInStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"success", nil, http.StatusCreated},
		{"unknown attendee", repository.ErrNotFound, http.StatusNotFound},
		{"duplicate", repository.ErrAlreadyCheckedIn, http.StatusConflict},
		{"event full", repository.ErrCapacityExceeded, http.StatusConflict},
		{"session full", repository.ErrSessionFull, http.StatusConflict},
		{"waiver incomplete", repository.ErrWaiverIncomplete, http.StatusUnprocessableEntity},
		{"manual entry missing data", repository.ErrManualEntryMissing, http.StatusBadRequest},
		{"store unavailable", errors.New("begin transaction: dial tcp 127.0.0.1:5432: connect: connection refused"), http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&stubEngine{checkInErr: tc.err})
			rec := doRequest(t, router, http.MethodPost, "/api/check-in", mustBody(t, validCheckInBody()))
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tc.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestCheckInStoreFailureHidesDetails(t *testing.T) {
	storeErr := errors.New("begin transaction: dial tcp 127.0.0.1:5432: connect: connection refused")
	router := newTestRouter(&stubEngine{checkInErr: storeErr})

	rec := doRequest(t, router, http.MethodPost, "/api/check-in", mustBody(t, validCheckInBody()))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "dial tcp") {
		t.Errorf("response leaks internal error detail: %s", rec.Body.String())
	}
}

func TestCheckInRejectsBadRequests(t *testing.T) {
	router := newTestRouter(&stubEngine{})

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"attendee_id":`},
		{"unknown field", `{"attendee_id":"` + uuid.New().String() + `","staff_id":"` + uuid.New().String() + `","badge":"x"}`},
		{"missing staff id", `{"attendee_id":"` + uuid.New().String() + `"}`},
		{"malformed attendee id", `{"attendee_id":"not-a-uuid","staff_id":"` + uuid.New().String() + `"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/api/check-in", bytes.NewReader([]byte(tc.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCheckInAcceptsAnyUUIDVersion(t *testing.T) {
	router := newTestRouter(&stubEngine{})

	// Identifiers minted elsewhere are not necessarily v4.
	body := model.CheckInRequest{
		AttendeeID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8", // v1
		StaffID:    uuid.New().String(),
	}
	rec := doRequest(t, router, http.MethodPost, "/api/check-in", mustBody(t, body))
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestUndoCheckIn(t *testing.T) {
	attendeeID := uuid.New()
	staffID := uuid.New()

	t.Run("success", func(t *testing.T) {
		router := newTestRouter(&stubEngine{})
		rec := doRequest(t, router, http.MethodDelete,
			"/api/check-in/"+attendeeID.String()+"?staff_id="+staffID.String(), nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
	t.Run("nothing to undo", func(t *testing.T) {
		router := newTestRouter(&stubEngine{undoErr: repository.ErrNoActiveCheckIn})
		rec := doRequest(t, router, http.MethodDelete,
			"/api/check-in/"+attendeeID.String()+"?staff_id="+staffID.String(), nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
	t.Run("missing staff id", func(t *testing.T) {
		router := newTestRouter(&stubEngine{})
		rec := doRequest(t, router, http.MethodDelete, "/api/check-in/"+attendeeID.String(), nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestDashboardErrors(t *testing.T) {
	eventID := uuid.New()

	t.Run("unknown event", func(t *testing.T) {
		router := newTestRouter(&stubEngine{dashboardErr: repository.ErrNotFound})
		rec := doRequest(t, router, http.MethodGet, "/api/events/"+eventID.String()+"/dashboard", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
	t.Run("store unavailable", func(t *testing.T) {
		router := newTestRouter(&stubEngine{dashboardErr: errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")})
		rec := doRequest(t, router, http.MethodGet, "/api/events/"+eventID.String()+"/dashboard", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "dial tcp") {
			t.Errorf("response leaks internal error detail: %s", rec.Body.String())
		}
	})
	t.Run("invalid event id", func(t *testing.T) {
		router := newTestRouter(&stubEngine{})
		rec := doRequest(t, router, http.MethodGet, "/api/events/nope/dashboard", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func validBatchBody() model.SyncBatchRequest {
	return model.SyncBatchRequest{
		UserID: uuid.New().String(),
		Entries: []model.SyncBatchEntryRequest{{
			LocalID:     "local-1",
			EventID:     uuid.New().String(),
			AttendeeID:  uuid.New().String(),
			CheckInTime: time.Now().UTC(),
		}},
	}
}

func TestSyncBatchReportsPartialResultOnAbort(t *testing.T) {
	router := newTestRouter(&stubEngine{
		batchResult: &model.BatchResult{ProcessedCount: 1, Conflicts: []model.SyncConflict{}},
		batchErr:    errors.New("replay entry \"local-2\": connection refused"),
	})

	rec := doRequest(t, router, http.MethodPost, "/api/sync/batch", mustBody(t, validBatchBody()))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 (body %s)", rec.Code, rec.Body.String())
	}

	var resp batchErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ProcessedCount != 1 {
		t.Errorf("processed_count = %d, want 1", resp.ProcessedCount)
	}
	if resp.Error == "" {
		t.Error("expected an error message in the envelope")
	}
}

func TestSyncBatchValidation(t *testing.T) {
	router := newTestRouter(&stubEngine{})

	body := model.SyncBatchRequest{UserID: uuid.New().String()}
	rec := doRequest(t, router, http.MethodPost, "/api/sync/batch", mustBody(t, body))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty batch status = %d, want 400", rec.Code)
	}
}

func TestPendingSyncCount(t *testing.T) {
	t.Run("missing user id", func(t *testing.T) {
		router := newTestRouter(&stubEngine{})
		rec := doRequest(t, router, http.MethodGet, "/api/sync/pending", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
	t.Run("counts", func(t *testing.T) {
		router := newTestRouter(&stubEngine{pending: 3})
		rec := doRequest(t, router, http.MethodGet, "/api/sync/pending?user_id="+uuid.New().String(), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var resp map[string]int
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp["pending_count"] != 3 {
			t.Errorf("pending_count = %d, want 3", resp["pending_count"])
		}
	})
}

func TestResolveConflict(t *testing.T) {
	conflictID := uuid.New()
	body := map[string]string{"staff_id": uuid.New().String()}

	t.Run("success", func(t *testing.T) {
		router := newTestRouter(&stubEngine{})
		rec := doRequest(t, router, http.MethodPost,
			"/api/sync/conflicts/"+conflictID.String()+"/resolve", mustBody(t, body))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
	t.Run("unknown or already resolved", func(t *testing.T) {
		router := newTestRouter(&stubEngine{resolveErr: repository.ErrNotFound})
		rec := doRequest(t, router, http.MethodPost,
			"/api/sync/conflicts/"+conflictID.String()+"/resolve", mustBody(t, body))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}
