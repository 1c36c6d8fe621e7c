package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nutrisensia/scheduling-service/internal/booking"
	"github.com/nutrisensia/scheduling-service/internal/config"
)

// stubRepo embeds the Repository interface; only the methods the routed
// handlers reach are implemented, anything else panics loudly.
type stubRepo struct {
	booking.Repository

	provider  *booking.Provider
	appt      *booking.Appointment
	blocking  []booking.Appointment
	ct        *booking.ConsultationType
	templates []booking.AvailabilityTemplate
	typeRefs  int
	retired   bool
	outbox    int
}

func (s *stubRepo) GetProviderByID(_ context.Context, id uuid.UUID) (*booking.Provider, error) {
	if s.provider != nil && s.provider.ID == id {
		cp := *s.provider
		return &cp, nil
	}
	return nil, booking.ErrProviderNotFound
}

func (s *stubRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	if s.appt != nil && s.appt.ID == id {
		cp := *s.appt
		return &cp, nil
	}
	return nil, booking.ErrAppointmentNotFound
}

func (s *stubRepo) ListBlockingAppointments(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]booking.Appointment, error) {
	var out []booking.Appointment
	for _, a := range s.blocking {
		if a.ProviderID == providerID && booking.Overlaps(from, to, a.ScheduledAt, a.ScheduledEndAt) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubRepo) ConfirmAppointment(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	if s.appt == nil || s.appt.ID != id || s.appt.Status != booking.StatusPending {
		return nil, booking.ErrAppointmentNotFound
	}
	now := time.Now()
	s.appt.Status = booking.StatusConfirmed
	s.appt.StatusChangedAt = &now
	cp := *s.appt
	return &cp, nil
}

func (s *stubRepo) RescheduleAppointment(_ context.Context, id uuid.UUID, start, end time.Time, note *string) (*booking.Appointment, error) {
	if s.appt == nil || s.appt.ID != id || s.appt.Status != booking.StatusPending {
		return nil, booking.ErrAppointmentNotFound
	}
	reason := "counter_proposal"
	s.appt.ScheduledAt = start
	s.appt.ScheduledEndAt = end
	s.appt.StatusReason = &reason
	if note != nil {
		s.appt.InternalNote = note
	}
	cp := *s.appt
	return &cp, nil
}

func (s *stubRepo) GetConsultationTypeByID(_ context.Context, id uuid.UUID) (*booking.ConsultationType, error) {
	if s.ct != nil && s.ct.ID == id {
		cp := *s.ct
		return &cp, nil
	}
	return nil, booking.ErrConsultationTypeNotFound
}

func (s *stubRepo) ListTemplatesByProvider(_ context.Context, providerID uuid.UUID) ([]booking.AvailabilityTemplate, error) {
	var out []booking.AvailabilityTemplate
	for _, t := range s.templates {
		if t.ProviderID == providerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubRepo) CountTemplatesReferencingType(_ context.Context, _ uuid.UUID) (int, error) {
	return s.typeRefs, nil
}

func (s *stubRepo) RetireConsultationType(_ context.Context, id uuid.UUID) (*booking.ConsultationType, error) {
	if s.ct == nil || s.ct.ID != id {
		return nil, booking.ErrConsultationTypeNotFound
	}
	s.retired = true
	s.ct.Lifecycle = booking.TypeRetired
	cp := *s.ct
	return &cp, nil
}

func (s *stubRepo) EnqueueNotification(_ context.Context, _ booking.NotificationMessage) error {
	s.outbox++
	return nil
}

type passLocker struct{}

func (passLocker) WithProviderLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestRouter(repo *stubRepo) http.Handler {
	cfg := config.Config{
		DefaultDuration: 30 * time.Minute,
		SlotGranularity: 30 * time.Minute,
		NotifyBatchSize: 10,
	}
	svc := booking.NewService(repo, passLocker{}, cfg, zerolog.Nop())
	return NewRouter(RouterConfig{Service: svc, Logger: zerolog.Nop()})
}

func seedStub() *stubRepo {
	providerID := uuid.New()
	return &stubRepo{
		provider: &booking.Provider{ID: providerID, DisplayName: "Claire Dupont"},
		appt: &booking.Appointment{
			ID:             uuid.New(),
			ProviderID:     providerID,
			PatientID:      uuid.New(),
			ScheduledAt:    time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
			ScheduledEndAt: time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC),
			Status:         booking.StatusPending,
		},
	}
}

func doRequest(t *testing.T, router http.Handler, method, path, providerID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if providerID != "" {
		req.Header.Set("X-Provider-ID", providerID)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRespondHandler_Accept(t *testing.T) {
	repo := seedStub()
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodPost,
		"/appointments/"+repo.appt.ID.String()+"/respond",
		repo.provider.ID.String(),
		`{"action":"accept"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp AppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "confirmed" {
		t.Errorf("status = %q, want confirmed", resp.Status)
	}
	if repo.outbox != 1 {
		t.Errorf("outbox rows = %d, want 1", repo.outbox)
	}
}

func TestRespondHandler_UnknownAction(t *testing.T) {
	repo := seedStub()
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodPost,
		"/appointments/"+repo.appt.ID.String()+"/respond",
		repo.provider.ID.String(),
		`{"action":"postpone"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "validation_error") {
		t.Errorf("body = %s, want validation_error", rec.Body.String())
	}
}

func TestRespondHandler_MissingProviderHeader(t *testing.T) {
	repo := seedStub()
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodPost,
		"/appointments/"+repo.appt.ID.String()+"/respond",
		"",
		`{"action":"accept"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRespondHandler_ForeignAppointmentIs404(t *testing.T) {
	repo := seedStub()
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodPost,
		"/appointments/"+repo.appt.ID.String()+"/respond",
		uuid.NewString(),
		`{"action":"accept"}`)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for foreign appointment", rec.Code)
	}
}

func TestRespondHandler_NonPendingIs400(t *testing.T) {
	repo := seedStub()
	repo.appt.Status = booking.StatusConfirmed
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodPost,
		"/appointments/"+repo.appt.ID.String()+"/respond",
		repo.provider.ID.String(),
		`{"action":"accept"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "confirmed") {
		t.Errorf("body must echo the actual status, got: %s", rec.Body.String())
	}
}

func TestRespondHandler_ProposeConflictIs409(t *testing.T) {
	repo := seedStub()
	repo.blocking = []booking.Appointment{{
		ID:             uuid.New(),
		ProviderID:     repo.provider.ID,
		ScheduledAt:    time.Date(2024, 6, 1, 14, 15, 0, 0, time.UTC),
		ScheduledEndAt: time.Date(2024, 6, 1, 14, 45, 0, 0, time.UTC),
		Status:         booking.StatusConfirmed,
	}}
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodPost,
		"/appointments/"+repo.appt.ID.String()+"/respond",
		repo.provider.ID.String(),
		`{"action":"propose_new_time","proposed_at":"2024-06-01T14:00:00Z"}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409; body: %s", rec.Code, rec.Body.String())
	}
	if !repo.appt.ScheduledAt.Equal(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)) {
		t.Error("conflicting proposal must leave the appointment unchanged")
	}
}

func TestRespondHandler_ProposeSuccess(t *testing.T) {
	repo := seedStub()
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodPost,
		"/appointments/"+repo.appt.ID.String()+"/respond",
		repo.provider.ID.String(),
		`{"action":"propose_new_time","proposed_at":"2024-06-01T14:00:00Z"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp AppointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.ScheduledAt.Equal(time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)) {
		t.Errorf("scheduled_at = %v, want 14:00", resp.ScheduledAt)
	}
	if !resp.ScheduledEndAt.Equal(time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC)) {
		t.Errorf("scheduled_end_at = %v, want 14:30", resp.ScheduledEndAt)
	}
	if resp.StatusReason == nil || *resp.StatusReason != "counter_proposal" {
		t.Errorf("status_reason = %v, want counter_proposal", resp.StatusReason)
	}
}

func TestRespondHandler_ProposeWithoutTimestamp(t *testing.T) {
	repo := seedStub()
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodPost,
		"/appointments/"+repo.appt.ID.String()+"/respond",
		repo.provider.ID.String(),
		`{"action":"propose_new_time"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteConsultationTypeHandler_SoftDelete(t *testing.T) {
	repo := seedStub()
	repo.ct = &booking.ConsultationType{
		ID:                 uuid.New(),
		ProviderID:         repo.provider.ID,
		Code:               "initial",
		Name:               "Première consultation",
		DefaultDurationMin: 60,
		Lifecycle:          booking.TypeActive,
	}
	repo.typeRefs = 2
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodDelete,
		"/consultation-types/"+repo.ct.ID.String(),
		repo.provider.ID.String(), "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp DeleteConsultationTypeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.SoftDeleted {
		t.Error("softDeleted = false, want true for a referenced type")
	}
	if !repo.retired {
		t.Error("referenced type must be retired, not deleted")
	}
}

func TestProviderAvailabilityHandler(t *testing.T) {
	repo := seedStub()
	repo.templates = []booking.AvailabilityTemplate{{
		ID:         uuid.New(),
		ProviderID: repo.provider.ID,
		Kind:       booking.TemplateRecurring,
		Weekday:    time.Monday,
		StartMinute: 9 * 60, EndMinute: 11 * 60,
		Active: true,
	}}
	router := newTestRouter(repo)

	// 2024-06-03 is a Monday.
	rec := doRequest(t, router, http.MethodGet,
		"/providers/"+repo.provider.ID.String()+"/availability?from=2024-06-03&to=2024-06-04",
		"", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var days []DayAvailabilityResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &days); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("day count = %d, want 2", len(days))
	}
	if !days[0].HasAvailability || days[0].SlotCount != 4 {
		t.Errorf("monday: has=%v count=%d, want 4 open slots", days[0].HasAvailability, days[0].SlotCount)
	}
	if days[1].HasAvailability {
		t.Error("tuesday has no template, must report no availability")
	}
}

func TestProviderAvailabilityHandler_BadRange(t *testing.T) {
	repo := seedStub()
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodGet,
		"/providers/"+repo.provider.ID.String()+"/availability?from=notadate&to=2024-06-04",
		"", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestProviderAvailabilityHandler_UnknownProvider(t *testing.T) {
	repo := seedStub()
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodGet,
		"/providers/"+uuid.NewString()+"/availability?from=2024-06-03&to=2024-06-04",
		"", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
