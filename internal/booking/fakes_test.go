package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/nutrisensia/scheduling-service/internal/redis"
)

// memRepo is an in-memory Repository for service tests.
type memRepo struct {
	providers map[uuid.UUID]*Provider
	patients  map[uuid.UUID]*Patient
	appts     map[uuid.UUID]*Appointment
	templates map[uuid.UUID]*AvailabilityTemplate
	types     map[uuid.UUID]*ConsultationType
	outbox    []NotificationMessage

	failEnqueue error
	nextID      int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		providers: make(map[uuid.UUID]*Provider),
		patients:  make(map[uuid.UUID]*Patient),
		appts:     make(map[uuid.UUID]*Appointment),
		templates: make(map[uuid.UUID]*AvailabilityTemplate),
		types:     make(map[uuid.UUID]*ConsultationType),
	}
}

func (m *memRepo) GetProviderByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	if p, ok := m.providers[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, ErrProviderNotFound
}

func (m *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	if p, ok := m.patients[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, ErrPatientNotFound
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	if a, ok := m.appts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, ErrAppointmentNotFound
}

func (m *memRepo) ListBlockingAppointments(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	var out []Appointment
	for _, a := range m.appts {
		if a.ProviderID != providerID || !a.Status.Blocks() {
			continue
		}
		if Overlaps(from, to, a.ScheduledAt, a.ScheduledEndAt) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memRepo) ConfirmAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok || a.Status != StatusPending {
		return nil, ErrAppointmentNotFound
	}
	now := time.Now()
	a.Status = StatusConfirmed
	a.StatusChangedAt = &now
	a.UpdatedAt = now
	cp := *a
	return &cp, nil
}

func (m *memRepo) DeclineAppointment(_ context.Context, id uuid.UUID, reason, actor string) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok || a.Status != StatusPending {
		return nil, ErrAppointmentNotFound
	}
	now := time.Now()
	a.Status = StatusCancelledByNutritionist
	a.StatusReason = &reason
	a.StatusChangedAt = &now
	a.CancelledAt = &now
	a.CancelledBy = &actor
	a.UpdatedAt = now
	cp := *a
	return &cp, nil
}

func (m *memRepo) RescheduleAppointment(_ context.Context, id uuid.UUID, start, end time.Time, note *string) (*Appointment, error) {
	a, ok := m.appts[id]
	if !ok || a.Status != StatusPending {
		return nil, ErrAppointmentNotFound
	}
	now := time.Now()
	reason := "counter_proposal"
	a.ScheduledAt = start
	a.ScheduledEndAt = end
	a.StatusReason = &reason
	a.StatusChangedAt = &now
	if note != nil {
		a.InternalNote = note
	}
	a.UpdatedAt = now
	cp := *a
	return &cp, nil
}

func (m *memRepo) CreateTemplate(_ context.Context, t *AvailabilityTemplate) (*AvailabilityTemplate, error) {
	cp := *t
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.templates[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memRepo) GetTemplateByID(_ context.Context, id uuid.UUID) (*AvailabilityTemplate, error) {
	if t, ok := m.templates[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, ErrTemplateNotFound
}

func (m *memRepo) ListTemplatesByProvider(_ context.Context, providerID uuid.UUID) ([]AvailabilityTemplate, error) {
	var out []AvailabilityTemplate
	for _, t := range m.templates {
		if t.ProviderID == providerID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memRepo) UpdateTemplate(_ context.Context, t *AvailabilityTemplate) (*AvailabilityTemplate, error) {
	if _, ok := m.templates[t.ID]; !ok {
		return nil, ErrTemplateNotFound
	}
	cp := *t
	cp.UpdatedAt = time.Now()
	m.templates[t.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memRepo) DeleteTemplate(_ context.Context, id uuid.UUID) error {
	if _, ok := m.templates[id]; !ok {
		return ErrTemplateNotFound
	}
	delete(m.templates, id)
	return nil
}

func (m *memRepo) CreateConsultationType(_ context.Context, ct *ConsultationType) (*ConsultationType, error) {
	cp := *ct
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.types[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memRepo) GetConsultationTypeByID(_ context.Context, id uuid.UUID) (*ConsultationType, error) {
	if ct, ok := m.types[id]; ok {
		cp := *ct
		return &cp, nil
	}
	return nil, ErrConsultationTypeNotFound
}

func (m *memRepo) ListConsultationTypesByProvider(_ context.Context, providerID uuid.UUID) ([]ConsultationType, error) {
	var out []ConsultationType
	for _, ct := range m.types {
		if ct.ProviderID == providerID {
			out = append(out, *ct)
		}
	}
	return out, nil
}

func (m *memRepo) UpdateConsultationType(_ context.Context, ct *ConsultationType) (*ConsultationType, error) {
	if _, ok := m.types[ct.ID]; !ok {
		return nil, ErrConsultationTypeNotFound
	}
	cp := *ct
	cp.UpdatedAt = time.Now()
	m.types[ct.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memRepo) RetireConsultationType(_ context.Context, id uuid.UUID) (*ConsultationType, error) {
	ct, ok := m.types[id]
	if !ok {
		return nil, ErrConsultationTypeNotFound
	}
	ct.Lifecycle = TypeRetired
	ct.UpdatedAt = time.Now()
	cp := *ct
	return &cp, nil
}

func (m *memRepo) DeleteConsultationType(_ context.Context, id uuid.UUID) error {
	if _, ok := m.types[id]; !ok {
		return ErrConsultationTypeNotFound
	}
	delete(m.types, id)
	return nil
}

func (m *memRepo) CountTemplatesReferencingType(_ context.Context, typeID uuid.UUID) (int, error) {
	count := 0
	for _, t := range m.templates {
		if t.ConsultationTypeID != nil && *t.ConsultationTypeID == typeID {
			count++
		}
	}
	return count, nil
}

func (m *memRepo) EnqueueNotification(_ context.Context, msg NotificationMessage) error {
	if m.failEnqueue != nil {
		return m.failEnqueue
	}
	m.nextID++
	msg.ID = m.nextID
	if msg.Status == "" {
		msg.Status = NotificationQueued
	}
	m.outbox = append(m.outbox, msg)
	return nil
}

func (m *memRepo) ClaimQueuedNotifications(_ context.Context, limit int) ([]NotificationMessage, error) {
	var out []NotificationMessage
	for i := range m.outbox {
		if len(out) >= limit {
			break
		}
		if m.outbox[i].Status == NotificationQueued {
			m.outbox[i].Status = NotificationSending
			out = append(out, m.outbox[i])
		}
	}
	return out, nil
}

func (m *memRepo) MarkNotificationSent(_ context.Context, id int64) error {
	for i := range m.outbox {
		if m.outbox[i].ID == id {
			now := time.Now()
			m.outbox[i].Status = NotificationSent
			m.outbox[i].SentAt = &now
			return nil
		}
	}
	return nil
}

func (m *memRepo) MarkNotificationFailed(_ context.Context, id int64, reason string) error {
	for i := range m.outbox {
		if m.outbox[i].ID == id {
			m.outbox[i].Status = NotificationFailed
			m.outbox[i].LastError = &reason
			return nil
		}
	}
	return nil
}

// fakeLocker runs the critical section inline, or refuses when busy.
type fakeLocker struct {
	busy  bool
	calls int
}

func (l *fakeLocker) WithProviderLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	l.calls++
	if l.busy {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}
