package booking

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending                 AppointmentStatus = "pending"
	StatusConfirmed               AppointmentStatus = "confirmed"
	StatusCancelled               AppointmentStatus = "cancelled"
	StatusCancelledByPatient      AppointmentStatus = "cancelled_by_patient"
	StatusCancelledByNutritionist AppointmentStatus = "cancelled_by_nutritionist"
	StatusNoShow                  AppointmentStatus = "no_show"
)

// Blocks reports whether an appointment in this status occupies its time
// interval for conflict and availability purposes. Cancelled-family and
// no-show appointments free their interval; pending and confirmed hold it.
func (s AppointmentStatus) Blocks() bool {
	switch s {
	case StatusCancelled, StatusCancelledByPatient, StatusCancelledByNutritionist, StatusNoShow:
		return false
	default:
		return true
	}
}

type TemplateKind string

const (
	TemplateRecurring    TemplateKind = "recurring"
	TemplateDateOverride TemplateKind = "date_override"
)

type TypeLifecycle string

const (
	TypeActive  TypeLifecycle = "active"
	TypeRetired TypeLifecycle = "retired"
)

type Provider struct {
	ID          uuid.UUID
	DisplayName string
	Email       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID                 uuid.UUID
	ProviderID         uuid.UUID
	PatientID          uuid.UUID
	ConsultationTypeID *uuid.UUID
	ScheduledAt        time.Time
	ScheduledEndAt     time.Time
	Status             AppointmentStatus
	StatusReason       *string
	StatusChangedAt    *time.Time
	CancelledAt        *time.Time
	CancelledBy        *string
	InternalNote       *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Duration returns the stored appointment span, zero when the row is malformed.
func (a *Appointment) Duration() time.Duration {
	d := a.ScheduledEndAt.Sub(a.ScheduledAt)
	if d < 0 {
		return 0
	}
	return d
}

// AvailabilityTemplate is a provider-owned slot definition. A recurring
// template repeats on Weekday inside its validity window; a date_override
// applies to every day inside the window regardless of weekday. Start and
// end are minutes from midnight, always StartMinute < EndMinute.
type AvailabilityTemplate struct {
	ID                 uuid.UUID
	ProviderID         uuid.UUID
	Kind               TemplateKind
	Weekday            time.Weekday
	StartMinute        int
	EndMinute          int
	ValidFrom          *time.Time
	ValidUntil         *time.Time
	VideoEnabled       bool
	InPersonEnabled    bool
	ConsultationTypeID *uuid.UUID
	Active             bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AppliesOn reports whether the template produces slots on the given day.
func (t *AvailabilityTemplate) AppliesOn(day time.Time) bool {
	if !t.Active {
		return false
	}
	date := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	if t.ValidFrom != nil && date.Before(dateOnly(*t.ValidFrom)) {
		return false
	}
	if t.ValidUntil != nil && date.After(dateOnly(*t.ValidUntil)) {
		return false
	}
	if t.Kind == TemplateRecurring && date.Weekday() != t.Weekday {
		return false
	}
	return true
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

type ConsultationType struct {
	ID                 uuid.UUID
	ProviderID         uuid.UUID
	Code               string
	Name               string
	Description        *string
	DefaultDurationMin int
	DefaultPriceCents  int64
	VideoEnabled       bool
	InPersonEnabled    bool
	Lifecycle          TypeLifecycle
	SortOrder          int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type NotificationStatus string

const (
	NotificationQueued  NotificationStatus = "queued"
	NotificationSending NotificationStatus = "sending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// NotificationMessage is an outbox row. State transitions commit first and
// enqueue one of these; the notify worker claims queued rows and delivers
// them. A delivery failure never rolls back the transition.
type NotificationMessage struct {
	ID            int64
	AppointmentID uuid.UUID
	RecipientID   uuid.UUID
	Kind          string
	Payload       []byte
	Status        NotificationStatus
	LastError     *string
	CreatedAt     time.Time
	SentAt        *time.Time
}
