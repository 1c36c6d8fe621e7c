package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProviderNotFound         = errors.New("provider not found")
	ErrPatientNotFound          = errors.New("patient not found")
	ErrAppointmentNotFound      = errors.New("appointment not found")
	ErrTemplateNotFound         = errors.New("availability template not found")
	ErrConsultationTypeNotFound = errors.New("consultation type not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListBlockingAppointments returns every appointment for the provider in
	// a blocking status whose interval intersects [from, to) under the
	// half-open rule.
	ListBlockingAppointments(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)

	// Guarded transitions: each write carries WHERE status = 'pending' and
	// reports ErrAppointmentNotFound when the guard misses.
	ConfirmAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	DeclineAppointment(ctx context.Context, id uuid.UUID, reason, actor string) (*Appointment, error)
	RescheduleAppointment(ctx context.Context, id uuid.UUID, start, end time.Time, note *string) (*Appointment, error)

	// Availability templates
	CreateTemplate(ctx context.Context, t *AvailabilityTemplate) (*AvailabilityTemplate, error)
	GetTemplateByID(ctx context.Context, id uuid.UUID) (*AvailabilityTemplate, error)
	ListTemplatesByProvider(ctx context.Context, providerID uuid.UUID) ([]AvailabilityTemplate, error)
	UpdateTemplate(ctx context.Context, t *AvailabilityTemplate) (*AvailabilityTemplate, error)
	DeleteTemplate(ctx context.Context, id uuid.UUID) error

	// Consultation types
	CreateConsultationType(ctx context.Context, ct *ConsultationType) (*ConsultationType, error)
	GetConsultationTypeByID(ctx context.Context, id uuid.UUID) (*ConsultationType, error)
	ListConsultationTypesByProvider(ctx context.Context, providerID uuid.UUID) ([]ConsultationType, error)
	UpdateConsultationType(ctx context.Context, ct *ConsultationType) (*ConsultationType, error)
	RetireConsultationType(ctx context.Context, id uuid.UUID) (*ConsultationType, error)
	DeleteConsultationType(ctx context.Context, id uuid.UUID) error
	CountTemplatesReferencingType(ctx context.Context, typeID uuid.UUID) (int, error)

	// Notification outbox
	EnqueueNotification(ctx context.Context, msg NotificationMessage) error
	ClaimQueuedNotifications(ctx context.Context, limit int) ([]NotificationMessage, error)
	MarkNotificationSent(ctx context.Context, id int64) error
	MarkNotificationFailed(ctx context.Context, id int64, reason string) error
}
