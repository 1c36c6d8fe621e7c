package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var email *string

	err := row.Scan(
		&p.ID,
		&p.DisplayName,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

const appointmentColumns = `id, provider_id, patient_id, consultation_type_id,
	scheduled_at, scheduled_end_at, status, status_reason, status_changed_at,
	cancelled_at, cancelled_by, internal_note, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.PatientID,
		&a.ConsultationTypeID,
		&a.ScheduledAt,
		&a.ScheduledEndAt,
		&a.Status,
		&a.StatusReason,
		&a.StatusChangedAt,
		&a.CancelledAt,
		&a.CancelledBy,
		&a.InternalNote,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

const templateColumns = `id, provider_id, kind, weekday, start_minute, end_minute,
	valid_from, valid_until, video_enabled, in_person_enabled,
	consultation_type_id, active, created_at, updated_at`

func scanTemplate(row pgx.Row) (*AvailabilityTemplate, error) {
	var t AvailabilityTemplate
	var weekday int

	err := row.Scan(
		&t.ID,
		&t.ProviderID,
		&t.Kind,
		&weekday,
		&t.StartMinute,
		&t.EndMinute,
		&t.ValidFrom,
		&t.ValidUntil,
		&t.VideoEnabled,
		&t.InPersonEnabled,
		&t.ConsultationTypeID,
		&t.Active,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	t.Weekday = time.Weekday(weekday)
	return &t, nil
}

const consultationTypeColumns = `id, provider_id, code, name, description,
	default_duration_min, default_price_cents, video_enabled, in_person_enabled,
	lifecycle, sort_order, created_at, updated_at`

func scanConsultationType(row pgx.Row) (*ConsultationType, error) {
	var ct ConsultationType

	err := row.Scan(
		&ct.ID,
		&ct.ProviderID,
		&ct.Code,
		&ct.Name,
		&ct.Description,
		&ct.DefaultDurationMin,
		&ct.DefaultPriceCents,
		&ct.VideoEnabled,
		&ct.InPersonEnabled,
		&ct.Lifecycle,
		&ct.SortOrder,
		&ct.CreatedAt,
		&ct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationTypeNotFound
		}
		return nil, err
	}

	return &ct, nil
}

// Interface methods

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, display_name, email, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListBlockingAppointments(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND status NOT IN ('cancelled', 'cancelled_by_patient', 'cancelled_by_nutritionist', 'no_show')
		  AND scheduled_at < $3
		  AND scheduled_end_at > $2
		ORDER BY scheduled_at
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ConfirmAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'confirmed',
		    status_changed_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+appointmentColumns+`
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) DeclineAppointment(ctx context.Context, id uuid.UUID, reason, actor string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled_by_nutritionist',
		    status_reason = $2,
		    status_changed_at = now(),
		    cancelled_at = now(),
		    cancelled_by = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+appointmentColumns+`
	`, id, reason, actor)
	return scanAppointment(row)
}

func (r *PgRepository) RescheduleAppointment(ctx context.Context, id uuid.UUID, start, end time.Time, note *string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_at = $2,
		    scheduled_end_at = $3,
		    status_reason = 'counter_proposal',
		    status_changed_at = now(),
		    internal_note = COALESCE($4, internal_note),
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+appointmentColumns+`
	`, id, start, end, note)
	return scanAppointment(row)
}

func (r *PgRepository) CreateTemplate(ctx context.Context, t *AvailabilityTemplate) (*AvailabilityTemplate, error) {
	id := t.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_templates (
			id, provider_id, kind, weekday, start_minute, end_minute,
			valid_from, valid_until, video_enabled, in_person_enabled,
			consultation_type_id, active, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING `+templateColumns+`
	`, id, t.ProviderID, t.Kind, int(t.Weekday), t.StartMinute, t.EndMinute,
		t.ValidFrom, t.ValidUntil, t.VideoEnabled, t.InPersonEnabled,
		t.ConsultationTypeID, t.Active)

	return scanTemplate(row)
}

func (r *PgRepository) GetTemplateByID(ctx context.Context, id uuid.UUID) (*AvailabilityTemplate, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM availability_templates
		WHERE id = $1
	`, id)
	return scanTemplate(row)
}

func (r *PgRepository) ListTemplatesByProvider(ctx context.Context, providerID uuid.UUID) ([]AvailabilityTemplate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+templateColumns+`
		FROM availability_templates
		WHERE provider_id = $1
		ORDER BY kind, weekday, start_minute
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateTemplate(ctx context.Context, t *AvailabilityTemplate) (*AvailabilityTemplate, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE availability_templates
		SET weekday = $2,
		    start_minute = $3,
		    end_minute = $4,
		    valid_from = $5,
		    valid_until = $6,
		    video_enabled = $7,
		    in_person_enabled = $8,
		    consultation_type_id = $9,
		    active = $10,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+templateColumns+`
	`, t.ID, int(t.Weekday), t.StartMinute, t.EndMinute, t.ValidFrom, t.ValidUntil,
		t.VideoEnabled, t.InPersonEnabled, t.ConsultationTypeID, t.Active)

	return scanTemplate(row)
}

func (r *PgRepository) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM availability_templates
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func (r *PgRepository) CreateConsultationType(ctx context.Context, ct *ConsultationType) (*ConsultationType, error) {
	id := ct.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO consultation_types (
			id, provider_id, code, name, description,
			default_duration_min, default_price_cents, video_enabled,
			in_person_enabled, lifecycle, sort_order, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING `+consultationTypeColumns+`
	`, id, ct.ProviderID, ct.Code, ct.Name, ct.Description,
		ct.DefaultDurationMin, ct.DefaultPriceCents, ct.VideoEnabled,
		ct.InPersonEnabled, ct.Lifecycle, ct.SortOrder)

	return scanConsultationType(row)
}

func (r *PgRepository) GetConsultationTypeByID(ctx context.Context, id uuid.UUID) (*ConsultationType, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+consultationTypeColumns+`
		FROM consultation_types
		WHERE id = $1
	`, id)
	return scanConsultationType(row)
}

func (r *PgRepository) ListConsultationTypesByProvider(ctx context.Context, providerID uuid.UUID) ([]ConsultationType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+consultationTypeColumns+`
		FROM consultation_types
		WHERE provider_id = $1
		ORDER BY sort_order, code
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ConsultationType
	for rows.Next() {
		ct, err := scanConsultationType(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ct)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateConsultationType(ctx context.Context, ct *ConsultationType) (*ConsultationType, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE consultation_types
		SET code = $2,
		    name = $3,
		    description = $4,
		    default_duration_min = $5,
		    default_price_cents = $6,
		    video_enabled = $7,
		    in_person_enabled = $8,
		    sort_order = $9,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+consultationTypeColumns+`
	`, ct.ID, ct.Code, ct.Name, ct.Description, ct.DefaultDurationMin,
		ct.DefaultPriceCents, ct.VideoEnabled, ct.InPersonEnabled, ct.SortOrder)

	return scanConsultationType(row)
}

func (r *PgRepository) RetireConsultationType(ctx context.Context, id uuid.UUID) (*ConsultationType, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE consultation_types
		SET lifecycle = 'retired',
		    updated_at = now()
		WHERE id = $1
		RETURNING `+consultationTypeColumns+`
	`, id)
	return scanConsultationType(row)
}

func (r *PgRepository) DeleteConsultationType(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM consultation_types
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConsultationTypeNotFound
	}
	return nil
}

func (r *PgRepository) CountTemplatesReferencingType(ctx context.Context, typeID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM availability_templates
		WHERE consultation_type_id = $1
	`, typeID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PgRepository) EnqueueNotification(ctx context.Context, msg NotificationMessage) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_outbox (appointment_id, recipient_id, kind, payload, status, created_at)
		VALUES ($1, $2, $3, $4, 'queued', COALESCE($5, now()))
	`, msg.AppointmentID, msg.RecipientID, msg.Kind, msg.Payload, nullableTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}

	return nil
}

// ClaimQueuedNotifications flips a batch of queued rows to sending before
// returning them, so two workers never deliver the same row. Each enqueue
// gets exactly one delivery attempt; a crash mid-send leaves the row in
// sending, which the sweep does not re-claim.
func (r *PgRepository) ClaimQueuedNotifications(ctx context.Context, limit int) ([]NotificationMessage, error) {
	rows, err := r.pool.Query(ctx, `
		WITH claimed AS (
			SELECT id
			FROM notification_outbox
			WHERE status = 'queued'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_outbox o
		SET status = 'sending'
		FROM claimed
		WHERE o.id = claimed.id
		RETURNING o.id, o.appointment_id, o.recipient_id, o.kind, o.payload, o.status, o.last_error, o.created_at, o.sent_at
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []NotificationMessage
	for rows.Next() {
		var m NotificationMessage
		if err := rows.Scan(&m.ID, &m.AppointmentID, &m.RecipientID, &m.Kind, &m.Payload, &m.Status, &m.LastError, &m.CreatedAt, &m.SentAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) MarkNotificationSent(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET status = 'sent',
		    last_error = NULL,
		    sent_at = now()
		WHERE id = $1
	`, id)
	return err
}

func (r *PgRepository) MarkNotificationFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET status = 'failed',
		    last_error = $2
		WHERE id = $1
	`, id, reason)
	return err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
