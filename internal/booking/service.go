package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nutrisensia/scheduling-service/internal/config"
	"github.com/nutrisensia/scheduling-service/internal/notify"
	redisclient "github.com/nutrisensia/scheduling-service/internal/redis"
)

var (
	ErrDuplicateCode    = errors.New("consultation type code already in use for this provider")
	ErrTemplateOverlap  = errors.New("availability template overlaps an existing template for the same day")
	ErrMutationInFlight = errors.New("another schedule mutation for this provider is in flight, please retry")
)

// ValidationError marks malformed caller input. Surfaced as HTTP 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// PreconditionFailedError signals a workflow action against an appointment
// that is not pending. It names the status actually found.
type PreconditionFailedError struct {
	Current AppointmentStatus
}

func (e *PreconditionFailedError) Error() string {
	return fmt.Sprintf("appointment is %q, only pending appointments accept a response", e.Current)
}

// ConflictError signals a proposed interval overlapping existing
// appointments. Surfaced as HTTP 409.
type ConflictError struct {
	Conflicts []Appointment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("proposed interval overlaps %d existing appointment(s)", len(e.Conflicts))
}

// Action is the closed set of provider responses to a pending appointment.
// The API layer decodes request bodies into exactly one of these; the
// service never sees an action string.
type Action interface {
	isAction()
}

type Accept struct{}

type Decline struct {
	Reason string
}

type ProposeNewTime struct {
	ProposedAt time.Time
	Message    *string
}

func (Accept) isAction()         {}
func (Decline) isAction()        {}
func (ProposeNewTime) isAction() {}

// TemplateUpdate carries the mutable fields of an availability template.
// Nil pointers leave the stored value untouched.
type TemplateUpdate struct {
	Weekday            *time.Weekday
	StartMinute        *int
	EndMinute          *int
	ValidFrom          *time.Time
	ValidUntil         *time.Time
	VideoEnabled       *bool
	InPersonEnabled    *bool
	ConsultationTypeID *uuid.UUID
	Active             *bool
}

// ConsultationTypeUpdate carries the mutable fields of a consultation type.
type ConsultationTypeUpdate struct {
	Code               *string
	Name               *string
	Description        *string
	DefaultDurationMin *int
	DefaultPriceCents  *int64
	VideoEnabled       *bool
	InPersonEnabled    *bool
	SortOrder          *int
}

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		log:    log,
	}
}

// RespondToAppointment processes the provider's decision on a pending
// request. Ownership mismatches fold into ErrAppointmentNotFound so callers
// cannot probe other providers' appointments. The state transition commits
// first; the patient notification is enqueued best-effort afterwards.
func (s *Service) RespondToAppointment(ctx context.Context, providerID, appointmentID uuid.UUID, action Action) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.ProviderID != providerID {
		return nil, ErrAppointmentNotFound
	}
	if appt.Status != StatusPending {
		return nil, &PreconditionFailedError{Current: appt.Status}
	}

	switch act := action.(type) {
	case Accept:
		return s.accept(ctx, appt)
	case Decline:
		return s.decline(ctx, appt, act)
	case ProposeNewTime:
		return s.proposeNewTime(ctx, appt, act)
	default:
		return nil, &ValidationError{Msg: "unsupported action"}
	}
}

func (s *Service) accept(ctx context.Context, appt *Appointment) (*Appointment, error) {
	updated, err := s.repo.ConfirmAppointment(ctx, appt.ID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, s.guardMiss(ctx, appt.ID)
		}
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	providerLabel := ""
	if p, perr := s.repo.GetProviderByID(ctx, updated.ProviderID); perr == nil {
		providerLabel = p.DisplayName
	} else {
		s.log.Warn().Err(perr).Str("provider_id", updated.ProviderID.String()).
			Msg("provider label unavailable for confirmation notice")
	}

	s.enqueueNotification(ctx, updated, notify.KindAppointmentConfirmed, map[string]string{
		"date":     notify.FormatDate(updated.ScheduledAt),
		"time":     notify.FormatTime(updated.ScheduledAt),
		"provider": providerLabel,
	})

	return updated, nil
}

func (s *Service) decline(ctx context.Context, appt *Appointment, act Decline) (*Appointment, error) {
	statusReason := "declined:" + act.Reason

	updated, err := s.repo.DeclineAppointment(ctx, appt.ID, statusReason, "nutritionist")
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, s.guardMiss(ctx, appt.ID)
		}
		return nil, fmt.Errorf("decline appointment: %w", err)
	}

	s.enqueueNotification(ctx, updated, notify.KindAppointmentDeclined, map[string]string{
		"date":   notify.FormatDate(updated.ScheduledAt),
		"reason": act.Reason,
	})

	return updated, nil
}

func (s *Service) proposeNewTime(ctx context.Context, appt *Appointment, act ProposeNewTime) (*Appointment, error) {
	if act.ProposedAt.IsZero() {
		return nil, &ValidationError{Msg: "proposed_at is required for propose_new_time"}
	}

	oldStart := appt.ScheduledAt
	newStart := act.ProposedAt
	newEnd := newStart.Add(s.proposedDuration(ctx, appt))

	var updated *Appointment

	// The conflict check and the reschedule write run under the provider
	// lock so two concurrent counter-proposals cannot both pass the check.
	err := s.locker.WithProviderLock(ctx, appt.ProviderID, func(lockCtx context.Context) error {
		conflicts, err := s.FindConflicts(lockCtx, appt.ProviderID, newStart, newEnd, appt.ID)
		if err != nil {
			return fmt.Errorf("check conflicts: %w", err)
		}
		if len(conflicts) > 0 {
			return &ConflictError{Conflicts: conflicts}
		}

		updated, err = s.repo.RescheduleAppointment(lockCtx, appt.ID, newStart, newEnd, act.Message)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return s.guardMiss(lockCtx, appt.ID)
			}
			return fmt.Errorf("reschedule appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrMutationInFlight
		}
		return nil, err
	}

	s.enqueueNotification(ctx, updated, notify.KindNewTimeProposed, map[string]string{
		"old_date": notify.FormatDate(oldStart),
		"new_date": notify.FormatDate(updated.ScheduledAt),
		"new_time": notify.FormatTime(updated.ScheduledAt),
	})

	return updated, nil
}

// proposedDuration picks the counter-proposal length: the consultation
// type's default, else the appointment's stored span, else the configured
// default (30 minutes).
func (s *Service) proposedDuration(ctx context.Context, appt *Appointment) time.Duration {
	if appt.ConsultationTypeID != nil {
		ct, err := s.repo.GetConsultationTypeByID(ctx, *appt.ConsultationTypeID)
		switch {
		case err == nil && ct.DefaultDurationMin > 0:
			return time.Duration(ct.DefaultDurationMin) * time.Minute
		case err != nil && !errors.Is(err, ErrConsultationTypeNotFound):
			s.log.Warn().Err(err).Str("appointment_id", appt.ID.String()).
				Msg("consultation type lookup failed, falling back to stored duration")
		}
	}
	if d := appt.Duration(); d > 0 {
		return d
	}
	if s.cfg.DefaultDuration > 0 {
		return s.cfg.DefaultDuration
	}
	return 30 * time.Minute
}

// guardMiss handles a pending-only UPDATE whose guard matched no row: the
// status changed between our read and the write. Reports the status actually
// there now.
func (s *Service) guardMiss(ctx context.Context, id uuid.UUID) error {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return ErrAppointmentNotFound
	}
	return &PreconditionFailedError{Current: current.Status}
}

// FindConflicts returns every blocking appointment for the provider whose
// interval overlaps [start, end), excluding the given appointment id.
func (s *Service) FindConflicts(ctx context.Context, providerID uuid.UUID, start, end time.Time, exclude uuid.UUID) ([]Appointment, error) {
	if !end.After(start) {
		return nil, &ValidationError{Msg: "interval end must be after start"}
	}

	candidates, err := s.repo.ListBlockingAppointments(ctx, providerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list blocking appointments: %w", err)
	}

	return conflictsAmong(candidates, start, end, exclude), nil
}

// ResolveProviderAvailability computes the per-day open slots for a provider
// over [from, to] (dates, inclusive), optionally restricted to slots
// compatible with one consultation type.
func (s *Service) ResolveProviderAvailability(ctx context.Context, providerID uuid.UUID, from, to time.Time, typeID *uuid.UUID) ([]DayAvailability, error) {
	if providerID == uuid.Nil {
		return nil, &ValidationError{Msg: "provider id is required"}
	}
	if to.Before(from) {
		return nil, &ValidationError{Msg: "date range end precedes start"}
	}

	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}

	var filter *ConsultationType
	if typeID != nil {
		ct, err := s.repo.GetConsultationTypeByID(ctx, *typeID)
		if err != nil {
			if errors.Is(err, ErrConsultationTypeNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load consultation type: %w", err)
		}
		if ct.ProviderID != providerID {
			return nil, ErrConsultationTypeNotFound
		}
		filter = ct
	}

	templates, err := s.repo.ListTemplatesByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list availability templates: %w", err)
	}

	rangeStart := dateOnly(from)
	rangeEnd := dateOnly(to).AddDate(0, 0, 1)
	booked, err := s.repo.ListBlockingAppointments(ctx, providerID, rangeStart, rangeEnd)
	if err != nil {
		return nil, fmt.Errorf("list booked appointments: %w", err)
	}

	return ResolveAvailability(templates, booked, from, to, s.cfg.SlotGranularity, filter), nil
}

// --- availability template management ---

func (s *Service) CreateTemplate(ctx context.Context, t *AvailabilityTemplate) (*AvailabilityTemplate, error) {
	if err := validateTemplateTimes(t); err != nil {
		return nil, err
	}
	if err := s.checkTemplateOverlap(ctx, t, uuid.Nil); err != nil {
		return nil, err
	}

	created, err := s.repo.CreateTemplate(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return created, nil
}

func (s *Service) GetTemplate(ctx context.Context, providerID, id uuid.UUID) (*AvailabilityTemplate, error) {
	t, err := s.repo.GetTemplateByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.ProviderID != providerID {
		return nil, ErrTemplateNotFound
	}
	return t, nil
}

func (s *Service) ListTemplates(ctx context.Context, providerID uuid.UUID) ([]AvailabilityTemplate, error) {
	return s.repo.ListTemplatesByProvider(ctx, providerID)
}

func (s *Service) UpdateTemplate(ctx context.Context, providerID, id uuid.UUID, upd TemplateUpdate) (*AvailabilityTemplate, error) {
	t, err := s.GetTemplate(ctx, providerID, id)
	if err != nil {
		return nil, err
	}

	timesChanged := applyTemplateUpdate(t, upd)

	if err := validateTemplateTimes(t); err != nil {
		return nil, err
	}
	if timesChanged {
		if err := s.checkTemplateOverlap(ctx, t, t.ID); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.UpdateTemplate(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return updated, nil
}

func (s *Service) DeleteTemplate(ctx context.Context, providerID, id uuid.UUID) error {
	if _, err := s.GetTemplate(ctx, providerID, id); err != nil {
		return err
	}
	return s.repo.DeleteTemplate(ctx, id)
}

func applyTemplateUpdate(t *AvailabilityTemplate, upd TemplateUpdate) (timesChanged bool) {
	if upd.Weekday != nil && *upd.Weekday != t.Weekday {
		t.Weekday = *upd.Weekday
		timesChanged = true
	}
	if upd.StartMinute != nil && *upd.StartMinute != t.StartMinute {
		t.StartMinute = *upd.StartMinute
		timesChanged = true
	}
	if upd.EndMinute != nil && *upd.EndMinute != t.EndMinute {
		t.EndMinute = *upd.EndMinute
		timesChanged = true
	}
	if upd.ValidFrom != nil {
		t.ValidFrom = upd.ValidFrom
	}
	if upd.ValidUntil != nil {
		t.ValidUntil = upd.ValidUntil
	}
	if upd.VideoEnabled != nil {
		t.VideoEnabled = *upd.VideoEnabled
	}
	if upd.InPersonEnabled != nil {
		t.InPersonEnabled = *upd.InPersonEnabled
	}
	if upd.ConsultationTypeID != nil {
		t.ConsultationTypeID = upd.ConsultationTypeID
	}
	if upd.Active != nil && *upd.Active != t.Active {
		t.Active = *upd.Active
		timesChanged = timesChanged || t.Active
	}
	return timesChanged
}

func validateTemplateTimes(t *AvailabilityTemplate) error {
	if t.Kind != TemplateRecurring && t.Kind != TemplateDateOverride {
		return &ValidationError{Msg: "template kind must be recurring or date_override"}
	}
	if t.StartMinute < 0 || t.EndMinute > 24*60 {
		return &ValidationError{Msg: "template times must fall within the day"}
	}
	if t.StartMinute >= t.EndMinute {
		return &ValidationError{Msg: "template end time must be after start time"}
	}
	if t.ValidFrom != nil && t.ValidUntil != nil && t.ValidUntil.Before(*t.ValidFrom) {
		return &ValidationError{Msg: "template validity window end precedes start"}
	}
	return nil
}

// checkTemplateOverlap enforces the creation invariant: active recurring
// templates for one provider and weekday must not overlap in minutes.
func (s *Service) checkTemplateOverlap(ctx context.Context, t *AvailabilityTemplate, exclude uuid.UUID) error {
	if t.Kind != TemplateRecurring || !t.Active {
		return nil
	}

	siblings, err := s.repo.ListTemplatesByProvider(ctx, t.ProviderID)
	if err != nil {
		return fmt.Errorf("list sibling templates: %w", err)
	}

	for _, sib := range siblings {
		if sib.ID == exclude {
			continue
		}
		if sib.Kind != TemplateRecurring || !sib.Active || sib.Weekday != t.Weekday {
			continue
		}
		if t.StartMinute < sib.EndMinute && sib.StartMinute < t.EndMinute {
			return ErrTemplateOverlap
		}
	}
	return nil
}

// --- consultation type management ---

func (s *Service) CreateConsultationType(ctx context.Context, ct *ConsultationType) (*ConsultationType, error) {
	if ct.Code == "" {
		return nil, &ValidationError{Msg: "consultation type code is required"}
	}
	if ct.DefaultDurationMin <= 0 {
		return nil, &ValidationError{Msg: "default duration must be positive"}
	}
	if ct.Lifecycle == "" {
		ct.Lifecycle = TypeActive
	}

	if err := s.checkDuplicateCode(ctx, ct.ProviderID, ct.Code, uuid.Nil); err != nil {
		return nil, err
	}

	created, err := s.repo.CreateConsultationType(ctx, ct)
	if err != nil {
		return nil, fmt.Errorf("create consultation type: %w", err)
	}
	return created, nil
}

func (s *Service) GetConsultationType(ctx context.Context, providerID, id uuid.UUID) (*ConsultationType, error) {
	ct, err := s.repo.GetConsultationTypeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ct.ProviderID != providerID {
		return nil, ErrConsultationTypeNotFound
	}
	return ct, nil
}

func (s *Service) ListConsultationTypes(ctx context.Context, providerID uuid.UUID) ([]ConsultationType, error) {
	return s.repo.ListConsultationTypesByProvider(ctx, providerID)
}

func (s *Service) UpdateConsultationType(ctx context.Context, providerID, id uuid.UUID, upd ConsultationTypeUpdate) (*ConsultationType, error) {
	ct, err := s.GetConsultationType(ctx, providerID, id)
	if err != nil {
		return nil, err
	}

	codeChanged := false
	if upd.Code != nil && *upd.Code != ct.Code {
		if *upd.Code == "" {
			return nil, &ValidationError{Msg: "consultation type code cannot be empty"}
		}
		ct.Code = *upd.Code
		codeChanged = true
	}
	if upd.Name != nil {
		ct.Name = *upd.Name
	}
	if upd.Description != nil {
		ct.Description = upd.Description
	}
	if upd.DefaultDurationMin != nil {
		if *upd.DefaultDurationMin <= 0 {
			return nil, &ValidationError{Msg: "default duration must be positive"}
		}
		ct.DefaultDurationMin = *upd.DefaultDurationMin
	}
	if upd.DefaultPriceCents != nil {
		ct.DefaultPriceCents = *upd.DefaultPriceCents
	}
	if upd.VideoEnabled != nil {
		ct.VideoEnabled = *upd.VideoEnabled
	}
	if upd.InPersonEnabled != nil {
		ct.InPersonEnabled = *upd.InPersonEnabled
	}
	if upd.SortOrder != nil {
		ct.SortOrder = *upd.SortOrder
	}

	if codeChanged {
		if err := s.checkDuplicateCode(ctx, providerID, ct.Code, ct.ID); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.UpdateConsultationType(ctx, ct)
	if err != nil {
		return nil, fmt.Errorf("update consultation type: %w", err)
	}
	return updated, nil
}

// DeleteConsultationType removes a type, degrading to retirement when
// availability templates still reference it. Reports whether retirement was
// substituted.
func (s *Service) DeleteConsultationType(ctx context.Context, providerID, id uuid.UUID) (softDeleted bool, err error) {
	ct, err := s.GetConsultationType(ctx, providerID, id)
	if err != nil {
		return false, err
	}

	refs, err := s.repo.CountTemplatesReferencingType(ctx, ct.ID)
	if err != nil {
		return false, fmt.Errorf("count template references: %w", err)
	}

	if refs > 0 {
		if _, err := s.repo.RetireConsultationType(ctx, ct.ID); err != nil {
			return false, fmt.Errorf("retire consultation type: %w", err)
		}
		return true, nil
	}

	if err := s.repo.DeleteConsultationType(ctx, ct.ID); err != nil {
		return false, fmt.Errorf("delete consultation type: %w", err)
	}
	return false, nil
}

// checkDuplicateCode enforces per-provider code uniqueness across active and
// retired rows.
func (s *Service) checkDuplicateCode(ctx context.Context, providerID uuid.UUID, code string, exclude uuid.UUID) error {
	existing, err := s.repo.ListConsultationTypesByProvider(ctx, providerID)
	if err != nil {
		return fmt.Errorf("list consultation types: %w", err)
	}
	for _, other := range existing {
		if other.ID != exclude && other.Code == code {
			return ErrDuplicateCode
		}
	}
	return nil
}

// --- notification outbox ---

// enqueueNotification records an outbox row for the committed transition.
// Failures are logged and swallowed: the appointment change is authoritative
// even if the patient cannot be notified.
func (s *Service) enqueueNotification(ctx context.Context, appt *Appointment, kind string, payload map[string]string) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("kind", kind).Msg("marshal notification payload")
		data = nil
	}

	msg := NotificationMessage{
		AppointmentID: appt.ID,
		RecipientID:   appt.PatientID,
		Kind:          kind,
		Payload:       data,
		Status:        NotificationQueued,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.EnqueueNotification(ctx, msg); err != nil {
		s.log.Warn().Err(err).
			Str("kind", kind).
			Str("appointment_id", appt.ID.String()).
			Msg("enqueue notification failed, transition stands")
	}
}

// DeliverQueuedNotifications claims a batch of outbox rows and hands them to
// the dispatcher. Intended to be called by the notify worker periodically.
func (s *Service) DeliverQueuedNotifications(ctx context.Context, dispatcher notify.Dispatcher) (int, error) {
	batch, err := s.repo.ClaimQueuedNotifications(ctx, s.cfg.NotifyBatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim queued notifications: %w", err)
	}

	delivered := 0
	for _, row := range batch {
		payload := map[string]string{}
		if len(row.Payload) > 0 {
			if err := json.Unmarshal(row.Payload, &payload); err != nil {
				s.log.Warn().Err(err).Int64("notification_id", row.ID).Msg("undecodable notification payload")
			}
		}

		msg := notify.Message{
			AppointmentID: row.AppointmentID,
			RecipientID:   row.RecipientID,
			Kind:          row.Kind,
			Payload:       payload,
		}

		if err := dispatcher.Send(ctx, msg); err != nil {
			s.log.Warn().Err(err).Int64("notification_id", row.ID).Msg("notification delivery failed")
			if merr := s.repo.MarkNotificationFailed(ctx, row.ID, err.Error()); merr != nil {
				s.log.Warn().Err(merr).Int64("notification_id", row.ID).Msg("mark notification failed")
			}
			continue
		}

		if err := s.repo.MarkNotificationSent(ctx, row.ID); err != nil {
			s.log.Warn().Err(err).Int64("notification_id", row.ID).Msg("mark notification sent")
		}
		delivered++
	}

	return delivered, nil
}
