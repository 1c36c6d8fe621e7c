package api

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nutrisensia/scheduling-service/internal/booking"
)

var validate = validator.New()

// RespondRequest is the raw body of POST /appointments/{id}/respond. It is
// converted into exactly one booking.Action variant before the service sees
// it; the string dispatch ends at this boundary.
type RespondRequest struct {
	Action     string  `json:"action" validate:"required,oneof=accept decline propose_new_time"`
	Reason     *string `json:"reason,omitempty"`
	ProposedAt *string `json:"proposed_at,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Message    *string `json:"message,omitempty"`
}

func (r *RespondRequest) toAction() (booking.Action, error) {
	if err := validate.Struct(r); err != nil {
		return nil, &booking.ValidationError{Msg: "action must be accept, decline, or propose_new_time"}
	}

	switch r.Action {
	case "accept":
		return booking.Accept{}, nil
	case "decline":
		reason := ""
		if r.Reason != nil {
			reason = *r.Reason
		}
		return booking.Decline{Reason: reason}, nil
	default: // propose_new_time, closed by the oneof rule
		if r.ProposedAt == nil {
			return nil, &booking.ValidationError{Msg: "proposed_at is required for propose_new_time"}
		}
		at, err := time.Parse(time.RFC3339, *r.ProposedAt)
		if err != nil {
			return nil, &booking.ValidationError{Msg: "proposed_at must be an ISO-8601 timestamp"}
		}
		return booking.ProposeNewTime{ProposedAt: at, Message: r.Message}, nil
	}
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	ProviderID         uuid.UUID  `json:"provider_id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	ConsultationTypeID *uuid.UUID `json:"consultation_type_id,omitempty"`
	ScheduledAt        time.Time  `json:"scheduled_at"`
	ScheduledEndAt     time.Time  `json:"scheduled_end_at"`
	Status             string     `json:"status"`
	StatusReason       *string    `json:"status_reason,omitempty"`
	StatusChangedAt    *time.Time `json:"status_changed_at,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		ProviderID:         a.ProviderID,
		PatientID:          a.PatientID,
		ConsultationTypeID: a.ConsultationTypeID,
		ScheduledAt:        a.ScheduledAt,
		ScheduledEndAt:     a.ScheduledEndAt,
		Status:             string(a.Status),
		StatusReason:       a.StatusReason,
		StatusChangedAt:    a.StatusChangedAt,
	}
}

type CreateTemplateRequest struct {
	Kind               string     `json:"kind" validate:"required,oneof=recurring date_override"`
	Weekday            int        `json:"weekday" validate:"min=0,max=6"`
	StartMinute        int        `json:"start_minute" validate:"min=0,max=1440"`
	EndMinute          int        `json:"end_minute" validate:"min=0,max=1440"`
	ValidFrom          *time.Time `json:"valid_from,omitempty"`
	ValidUntil         *time.Time `json:"valid_until,omitempty"`
	VideoEnabled       bool       `json:"video_enabled"`
	InPersonEnabled    bool       `json:"in_person_enabled"`
	ConsultationTypeID *string    `json:"consultation_type_id,omitempty" validate:"omitempty,uuid"`
	Active             *bool      `json:"active,omitempty"`
}

type UpdateTemplateRequest struct {
	Weekday            *int       `json:"weekday,omitempty" validate:"omitempty,min=0,max=6"`
	StartMinute        *int       `json:"start_minute,omitempty" validate:"omitempty,min=0,max=1440"`
	EndMinute          *int       `json:"end_minute,omitempty" validate:"omitempty,min=0,max=1440"`
	ValidFrom          *time.Time `json:"valid_from,omitempty"`
	ValidUntil         *time.Time `json:"valid_until,omitempty"`
	VideoEnabled       *bool      `json:"video_enabled,omitempty"`
	InPersonEnabled    *bool      `json:"in_person_enabled,omitempty"`
	ConsultationTypeID *string    `json:"consultation_type_id,omitempty" validate:"omitempty,uuid"`
	Active             *bool      `json:"active,omitempty"`
}

type TemplateResponse struct {
	ID                 uuid.UUID  `json:"id"`
	ProviderID         uuid.UUID  `json:"provider_id"`
	Kind               string     `json:"kind"`
	Weekday            int        `json:"weekday"`
	StartMinute        int        `json:"start_minute"`
	EndMinute          int        `json:"end_minute"`
	ValidFrom          *time.Time `json:"valid_from,omitempty"`
	ValidUntil         *time.Time `json:"valid_until,omitempty"`
	VideoEnabled       bool       `json:"video_enabled"`
	InPersonEnabled    bool       `json:"in_person_enabled"`
	ConsultationTypeID *uuid.UUID `json:"consultation_type_id,omitempty"`
	Active             bool       `json:"active"`
}

func toTemplateResponse(t *booking.AvailabilityTemplate) TemplateResponse {
	return TemplateResponse{
		ID:                 t.ID,
		ProviderID:         t.ProviderID,
		Kind:               string(t.Kind),
		Weekday:            int(t.Weekday),
		StartMinute:        t.StartMinute,
		EndMinute:          t.EndMinute,
		ValidFrom:          t.ValidFrom,
		ValidUntil:         t.ValidUntil,
		VideoEnabled:       t.VideoEnabled,
		InPersonEnabled:    t.InPersonEnabled,
		ConsultationTypeID: t.ConsultationTypeID,
		Active:             t.Active,
	}
}

type CreateConsultationTypeRequest struct {
	Code               string  `json:"code" validate:"required"`
	Name               string  `json:"name" validate:"required"`
	Description        *string `json:"description,omitempty"`
	DefaultDurationMin int     `json:"default_duration_min" validate:"required,gt=0"`
	DefaultPriceCents  int64   `json:"default_price_cents" validate:"min=0"`
	VideoEnabled       bool    `json:"video_enabled"`
	InPersonEnabled    bool    `json:"in_person_enabled"`
	SortOrder          int     `json:"sort_order"`
}

type UpdateConsultationTypeRequest struct {
	Code               *string `json:"code,omitempty"`
	Name               *string `json:"name,omitempty"`
	Description        *string `json:"description,omitempty"`
	DefaultDurationMin *int    `json:"default_duration_min,omitempty" validate:"omitempty,gt=0"`
	DefaultPriceCents  *int64  `json:"default_price_cents,omitempty" validate:"omitempty,min=0"`
	VideoEnabled       *bool   `json:"video_enabled,omitempty"`
	InPersonEnabled    *bool   `json:"in_person_enabled,omitempty"`
	SortOrder          *int    `json:"sort_order,omitempty"`
}

type ConsultationTypeResponse struct {
	ID                 uuid.UUID `json:"id"`
	ProviderID         uuid.UUID `json:"provider_id"`
	Code               string    `json:"code"`
	Name               string    `json:"name"`
	Description        *string   `json:"description,omitempty"`
	DefaultDurationMin int       `json:"default_duration_min"`
	DefaultPriceCents  int64     `json:"default_price_cents"`
	VideoEnabled       bool      `json:"video_enabled"`
	InPersonEnabled    bool      `json:"in_person_enabled"`
	Lifecycle          string    `json:"lifecycle"`
	SortOrder          int       `json:"sort_order"`
}

func toConsultationTypeResponse(ct *booking.ConsultationType) ConsultationTypeResponse {
	return ConsultationTypeResponse{
		ID:                 ct.ID,
		ProviderID:         ct.ProviderID,
		Code:               ct.Code,
		Name:               ct.Name,
		Description:        ct.Description,
		DefaultDurationMin: ct.DefaultDurationMin,
		DefaultPriceCents:  ct.DefaultPriceCents,
		VideoEnabled:       ct.VideoEnabled,
		InPersonEnabled:    ct.InPersonEnabled,
		Lifecycle:          string(ct.Lifecycle),
		SortOrder:          ct.SortOrder,
	}
}

type DeleteConsultationTypeResponse struct {
	SoftDeleted bool `json:"softDeleted"`
}

type DaySlotResponse struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

type DayAvailabilityResponse struct {
	Date            string            `json:"date"`
	HasAvailability bool              `json:"has_availability"`
	SlotCount       int               `json:"slot_count"`
	Slots           []DaySlotResponse `json:"slots"`
}

func toDayAvailabilityResponse(days []booking.DayAvailability) []DayAvailabilityResponse {
	out := make([]DayAvailabilityResponse, 0, len(days))
	for _, d := range days {
		entry := DayAvailabilityResponse{
			Date:            d.Date.Format("2006-01-02"),
			HasAvailability: d.HasAvailability,
			SlotCount:       d.SlotCount,
			Slots:           make([]DaySlotResponse, 0, len(d.Slots)),
		}
		for _, s := range d.Slots {
			entry.Slots = append(entry.Slots, DaySlotResponse{Start: s.Start, End: s.End, Available: s.Available})
		}
		out = append(out, entry)
	}
	return out
}
