package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nutrisensia/scheduling-service/internal/booking"
)

// callerProviderID reads the provider identity established by the upstream
// auth collaborator. Requests without it are rejected before any lookup.
func callerProviderID(r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get("X-Provider-ID")
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func respondAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := callerProviderID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_provider_identity", "X-Provider-ID header is required")
			return
		}

		appointmentID, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RespondRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		action, err := req.toAction()
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		appt, err := svc.RespondToAppointment(r.Context(), providerID, appointmentID, action)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func providerAvailabilityHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_range", "from must be a YYYY-MM-DD date")
			return
		}
		to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_range", "to must be a YYYY-MM-DD date")
			return
		}

		var typeID *uuid.UUID
		if raw := r.URL.Query().Get("consultation_type"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_consultation_type", "consultation_type must be a valid UUID")
				return
			}
			typeID = &id
		}

		days, err := svc.ResolveProviderAvailability(r.Context(), providerID, from, to, typeID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toDayAvailabilityResponse(days))
	}
}

// --- availability templates ---

func createTemplateHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := callerProviderID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_provider_identity", "X-Provider-ID header is required")
			return
		}

		var req CreateTemplateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		t := &booking.AvailabilityTemplate{
			ProviderID:      providerID,
			Kind:            booking.TemplateKind(req.Kind),
			Weekday:         time.Weekday(req.Weekday),
			StartMinute:     req.StartMinute,
			EndMinute:       req.EndMinute,
			ValidFrom:       req.ValidFrom,
			ValidUntil:      req.ValidUntil,
			VideoEnabled:    req.VideoEnabled,
			InPersonEnabled: req.InPersonEnabled,
			Active:          true,
		}
		if req.Active != nil {
			t.Active = *req.Active
		}
		if req.ConsultationTypeID != nil {
			id, err := uuid.Parse(*req.ConsultationTypeID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "validation_error", "consultation_type_id must be a valid UUID")
				return
			}
			t.ConsultationTypeID = &id
		}

		created, err := svc.CreateTemplate(r.Context(), t)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toTemplateResponse(created))
	}
}

func listTemplatesHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := callerProviderID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_provider_identity", "X-Provider-ID header is required")
			return
		}

		templates, err := svc.ListTemplates(r.Context(), providerID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		out := make([]TemplateResponse, 0, len(templates))
		for i := range templates {
			out = append(out, toTemplateResponse(&templates[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getTemplateHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := callerProviderID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_provider_identity", "X-Provider-ID header is required")
			return
		}

		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_template_id", "id must be a valid UUID")
			return
		}

		t, err := svc.GetTemplate(r.Context(), providerID, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toTemplateResponse(t))
	}
}

func updateTemplateHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := callerProviderID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_provider_identity", "X-Provider-ID header is required")
			return
		}

		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_template_id", "id must be a valid UUID")
			return
		}

		var req UpdateTemplateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		upd := booking.TemplateUpdate{
			StartMinute:     req.StartMinute,
			EndMinute:       req.EndMinute,
			ValidFrom:       req.ValidFrom,
			ValidUntil:      req.ValidUntil,
			VideoEnabled:    req.VideoEnabled,
			InPersonEnabled: req.InPersonEnabled,
			Active:          req.Active,
		}
		if req.Weekday != nil {
			wd := time.Weekday(*req.Weekday)
			upd.Weekday = &wd
		}
		if req.ConsultationTypeID != nil {
			ctID, err := uuid.Parse(*req.ConsultationTypeID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "validation_error", "consultation_type_id must be a valid UUID")
				return
			}
			upd.ConsultationTypeID = &ctID
		}

		t, err := svc.UpdateTemplate(r.Context(), providerID, id, upd)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toTemplateResponse(t))
	}
}

func deleteTemplateHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := callerProviderID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_provider_identity", "X-Provider-ID header is required")
			return
		}

		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_template_id", "id must be a valid UUID")
			return
		}

		if err := svc.DeleteTemplate(r.Context(), providerID, id); err != nil {
			handleServiceError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// --- consultation types ---

func createConsultationTypeHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := callerProviderID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_provider_identity", "X-Provider-ID header is required")
			return
		}

		var req CreateConsultationTypeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		ct := &booking.ConsultationType{
			ProviderID:         providerID,
			Code:               req.Code,
			Name:               req.Name,
			Description:        req.Description,
			DefaultDurationMin: req.DefaultDurationMin,
			DefaultPriceCents:  req.DefaultPriceCents,
			VideoEnabled:       req.VideoEnabled,
			InPersonEnabled:    req.InPersonEnabled,
			Lifecycle:          booking.TypeActive,
			SortOrder:          req.SortOrder,
		}

		created, err := svc.CreateConsultationType(r.Context(), ct)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toConsultationTypeResponse(created))
	}
}

func listConsultationTypesHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := callerProviderID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_provider_identity", "X-Provider-ID header is required")
			return
		}

		types, err := svc.ListConsultationTypes(r.Context(), providerID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		out := make([]ConsultationTypeResponse, 0, len(types))
		for i := range types {
			out = append(out, toConsultationTypeResponse(&types[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getConsultationTypeHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := callerProviderID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_provider_identity", "X-Provider-ID header is required")
			return
		}

		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_consultation_type_id", "id must be a valid UUID")
			return
		}

		ct, err := svc.GetConsultationType(r.Context(), providerID, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toConsultationTypeResponse(ct))
	}
}

func updateConsultationTypeHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := callerProviderID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_provider_identity", "X-Provider-ID header is required")
			return
		}

		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_consultation_type_id", "id must be a valid UUID")
			return
		}

		var req UpdateConsultationTypeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		upd := booking.ConsultationTypeUpdate{
			Code:               req.Code,
			Name:               req.Name,
			Description:        req.Description,
			DefaultDurationMin: req.DefaultDurationMin,
			DefaultPriceCents:  req.DefaultPriceCents,
			VideoEnabled:       req.VideoEnabled,
			InPersonEnabled:    req.InPersonEnabled,
			SortOrder:          req.SortOrder,
		}

		ct, err := svc.UpdateConsultationType(r.Context(), providerID, id, upd)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toConsultationTypeResponse(ct))
	}
}

func deleteConsultationTypeHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := callerProviderID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "missing_provider_identity", "X-Provider-ID header is required")
			return
		}

		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_consultation_type_id", "id must be a valid UUID")
			return
		}

		softDeleted, err := svc.DeleteConsultationType(r.Context(), providerID, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, DeleteConsultationTypeResponse{SoftDeleted: softDeleted})
	}
}
