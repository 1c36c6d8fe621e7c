package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/nutrisensia/scheduling-service/internal/booking"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleServiceError maps domain errors onto HTTP statuses. Unknown errors
// become a generic 500; the real cause goes to the log only.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr   *booking.ValidationError
		preconditionErr *booking.PreconditionFailedError
		conflictErr     *booking.ConflictError
	)

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation_error", validationErr.Msg)
	case errors.As(err, &preconditionErr):
		writeError(w, http.StatusBadRequest, "precondition_failed", preconditionErr.Error())
	case errors.As(err, &conflictErr):
		writeError(w, http.StatusConflict, "schedule_conflict", conflictErr.Error())
	case errors.Is(err, booking.ErrMutationInFlight):
		writeError(w, http.StatusConflict, "mutation_in_flight", err.Error())
	case errors.Is(err, booking.ErrDuplicateCode):
		writeError(w, http.StatusConflict, "duplicate_code", err.Error())
	case errors.Is(err, booking.ErrTemplateOverlap):
		writeError(w, http.StatusConflict, "template_overlap", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, "availability_template_not_found", err.Error())
	case errors.Is(err, booking.ErrConsultationTypeNotFound):
		writeError(w, http.StatusNotFound, "consultation_type_not_found", err.Error())
	case errors.Is(err, booking.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
	}
}
