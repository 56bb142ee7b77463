package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/medtest-appointment-scheduling/internal/appointment"
	"github.com/hackgods/medtest-appointment-scheduling/internal/catalog"
	"github.com/hackgods/medtest-appointment-scheduling/internal/notify"
	"github.com/hackgods/medtest-appointment-scheduling/internal/results"
	"github.com/hackgods/medtest-appointment-scheduling/internal/scheduling"
)

type CreateAppointmentRequest struct {
	HospitalID      string `json:"hospital_id"`
	TestID          string `json:"test_id"`
	AppointmentDate string `json:"appointment_date"`
	TimeSlot        string `json:"time_slot"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type AvailabilityResponse struct {
	Success  bool     `json:"success"`
	Date     string   `json:"date"`
	Slots    []string `json:"slots"`
	Opens    string   `json:"opens"`
	Closes   string   `json:"closes"`
	Duration int      `json:"duration"`
}

type BookingWindow struct {
	AllowedDays []string `json:"allowedDays"`
	Opens       string   `json:"opens"`
	Closes      string   `json:"closes"`
}

type ConfigResponse struct {
	Success      bool          `json:"success"`
	Availability BookingWindow `json:"availability"`
}

type AppointmentListResponse struct {
	Success      bool                            `json:"success"`
	Appointments []appointment.AppointmentDetail `json:"appointments"`
	Total        int                             `json:"total"`
	Limit        int                             `json:"limit,omitempty"`
	Offset       int                             `json:"offset"`
}

type StatusUpdateResponse struct {
	Success     bool                           `json:"success"`
	Message     string                         `json:"message"`
	Appointment *appointment.AppointmentDetail `json:"appointment"`
}

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

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	return dec.Decode(v)
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, scheduling.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", scheduling.Message(err))
	case errors.Is(err, scheduling.ErrPolicy):
		writeError(w, http.StatusBadRequest, "policy_violation", scheduling.Message(err))
	case errors.Is(err, scheduling.ErrConflict):
		writeError(w, http.StatusConflict, "booking_conflict", scheduling.Message(err))
	case errors.Is(err, scheduling.ErrReferenceCollision):
		writeError(w, http.StatusConflict, "reference_collision", scheduling.Message(err))
	case errors.Is(err, appointment.ErrBookingInProgress):
		writeError(w, http.StatusConflict, "booking_in_progress", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", "Appointment not found")
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", "Patient not found")
	case errors.Is(err, catalog.ErrHospitalNotFound):
		writeError(w, http.StatusNotFound, "hospital_not_found", "Hospital not found")
	case errors.Is(err, catalog.ErrTestNotFound):
		writeError(w, http.StatusNotFound, "test_not_found", "Medical test not found")
	case errors.Is(err, notify.ErrNotificationNotFound):
		writeError(w, http.StatusNotFound, "notification_not_found", "Notification not found")
	case errors.Is(err, results.ErrResultNotFound):
		writeError(w, http.StatusNotFound, "result_not_found", "Test result not found")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
