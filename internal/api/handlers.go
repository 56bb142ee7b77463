package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/medtest-appointment-scheduling/internal/appointment"
	"github.com/hackgods/medtest-appointment-scheduling/internal/notify"
	"github.com/hackgods/medtest-appointment-scheduling/internal/scheduling"
)

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())

		var req CreateAppointmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		detail, err := svc.BookAppointment(r.Context(), appointment.BookingRequest{
			HospitalID:      req.HospitalID,
			TestID:          req.TestID,
			AppointmentDate: req.AppointmentDate,
			TimeSlot:        req.TimeSlot,
			Patient: appointment.Patient{
				ID:    id.UserID,
				Name:  id.Name,
				Phone: id.Phone,
				Email: id.Email,
			},
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, detail)
	}
}

func availabilityHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		rawHospital, date := strings.TrimSpace(q.Get("hospital_id")), strings.TrimSpace(q.Get("date"))
		if rawHospital == "" || date == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "hospital_id and date are required")
			return
		}
		hospitalID, err := uuid.Parse(rawHospital)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "Invalid hospital_id.")
			return
		}

		query := appointment.AvailabilityQuery{
			HospitalID: hospitalID,
			Date:       date,
			Duration:   q.Get("duration"),
		}
		if rawTest := strings.TrimSpace(q.Get("test_id")); rawTest != "" {
			testID, err := uuid.Parse(rawTest)
			if err != nil {
				writeError(w, http.StatusBadRequest, "validation_error", "Invalid test_id.")
				return
			}
			query.TestID = &testID
		}

		avail, err := svc.Availability(r.Context(), query)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			Success:  true,
			Date:     avail.Date,
			Slots:    avail.Slots,
			Opens:    avail.Opens,
			Closes:   avail.Closes,
			Duration: avail.Duration,
		})
	}
}

func myAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		appointments, err := svc.ListForPatient(r.Context(), id.UserID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, appointments)
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		id, _ := IdentityFrom(r.Context())
		detail, err := svc.GetForPatient(r.Context(), appointmentID, id.UserID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func getByReferenceHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		detail, err := svc.GetByReference(r.Context(), chi.URLParam(r, "reference"), id.UserID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func bookingConfigHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		policy := svc.Policy()
		writeJSON(w, http.StatusOK, ConfigResponse{
			Success: true,
			Availability: BookingWindow{
				AllowedDays: policy.AllowedDayNames(),
				Opens:       scheduling.FormatSlot(policy.Open),
				Closes:      scheduling.FormatSlot(policy.Close),
			},
		})
	}
}

func adminListAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var filter appointment.ListFilter

		if raw := strings.TrimSpace(q.Get("status")); raw != "" && raw != "all" {
			status, err := appointment.ParseStatus(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "validation_error", err.Error())
				return
			}
			filter.Status = &status
		}

		var err error
		if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "limit must be an integer")
			return
		}
		if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "offset must be an integer")
			return
		}

		appointments, total, err := svc.List(r.Context(), filter)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentListResponse{
			Success:      true,
			Appointments: appointments,
			Total:        total,
			Limit:        filter.Limit,
			Offset:       filter.Offset,
		})
	}
}

func adminUpdateStatusHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdateStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		status := appointment.Status(strings.ToLower(strings.TrimSpace(req.Status)))
		detail, err := svc.UpdateStatus(r.Context(), appointmentID, status)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, StatusUpdateResponse{
			Success:     true,
			Message:     fmt.Sprintf("Appointment %s successfully", status),
			Appointment: detail,
		})
	}
}

func myNotificationsHandler(store notify.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		notifications, err := store.ListForPatient(r.Context(), id.UserID, notify.ListLimit)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "notifications": notifications})
	}
}

func markNotificationReadHandler(store notify.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		notificationID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_notification_id", "id must be a valid UUID")
			return
		}

		id, _ := IdentityFrom(r.Context())
		n, err := store.MarkRead(r.Context(), notificationID, id.UserID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "notification": n})
	}
}

func websocketHandler(rt Realtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		rt.ServeWS(w, r, notify.Subscriber{PatientID: id.UserID, Admin: id.IsAdmin()})
	}
}

func queryInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
