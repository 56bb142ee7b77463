package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/medtest-appointment-scheduling/internal/results"
)

func myResultsHandler(svc ResultService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		list, err := svc.ListForPatient(r.Context(), id.UserID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": list})
	}
}

func getResultHandler(svc ResultService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resultID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_result_id", "id must be a valid UUID")
			return
		}
		id, _ := IdentityFrom(r.Context())
		detail, err := svc.GetForPatient(r.Context(), resultID, id.UserID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": detail})
	}
}

func recordResultHandler(svc ResultService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req results.RecordRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		detail, err := svc.Record(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"message": "Test result recorded",
			"result":  detail,
		})
	}
}
