package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/medtest-appointment-scheduling/internal/appointment"
	"github.com/hackgods/medtest-appointment-scheduling/internal/catalog"
)

func listHospitalsHandler(repo catalog.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hospitals, err := repo.ListHospitals(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "hospitals": hospitals})
	}
}

func getHospitalHandler(repo catalog.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_hospital_id", "id must be a valid UUID")
			return
		}
		hospital, err := repo.GetHospital(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, hospital)
	}
}

func listTestsHandler(repo catalog.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var hospitalID *uuid.UUID
		if raw := strings.TrimSpace(r.URL.Query().Get("hospital_id")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "validation_error", "Invalid hospital_id.")
				return
			}
			hospitalID = &id
		}

		tests, err := repo.ListTests(r.Context(), hospitalID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "tests": tests})
	}
}

func getTestHandler(repo catalog.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_test_id", "id must be a valid UUID")
			return
		}
		test, err := repo.GetTest(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, test)
	}
}

func createHospitalHandler(store catalog.Store, phoneRegion string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in catalog.HospitalInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := normalizeHospital(&in, phoneRegion); err != nil {
			writeServiceError(w, r, err)
			return
		}

		hospital, err := store.CreateHospital(r.Context(), in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "hospital": hospital})
	}
}

func updateHospitalHandler(store catalog.Store, phoneRegion string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_hospital_id", "id must be a valid UUID")
			return
		}
		var in catalog.HospitalInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := normalizeHospital(&in, phoneRegion); err != nil {
			writeServiceError(w, r, err)
			return
		}

		hospital, err := store.UpdateHospital(r.Context(), id, in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "hospital": hospital})
	}
}

func deactivateHospitalHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_hospital_id", "id must be a valid UUID")
			return
		}
		if err := store.DeactivateHospital(r.Context(), id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Hospital deactivated"})
	}
}

func createTestHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in catalog.TestInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := in.Normalize(); err != nil {
			writeServiceError(w, r, err)
			return
		}

		test, err := store.CreateTest(r.Context(), in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "test": test})
	}
}

func updateTestHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_test_id", "id must be a valid UUID")
			return
		}
		var in catalog.TestInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := in.Normalize(); err != nil {
			writeServiceError(w, r, err)
			return
		}

		test, err := store.UpdateTest(r.Context(), id, in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "test": test})
	}
}

func retireTestHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_test_id", "id must be a valid UUID")
			return
		}
		if err := store.RetireTest(r.Context(), id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Medical test retired"})
	}
}

func normalizeHospital(in *catalog.HospitalInput, phoneRegion string) error {
	if err := in.Normalize(); err != nil {
		return err
	}
	if in.Phone != nil {
		phone := appointment.NormalizePhone(*in.Phone, phoneRegion)
		in.Phone = &phone
	}
	return nil
}
