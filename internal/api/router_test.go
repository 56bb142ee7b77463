package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/medtest-appointment-scheduling/internal/appointment"
	"github.com/hackgods/medtest-appointment-scheduling/internal/catalog"
	"github.com/hackgods/medtest-appointment-scheduling/internal/notify"
	"github.com/hackgods/medtest-appointment-scheduling/internal/results"
	"github.com/hackgods/medtest-appointment-scheduling/internal/scheduling"
)

const testSecret = "test-secret"

type fakeAppointments struct {
	bookReq   appointment.BookingRequest
	bookErr   error
	availQ    appointment.AvailabilityQuery
	listF     appointment.ListFilter
	statusArg appointment.Status
	statusErr error
	getErr    error
}

func (f *fakeAppointments) detail() *appointment.AppointmentDetail {
	return &appointment.AppointmentDetail{Appointment: appointment.Appointment{
		ID:        uuid.New(),
		Reference: "APT-2026-000001",
		Status:    appointment.StatusPending,
	}}
}

func (f *fakeAppointments) BookAppointment(_ context.Context, req appointment.BookingRequest) (*appointment.AppointmentDetail, error) {
	f.bookReq = req
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	d := f.detail()
	d.PatientID = req.Patient.ID
	return d, nil
}

func (f *fakeAppointments) Availability(_ context.Context, q appointment.AvailabilityQuery) (*appointment.Availability, error) {
	f.availQ = q
	return &appointment.Availability{Date: q.Date, Slots: []string{"08:00", "08:15"}, Opens: "08:00", Closes: "17:00", Duration: 45}, nil
}

func (f *fakeAppointments) UpdateStatus(_ context.Context, _ uuid.UUID, status appointment.Status) (*appointment.AppointmentDetail, error) {
	f.statusArg = status
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	d := f.detail()
	d.Status = status
	return d, nil
}

func (f *fakeAppointments) GetForPatient(context.Context, uuid.UUID, uuid.UUID) (*appointment.AppointmentDetail, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.detail(), nil
}

func (f *fakeAppointments) GetByReference(context.Context, string, uuid.UUID) (*appointment.AppointmentDetail, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.detail(), nil
}

func (f *fakeAppointments) ListForPatient(context.Context, uuid.UUID) ([]appointment.AppointmentDetail, error) {
	return []appointment.AppointmentDetail{*f.detail()}, nil
}

func (f *fakeAppointments) List(_ context.Context, filter appointment.ListFilter) ([]appointment.AppointmentDetail, int, error) {
	f.listF = filter
	return []appointment.AppointmentDetail{*f.detail()}, 1, nil
}

func (f *fakeAppointments) Policy() scheduling.Policy {
	return scheduling.DefaultPolicy()
}

type fakeCatalog struct {
	createdHospital catalog.HospitalInput
	createdTest     catalog.TestInput
	retired         uuid.UUID
}

func (*fakeCatalog) ListHospitals(context.Context) ([]catalog.Hospital, error) {
	return []catalog.Hospital{{ID: uuid.New(), Name: "CHUK"}}, nil
}

func (*fakeCatalog) GetHospital(context.Context, uuid.UUID) (*catalog.Hospital, error) {
	return nil, catalog.ErrHospitalNotFound
}

func (*fakeCatalog) ListTests(context.Context, *uuid.UUID) ([]catalog.MedicalTest, error) {
	return []catalog.MedicalTest{}, nil
}

func (*fakeCatalog) GetTest(context.Context, uuid.UUID) (*catalog.MedicalTest, error) {
	return &catalog.MedicalTest{ID: uuid.New(), Name: "X-Ray"}, nil
}

func (f *fakeCatalog) CreateHospital(_ context.Context, in catalog.HospitalInput) (*catalog.Hospital, error) {
	f.createdHospital = in
	return &catalog.Hospital{ID: uuid.New(), Name: in.Name, Phone: in.Phone, IsActive: *in.IsActive}, nil
}

func (f *fakeCatalog) UpdateHospital(context.Context, uuid.UUID, catalog.HospitalInput) (*catalog.Hospital, error) {
	return nil, catalog.ErrHospitalNotFound
}

func (f *fakeCatalog) DeactivateHospital(context.Context, uuid.UUID) error {
	return nil
}

func (f *fakeCatalog) CreateTest(_ context.Context, in catalog.TestInput) (*catalog.MedicalTest, error) {
	f.createdTest = in
	return &catalog.MedicalTest{ID: uuid.New(), HospitalID: in.HospitalID, Name: in.Name, Price: in.Price, Currency: in.Currency, Duration: in.Duration}, nil
}

func (f *fakeCatalog) UpdateTest(context.Context, uuid.UUID, catalog.TestInput) (*catalog.MedicalTest, error) {
	return nil, catalog.ErrHospitalNotFound
}

func (f *fakeCatalog) RetireTest(_ context.Context, id uuid.UUID) error {
	f.retired = id
	return nil
}

type fakeResults struct {
	recorded results.RecordRequest
	listed   uuid.UUID
}

func (f *fakeResults) Record(_ context.Context, req results.RecordRequest) (*results.Detail, error) {
	f.recorded = req
	return &results.Detail{Result: results.Result{ID: uuid.New(), Status: results.StatusCompleted}, Reference: "APT-2026-000001"}, nil
}

func (f *fakeResults) ListForPatient(_ context.Context, patientID uuid.UUID) ([]results.Detail, error) {
	f.listed = patientID
	return []results.Detail{}, nil
}

func (f *fakeResults) GetForPatient(context.Context, uuid.UUID, uuid.UUID) (*results.Detail, error) {
	return nil, results.ErrResultNotFound
}

type fakeNotifications struct {
	notify.Store
	listed uuid.UUID
}

func (f *fakeNotifications) ListForPatient(_ context.Context, patientID uuid.UUID, _ int) ([]notify.Notification, error) {
	f.listed = patientID
	return []notify.Notification{{ID: uuid.New(), PatientID: patientID, Type: notify.TypeAppointmentBooked}}, nil
}

func (f *fakeNotifications) MarkRead(context.Context, uuid.UUID, uuid.UUID) (*notify.Notification, error) {
	return nil, notify.ErrNotificationNotFound
}

type fixture struct {
	svc     *fakeAppointments
	cat     *fakeCatalog
	results *fakeResults
	notes   *fakeNotifications
	auth    *Authenticator
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		svc:     &fakeAppointments{},
		cat:     &fakeCatalog{},
		results: &fakeResults{},
		notes:   &fakeNotifications{},
		auth:    NewAuthenticator(testSecret),
	}
	f.handler = NewRouter(RouterConfig{
		Appointments:  f.svc,
		Catalog:       f.cat,
		Results:       f.results,
		Notifications: f.notes,
		Auth:          f.auth,
		Health:        NewHealthHandler(okPinger{}, nil, "test", "v0"),
		Gatherer:      prometheus.NewRegistry(),
		Logger:        zerolog.Nop(),
	})
	return f
}

func (f *fixture) token(t *testing.T, id Identity) string {
	t.Helper()
	tok, err := f.auth.SignToken(id, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func patient() Identity {
	return Identity{UserID: uuid.New(), Name: "Aline", Phone: "0788123456", Email: "aline@example.com", Role: RolePatient}
}

func TestBookingConfigIsPublic(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/config/availability", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ConfigResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"Monday", "Thursday"}, resp.Availability.AllowedDays)
	assert.Equal(t, "08:00", resp.Availability.Opens)
	assert.Equal(t, "17:00", resp.Availability.Closes)
}

func TestCreateAppointmentRequiresToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/appointments", "", `{}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Error)
}

func TestCreateAppointmentUsesTokenIdentity(t *testing.T) {
	f := newFixture(t)
	id := patient()

	rec := f.do(t, http.MethodPost, "/appointments", f.token(t, id),
		`{"hospital_id":"h","test_id":"t","appointment_date":"2026-10-19","time_slot":"09:00"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, id.UserID, f.svc.bookReq.Patient.ID)
	assert.Equal(t, "Aline", f.svc.bookReq.Patient.Name)
	assert.Equal(t, "0788123456", f.svc.bookReq.Patient.Phone)
	assert.Equal(t, "09:00", f.svc.bookReq.TimeSlot)
}

func TestCreateAppointmentErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", scheduling.NewValidationError("time_slot", "Invalid time_slot format. Use HH:MM (24-hour)."), http.StatusBadRequest, "validation_error"},
		{"policy", scheduling.NewPolicyError("appointment_date", "This test is only available on: Monday, Thursday."), http.StatusBadRequest, "policy_violation"},
		{"conflict", scheduling.NewConflictError("Selected time overlaps with another appointment at this hospital."), http.StatusConflict, "booking_conflict"},
		{"collision", scheduling.NewReferenceCollisionError(), http.StatusConflict, "reference_collision"},
		{"in progress", appointment.ErrBookingInProgress, http.StatusConflict, "booking_in_progress"},
		{"unknown test", catalog.ErrTestNotFound, http.StatusNotFound, "test_not_found"},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.svc.bookErr = tc.err

			rec := f.do(t, http.MethodPost, "/appointments", f.token(t, patient()), `{}`)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeError(t, rec).Error)
		})
	}
}

func TestCreateAppointmentConflictDetails(t *testing.T) {
	f := newFixture(t)
	f.svc.bookErr = scheduling.NewConflictError("Selected time overlaps with another appointment at this hospital. Please choose a different time.")

	rec := f.do(t, http.MethodPost, "/appointments", f.token(t, patient()), `{}`)

	assert.Equal(t, "Selected time overlaps with another appointment at this hospital. Please choose a different time.", decodeError(t, rec).Details)
}

func TestCreateAppointmentRejectsMalformedBody(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/appointments", f.token(t, patient()), `{`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_body", decodeError(t, rec).Error)
}

func TestAvailability(t *testing.T) {
	f := newFixture(t)
	hospital, test := uuid.New(), uuid.New()

	rec := f.do(t, http.MethodGet, "/appointments/availability?hospital_id="+hospital.String()+"&date=2026-10-19&test_id="+test.String(), f.token(t, patient()), "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AvailabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"08:00", "08:15"}, resp.Slots)
	assert.Equal(t, hospital, f.svc.availQ.HospitalID)
	require.NotNil(t, f.svc.availQ.TestID)
	assert.Equal(t, test, *f.svc.availQ.TestID)
}

func TestAvailabilityRequiresHospitalAndDate(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/appointments/availability?date=2026-10-19", f.token(t, patient()), "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "hospital_id and date are required", decodeError(t, rec).Details)
}

func TestGetAppointmentNotOwned(t *testing.T) {
	f := newFixture(t)
	f.svc.getErr = appointment.ErrAppointmentNotFound

	rec := f.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), f.token(t, patient()), "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetByReferenceRoute(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/appointments/reference/APT-2026-000001", f.token(t, patient()), "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/admin/appointments", f.token(t, patient()), "")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminListAppointments(t *testing.T) {
	f := newFixture(t)
	admin := Identity{UserID: uuid.New(), Role: RoleAdmin}

	rec := f.do(t, http.MethodGet, "/admin/appointments?status=confirmed&limit=5&offset=10", f.token(t, admin), "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.svc.listF.Status)
	assert.Equal(t, appointment.StatusConfirmed, *f.svc.listF.Status)
	assert.Equal(t, 5, f.svc.listF.Limit)
	assert.Equal(t, 10, f.svc.listF.Offset)
}

func TestAdminListRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	admin := Identity{UserID: uuid.New(), Role: RoleAdmin}

	rec := f.do(t, http.MethodGet, "/admin/appointments?status=lost", f.token(t, admin), "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminUpdateStatus(t *testing.T) {
	f := newFixture(t)
	admin := Identity{UserID: uuid.New(), Role: RoleAdmin}

	rec := f.do(t, http.MethodPut, "/admin/appointments/"+uuid.NewString()+"/status", f.token(t, admin), `{"status":"Confirmed"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, appointment.StatusConfirmed, f.svc.statusArg)
	var resp StatusUpdateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Appointment confirmed successfully", resp.Message)
}

func TestAdminUpdateStatusConflictOnReactivation(t *testing.T) {
	f := newFixture(t)
	f.svc.statusErr = scheduling.NewConflictError("Selected time overlaps with another appointment at this hospital.")
	admin := Identity{UserID: uuid.New(), Role: RoleAdmin}

	rec := f.do(t, http.MethodPut, "/admin/appointments/"+uuid.NewString()+"/status", f.token(t, admin), `{"status":"pending"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTokenWithSubjectOnly(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/notifications/my", tok, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, f.notes.listed)
}

func TestExpiredToken(t *testing.T) {
	f := newFixture(t)

	tok, err := f.auth.SignToken(patient(), -time.Minute)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/appointments/my", tok, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token expired. Please login again.", decodeError(t, rec).Details)
}

func TestTokenWrongSecret(t *testing.T) {
	f := newFixture(t)
	tok, err := NewAuthenticator("other").SignToken(patient(), time.Hour)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/appointments/my", tok, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", decodeError(t, rec).Details)
}

func TestMarkNotificationReadNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/notifications/"+uuid.NewString()+"/read", f.token(t, patient()), "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "notification_not_found", decodeError(t, rec).Error)
}

func TestCatalogRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/hospitals", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/hospitals/"+uuid.NewString(), "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/tests?hospital_id=nope", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()

	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminCatalogRoutesRequireAdminRole(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, patient())

	for _, path := range []string{"/admin/hospitals", "/admin/medical-tests", "/admin/results"} {
		rec := f.do(t, http.MethodPost, path, tok, `{}`)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}

func TestAdminCreateHospitalNormalizesPhone(t *testing.T) {
	f := newFixture(t)
	admin := Identity{UserID: uuid.New(), Role: RoleAdmin}

	rec := f.do(t, http.MethodPost, "/admin/hospitals", f.token(t, admin), `{"name":" CHUK ","phone":"0788123456"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "CHUK", f.cat.createdHospital.Name)
	require.NotNil(t, f.cat.createdHospital.Phone)
	assert.Equal(t, "+250788123456", *f.cat.createdHospital.Phone)
}

func TestAdminCreateTest(t *testing.T) {
	f := newFixture(t)
	admin := Identity{UserID: uuid.New(), Role: RoleAdmin}
	hospitalID := uuid.New()

	rec := f.do(t, http.MethodPost, "/admin/medical-tests", f.token(t, admin),
		`{"hospital_id":"`+hospitalID.String()+`","name":"CBC","price":8000,"currency":"rwf","duration":"20"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, hospitalID, f.cat.createdTest.HospitalID)
	assert.Equal(t, "RWF", f.cat.createdTest.Currency)
}

func TestAdminCreateTestValidation(t *testing.T) {
	f := newFixture(t)
	admin := Identity{UserID: uuid.New(), Role: RoleAdmin}

	rec := f.do(t, http.MethodPost, "/admin/medical-tests", f.token(t, admin),
		`{"hospital_id":"`+uuid.NewString()+`","name":"CBC","duration":"twenty"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Error)
}

func TestAdminUpdateTestUnknownHospital(t *testing.T) {
	f := newFixture(t)
	admin := Identity{UserID: uuid.New(), Role: RoleAdmin}

	rec := f.do(t, http.MethodPut, "/admin/medical-tests/"+uuid.NewString(), f.token(t, admin),
		`{"hospital_id":"`+uuid.NewString()+`","name":"CBC"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "hospital_not_found", decodeError(t, rec).Error)
}

func TestAdminRetireTest(t *testing.T) {
	f := newFixture(t)
	admin := Identity{UserID: uuid.New(), Role: RoleAdmin}
	id := uuid.New()

	rec := f.do(t, http.MethodDelete, "/admin/medical-tests/"+id.String(), f.token(t, admin), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, f.cat.retired)
}

func TestAdminRecordResult(t *testing.T) {
	f := newFixture(t)
	admin := Identity{UserID: uuid.New(), Role: RoleAdmin}
	appointmentID := uuid.NewString()

	rec := f.do(t, http.MethodPost, "/admin/results", f.token(t, admin),
		`{"appointment_id":"`+appointmentID+`","numeric_results":[{"name":"Glucose","value":5.4,"unit":"mmol/L"}]}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, appointmentID, f.results.recorded.AppointmentID)
	require.Len(t, f.results.recorded.NumericResults, 1)
	assert.Equal(t, 5.4, f.results.recorded.NumericResults[0].Value)
}

func TestMyResults(t *testing.T) {
	f := newFixture(t)
	p := patient()

	rec := f.do(t, http.MethodGet, "/results/my", f.token(t, p), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, p.UserID, f.results.listed)
}

func TestGetResultNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/results/"+uuid.NewString(), f.token(t, patient()), "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "result_not_found", decodeError(t, rec).Error)
}
