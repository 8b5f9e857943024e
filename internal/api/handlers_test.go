package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/lock"
	"github.com/hackgods/clinic-booking/internal/metrics"
)

type testServer struct {
	handler http.Handler
	repo    *appointment.MemoryRepository
	metrics *metrics.Metrics
	admin   uuid.UUID
	patient uuid.UUID
}

func newTestServer(t *testing.T, checks ...DependencyCheck) *testServer {
	t.Helper()

	repo := appointment.NewMemoryRepository()
	m := metrics.New()
	svc := appointment.NewService(
		repo,
		lock.NewLocalLocker(lock.Options{Wait: time.Second}),
		config.Config{Location: time.UTC},
		zap.NewNop(),
		appointment.WithObserver(m),
	)

	ts := &testServer{
		repo:    repo,
		metrics: m,
		admin:   uuid.New(),
		patient: uuid.New(),
	}
	repo.AddPatient(appointment.Patient{ID: ts.patient, Name: "Test Patient"})

	ts.handler = NewRouter(RouterConfig{
		Service: svc,
		Metrics: m,
		Logger:  zap.NewNop(),
		Checks:  checks,
		Env:     "test",
		Version: "test",
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, actor uuid.UUID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != uuid.Nil {
		req.Header.Set(HeaderActorID, actor.String())
		req.Header.Set(HeaderActorRole, role)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seedDoctor creates Ivan Petrov in office 101 with a Monday 09:00-12:00 window.
func (ts *testServer) seedDoctor(t *testing.T) DoctorResponse {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/doctors", ts.admin, "admin", CreateDoctorRequest{
		Name:           "Ivan Petrov",
		Specialization: "Cardiology",
		Office:         "101",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	d := decodeBody[DoctorResponse](t, rec)

	rec = ts.do(t, http.MethodPost, "/doctors/"+d.Slug+"/schedule", ts.admin, "admin", AddScheduleEntryRequest{
		DayOfWeek: 1,
		StartTime: "09:00",
		EndTime:   "12:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return d
}

func TestBookingScenario(t *testing.T) {
	ts := newTestServer(t)
	d := ts.seedDoctor(t)
	assert.Equal(t, "ivan-petrov", d.Slug)

	rec := ts.do(t, http.MethodGet, "/doctors/ivan-petrov/availability?date=2024-01-01", uuid.Nil, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	avail := decodeBody[AvailabilityResponse](t, rec)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}, avail.Slots)

	rec = ts.do(t, http.MethodPost, "/doctors/ivan-petrov/appointments", ts.patient, "patient", CreateAppointmentRequest{
		Date: "2024-01-01",
		Time: "09:30",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	appt := decodeBody[AppointmentResponse](t, rec)
	assert.Equal(t, "scheduled", appt.Status)
	assert.Equal(t, "101", appt.Office)
	assert.Equal(t, "09:30", appt.Time)
	assert.Equal(t, ts.patient, appt.PatientID)

	rec = ts.do(t, http.MethodGet, "/doctors/ivan-petrov/availability?date=2024-01-01", uuid.Nil, "", nil)
	avail = decodeBody[AvailabilityResponse](t, rec)
	assert.NotContains(t, avail.Slots, "09:30")

	rec = ts.do(t, http.MethodPost, "/doctors/ivan-petrov/appointments", ts.patient, "patient", CreateAppointmentRequest{
		Date: "2024-01-01",
		Time: "09:30",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_taken", decodeBody[ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodGet, "/appointments/"+appt.ID.String(), ts.patient, "patient", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", uuid.New(), "patient", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", ts.patient, "patient", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decodeBody[AppointmentResponse](t, rec)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.False(t, cancelled.AlreadyCancelled)

	rec = ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", ts.patient, "patient", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[AppointmentResponse](t, rec).AlreadyCancelled)

	rec = ts.do(t, http.MethodGet, "/doctors/ivan-petrov/availability?date=2024-01-01", uuid.Nil, "", nil)
	avail = decodeBody[AvailabilityResponse](t, rec)
	assert.Contains(t, avail.Slots, "09:30")
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	ts.seedDoctor(t)

	tests := []struct {
		name     string
		method   string
		path     string
		actor    uuid.UUID
		role     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"invalid date", http.MethodGet, "/doctors/ivan-petrov/availability?date=01-01-2024", uuid.Nil, "", nil, http.StatusBadRequest, "invalid_date"},
		{"missing date", http.MethodGet, "/doctors/ivan-petrov/availability", uuid.Nil, "", nil, http.StatusBadRequest, "invalid_date"},
		{"unknown doctor", http.MethodGet, "/doctors/nobody/availability?date=2024-01-01", uuid.Nil, "", nil, http.StatusNotFound, "doctor_not_found"},
		{"booking without actor", http.MethodPost, "/doctors/ivan-petrov/appointments", uuid.Nil, "", CreateAppointmentRequest{Date: "2024-01-01", Time: "09:00"}, http.StatusUnauthorized, "unauthenticated"},
		{"missing time", http.MethodPost, "/doctors/ivan-petrov/appointments", ts.patient, "patient", CreateAppointmentRequest{Date: "2024-01-01"}, http.StatusBadRequest, "validation_failed"},
		{"bad patient id", http.MethodPost, "/doctors/ivan-petrov/appointments", ts.patient, "patient", CreateAppointmentRequest{Date: "2024-01-01", Time: "09:00", PatientID: "nope"}, http.StatusBadRequest, "invalid_patient_id"},
		{"invalid time", http.MethodPost, "/doctors/ivan-petrov/appointments", ts.patient, "patient", CreateAppointmentRequest{Date: "2024-01-01", Time: "25:00"}, http.StatusBadRequest, "invalid_time"},
		{"slot not offered", http.MethodPost, "/doctors/ivan-petrov/appointments", ts.patient, "patient", CreateAppointmentRequest{Date: "2024-01-01", Time: "12:00"}, http.StatusConflict, "slot_not_offered"},
		{"unknown appointment", http.MethodGet, "/appointments/" + uuid.NewString(), ts.admin, "admin", nil, http.StatusNotFound, "appointment_not_found"},
		{"malformed appointment id", http.MethodPost, "/appointments/abc/cancel", ts.admin, "admin", nil, http.StatusBadRequest, "invalid_appointment_id"},
		{"patient creating doctor", http.MethodPost, "/doctors", ts.patient, "patient", CreateDoctorRequest{Name: "X", Office: "1"}, http.StatusForbidden, "forbidden"},
		{"bad schedule window", http.MethodPost, "/doctors/ivan-petrov/schedule", ts.admin, "admin", AddScheduleEntryRequest{DayOfWeek: 2, StartTime: "10:00", EndTime: "09:00"}, http.StatusBadRequest, "invalid_schedule"},
		{"schedule conflict", http.MethodPost, "/doctors/ivan-petrov/schedule", ts.admin, "admin", AddScheduleEntryRequest{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}, http.StatusConflict, "schedule_conflict"},
		{"bad page", http.MethodGet, "/doctors?page=0", uuid.Nil, "", nil, http.StatusBadRequest, "invalid_page"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.actor, tt.role, tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decodeBody[ErrorResponse](t, rec).Error)
		})
	}
}

func TestMalformedBody(t *testing.T) {
	ts := newTestServer(t)
	ts.seedDoctor(t)

	req := httptest.NewRequest(http.MethodPost, "/doctors/ivan-petrov/appointments", strings.NewReader("{"))
	req.Header.Set(HeaderActorID, ts.patient.String())
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request_body", decodeBody[ErrorResponse](t, rec).Error)
}

func TestDoctorsAndPatientListings(t *testing.T) {
	ts := newTestServer(t)
	ts.seedDoctor(t)

	hidden := false
	rec := ts.do(t, http.MethodPost, "/doctors", ts.admin, "admin", CreateDoctorRequest{Name: "Hidden Doctor", Office: "909", Published: &hidden})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, "/doctors", uuid.Nil, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[PageResponse[DoctorResponse]](t, rec)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "ivan-petrov", page.Items[0].Slug)

	rec = ts.do(t, http.MethodGet, "/doctors/hidden-doctor", uuid.Nil, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/doctors/ivan-petrov", uuid.Nil, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody[DoctorDetailResponse](t, rec)
	require.Len(t, detail.Schedule, 1)
	assert.Equal(t, "09:00", detail.Schedule[0].StartTime)
	assert.Equal(t, "12:00", detail.Schedule[0].EndTime)

	for _, at := range []string{"09:00", "10:00"} {
		rec = ts.do(t, http.MethodPost, "/doctors/ivan-petrov/appointments", ts.admin, "admin", CreateAppointmentRequest{
			Date:      "2024-01-01",
			Time:      at,
			PatientID: ts.patient.String(),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	path := "/patients/" + ts.patient.String() + "/appointments"
	rec = ts.do(t, http.MethodGet, path, ts.patient, "patient", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	appts := decodeBody[PageResponse[AppointmentResponse]](t, rec)
	assert.Equal(t, 2, appts.Total)
	require.Len(t, appts.Items, 2)
	assert.Equal(t, "09:00", appts.Items[0].Time)

	rec = ts.do(t, http.MethodGet, path, uuid.New(), "patient", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	failing := errors.New("down")
	ts := newTestServer(t,
		DependencyCheck{Name: "memory", Required: true, Ping: func(context.Context) error { return nil }},
		DependencyCheck{Name: "cache", Ping: func(context.Context) error { return failing }},
	)

	rec := ts.do(t, http.MethodGet, "/health/live", uuid.Nil, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/health/ready", uuid.Nil, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	ready := decodeBody[ReadinessResponse](t, rec)
	assert.Equal(t, "degraded", ready.Status)
	assert.Equal(t, "down", ready.Dependencies["cache"])

	rec = ts.do(t, http.MethodGet, "/metrics", uuid.Nil, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestReadinessFailsOnRequiredDependency(t *testing.T) {
	ts := newTestServer(t,
		DependencyCheck{Name: "postgres", Required: true, Ping: func(context.Context) error { return errors.New("refused") }},
	)

	rec := ts.do(t, http.MethodGet, "/health/ready", uuid.Nil, "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "error", decodeBody[ReadinessResponse](t, rec).Status)
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))

	rec = ts.do(t, http.MethodGet, "/health/live", uuid.Nil, "", nil)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestRegisteredPatientCanBook(t *testing.T) {
	repo := appointment.NewMemoryRepository()
	svc := appointment.NewService(repo, lock.NewLocalLocker(lock.Options{}), config.Config{Location: time.UTC}, zap.NewNop())
	ts := &testServer{
		handler: NewRouter(RouterConfig{Service: svc, Logger: zap.NewNop()}),
		repo:    repo,
		admin:   uuid.New(),
	}
	doctor := ts.seedDoctor(t)

	rec := ts.do(t, http.MethodPost, "/patients", uuid.Nil, "", RegisterPatientRequest{Name: "Maria Ivanova", Email: "maria@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	patient := decodeBody[PatientResponse](t, rec)
	require.NotEqual(t, uuid.Nil, patient.ID)
	require.NotNil(t, patient.Email)
	assert.Equal(t, "maria@example.com", *patient.Email)

	rec = ts.do(t, http.MethodPost, "/doctors/"+doctor.Slug+"/appointments", patient.ID, "patient", CreateAppointmentRequest{
		Date: "2024-01-01",
		Time: "09:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, patient.ID, decodeBody[AppointmentResponse](t, rec).PatientID)
}

func TestPatientProfile(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/patients", uuid.Nil, "", RegisterPatientRequest{Name: "Oleg Sidorov"})
	require.Equal(t, http.StatusCreated, rec.Code)
	patient := decodeBody[PatientResponse](t, rec)
	assert.Nil(t, patient.Email)
	path := "/patients/" + patient.ID.String()

	rec = ts.do(t, http.MethodGet, path, patient.ID, "patient", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Oleg Sidorov", decodeBody[PatientResponse](t, rec).Name)

	email := "oleg@example.com"
	rec = ts.do(t, http.MethodPatch, path, patient.ID, "patient", UpdatePatientRequest{Email: &email})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[PatientResponse](t, rec)
	assert.Equal(t, "Oleg Sidorov", updated.Name)
	require.NotNil(t, updated.Email)
	assert.Equal(t, email, *updated.Email)

	name := "Oleg P. Sidorov"
	rec = ts.do(t, http.MethodPatch, path, ts.admin, "admin", UpdatePatientRequest{Name: &name})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, name, decodeBody[PatientResponse](t, rec).Name)

	rec = ts.do(t, http.MethodPatch, path, uuid.New(), "patient", UpdatePatientRequest{Name: &name})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, path, uuid.New(), "patient", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/patients/"+uuid.NewString(), ts.admin, "admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "patient_not_found", decodeBody[ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodGet, "/patients/abc", ts.admin, "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_patient_id", decodeBody[ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPost, "/patients", uuid.Nil, "", RegisterPatientRequest{Name: "X", Email: "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decodeBody[ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPost, "/patients", uuid.Nil, "", RegisterPatientRequest{Name: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_patient", decodeBody[ErrorResponse](t, rec).Error)
}
