package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medrex/hms-scheduling/pkg/types"
)

func setupTestRouter(t *testing.T) (*mux.Router, *MockSchedulingRepository, *MockDirectory) {
	svc, repo, directory := setupTestService(t, testConfig())
	router := mux.NewRouter()
	svc.RegisterRoutes(router.PathPrefix("/api/v1").Subrouter())
	return router, repo, directory
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const bookingJSON = `{"patientId":101,"doctorId":7,"date":"2025-03-10","timeRange":"08:00-09:00","type":"Consultation","reason":"Chest pain"}`

func TestHandlers_Booking(t *testing.T) {
	router, repo, directory := setupTestRouter(t)

	directory.On("GetPatient", mock.Anything, int64(101)).Return(activePatient(101), nil)
	directory.On("GetDoctor", mock.Anything, int64(7)).Return(activeDoctor(7), nil)
	repo.On("CreateAppointment", mock.Anything, bookingRequest()).Return(bookedAppointment("APT00001"), nil)

	rec := serve(router, http.MethodPost, "/api/v1/bookings", bookingJSON)

	require.Equal(t, http.StatusCreated, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "APT00001", body["appointment_id"])
	assert.Equal(t, "Booked", body["status"])
}

func TestHandlers_BookingErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"double booking", types.NewDoubleBookingError(7, "2025-03-10", "08:00-09:00", nil), http.StatusConflict, types.ErrCodeDoubleBooking},
		{"slot unavailable", types.NewSlotUnavailableError(7, "2025-03-10", "08:00-09:00"), http.StatusConflict, types.ErrCodeSlotUnavailable},
		{"store busy", types.NewStoreBusyError(errors.New("deadlock")), http.StatusServiceUnavailable, types.ErrCodeStoreBusy},
		{"exhausted", types.NewIdentifierExhaustedError(5, nil), http.StatusServiceUnavailable, types.ErrCodeIdentifierExhausted},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, repo, directory := setupTestRouter(t)
			directory.On("GetPatient", mock.Anything, int64(101)).Return(activePatient(101), nil)
			directory.On("GetDoctor", mock.Anything, int64(7)).Return(activeDoctor(7), nil)
			repo.On("CreateAppointment", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := serve(router, http.MethodPost, "/api/v1/bookings", bookingJSON)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body["code"])
			if tt.wantCode == types.ErrCodeStoreBusy {
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			}
			assert.NotContains(t, rec.Body.String(), "connection reset")
		})
	}
}

func TestHandlers_BookingRejectsBadBody(t *testing.T) {
	router, repo, _ := setupTestRouter(t)

	for _, body := range []string{
		`{"patientId":`,
		`{"patientId":101,"doctorId":7,"date":"10/03/2025","timeRange":"08:00-09:00"}`,
		`{"patientId":101,"doctorId":7,"date":"2025-03-10","timeRange":"08:00-09:00","room":"4B"}`,
	} {
		rec := serve(router, http.MethodPost, "/api/v1/bookings", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	repo.AssertNotCalled(t, "CreateAppointment", mock.Anything, mock.Anything)
}

func TestHandlers_Cancellation(t *testing.T) {
	router, repo, _ := setupTestRouter(t)

	repo.On("GetAppointmentByCode", mock.Anything, "APT00001").Return(bookedAppointment("APT00001"), nil)
	repo.On("CancelBookedAppointment", mock.Anything, "APT00001").Return(true, nil)

	rec := serve(router, http.MethodPost, "/api/v1/cancellations",
		`{"appointmentId":"APT00001","actorId":101,"actorRole":"patient"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"cancelled"}`, rec.Body.String())
}

func TestHandlers_CancellationByStranger(t *testing.T) {
	router, repo, _ := setupTestRouter(t)

	repo.On("GetAppointmentByCode", mock.Anything, "APT00001").Return(bookedAppointment("APT00001"), nil)

	rec := serve(router, http.MethodPost, "/api/v1/cancellations",
		`{"appointmentId":"APT00001","actorId":555,"actorRole":"patient"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	repo.AssertNotCalled(t, "CancelBookedAppointment", mock.Anything, mock.Anything)
}

func TestHandlers_GetAppointment(t *testing.T) {
	router, repo, _ := setupTestRouter(t)

	repo.On("GetAppointmentByCode", mock.Anything, "APT00001").Return(bookedAppointment("APT00001"), nil)
	repo.On("GetAppointmentByCode", mock.Anything, "APT09999").Return(nil, types.NewNotFoundError("appointment", "APT09999"))

	rec := serve(router, http.MethodGet, "/api/v1/appointments/APT00001", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodGet, "/api/v1/appointments/APT09999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_ListAppointments(t *testing.T) {
	router, repo, _ := setupTestRouter(t)

	repo.On("GetDoctorAppointments", mock.Anything, int64(7), types.StatusBooked).
		Return([]*types.Appointment{bookedAppointment("APT00001")}, nil)

	rec := serve(router, http.MethodGet, "/api/v1/appointments?role=doctor&ownerId=7&status=Booked", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "APT00001", body[0]["appointment_id"])

	rec = serve(router, http.MethodGet, "/api/v1/appointments?role=doctor&ownerId=seven", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_Treatment(t *testing.T) {
	router, repo, _ := setupTestRouter(t)

	repo.On("CompleteWithTreatment", mock.Anything, "APT00001", mock.AnythingOfType("*types.Treatment")).
		Return(bookedAppointment("APT00001"), nil)

	rec := serve(router, http.MethodPost, "/api/v1/treatments",
		`{"appointmentId":"APT00001","actorId":7,"visitType":"OPD","diagnosis":"Hypertension","prescription":"Rest","medicines":["Amlodipine 5mg"]}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "Amlodipine 5mg")
}

func TestHandlers_Availability(t *testing.T) {
	router, repo, directory := setupTestRouter(t)

	directory.On("GetDoctor", mock.Anything, int64(7)).Return(activeDoctor(7), nil)
	repo.On("SlotExists", mock.Anything, int64(7), testDate, "08:00-09:00").Return(false, nil)
	repo.On("CreateSlot", mock.Anything, mock.MatchedBy(func(slot *types.AvailabilitySlot) bool {
		return slot.IsAvailable
	})).Return(nil)
	repo.On("GetSlots", mock.Anything, int64(7)).Return(slotsFor(7), nil)

	rec := serve(router, http.MethodPost, "/api/v1/availability",
		`{"doctorId":7,"date":"2025-03-10","timeRange":"08:00-09:00"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(router, http.MethodGet, "/api/v1/availability?doctorId=7&fromDate=2025-03-12", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var slots []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slots))
	assert.Len(t, slots, 1)

	rec = serve(router, http.MethodGet, "/api/v1/availability?doctorId=7&fromDate=12-03-2025", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
