package scheduling

import (
	"bytes"
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/hms-scheduling/internal/identifier"
	"github.com/medrex/hms-scheduling/pkg/config"
	"github.com/medrex/hms-scheduling/pkg/database"
	"github.com/medrex/hms-scheduling/pkg/logger"
	"github.com/medrex/hms-scheduling/pkg/types"
)

var appointmentRowColumns = []string{
	"id", "appointment_code", "patient_id", "doctor_id", "appointment_date", "time_slot",
	"appointment_type", "reason", "status", "created_at", "updated_at",
	"t_id", "visit_type", "tests_done", "diagnosis", "prescription", "medicines",
	"notes", "followup_date", "t_created_at",
}

func setupTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	log := logger.NewWithOutput("debug", &bytes.Buffer{})
	db := database.NewFromSQL(sqlDB, &config.DatabaseConfig{TxTimeout: 5}, log)
	return NewRepository(db, identifier.New(db, 5, log), log), mock
}

func dateValue(d time.Time) driver.Value {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func TestRepository_CreateAppointment(t *testing.T) {
	repo, mock := setupTestRepository(t)
	req := bookingRequest()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM availability_slots").
		WithArgs(int64(7), "2025-03-10", "08:00-09:00").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT 1 FROM appointments").
		WithArgs(int64(7), "2025-03-10", "08:00-09:00").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("UPDATE id_counters").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(12)))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("APT00012", int64(101), int64(7), "2025-03-10", "08:00-09:00", "Consultation", "Chest pain", "Booked").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(5), now, now))
	mock.ExpectCommit()

	apt, err := repo.CreateAppointment(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "APT00012", apt.AppointmentID)
	assert.Equal(t, int64(5), apt.ID)
	assert.Equal(t, types.StatusBooked, apt.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateAppointment_NoOpenSlot(t *testing.T) {
	repo, mock := setupTestRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM availability_slots").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := repo.CreateAppointment(context.Background(), bookingRequest())

	assert.ErrorIs(t, err, types.ErrSlotUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateAppointment_AlreadyBooked(t *testing.T) {
	repo, mock := setupTestRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM availability_slots").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT 1 FROM appointments").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := repo.CreateAppointment(context.Background(), bookingRequest())

	assert.ErrorIs(t, err, types.ErrDoubleBooking)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateAppointment_LostRace(t *testing.T) {
	repo, mock := setupTestRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM availability_slots").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT 1 FROM appointments").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("UPDATE id_counters").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(13)))
	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnError(&pq.Error{Code: "23505", Constraint: BookedSlotConstraint})
	mock.ExpectRollback()

	_, err := repo.CreateAppointment(context.Background(), bookingRequest())

	assert.ErrorIs(t, err, types.ErrDoubleBooking)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CreateAppointment_DeadlockIsStoreBusy(t *testing.T) {
	repo, mock := setupTestRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM availability_slots").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT 1 FROM appointments").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("UPDATE id_counters").
		WillReturnError(&pq.Error{Code: "40P01"})
	mock.ExpectRollback()

	_, err := repo.CreateAppointment(context.Background(), bookingRequest())

	assert.ErrorIs(t, err, types.ErrStoreBusy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetAppointmentByCode_WithTreatment(t *testing.T) {
	repo, mock := setupTestRepository(t)
	now := time.Now()
	visit := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	followup := time.Date(2025, time.March, 24, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(appointmentRowColumns).AddRow(
		int64(5), "APT00012", int64(101), int64(7), dateValue(visit), "08:00-09:00",
		"Consultation", "Chest pain", "Completed", now, now,
		int64(9), "OPD", "ECG", "Angina", "Rest", "Aspirin 75mg, Atorvastatin 10mg",
		"", dateValue(followup), now,
	)
	mock.ExpectQuery("LEFT JOIN treatments").WithArgs("APT00012").WillReturnRows(rows)

	apt, err := repo.GetAppointmentByCode(context.Background(), "APT00012")

	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, apt.Status)
	assert.Equal(t, testDate, apt.Date)
	require.NotNil(t, apt.Treatment)
	assert.Equal(t, "APT00012", apt.Treatment.AppointmentID)
	assert.Equal(t, "Aspirin 75mg, Atorvastatin 10mg", apt.Treatment.Medicines)
	require.NotNil(t, apt.Treatment.FollowupDate)
	assert.Equal(t, "2025-03-24", apt.Treatment.FollowupDate.String())
}

func TestRepository_GetAppointmentByCode_NotFound(t *testing.T) {
	repo, mock := setupTestRepository(t)

	mock.ExpectQuery("LEFT JOIN treatments").WithArgs("APT09999").
		WillReturnRows(sqlmock.NewRows(appointmentRowColumns))

	_, err := repo.GetAppointmentByCode(context.Background(), "APT09999")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRepository_GetPatientAppointments(t *testing.T) {
	repo, mock := setupTestRepository(t)
	now := time.Now()

	rows := sqlmock.NewRows(appointmentRowColumns).
		AddRow(int64(6), "APT00013", int64(101), int64(7), dateValue(now.AddDate(0, 0, 3)), "09:00-10:00",
			"Follow-up", "", "Booked", now, now, nil, nil, nil, nil, nil, nil, nil, nil, nil).
		AddRow(int64(5), "APT00012", int64(101), int64(7), dateValue(now), "08:00-09:00",
			"Consultation", "", "Cancelled", now, now, nil, nil, nil, nil, nil, nil, nil, nil, nil)
	mock.ExpectQuery("ORDER BY a.appointment_date DESC").
		WithArgs(int64(101), "").
		WillReturnRows(rows)

	appointments, err := repo.GetPatientAppointments(context.Background(), 101, "")

	require.NoError(t, err)
	require.Len(t, appointments, 2)
	assert.Equal(t, "APT00013", appointments[0].AppointmentID)
	assert.Nil(t, appointments[0].Treatment)
	assert.Equal(t, types.StatusCancelled, appointments[1].Status)
}

func TestRepository_CancelBookedAppointment(t *testing.T) {
	repo, mock := setupTestRepository(t)

	mock.ExpectExec("UPDATE appointments").WithArgs("APT00001").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE appointments").WithArgs("APT00001").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.CancelBookedAppointment(context.Background(), "APT00001")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CancelBookedAppointment(context.Background(), "APT00001")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_CompleteWithTreatment(t *testing.T) {
	repo, mock := setupTestRepository(t)
	now := time.Now()
	visit := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("APT00012").
		WillReturnRows(sqlmock.NewRows([]string{"id", "appointment_code", "patient_id", "doctor_id", "appointment_date", "time_slot", "status"}).
			AddRow(int64(5), "APT00012", int64(101), int64(7), visit, "08:00-09:00", "Booked"))
	mock.ExpectQuery("INSERT INTO treatments").
		WithArgs(int64(5), "OPD", "", "Angina", "Rest", "Aspirin 75mg", "", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(9), now))
	mock.ExpectExec("SET status = 'Completed'").WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var locked *types.Appointment
	treatment := &types.Treatment{VisitType: "OPD", Diagnosis: "Angina", Prescription: "Rest", Medicines: "Aspirin 75mg"}
	err := repo.CompleteWithTreatment(context.Background(), "APT00012", func(apt *types.Appointment) error {
		locked = apt
		return nil
	}, treatment)

	require.NoError(t, err)
	assert.Equal(t, types.StatusBooked, locked.Status)
	assert.Equal(t, testDate, locked.Date)
	assert.Equal(t, int64(9), treatment.ID)
	assert.Equal(t, "APT00012", treatment.AppointmentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_CompleteWithTreatment_CheckVetoes(t *testing.T) {
	repo, mock := setupTestRepository(t)
	visit := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("APT00012").
		WillReturnRows(sqlmock.NewRows([]string{"id", "appointment_code", "patient_id", "doctor_id", "appointment_date", "time_slot", "status"}).
			AddRow(int64(5), "APT00012", int64(101), int64(7), visit, "08:00-09:00", "Cancelled"))
	mock.ExpectRollback()

	err := repo.CompleteWithTreatment(context.Background(), "APT00012", func(apt *types.Appointment) error {
		return types.NewInvalidTransitionError(apt.AppointmentID, apt.Status, types.StatusCompleted)
	}, &types.Treatment{})

	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetSlots(t *testing.T) {
	repo, mock := setupTestRepository(t)
	now := time.Now()
	visit := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "doctor_id", "slot_date", "time_slot", "is_available", "created_at", "booked"}).
		AddRow(int64(1), int64(7), visit, "08:00-09:00", true, now, true).
		AddRow(int64(2), int64(7), visit, "09:00-10:00", true, now, false)
	mock.ExpectQuery("FROM availability_slots s").WithArgs(int64(7)).WillReturnRows(rows)

	slots, err := repo.GetSlots(context.Background(), 7)

	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.True(t, slots[0].Booked)
	assert.False(t, slots[1].Booked)
	assert.Equal(t, testDate, slots[1].Date)
}

func TestRepository_CreateSlot(t *testing.T) {
	repo, mock := setupTestRepository(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO availability_slots").
		WithArgs(int64(7), "2025-03-10", "08:00-09:00", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(3), now))

	slot := &types.AvailabilitySlot{DoctorID: 7, Date: testDate, TimeRange: "08:00-09:00", IsAvailable: true}
	require.NoError(t, repo.CreateSlot(context.Background(), slot))
	assert.Equal(t, int64(3), slot.ID)
}
