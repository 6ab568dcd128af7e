package directory

import (
	"bytes"
	"context"
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

var doctorRowColumns = []string{
	"id", "department_id", "first_name", "last_name", "email", "contact",
	"specialization", "education", "experience", "is_active", "created_at",
}

func setupTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	log := logger.NewWithOutput("debug", &bytes.Buffer{})
	return NewRepository(database.NewFromSQL(sqlDB, &config.DatabaseConfig{TxTimeout: 5}, log), log), mock
}

func TestRepository_GetDoctorByID(t *testing.T) {
	repo, mock := setupTestRepository(t)
	now := time.Now()

	mock.ExpectQuery("FROM doctors WHERE id = \\$1").WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(doctorRowColumns).
			AddRow(int64(7), int64(3), "Meera", "Iyer", "meera@example.org", "9876543210", "Cardiology", "MD", 12, true, now))
	mock.ExpectQuery("FROM doctors WHERE id = \\$1").WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows(doctorRowColumns))

	doctor, err := repo.GetDoctorByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Cardiology", doctor.Specialization)
	assert.Equal(t, 12, doctor.Experience)
	assert.True(t, doctor.IsActive)

	_, err = repo.GetDoctorByID(context.Background(), 8)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRepository_GetDoctorsByDepartment(t *testing.T) {
	repo, mock := setupTestRepository(t)
	now := time.Now()

	mock.ExpectQuery("WHERE department_id = \\$1 AND is_active").WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(doctorRowColumns).
			AddRow(int64(7), int64(3), "Meera", "Iyer", "meera@example.org", "9876543210", "Cardiology", "", 0, true, now).
			AddRow(int64(9), int64(3), "Arjun", "Nair", "arjun@example.org", "9876500000", "Cardiology", "", 3, true, now))

	doctors, err := repo.GetDoctorsByDepartment(context.Background(), 3)

	require.NoError(t, err)
	require.Len(t, doctors, 2)
	assert.Equal(t, "Nair", doctors[1].LastName)
}

func TestRepository_ResolveDepartment(t *testing.T) {
	repo, mock := setupTestRepository(t)

	mock.ExpectQuery("FROM departments").WithArgs("Cardiology").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery("FROM departments").WithArgs("Podiatry").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	id, err := repo.ResolveDepartment(context.Background(), "Cardiology")
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)

	_, err = repo.ResolveDepartment(context.Background(), "Podiatry")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestRepository_CreatePatient_CodeClashIsDetectable(t *testing.T) {
	repo, mock := setupTestRepository(t)

	mock.ExpectQuery("INSERT INTO patients").
		WillReturnError(&pq.Error{Code: "23505", Constraint: identifier.PatientCodeConstraint})

	err := repo.CreatePatient(context.Background(), &types.Patient{PatientCode: "HMS2025AAAAAA", IsActive: true})

	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err, identifier.PatientCodeConstraint))
}

func TestRepository_CreatePatient(t *testing.T) {
	repo, mock := setupTestRepository(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO patients").
		WithArgs("HMS2025ABC123", "Ravi", "Kumar", "ravi@example.org", "9123456780", 0, "", "", "Pune", "", "", "", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(101), now))

	patient := &types.Patient{
		PatientCode: "HMS2025ABC123",
		FirstName:   "Ravi",
		LastName:    "Kumar",
		Email:       "ravi@example.org",
		Contact:     "9123456780",
		City:        "Pune",
		IsActive:    true,
	}
	require.NoError(t, repo.CreatePatient(context.Background(), patient))
	assert.Equal(t, int64(101), patient.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_DeactivatePatient(t *testing.T) {
	repo, mock := setupTestRepository(t)

	mock.ExpectExec("UPDATE patients SET is_active = FALSE").WithArgs(int64(101)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE patients SET is_active = FALSE").WithArgs(int64(999)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.DeactivatePatient(context.Background(), 101)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DeactivatePatient(context.Background(), 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_GetDoctorPatients(t *testing.T) {
	repo, mock := setupTestRepository(t)
	now := time.Now()
	columns := []string{
		"id", "patient_code", "first_name", "last_name", "email", "contact", "age", "sex",
		"blood_group", "city", "pincode", "state", "country", "is_active", "created_at",
	}

	mock.ExpectQuery("FROM patients\\s+WHERE id IN \\(SELECT patient_id FROM appointments WHERE doctor_id = \\$1\\)").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(101), "HMS2025ABC123", "Ravi", "Kumar", "ravi@example.org", "9123456780", 34, "M", "B+", "Pune", "", "", "", true, now).
			AddRow(int64(102), "HMS2025XYZ789", "Anu", "Menon", "anu@example.org", "9123456781", 0, "", "", "", "", "", "", false, now))

	patients, err := repo.GetDoctorPatients(context.Background(), 7)

	require.NoError(t, err)
	require.Len(t, patients, 2)
	assert.Equal(t, "HMS2025XYZ789", patients[1].PatientCode)
	assert.False(t, patients[1].IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetStats(t *testing.T) {
	repo, mock := setupTestRepository(t)

	mock.ExpectQuery("COUNT\\(\\*\\) FROM doctors WHERE is_active").
		WillReturnRows(sqlmock.NewRows([]string{"doctors", "patients", "appointments"}).AddRow(4, 30, 112))

	stats, err := repo.GetStats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, &types.DirectoryStats{ActiveDoctors: 4, ActivePatients: 30, Appointments: 112}, stats)
}
