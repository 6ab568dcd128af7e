package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/medrex/hms-scheduling/pkg/database"
	"github.com/medrex/hms-scheduling/pkg/logger"
	"github.com/medrex/hms-scheduling/pkg/types"
)

const doctorColumns = `
	id, department_id, first_name, last_name, email, contact,
	specialization, education, experience, is_active, created_at`

const patientColumns = `
	id, patient_code, first_name, last_name, email, contact, age, sex,
	blood_group, city, pincode, state, country, is_active, created_at`

// Repository implements the DirectoryRepository interface on PostgreSQL
type Repository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewRepository creates a new directory repository
func NewRepository(db *database.DB, log *logger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: log,
	}
}

// GetDoctorByID retrieves a doctor by ID
func (r *Repository) GetDoctorByID(ctx context.Context, id int64) (*types.Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE id = $1`

	doctor, err := scanDoctor(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NewNotFoundError("doctor", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("doctor_id", id).Error("Failed to get doctor")
		return nil, fmt.Errorf("failed to get doctor: %w", err)
	}
	return doctor, nil
}

// GetActiveDoctors lists active doctors by name
func (r *Repository) GetActiveDoctors(ctx context.Context) ([]*types.Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors
		WHERE is_active
		ORDER BY last_name, first_name, id`
	return r.queryDoctors(ctx, query)
}

// GetDoctorsByDepartment lists the active doctors of a department
func (r *Repository) GetDoctorsByDepartment(ctx context.Context, departmentID int64) ([]*types.Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors
		WHERE department_id = $1 AND is_active
		ORDER BY last_name, first_name, id`
	return r.queryDoctors(ctx, query, departmentID)
}

func (r *Repository) queryDoctors(ctx context.Context, query string, args ...interface{}) ([]*types.Doctor, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list doctors")
		return nil, fmt.Errorf("failed to list doctors: %w", err)
	}
	defer rows.Close()

	doctors := []*types.Doctor{}
	for rows.Next() {
		doctor, err := scanDoctor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan doctor: %w", err)
		}
		doctors = append(doctors, doctor)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating doctors: %w", err)
	}

	return doctors, nil
}

// CreateDoctor inserts a doctor
func (r *Repository) CreateDoctor(ctx context.Context, doctor *types.Doctor) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO doctors (
			department_id, first_name, last_name, email, contact,
			specialization, education, experience, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`,
		doctor.DepartmentID,
		doctor.FirstName,
		doctor.LastName,
		doctor.Email,
		doctor.Contact,
		doctor.Specialization,
		doctor.Education,
		doctor.Experience,
		doctor.IsActive,
	).Scan(&doctor.ID, &doctor.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create doctor: %w", err)
	}

	r.logger.WithContext(ctx).WithField("doctor_id", doctor.ID).Info("Created doctor")
	return nil
}

// ResolveDepartment returns the department named like specialization, or
// the first department when none matches
func (r *Repository) ResolveDepartment(ctx context.Context, specialization string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM departments
		ORDER BY (lower(name) = lower($1)) DESC, id ASC
		LIMIT 1`, specialization).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, types.NewValidationError("no departments are configured", nil)
		}
		return 0, fmt.Errorf("failed to resolve department: %w", err)
	}
	return id, nil
}

// GetPatientByID retrieves a patient by ID
func (r *Repository) GetPatientByID(ctx context.Context, id int64) (*types.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`

	patient, err := scanPatient(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NewNotFoundError("patient", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("patient_id", id).Error("Failed to get patient")
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return patient, nil
}

// GetDoctorPatients lists every patient who has had an appointment with the doctor
func (r *Repository) GetDoctorPatients(ctx context.Context, doctorID int64) ([]*types.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients
		WHERE id IN (SELECT patient_id FROM appointments WHERE doctor_id = $1)
		ORDER BY last_name, first_name, id`

	rows, err := r.db.QueryContext(ctx, query, doctorID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("doctor_id", doctorID).Error("Failed to list doctor patients")
		return nil, fmt.Errorf("failed to list doctor patients: %w", err)
	}
	defer rows.Close()

	patients := []*types.Patient{}
	for rows.Next() {
		patient, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		patients = append(patients, patient)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patients: %w", err)
	}

	return patients, nil
}

// GetStats counts active doctors, active patients and all appointments
func (r *Repository) GetStats(ctx context.Context) (*types.DirectoryStats, error) {
	stats := &types.DirectoryStats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM doctors WHERE is_active),
			(SELECT COUNT(*) FROM patients WHERE is_active),
			(SELECT COUNT(*) FROM appointments)`,
	).Scan(&stats.ActiveDoctors, &stats.ActivePatients, &stats.Appointments)
	if err != nil {
		return nil, fmt.Errorf("failed to count directory totals: %w", err)
	}
	return stats, nil
}

// CreatePatient inserts a patient. The driver error stays in the chain so a
// patient code clash can be detected and the code regenerated.
func (r *Repository) CreatePatient(ctx context.Context, patient *types.Patient) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO patients (
			patient_code, first_name, last_name, email, contact, age, sex,
			blood_group, city, pincode, state, country, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`,
		patient.PatientCode,
		patient.FirstName,
		patient.LastName,
		patient.Email,
		patient.Contact,
		patient.Age,
		patient.Sex,
		patient.BloodGroup,
		patient.City,
		patient.Pincode,
		patient.State,
		patient.Country,
		patient.IsActive,
	).Scan(&patient.ID, &patient.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

// DeactivatePatient clears the active flag; patients are never deleted
func (r *Repository) DeactivatePatient(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE patients SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate patient: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDoctor(row rowScanner) (*types.Doctor, error) {
	doctor := &types.Doctor{}
	err := row.Scan(
		&doctor.ID,
		&doctor.DepartmentID,
		&doctor.FirstName,
		&doctor.LastName,
		&doctor.Email,
		&doctor.Contact,
		&doctor.Specialization,
		&doctor.Education,
		&doctor.Experience,
		&doctor.IsActive,
		&doctor.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return doctor, nil
}

func scanPatient(row rowScanner) (*types.Patient, error) {
	patient := &types.Patient{}
	err := row.Scan(
		&patient.ID,
		&patient.PatientCode,
		&patient.FirstName,
		&patient.LastName,
		&patient.Email,
		&patient.Contact,
		&patient.Age,
		&patient.Sex,
		&patient.BloodGroup,
		&patient.City,
		&patient.Pincode,
		&patient.State,
		&patient.Country,
		&patient.IsActive,
		&patient.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return patient, nil
}
