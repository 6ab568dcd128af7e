package scheduling

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/medrex/hms-scheduling/pkg/database"
	"github.com/medrex/hms-scheduling/pkg/interfaces"
	"github.com/medrex/hms-scheduling/pkg/logger"
	"github.com/medrex/hms-scheduling/pkg/types"
)

// BookedSlotConstraint is the partial unique index allowing one Booked
// appointment per (doctor, date, time range)
const BookedSlotConstraint = "appointments_booked_slot_key"

const appointmentColumns = `
	a.id, a.appointment_code, a.patient_id, a.doctor_id, a.appointment_date, a.time_slot,
	a.appointment_type, a.reason, a.status, a.created_at, a.updated_at,
	t.id, t.visit_type, t.tests_done, t.diagnosis, t.prescription, t.medicines,
	t.notes, t.followup_date, t.created_at`

const appointmentFrom = `
	FROM appointments a
	LEFT JOIN treatments t ON t.appointment_id = a.id`

// Repository implements the SchedulingRepository interface on PostgreSQL
type Repository struct {
	db     *database.DB
	ids    interfaces.AppointmentIDIssuer
	logger *logger.Logger
}

// NewRepository creates a new scheduling repository
func NewRepository(db *database.DB, ids interfaces.AppointmentIDIssuer, log *logger.Logger) *Repository {
	return &Repository{
		db:     db,
		ids:    ids,
		logger: log,
	}
}

// CreateAppointment checks the slot and inserts a Booked appointment in one
// transaction. The partial unique index turns a lost race into DoubleBooking.
func (r *Repository) CreateAppointment(ctx context.Context, req *types.BookingRequest) (*types.Appointment, error) {
	date := req.Date.String()
	apt := &types.Appointment{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Date:      req.Date,
		TimeRange: req.TimeRange,
		Type:      req.Type,
		Reason:    req.Reason,
		Status:    types.StatusBooked,
	}

	start := time.Now()
	err := r.db.WithTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		var open bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM availability_slots
				WHERE doctor_id = $1 AND slot_date = $2 AND time_slot = $3 AND is_available
			)`, req.DoctorID, date, req.TimeRange).Scan(&open)
		if err != nil {
			return fmt.Errorf("failed to check slot: %w", err)
		}
		if !open {
			return types.NewSlotUnavailableError(req.DoctorID, date, req.TimeRange)
		}

		var booked bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM appointments
				WHERE doctor_id = $1 AND appointment_date = $2 AND time_slot = $3 AND status = 'Booked'
			)`, req.DoctorID, date, req.TimeRange).Scan(&booked)
		if err != nil {
			return fmt.Errorf("failed to check conflicts: %w", err)
		}
		if booked {
			return types.NewDoubleBookingError(req.DoctorID, date, req.TimeRange, nil)
		}

		code, err := r.ids.NextAppointmentID(ctx, tx)
		if err != nil {
			return err
		}
		apt.AppointmentID = code

		err = tx.QueryRowContext(ctx, `
			INSERT INTO appointments (
				appointment_code, patient_id, doctor_id, appointment_date, time_slot,
				appointment_type, reason, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, created_at, updated_at`,
			code, req.PatientID, req.DoctorID, date, req.TimeRange, req.Type, req.Reason, string(types.StatusBooked),
		).Scan(&apt.ID, &apt.CreatedAt, &apt.UpdatedAt)
		if err != nil {
			if database.IsUniqueViolation(err, BookedSlotConstraint) {
				return types.NewDoubleBookingError(req.DoctorID, date, req.TimeRange, err)
			}
			return fmt.Errorf("failed to insert appointment: %w", err)
		}
		return nil
	})

	r.logger.DatabaseOperation(ctx, "insert", "appointments", time.Since(start).Milliseconds(), rowsFor(err), err == nil, map[string]interface{}{
		"doctor_id": req.DoctorID,
		"date":      date,
		"time_slot": req.TimeRange,
	})
	if err != nil {
		return nil, err
	}
	return apt, nil
}

// GetAppointmentByCode retrieves an appointment and its treatment, if any
func (r *Repository) GetAppointmentByCode(ctx context.Context, code string) (*types.Appointment, error) {
	query := `SELECT ` + appointmentColumns + appointmentFrom + ` WHERE a.appointment_code = $1`

	apt, err := scanAppointment(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.NewNotFoundError("appointment", code)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get appointment")
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return apt, nil
}

// CancelBookedAppointment flips a Booked appointment to Cancelled. It reports
// false when the appointment was not in Booked state.
func (r *Repository) CancelBookedAppointment(ctx context.Context, code string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE appointments
		SET status = 'Cancelled', updated_at = NOW()
		WHERE appointment_code = $1 AND status = 'Booked'`, code)
	if err != nil {
		if database.IsRetryable(err) {
			return false, types.NewStoreBusyError(err)
		}
		return false, fmt.Errorf("failed to cancel appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

// CompleteWithTreatment locks the appointment row, lets check veto the
// change, then inserts the treatment and marks the appointment Completed.
// Both writes commit together or not at all.
func (r *Repository) CompleteWithTreatment(ctx context.Context, code string, check func(apt *types.Appointment) error, treatment *types.Treatment) error {
	return r.db.WithTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		apt := &types.Appointment{}
		var date time.Time
		var status string
		err := tx.QueryRowContext(ctx, `
			SELECT id, appointment_code, patient_id, doctor_id, appointment_date, time_slot, status
			FROM appointments
			WHERE appointment_code = $1
			FOR UPDATE`, code).Scan(
			&apt.ID,
			&apt.AppointmentID,
			&apt.PatientID,
			&apt.DoctorID,
			&date,
			&apt.TimeRange,
			&status,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.NewNotFoundError("appointment", code)
			}
			return fmt.Errorf("failed to lock appointment: %w", err)
		}
		apt.Date = civil.DateOf(date)
		apt.Status = types.AppointmentStatus(status)

		if err := check(apt); err != nil {
			return err
		}

		var followup interface{}
		if treatment.FollowupDate != nil {
			followup = treatment.FollowupDate.String()
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO treatments (
				appointment_id, visit_type, tests_done, diagnosis, prescription,
				medicines, notes, followup_date
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, created_at`,
			apt.ID,
			treatment.VisitType,
			treatment.TestsDone,
			treatment.Diagnosis,
			treatment.Prescription,
			treatment.Medicines,
			treatment.Notes,
			followup,
		).Scan(&treatment.ID, &treatment.CreatedAt)
		if err != nil {
			if database.IsUniqueViolation(err, "") {
				return types.NewInvalidTransitionError(code, apt.Status, types.StatusCompleted)
			}
			return fmt.Errorf("failed to insert treatment: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE appointments
			SET status = 'Completed', updated_at = NOW()
			WHERE id = $1`, apt.ID)
		if err != nil {
			return fmt.Errorf("failed to complete appointment: %w", err)
		}

		treatment.AppointmentID = code
		return nil
	})
}

// GetDoctorAppointments lists a doctor's appointments by date and time range
func (r *Repository) GetDoctorAppointments(ctx context.Context, doctorID int64, status types.AppointmentStatus) ([]*types.Appointment, error) {
	query := `SELECT ` + appointmentColumns + appointmentFrom + `
		WHERE a.doctor_id = $1 AND ($2::text = '' OR a.status = $2)
		ORDER BY a.appointment_date ASC, a.time_slot ASC`
	return r.queryAppointments(ctx, query, doctorID, string(status))
}

// GetPatientAppointments lists a patient's appointments, most recent date first
func (r *Repository) GetPatientAppointments(ctx context.Context, patientID int64, status types.AppointmentStatus) ([]*types.Appointment, error) {
	query := `SELECT ` + appointmentColumns + appointmentFrom + `
		WHERE a.patient_id = $1 AND ($2::text = '' OR a.status = $2)
		ORDER BY a.appointment_date DESC, a.time_slot ASC`
	return r.queryAppointments(ctx, query, patientID, string(status))
}

// GetAllAppointments lists every appointment by date and time range
func (r *Repository) GetAllAppointments(ctx context.Context, status types.AppointmentStatus) ([]*types.Appointment, error) {
	query := `SELECT ` + appointmentColumns + appointmentFrom + `
		WHERE ($1::text = '' OR a.status = $1)
		ORDER BY a.appointment_date ASC, a.time_slot ASC, a.id ASC`
	return r.queryAppointments(ctx, query, string(status))
}

func (r *Repository) queryAppointments(ctx context.Context, query string, args ...interface{}) ([]*types.Appointment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list appointments")
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	appointments := []*types.Appointment{}
	for rows.Next() {
		apt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appointments = append(appointments, apt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating appointments: %w", err)
	}

	return appointments, nil
}

// CreateSlot inserts an availability slot
func (r *Repository) CreateSlot(ctx context.Context, slot *types.AvailabilitySlot) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO availability_slots (doctor_id, slot_date, time_slot, is_available)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		slot.DoctorID, slot.Date.String(), slot.TimeRange, slot.IsAvailable,
	).Scan(&slot.ID, &slot.CreatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create availability slot")
		return fmt.Errorf("failed to create availability slot: %w", err)
	}
	return nil
}

// SlotExists reports whether the doctor already published the exact slot
func (r *Repository) SlotExists(ctx context.Context, doctorID int64, date civil.Date, timeRange string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM availability_slots
			WHERE doctor_id = $1 AND slot_date = $2 AND time_slot = $3
		)`, doctorID, date.String(), timeRange).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slot: %w", err)
	}
	return exists, nil
}

// GetSlots lists a doctor's slots with the derived booked flag
func (r *Repository) GetSlots(ctx context.Context, doctorID int64) ([]*types.AvailabilitySlot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.doctor_id, s.slot_date, s.time_slot, s.is_available, s.created_at,
			EXISTS (
				SELECT 1 FROM appointments a
				WHERE a.doctor_id = s.doctor_id AND a.appointment_date = s.slot_date
					AND a.time_slot = s.time_slot AND a.status = 'Booked'
			) AS booked
		FROM availability_slots s
		WHERE s.doctor_id = $1
		ORDER BY s.slot_date ASC, s.time_slot ASC, s.id ASC`, doctorID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list availability slots")
		return nil, fmt.Errorf("failed to list availability slots: %w", err)
	}
	defer rows.Close()

	slots := []*types.AvailabilitySlot{}
	for rows.Next() {
		slot := &types.AvailabilitySlot{}
		var date time.Time
		if err := rows.Scan(
			&slot.ID,
			&slot.DoctorID,
			&date,
			&slot.TimeRange,
			&slot.IsAvailable,
			&slot.CreatedAt,
			&slot.Booked,
		); err != nil {
			return nil, fmt.Errorf("failed to scan availability slot: %w", err)
		}
		slot.Date = civil.DateOf(date)
		slots = append(slots, slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating availability slots: %w", err)
	}

	return slots, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAppointment(row rowScanner) (*types.Appointment, error) {
	apt := &types.Appointment{}
	var (
		date          time.Time
		status        string
		treatmentID   sql.NullInt64
		visitType     sql.NullString
		testsDone     sql.NullString
		diagnosis     sql.NullString
		prescription  sql.NullString
		medicines     sql.NullString
		notes         sql.NullString
		followupDate  sql.NullTime
		treatmentTime sql.NullTime
	)

	if err := row.Scan(
		&apt.ID,
		&apt.AppointmentID,
		&apt.PatientID,
		&apt.DoctorID,
		&date,
		&apt.TimeRange,
		&apt.Type,
		&apt.Reason,
		&status,
		&apt.CreatedAt,
		&apt.UpdatedAt,
		&treatmentID,
		&visitType,
		&testsDone,
		&diagnosis,
		&prescription,
		&medicines,
		&notes,
		&followupDate,
		&treatmentTime,
	); err != nil {
		return nil, err
	}

	apt.Date = civil.DateOf(date)
	apt.Status = types.AppointmentStatus(status)

	if treatmentID.Valid {
		apt.Treatment = &types.Treatment{
			ID:            treatmentID.Int64,
			AppointmentID: apt.AppointmentID,
			VisitType:     visitType.String,
			TestsDone:     testsDone.String,
			Diagnosis:     diagnosis.String,
			Prescription:  prescription.String,
			Medicines:     medicines.String,
			Notes:         notes.String,
			CreatedAt:     treatmentTime.Time,
		}
		if followupDate.Valid {
			d := civil.DateOf(followupDate.Time)
			apt.Treatment.FollowupDate = &d
		}
	}

	return apt, nil
}

func rowsFor(err error) int64 {
	if err != nil {
		return 0
	}
	return 1
}
