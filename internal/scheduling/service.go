package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel/attribute"

	"github.com/medrex/hms-scheduling/pkg/config"
	"github.com/medrex/hms-scheduling/pkg/database"
	"github.com/medrex/hms-scheduling/pkg/interfaces"
	"github.com/medrex/hms-scheduling/pkg/logger"
	"github.com/medrex/hms-scheduling/pkg/monitoring"
	"github.com/medrex/hms-scheduling/pkg/types"
)

const maxTimeRangeLen = 20

// Service implements the SchedulingService interface
type Service struct {
	repository interfaces.SchedulingRepository
	directory  interfaces.Directory
	cache      interfaces.SlotCache
	metrics    *monitoring.MetricsCollector
	tracing    *monitoring.TracingManager
	logger     *logger.Logger
	config     config.SchedulingConfig
	location   *time.Location
	retry      database.RetryPolicy
	now        func() time.Time
}

// NewService creates the scheduling engine. A nil cache disables slot caching.
func NewService(
	repository interfaces.SchedulingRepository,
	directory interfaces.Directory,
	cache interfaces.SlotCache,
	cfg config.SchedulingConfig,
	metrics *monitoring.MetricsCollector,
	tracing *monitoring.TracingManager,
	log *logger.Logger,
) (*Service, error) {
	location, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid scheduling time zone: %w", err)
	}
	if cache == nil {
		cache = NoopSlotCache{}
	}

	return &Service{
		repository: repository,
		directory:  directory,
		cache:      cache,
		metrics:    metrics,
		tracing:    tracing,
		logger:     log,
		config:     cfg,
		location:   location,
		retry: database.RetryPolicy{
			Attempts: cfg.StoreRetryAttempts,
			Backoff:  cfg.RetryBackoff(),
		},
		now: time.Now,
	}, nil
}

// BookAppointment books a Booked appointment against a published slot
func (s *Service) BookAppointment(ctx context.Context, req *types.BookingRequest) (*types.Appointment, error) {
	ctx, span := s.tracing.StartSpan(ctx, "scheduling.BookAppointment",
		attribute.Int64("doctor.id", req.DoctorID),
		attribute.Int64("patient.id", req.PatientID),
		attribute.String("appointment.date", req.Date.String()),
		attribute.String("appointment.time_slot", req.TimeRange),
	)
	defer span.End()

	apt, err := s.book(ctx, req)
	details := map[string]interface{}{
		"doctor_id": req.DoctorID,
		"date":      req.Date.String(),
		"time_slot": req.TimeRange,
	}
	if err != nil {
		s.tracing.RecordError(span, err)
		s.metrics.RecordBooking(outcomeOf(err))
		details["error"] = err.Error()
		s.logger.Audit(ctx, req.PatientID, "book_appointment", "appointment", false, details)
		return nil, err
	}

	s.metrics.RecordBooking("booked")
	s.metrics.RecordTransition(string(types.StatusBooked))
	s.invalidateSlots(ctx, req.DoctorID)

	details["appointment_id"] = apt.AppointmentID
	s.logger.Audit(ctx, req.PatientID, "book_appointment", "appointment", true, details)
	return apt, nil
}

func (s *Service) book(ctx context.Context, req *types.BookingRequest) (*types.Appointment, error) {
	if err := s.validateBooking(req); err != nil {
		return nil, err
	}

	patient, err := s.directory.GetPatient(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if !patient.IsActive {
		return nil, types.NewValidationError("patient is not active", map[string]interface{}{"patient_id": req.PatientID})
	}

	doctor, err := s.directory.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.IsActive {
		return nil, types.NewValidationError("doctor is not active", map[string]interface{}{"doctor_id": req.DoctorID})
	}

	var apt *types.Appointment
	err = s.withRetry(ctx, "book", func() error {
		var err error
		apt, err = s.repository.CreateAppointment(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return apt, nil
}

// CancelAppointment moves a Booked appointment to Cancelled
func (s *Service) CancelAppointment(ctx context.Context, appointmentID string, actor types.Actor) error {
	ctx, span := s.tracing.StartSpan(ctx, "scheduling.CancelAppointment",
		attribute.String("appointment.id", appointmentID),
		attribute.String("actor.role", string(actor.Role)),
	)
	defer span.End()

	doctorID, err := s.cancel(ctx, appointmentID, actor)
	details := map[string]interface{}{"appointment_id": appointmentID, "role": actor.Role}
	if err != nil {
		s.tracing.RecordError(span, err)
		details["error"] = err.Error()
		s.logger.Audit(ctx, actor.ID, "cancel_appointment", "appointment", false, details)
		return err
	}

	s.metrics.RecordTransition(string(types.StatusCancelled))
	s.invalidateSlots(ctx, doctorID)
	s.logger.Audit(ctx, actor.ID, "cancel_appointment", "appointment", true, details)
	return nil
}

func (s *Service) cancel(ctx context.Context, appointmentID string, actor types.Actor) (int64, error) {
	if appointmentID == "" {
		return 0, types.NewValidationError("appointment id is required", nil)
	}
	if !actor.Role.Valid() {
		return 0, types.NewValidationError("actor role is invalid", map[string]interface{}{"role": actor.Role})
	}

	apt, err := s.repository.GetAppointmentByCode(ctx, appointmentID)
	if err != nil {
		return 0, err
	}
	if !canCancel(apt, actor) {
		return 0, types.NewForbiddenError("only the appointment's patient, its doctor or an admin may cancel it")
	}
	if !apt.Status.CanTransitionTo(types.StatusCancelled) {
		return 0, types.NewInvalidTransitionError(appointmentID, apt.Status, types.StatusCancelled)
	}

	var cancelled bool
	err = s.withRetry(ctx, "cancel", func() error {
		var err error
		cancelled, err = s.repository.CancelBookedAppointment(ctx, appointmentID)
		return err
	})
	if err != nil {
		return 0, err
	}

	if !cancelled {
		// lost a race with another transition
		current, err := s.repository.GetAppointmentByCode(ctx, appointmentID)
		if err != nil {
			return 0, err
		}
		return 0, types.NewInvalidTransitionError(appointmentID, current.Status, types.StatusCancelled)
	}

	return apt.DoctorID, nil
}

func canCancel(apt *types.Appointment, actor types.Actor) bool {
	switch actor.Role {
	case types.RoleAdmin:
		return true
	case types.RolePatient:
		return actor.ID == apt.PatientID
	case types.RoleDoctor:
		return actor.ID == apt.DoctorID
	}
	return false
}

// GetAppointment retrieves one appointment with its treatment
func (s *Service) GetAppointment(ctx context.Context, appointmentID string) (*types.Appointment, error) {
	if appointmentID == "" {
		return nil, types.NewValidationError("appointment id is required", nil)
	}
	return s.repository.GetAppointmentByCode(ctx, appointmentID)
}

// ListForDoctor lists a doctor's appointments ordered by date and time range
func (s *Service) ListForDoctor(ctx context.Context, doctorID int64, status types.AppointmentStatus) ([]*types.Appointment, error) {
	if doctorID <= 0 {
		return nil, types.NewValidationError("doctor id is required", nil)
	}
	if err := validateStatusFilter(status); err != nil {
		return nil, err
	}
	return s.repository.GetDoctorAppointments(ctx, doctorID, status)
}

// ListForPatient lists a patient's appointments, most recent date first
func (s *Service) ListForPatient(ctx context.Context, patientID int64) ([]*types.Appointment, error) {
	if patientID <= 0 {
		return nil, types.NewValidationError("patient id is required", nil)
	}
	return s.repository.GetPatientAppointments(ctx, patientID, "")
}

// ListAppointments dispatches a role-scoped listing
func (s *Service) ListAppointments(ctx context.Context, filters *types.AppointmentFilters) ([]*types.Appointment, error) {
	if err := validateStatusFilter(filters.Status); err != nil {
		return nil, err
	}

	switch filters.Role {
	case types.RoleDoctor:
		return s.ListForDoctor(ctx, filters.OwnerID, filters.Status)
	case types.RolePatient:
		if filters.OwnerID <= 0 {
			return nil, types.NewValidationError("patient id is required", nil)
		}
		return s.repository.GetPatientAppointments(ctx, filters.OwnerID, filters.Status)
	case types.RoleAdmin:
		return s.repository.GetAllAppointments(ctx, filters.Status)
	}

	return nil, types.NewValidationError("role must be patient, doctor or admin", map[string]interface{}{"role": filters.Role})
}

// validateBooking validates booking request data
func (s *Service) validateBooking(req *types.BookingRequest) error {
	if req.PatientID <= 0 {
		return types.NewValidationError("patient id is required", nil)
	}

	if req.DoctorID <= 0 {
		return types.NewValidationError("doctor id is required", nil)
	}

	if !req.Date.IsValid() {
		return types.NewValidationError("appointment date is required", nil)
	}

	if req.Date.Before(s.today()) {
		return types.NewValidationError("cannot book an appointment in the past", map[string]interface{}{"date": req.Date.String()})
	}

	return validateTimeRange(req.TimeRange)
}

func validateTimeRange(timeRange string) error {
	if strings.TrimSpace(timeRange) == "" {
		return types.NewValidationError("time range is required", nil)
	}
	if len(timeRange) > maxTimeRangeLen {
		return types.NewValidationError(
			fmt.Sprintf("time range must be at most %d characters", maxTimeRangeLen),
			map[string]interface{}{"time_range": timeRange},
		)
	}
	return nil
}

func validateStatusFilter(status types.AppointmentStatus) error {
	if status != "" && !status.Valid() {
		return types.NewValidationError("unknown appointment status", map[string]interface{}{"status": status})
	}
	return nil
}

func (s *Service) today() civil.Date {
	return civil.DateOf(s.now().In(s.location))
}

// withRetry retries StoreBusy failures of fn under the configured policy
func (s *Service) withRetry(ctx context.Context, operation string, fn func() error) error {
	policy := s.retry
	policy.OnRetry = func(attempt int, err error) {
		s.metrics.RecordStoreRetry(operation)
		s.logger.WithContext(ctx).WithError(err).WithField("operation", operation).
			WithField("attempt", attempt).Warn("Store busy, retrying")
	}
	return policy.Retry(ctx, fn)
}

func (s *Service) invalidateSlots(ctx context.Context, doctorID int64) {
	if err := s.cache.Invalidate(ctx, doctorID); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("doctor_id", doctorID).Warn("Failed to invalidate slot cache")
	}
}

func outcomeOf(err error) string {
	if kind := types.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
