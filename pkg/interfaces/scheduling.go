package interfaces

import (
	"context"
	"database/sql"

	"cloud.google.com/go/civil"

	"github.com/medrex/hms-scheduling/pkg/types"
)

// SchedulingService defines the appointment and availability operations
type SchedulingService interface {
	// Appointment lifecycle
	BookAppointment(ctx context.Context, req *types.BookingRequest) (*types.Appointment, error)
	CancelAppointment(ctx context.Context, appointmentID string, actor types.Actor) error
	RecordTreatment(ctx context.Context, req *types.TreatmentRequest) (*types.Treatment, error)

	// Appointment queries
	GetAppointment(ctx context.Context, appointmentID string) (*types.Appointment, error)
	ListForDoctor(ctx context.Context, doctorID int64, status types.AppointmentStatus) ([]*types.Appointment, error)
	ListForPatient(ctx context.Context, patientID int64) ([]*types.Appointment, error)
	ListAppointments(ctx context.Context, filters *types.AppointmentFilters) ([]*types.Appointment, error)

	// Availability ledger
	PublishSlot(ctx context.Context, req *types.SlotRequest) (*types.AvailabilitySlot, error)
	ListSlots(ctx context.Context, doctorID int64, from *civil.Date) ([]*types.AvailabilitySlot, error)
}

// SchedulingRepository defines the interface for scheduling data persistence
type SchedulingRepository interface {
	// Appointments
	CreateAppointment(ctx context.Context, req *types.BookingRequest) (*types.Appointment, error)
	GetAppointmentByCode(ctx context.Context, code string) (*types.Appointment, error)
	CancelBookedAppointment(ctx context.Context, code string) (bool, error)
	CompleteWithTreatment(ctx context.Context, code string, check func(apt *types.Appointment) error, treatment *types.Treatment) error
	GetDoctorAppointments(ctx context.Context, doctorID int64, status types.AppointmentStatus) ([]*types.Appointment, error)
	GetPatientAppointments(ctx context.Context, patientID int64, status types.AppointmentStatus) ([]*types.Appointment, error)
	GetAllAppointments(ctx context.Context, status types.AppointmentStatus) ([]*types.Appointment, error)

	// Availability
	CreateSlot(ctx context.Context, slot *types.AvailabilitySlot) error
	SlotExists(ctx context.Context, doctorID int64, date civil.Date, timeRange string) (bool, error)
	GetSlots(ctx context.Context, doctorID int64) ([]*types.AvailabilitySlot, error)
}

// AppointmentIDIssuer allocates appointment identifiers inside a booking transaction
type AppointmentIDIssuer interface {
	NextAppointmentID(ctx context.Context, tx *sql.Tx) (string, error)
}

// PatientIDIssuer allocates patient codes, retrying on collision
type PatientIDIssuer interface {
	RegisterWithRetry(ctx context.Context, insert func(code string) error) (string, error)
}

// SlotCache caches a doctor's full slot listing. Set must not store a
// listing read under a generation that Invalidate has since advanced.
type SlotCache interface {
	Get(ctx context.Context, doctorID int64) ([]*types.AvailabilitySlot, bool, error)
	Generation(ctx context.Context, doctorID int64) (int64, error)
	Set(ctx context.Context, doctorID int64, gen int64, slots []*types.AvailabilitySlot) error
	Invalidate(ctx context.Context, doctorID int64) error
}
