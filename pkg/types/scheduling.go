package types

import (
	"time"

	"cloud.google.com/go/civil"
)

// AppointmentStatus represents appointment lifecycle states
type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "Booked"
	StatusCompleted AppointmentStatus = "Completed"
	StatusCancelled AppointmentStatus = "Cancelled"
)

// Valid reports whether s is one of the lifecycle states
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusBooked, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether s -> next is a legal lifecycle move.
// Only Booked has outgoing edges and nothing re-enters Booked.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	return s == StatusBooked && (next == StatusCompleted || next == StatusCancelled)
}

// Role is the already-authenticated role supplied by the identity collaborator
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor || r == RoleAdmin
}

// Actor identifies who is invoking an operation
type Actor struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

// Department groups doctors by clinical area
type Department struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
}

// Doctor represents a doctor as held by the directory
type Doctor struct {
	ID             int64     `json:"id" db:"id"`
	DepartmentID   int64     `json:"department_id" db:"department_id"`
	FirstName      string    `json:"first_name" db:"first_name" validate:"required,max=100"`
	LastName       string    `json:"last_name" db:"last_name" validate:"required,max=100"`
	Email          string    `json:"email" db:"email" validate:"required,email"`
	Contact        string    `json:"contact" db:"contact" validate:"required,max=15"`
	Specialization string    `json:"specialization" db:"specialization"`
	Education      string    `json:"education,omitempty" db:"education"`
	Experience     int       `json:"experience" db:"experience" validate:"min=0"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Patient represents a registered patient
type Patient struct {
	ID          int64     `json:"id" db:"id"`
	PatientCode string    `json:"patient_id" db:"patient_code"`
	FirstName   string    `json:"first_name" db:"first_name"`
	LastName    string    `json:"last_name" db:"last_name"`
	Email       string    `json:"email" db:"email"`
	Contact     string    `json:"contact" db:"contact"`
	Age         int       `json:"age,omitempty" db:"age"`
	Sex         string    `json:"sex,omitempty" db:"sex"`
	BloodGroup  string    `json:"blood_group,omitempty" db:"blood_group"`
	City        string    `json:"city,omitempty" db:"city"`
	Pincode     string    `json:"pincode,omitempty" db:"pincode"`
	State       string    `json:"state,omitempty" db:"state"`
	Country     string    `json:"country,omitempty" db:"country"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// DirectoryStats holds the hospital-wide totals shown to admins
type DirectoryStats struct {
	ActiveDoctors  int64 `json:"total_doctors"`
	ActivePatients int64 `json:"total_patients"`
	Appointments   int64 `json:"total_appointments"`
}

// AvailabilitySlot is a doctor-published (date, time-range) window.
// Booked is derived at read time and never stored.
type AvailabilitySlot struct {
	ID          int64      `json:"id" db:"id"`
	DoctorID    int64      `json:"doctor_id" db:"doctor_id"`
	Date        civil.Date `json:"date" db:"slot_date"`
	TimeRange   string     `json:"time_range" db:"time_slot"`
	IsAvailable bool       `json:"is_available" db:"is_available"`
	Booked      bool       `json:"booked"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Appointment represents a booked visit. The appointment exclusively owns
// at most one Treatment.
type Appointment struct {
	ID            int64             `json:"-" db:"id"`
	AppointmentID string            `json:"appointment_id" db:"appointment_code"`
	PatientID     int64             `json:"patient_id" db:"patient_id"`
	DoctorID      int64             `json:"doctor_id" db:"doctor_id"`
	Date          civil.Date        `json:"date" db:"appointment_date"`
	TimeRange     string            `json:"time_range" db:"time_slot"`
	Type          string            `json:"type" db:"appointment_type"`
	Reason        string            `json:"reason" db:"reason"`
	Status        AppointmentStatus `json:"status" db:"status"`
	Treatment     *Treatment        `json:"treatment,omitempty"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at"`
}

// Treatment is the clinical outcome recorded when an appointment completes
type Treatment struct {
	ID            int64       `json:"id" db:"id"`
	AppointmentID string      `json:"appointment_id"`
	VisitType     string      `json:"visit_type" db:"visit_type"`
	TestsDone     string      `json:"tests_done,omitempty" db:"tests_done"`
	Diagnosis     string      `json:"diagnosis" db:"diagnosis"`
	Prescription  string      `json:"prescription" db:"prescription"`
	Medicines     string      `json:"medicines" db:"medicines"`
	Notes         string      `json:"notes,omitempty" db:"notes"`
	FollowupDate  *civil.Date `json:"followup_date,omitempty" db:"followup_date"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
}

// BookingRequest carries the fields needed to book an appointment
type BookingRequest struct {
	PatientID int64
	DoctorID  int64
	Date      civil.Date
	TimeRange string
	Type      string
	Reason    string
}

// SlotRequest carries the fields needed to publish a slot
type SlotRequest struct {
	DoctorID    int64
	Date        civil.Date
	TimeRange   string
	IsAvailable bool
}

// TreatmentRequest carries a doctor's treatment record for an appointment
type TreatmentRequest struct {
	AppointmentID string
	Actor         Actor
	VisitType     string
	Diagnosis     string
	Prescription  string
	Medicines     []string
	TestsDone     string
	Notes         string
	FollowupDate  *civil.Date
}

// AppointmentFilters selects appointments for a role-scoped listing
type AppointmentFilters struct {
	Role    Role              `json:"role"`
	OwnerID int64             `json:"owner_id,omitempty"`
	Status  AppointmentStatus `json:"status,omitempty"`
}

// PatientRegistration carries the demographic fields captured at registration
type PatientRegistration struct {
	FirstName  string `json:"firstName" validate:"required,max=100"`
	LastName   string `json:"lastName" validate:"required,max=100"`
	Email      string `json:"email" validate:"required,email"`
	Contact    string `json:"contact" validate:"required,max=15"`
	Age        int    `json:"age,omitempty" validate:"min=0,max=150"`
	Sex        string `json:"sex,omitempty"`
	BloodGroup string `json:"bloodGroup,omitempty"`
	City       string `json:"city,omitempty"`
	Pincode    string `json:"pincode,omitempty"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`
}
