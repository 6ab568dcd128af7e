package interfaces

import (
	"context"

	"github.com/medrex/hms-scheduling/pkg/types"
)

// Directory is the reference-data lookup the scheduling engine depends on
type Directory interface {
	GetDoctor(ctx context.Context, doctorID int64) (*types.Doctor, error)
	GetPatient(ctx context.Context, patientID int64) (*types.Patient, error)
	IsDoctorActive(ctx context.Context, doctorID int64) (bool, error)
}

// DirectoryService extends Directory with registration and listings
type DirectoryService interface {
	Directory

	RegisterPatient(ctx context.Context, reg *types.PatientRegistration) (*types.Patient, error)
	DeactivatePatient(ctx context.Context, patientID int64, actor types.Actor) error
	CreateDoctor(ctx context.Context, doctor *types.Doctor, actor types.Actor) (*types.Doctor, error)
	ListActiveDoctors(ctx context.Context) ([]*types.Doctor, error)
	ListDoctorsByDepartment(ctx context.Context, departmentID int64) ([]*types.Doctor, error)
	ListDoctorPatients(ctx context.Context, doctorID int64) ([]*types.Patient, error)
	Stats(ctx context.Context) (*types.DirectoryStats, error)
}

// DirectoryRepository defines the interface for directory data persistence
type DirectoryRepository interface {
	// Doctors
	GetDoctorByID(ctx context.Context, id int64) (*types.Doctor, error)
	GetActiveDoctors(ctx context.Context) ([]*types.Doctor, error)
	GetDoctorsByDepartment(ctx context.Context, departmentID int64) ([]*types.Doctor, error)
	CreateDoctor(ctx context.Context, doctor *types.Doctor) error
	ResolveDepartment(ctx context.Context, specialization string) (int64, error)

	// Patients
	GetPatientByID(ctx context.Context, id int64) (*types.Patient, error)
	CreatePatient(ctx context.Context, patient *types.Patient) error
	DeactivatePatient(ctx context.Context, id int64) (bool, error)
	GetDoctorPatients(ctx context.Context, doctorID int64) ([]*types.Patient, error)

	GetStats(ctx context.Context) (*types.DirectoryStats, error)
}
