package directory

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/medrex/hms-scheduling/pkg/database"
	"github.com/medrex/hms-scheduling/pkg/interfaces"
	"github.com/medrex/hms-scheduling/pkg/logger"
	"github.com/medrex/hms-scheduling/pkg/types"
)

// Service holds doctor and patient reference data
type Service struct {
	repository interfaces.DirectoryRepository
	ids        interfaces.PatientIDIssuer
	validate   *validator.Validate
	logger     *logger.Logger
}

// NewService creates a new directory service
func NewService(repository interfaces.DirectoryRepository, ids interfaces.PatientIDIssuer, log *logger.Logger) *Service {
	return &Service{
		repository: repository,
		ids:        ids,
		validate:   newValidator(),
		logger:     log,
	}
}

// newValidator reports field errors under their JSON names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// GetDoctor retrieves a doctor by ID
func (s *Service) GetDoctor(ctx context.Context, doctorID int64) (*types.Doctor, error) {
	if doctorID <= 0 {
		return nil, types.NewValidationError("doctor id is required", nil)
	}
	return s.repository.GetDoctorByID(ctx, doctorID)
}

// GetPatient retrieves a patient by ID
func (s *Service) GetPatient(ctx context.Context, patientID int64) (*types.Patient, error) {
	if patientID <= 0 {
		return nil, types.NewValidationError("patient id is required", nil)
	}
	return s.repository.GetPatientByID(ctx, patientID)
}

// IsDoctorActive reports whether the doctor may take bookings
func (s *Service) IsDoctorActive(ctx context.Context, doctorID int64) (bool, error) {
	doctor, err := s.GetDoctor(ctx, doctorID)
	if err != nil {
		return false, err
	}
	return doctor.IsActive, nil
}

// RegisterPatient stores a new patient under a freshly generated patient code
func (s *Service) RegisterPatient(ctx context.Context, reg *types.PatientRegistration) (*types.Patient, error) {
	in := *reg
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Contact = strings.TrimSpace(in.Contact)
	if err := s.validateStruct(&in); err != nil {
		return nil, err
	}

	patient := &types.Patient{
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Email:      in.Email,
		Contact:    in.Contact,
		Age:        in.Age,
		Sex:        in.Sex,
		BloodGroup: in.BloodGroup,
		City:       in.City,
		Pincode:    in.Pincode,
		State:      in.State,
		Country:    in.Country,
		IsActive:   true,
	}

	_, err := s.ids.RegisterWithRetry(ctx, func(code string) error {
		patient.PatientCode = code
		return s.repository.CreatePatient(ctx, patient)
	})
	if err != nil {
		if database.IsUniqueViolation(err, "patients_email_key") {
			err = types.NewValidationError("email is already registered", map[string]interface{}{"email": patient.Email})
		}
		s.logger.Audit(ctx, 0, "register_patient", "patient", false, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	s.logger.Audit(ctx, patient.ID, "register_patient", "patient", true, map[string]interface{}{
		"patient_id": patient.PatientCode,
	})
	return patient, nil
}

// DeactivatePatient marks a patient inactive. Patients may deactivate
// themselves; admins may deactivate anyone.
func (s *Service) DeactivatePatient(ctx context.Context, patientID int64, actor types.Actor) error {
	if actor.Role != types.RoleAdmin && !(actor.Role == types.RolePatient && actor.ID == patientID) {
		return types.NewForbiddenError("only the patient or an admin may deactivate a patient")
	}

	ok, err := s.repository.DeactivatePatient(ctx, patientID)
	if err == nil && !ok {
		err = types.NewNotFoundError("patient", patientID)
	}

	s.logger.Audit(ctx, actor.ID, "deactivate_patient", "patient", err == nil, map[string]interface{}{
		"patient_id": patientID,
	})
	return err
}

// CreateDoctor onboards a doctor. Without an explicit department the doctor
// joins the department named after the specialization, else the first one.
func (s *Service) CreateDoctor(ctx context.Context, doctor *types.Doctor, actor types.Actor) (*types.Doctor, error) {
	if actor.Role != types.RoleAdmin {
		return nil, types.NewForbiddenError("only an admin may add doctors")
	}
	doctor.FirstName = strings.TrimSpace(doctor.FirstName)
	doctor.LastName = strings.TrimSpace(doctor.LastName)
	doctor.Email = strings.ToLower(strings.TrimSpace(doctor.Email))
	doctor.Contact = strings.TrimSpace(doctor.Contact)
	if err := s.validateStruct(doctor); err != nil {
		return nil, err
	}

	if doctor.DepartmentID == 0 {
		departmentID, err := s.repository.ResolveDepartment(ctx, doctor.Specialization)
		if err != nil {
			return nil, err
		}
		doctor.DepartmentID = departmentID
	}
	doctor.IsActive = true

	err := s.repository.CreateDoctor(ctx, doctor)
	if database.IsUniqueViolation(err, "doctors_email_key") {
		err = types.NewValidationError("email is already registered", map[string]interface{}{"email": doctor.Email})
	}
	if err != nil {
		s.logger.Audit(ctx, actor.ID, "create_doctor", "doctor", false, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	s.logger.Audit(ctx, actor.ID, "create_doctor", "doctor", true, map[string]interface{}{
		"doctor_id":     doctor.ID,
		"department_id": doctor.DepartmentID,
	})
	return doctor, nil
}

// ListActiveDoctors lists doctors accepting bookings
func (s *Service) ListActiveDoctors(ctx context.Context) ([]*types.Doctor, error) {
	return s.repository.GetActiveDoctors(ctx)
}

// ListDoctorsByDepartment lists a department's active doctors
func (s *Service) ListDoctorsByDepartment(ctx context.Context, departmentID int64) ([]*types.Doctor, error) {
	if departmentID <= 0 {
		return nil, types.NewValidationError("department id is required", nil)
	}
	return s.repository.GetDoctorsByDepartment(ctx, departmentID)
}

// ListDoctorPatients lists the distinct patients the doctor has seen or is
// booked with, inactive ones included
func (s *Service) ListDoctorPatients(ctx context.Context, doctorID int64) ([]*types.Patient, error) {
	if _, err := s.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.repository.GetDoctorPatients(ctx, doctorID)
}

// Stats returns the admin totals
func (s *Service) Stats(ctx context.Context) (*types.DirectoryStats, error) {
	return s.repository.GetStats(ctx)
}

func (s *Service) validateStruct(v interface{}) error {
	err := s.validate.Struct(v)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	details := make(map[string]interface{}, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			details[fe.Field()] = fe.Tag() + "=" + fe.Param()
		} else {
			details[fe.Field()] = fe.Tag()
		}
	}
	return types.NewValidationError("invalid "+fieldErrs[0].Field(), details)
}
