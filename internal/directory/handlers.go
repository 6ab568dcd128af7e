package directory

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/medrex/hms-scheduling/internal/httpapi"
	"github.com/medrex/hms-scheduling/pkg/logger"
	"github.com/medrex/hms-scheduling/pkg/types"
)

type doctorBody struct {
	ActorID        int64      `json:"actorId"`
	ActorRole      types.Role `json:"actorRole"`
	DepartmentID   int64      `json:"departmentId,omitempty"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	Email          string     `json:"email"`
	Contact        string     `json:"contact"`
	Specialization string     `json:"specialization"`
	Education      string     `json:"education,omitempty"`
	Experience     int        `json:"experience,omitempty"`
}

type actorBody struct {
	ActorID   int64      `json:"actorId"`
	ActorRole types.Role `json:"actorRole"`
}

// RegisterRoutes configures the directory routes on the /api/v1 subrouter
func (s *Service) RegisterRoutes(api *mux.Router) {
	// Patients
	api.HandleFunc("/patients", s.registerPatientHandler).Methods(http.MethodPost)
	api.HandleFunc("/patients/{id}", s.getPatientHandler).Methods(http.MethodGet)
	api.HandleFunc("/patients/{id}/deactivate", s.deactivatePatientHandler).Methods(http.MethodPost)

	// Doctors
	api.HandleFunc("/doctors", s.listDoctorsHandler).Methods(http.MethodGet)
	api.HandleFunc("/doctors", s.createDoctorHandler).Methods(http.MethodPost)
	api.HandleFunc("/doctors/{id}", s.getDoctorHandler).Methods(http.MethodGet)
	api.HandleFunc("/doctors/{id}/patients", s.listDoctorPatientsHandler).Methods(http.MethodGet)
	api.HandleFunc("/departments/{id}/doctors", s.listDepartmentDoctorsHandler).Methods(http.MethodGet)

	// Admin
	api.HandleFunc("/admin/stats", s.statsHandler).Methods(http.MethodGet)

	s.logger.Info("Directory routes configured")
}

func (s *Service) registerPatientHandler(w http.ResponseWriter, r *http.Request) {
	var reg types.PatientRegistration
	if err := httpapi.DecodeJSON(r, &reg); err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	patient, err := s.RegisterPatient(r.Context(), &reg)
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	httpapi.WriteJSON(w, s.logger, http.StatusCreated, patient)
}

func (s *Service) getPatientHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	patient, err := s.GetPatient(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	httpapi.WriteJSON(w, s.logger, http.StatusOK, patient)
}

func (s *Service) deactivatePatientHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	var body actorBody
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	ctx := logger.ContextWithActorID(r.Context(), body.ActorID)
	if err := s.DeactivatePatient(ctx, id, types.Actor{ID: body.ActorID, Role: body.ActorRole}); err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	httpapi.WriteJSON(w, s.logger, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (s *Service) listDoctorsHandler(w http.ResponseWriter, r *http.Request) {
	doctors, err := s.ListActiveDoctors(r.Context())
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	httpapi.WriteJSON(w, s.logger, http.StatusOK, doctors)
}

func (s *Service) createDoctorHandler(w http.ResponseWriter, r *http.Request) {
	var body doctorBody
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	ctx := logger.ContextWithActorID(r.Context(), body.ActorID)
	doctor, err := s.CreateDoctor(ctx, &types.Doctor{
		DepartmentID:   body.DepartmentID,
		FirstName:      body.FirstName,
		LastName:       body.LastName,
		Email:          body.Email,
		Contact:        body.Contact,
		Specialization: body.Specialization,
		Education:      body.Education,
		Experience:     body.Experience,
	}, types.Actor{ID: body.ActorID, Role: body.ActorRole})
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	httpapi.WriteJSON(w, s.logger, http.StatusCreated, doctor)
}

func (s *Service) getDoctorHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	doctor, err := s.GetDoctor(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	httpapi.WriteJSON(w, s.logger, http.StatusOK, doctor)
}

func (s *Service) listDepartmentDoctorsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	doctors, err := s.ListDoctorsByDepartment(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	httpapi.WriteJSON(w, s.logger, http.StatusOK, doctors)
}

func (s *Service) listDoctorPatientsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	patients, err := s.ListDoctorPatients(r.Context(), id)
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	httpapi.WriteJSON(w, s.logger, http.StatusOK, patients)
}

func (s *Service) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Stats(r.Context())
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	httpapi.WriteJSON(w, s.logger, http.StatusOK, stats)
}

func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, types.NewValidationError("id must be an integer", map[string]interface{}{"id": raw})
	}
	return id, nil
}
