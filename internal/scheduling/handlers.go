package scheduling

import (
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/gorilla/mux"

	"github.com/medrex/hms-scheduling/internal/httpapi"
	"github.com/medrex/hms-scheduling/pkg/logger"
	"github.com/medrex/hms-scheduling/pkg/types"
)

type bookingBody struct {
	PatientID int64      `json:"patientId"`
	DoctorID  int64      `json:"doctorId"`
	Date      civil.Date `json:"date"`
	TimeRange string     `json:"timeRange"`
	Type      string     `json:"type"`
	Reason    string     `json:"reason"`
}

type cancellationBody struct {
	AppointmentID string     `json:"appointmentId"`
	ActorID       int64      `json:"actorId"`
	ActorRole     types.Role `json:"actorRole"`
}

type treatmentBody struct {
	AppointmentID string      `json:"appointmentId"`
	ActorID       int64       `json:"actorId"`
	ActorRole     types.Role  `json:"actorRole,omitempty"`
	VisitType     string      `json:"visitType"`
	Diagnosis     string      `json:"diagnosis"`
	Prescription  string      `json:"prescription"`
	Medicines     []string    `json:"medicines"`
	Tests         string      `json:"tests,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	FollowupDate  *civil.Date `json:"followupDate,omitempty"`
}

type slotBody struct {
	DoctorID    int64      `json:"doctorId"`
	Date        civil.Date `json:"date"`
	TimeRange   string     `json:"timeRange"`
	IsAvailable *bool      `json:"isAvailable,omitempty"`
}

// RegisterRoutes configures the scheduling routes on the /api/v1 subrouter
func (s *Service) RegisterRoutes(api *mux.Router) {
	// Appointment lifecycle
	api.HandleFunc("/bookings", s.bookAppointmentHandler).Methods(http.MethodPost)
	api.HandleFunc("/cancellations", s.cancelAppointmentHandler).Methods(http.MethodPost)
	api.HandleFunc("/treatments", s.recordTreatmentHandler).Methods(http.MethodPost)

	// Appointment queries
	api.HandleFunc("/appointments", s.listAppointmentsHandler).Methods(http.MethodGet)
	api.HandleFunc("/appointments/{id}", s.getAppointmentHandler).Methods(http.MethodGet)

	// Availability
	api.HandleFunc("/availability", s.listSlotsHandler).Methods(http.MethodGet)
	api.HandleFunc("/availability", s.publishSlotHandler).Methods(http.MethodPost)

	s.logger.Info("Scheduling routes configured")
}

// bookAppointmentHandler handles appointment booking
func (s *Service) bookAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	var body bookingBody
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	ctx := logger.ContextWithActorID(r.Context(), body.PatientID)
	apt, err := s.BookAppointment(ctx, &types.BookingRequest{
		PatientID: body.PatientID,
		DoctorID:  body.DoctorID,
		Date:      body.Date,
		TimeRange: body.TimeRange,
		Type:      body.Type,
		Reason:    body.Reason,
	})
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	httpapi.WriteJSON(w, s.logger, http.StatusCreated, apt)
}

// cancelAppointmentHandler handles appointment cancellation
func (s *Service) cancelAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	var body cancellationBody
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	ctx := logger.ContextWithActorID(r.Context(), body.ActorID)
	err := s.CancelAppointment(ctx, body.AppointmentID, types.Actor{ID: body.ActorID, Role: body.ActorRole})
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	httpapi.WriteJSON(w, s.logger, http.StatusOK, map[string]string{"status": "cancelled"})
}

// recordTreatmentHandler handles treatment recording
func (s *Service) recordTreatmentHandler(w http.ResponseWriter, r *http.Request) {
	var body treatmentBody
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	role := body.ActorRole
	if role == "" {
		role = types.RoleDoctor
	}

	ctx := logger.ContextWithActorID(r.Context(), body.ActorID)
	treatment, err := s.RecordTreatment(ctx, &types.TreatmentRequest{
		AppointmentID: body.AppointmentID,
		Actor:         types.Actor{ID: body.ActorID, Role: role},
		VisitType:     body.VisitType,
		Diagnosis:     body.Diagnosis,
		Prescription:  body.Prescription,
		Medicines:     body.Medicines,
		TestsDone:     body.Tests,
		Notes:         body.Notes,
		FollowupDate:  body.FollowupDate,
	})
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	httpapi.WriteJSON(w, s.logger, http.StatusCreated, treatment)
}

// listAppointmentsHandler handles role-scoped appointment listings
func (s *Service) listAppointmentsHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, err := httpapi.QueryInt64(r, "ownerId")
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	query := r.URL.Query()
	appointments, err := s.ListAppointments(r.Context(), &types.AppointmentFilters{
		Role:    types.Role(query.Get("role")),
		OwnerID: ownerID,
		Status:  types.AppointmentStatus(query.Get("status")),
	})
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	httpapi.WriteJSON(w, s.logger, http.StatusOK, appointments)
}

// getAppointmentHandler handles appointment retrieval
func (s *Service) getAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	apt, err := s.GetAppointment(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	httpapi.WriteJSON(w, s.logger, http.StatusOK, apt)
}

// listSlotsHandler handles availability listings
func (s *Service) listSlotsHandler(w http.ResponseWriter, r *http.Request) {
	doctorID, err := httpapi.QueryInt64(r, "doctorId")
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	var from *civil.Date
	if raw := r.URL.Query().Get("fromDate"); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			httpapi.WriteError(w, r, s.logger, types.NewValidationError("fromDate must be YYYY-MM-DD", map[string]interface{}{"fromDate": raw}))
			return
		}
		from = &d
	}

	slots, err := s.ListSlots(r.Context(), doctorID, from)
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	httpapi.WriteJSON(w, s.logger, http.StatusOK, slots)
}

// publishSlotHandler handles slot publication
func (s *Service) publishSlotHandler(w http.ResponseWriter, r *http.Request) {
	var body slotBody
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	isAvailable := true
	if body.IsAvailable != nil {
		isAvailable = *body.IsAvailable
	}

	ctx := logger.ContextWithActorID(r.Context(), body.DoctorID)
	slot, err := s.PublishSlot(ctx, &types.SlotRequest{
		DoctorID:    body.DoctorID,
		Date:        body.Date,
		TimeRange:   body.TimeRange,
		IsAvailable: isAvailable,
	})
	if err != nil {
		httpapi.WriteError(w, r, s.logger, err)
		return
	}

	httpapi.WriteJSON(w, s.logger, http.StatusCreated, slot)
}
