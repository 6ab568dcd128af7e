package scheduling

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/medrex/hms-scheduling/pkg/types"
)

// RecordTreatment stores the doctor's treatment and completes the appointment
func (s *Service) RecordTreatment(ctx context.Context, req *types.TreatmentRequest) (*types.Treatment, error) {
	ctx, span := s.tracing.StartSpan(ctx, "scheduling.RecordTreatment",
		attribute.String("appointment.id", req.AppointmentID),
		attribute.Int64("actor.id", req.Actor.ID),
	)
	defer span.End()

	treatment, doctorID, err := s.recordTreatment(ctx, req)
	details := map[string]interface{}{"appointment_id": req.AppointmentID}
	if err != nil {
		s.tracing.RecordError(span, err)
		details["error"] = err.Error()
		s.logger.Audit(ctx, req.Actor.ID, "record_treatment", "treatment", false, details)
		return nil, err
	}

	s.metrics.RecordTransition(string(types.StatusCompleted))
	s.invalidateSlots(ctx, doctorID)
	details["treatment_id"] = treatment.ID
	s.logger.Audit(ctx, req.Actor.ID, "record_treatment", "treatment", true, details)
	return treatment, nil
}

func (s *Service) recordTreatment(ctx context.Context, req *types.TreatmentRequest) (*types.Treatment, int64, error) {
	medicines, err := s.validateTreatment(req)
	if err != nil {
		return nil, 0, err
	}

	var doctorID int64
	check := func(apt *types.Appointment) error {
		if req.Actor.Role != types.RoleDoctor || req.Actor.ID != apt.DoctorID {
			return types.NewForbiddenError("only the appointment's doctor may record its treatment")
		}
		if !apt.Status.CanTransitionTo(types.StatusCompleted) {
			return types.NewInvalidTransitionError(apt.AppointmentID, apt.Status, types.StatusCompleted)
		}
		if req.FollowupDate != nil && req.FollowupDate.Before(apt.Date) {
			return types.NewValidationError("follow-up date cannot be before the appointment date", map[string]interface{}{
				"followup_date":    req.FollowupDate.String(),
				"appointment_date": apt.Date.String(),
			})
		}
		doctorID = apt.DoctorID
		return nil
	}

	treatment := &types.Treatment{
		VisitType:    strings.TrimSpace(req.VisitType),
		TestsDone:    strings.TrimSpace(req.TestsDone),
		Diagnosis:    strings.TrimSpace(req.Diagnosis),
		Prescription: strings.TrimSpace(req.Prescription),
		Medicines:    medicines,
		Notes:        strings.TrimSpace(req.Notes),
		FollowupDate: req.FollowupDate,
	}

	err = s.withRetry(ctx, "record_treatment", func() error {
		return s.repository.CompleteWithTreatment(ctx, req.AppointmentID, check, treatment)
	})
	if err != nil {
		return nil, 0, err
	}
	return treatment, doctorID, nil
}

// validateTreatment checks the required fields and returns the normalized
// medicine list
func (s *Service) validateTreatment(req *types.TreatmentRequest) (string, error) {
	if req.AppointmentID == "" {
		return "", types.NewValidationError("appointment id is required", nil)
	}

	required := map[string]string{
		"visit_type":   req.VisitType,
		"diagnosis":    req.Diagnosis,
		"prescription": req.Prescription,
	}
	for _, field := range []string{"visit_type", "diagnosis", "prescription"} {
		if strings.TrimSpace(required[field]) == "" {
			return "", types.NewValidationError(fmt.Sprintf("%s is required", field), map[string]interface{}{"field": field})
		}
	}

	medicines := NormalizeMedicines(req.Medicines)
	if len(medicines) > s.config.MaxMedicines {
		return "", types.NewValidationError(
			fmt.Sprintf("at most %d medicines may be prescribed", s.config.MaxMedicines),
			map[string]interface{}{"count": len(medicines)},
		)
	}

	return strings.Join(medicines, ", "), nil
}

// NormalizeMedicines trims each entry and drops the empty ones
func NormalizeMedicines(entries []string) []string {
	medicines := make([]string, 0, len(entries))
	for _, entry := range entries {
		if m := strings.TrimSpace(entry); m != "" {
			medicines = append(medicines, m)
		}
	}
	return medicines
}
