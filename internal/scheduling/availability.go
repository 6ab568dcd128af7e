package scheduling

import (
	"context"

	"cloud.google.com/go/civil"
	"go.opentelemetry.io/otel/attribute"

	"github.com/medrex/hms-scheduling/pkg/types"
)

// PublishSlot records a doctor's availability for a date and time range
func (s *Service) PublishSlot(ctx context.Context, req *types.SlotRequest) (*types.AvailabilitySlot, error) {
	ctx, span := s.tracing.StartSpan(ctx, "scheduling.PublishSlot",
		attribute.Int64("doctor.id", req.DoctorID),
		attribute.String("slot.date", req.Date.String()),
	)
	defer span.End()

	slot, err := s.publishSlot(ctx, req)
	details := map[string]interface{}{
		"date":         req.Date.String(),
		"time_slot":    req.TimeRange,
		"is_available": req.IsAvailable,
	}
	if err != nil {
		s.tracing.RecordError(span, err)
		details["error"] = err.Error()
		s.logger.Audit(ctx, req.DoctorID, "publish_slot", "availability_slot", false, details)
		return nil, err
	}

	s.invalidateSlots(ctx, req.DoctorID)
	details["slot_id"] = slot.ID
	s.logger.Audit(ctx, req.DoctorID, "publish_slot", "availability_slot", true, details)
	return slot, nil
}

func (s *Service) publishSlot(ctx context.Context, req *types.SlotRequest) (*types.AvailabilitySlot, error) {
	if req.DoctorID <= 0 {
		return nil, types.NewValidationError("doctor id is required", nil)
	}
	if !req.Date.IsValid() {
		return nil, types.NewValidationError("slot date is required", nil)
	}
	if err := validateTimeRange(req.TimeRange); err != nil {
		return nil, err
	}

	if _, err := s.directory.GetDoctor(ctx, req.DoctorID); err != nil {
		return nil, err
	}

	duplicate, err := s.repository.SlotExists(ctx, req.DoctorID, req.Date, req.TimeRange)
	if err != nil {
		return nil, err
	}
	if duplicate {
		if s.config.RejectDuplicateSlots {
			return nil, types.NewValidationError("slot already published", map[string]interface{}{
				"doctor_id": req.DoctorID,
				"date":      req.Date.String(),
				"time_slot": req.TimeRange,
			})
		}
		s.logger.WithContext(ctx).WithField("doctor_id", req.DoctorID).
			WithField("date", req.Date.String()).
			WithField("time_slot", req.TimeRange).
			Warn("Publishing duplicate availability slot")
	}

	slot := &types.AvailabilitySlot{
		DoctorID:    req.DoctorID,
		Date:        req.Date,
		TimeRange:   req.TimeRange,
		IsAvailable: req.IsAvailable,
	}
	if err := s.repository.CreateSlot(ctx, slot); err != nil {
		return nil, err
	}
	return slot, nil
}

// ListSlots lists a doctor's slots on or after from, when given. The full
// listing is served from the slot cache when possible.
func (s *Service) ListSlots(ctx context.Context, doctorID int64, from *civil.Date) ([]*types.AvailabilitySlot, error) {
	if doctorID <= 0 {
		return nil, types.NewValidationError("doctor id is required", nil)
	}

	slots, err := s.cachedSlots(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	if from == nil {
		return slots, nil
	}

	filtered := make([]*types.AvailabilitySlot, 0, len(slots))
	for _, slot := range slots {
		if !slot.Date.Before(*from) {
			filtered = append(filtered, slot)
		}
	}
	return filtered, nil
}

func (s *Service) cachedSlots(ctx context.Context, doctorID int64) ([]*types.AvailabilitySlot, error) {
	slots, hit, err := s.cache.Get(ctx, doctorID)
	switch {
	case err != nil:
		s.metrics.RecordSlotCache("error")
		s.logger.WithContext(ctx).WithError(err).Warn("Slot cache read failed, falling back to database")
	case hit:
		s.metrics.RecordSlotCache("hit")
		return slots, nil
	default:
		s.metrics.RecordSlotCache("miss")
	}

	// The generation is read before the database so a booking that commits
	// in between fences off this write.
	gen, genErr := s.cache.Generation(ctx, doctorID)

	slots, err = s.repository.GetSlots(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	if genErr != nil {
		return slots, nil
	}
	if err := s.cache.Set(ctx, doctorID, gen, slots); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to populate slot cache")
	}
	return slots, nil
}
