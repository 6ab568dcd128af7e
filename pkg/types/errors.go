package types

import (
	"errors"
	"fmt"
)

// ErrorKind represents the category of a scheduling failure
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindSlotUnavailable     ErrorKind = "slot_unavailable"
	KindDoubleBooking       ErrorKind = "double_booking"
	KindInvalidTransition   ErrorKind = "invalid_transition"
	KindIdentifierExhausted ErrorKind = "identifier_exhausted"
	KindStoreBusy           ErrorKind = "store_busy"
	KindValidation          ErrorKind = "validation"
	KindForbidden           ErrorKind = "forbidden"
)

// Common error codes
const (
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeSlotUnavailable     = "SLOT_UNAVAILABLE"
	ErrCodeDoubleBooking       = "DOUBLE_BOOKING"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeIdentifierExhausted = "IDENTIFIER_EXHAUSTED"
	ErrCodeStoreBusy           = "STORE_BUSY"
	ErrCodeForbidden           = "FORBIDDEN"
)

// SchedulingError represents a structured failure reported to callers
type SchedulingError struct {
	Kind    ErrorKind              `json:"error"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *SchedulingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *SchedulingError) Unwrap() error {
	return e.Cause
}

// Is matches any SchedulingError of the same kind, so the sentinels below
// can be used with errors.Is.
func (e *SchedulingError) Is(target error) bool {
	t, ok := target.(*SchedulingError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound            = &SchedulingError{Kind: KindNotFound, Code: ErrCodeNotFound}
	ErrSlotUnavailable     = &SchedulingError{Kind: KindSlotUnavailable, Code: ErrCodeSlotUnavailable}
	ErrDoubleBooking       = &SchedulingError{Kind: KindDoubleBooking, Code: ErrCodeDoubleBooking}
	ErrInvalidTransition   = &SchedulingError{Kind: KindInvalidTransition, Code: ErrCodeInvalidTransition}
	ErrIdentifierExhausted = &SchedulingError{Kind: KindIdentifierExhausted, Code: ErrCodeIdentifierExhausted}
	ErrStoreBusy           = &SchedulingError{Kind: KindStoreBusy, Code: ErrCodeStoreBusy}
	ErrValidation          = &SchedulingError{Kind: KindValidation, Code: ErrCodeInvalidInput}
	ErrForbidden           = &SchedulingError{Kind: KindForbidden, Code: ErrCodeForbidden}
)

// NewValidationError creates a new validation error
func NewValidationError(message string, details map[string]interface{}) *SchedulingError {
	return &SchedulingError{
		Kind:    KindValidation,
		Code:    ErrCodeInvalidInput,
		Message: message,
		Details: details,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string, id interface{}) *SchedulingError {
	return &SchedulingError{
		Kind:    KindNotFound,
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %v", resource, id),
		Details: map[string]interface{}{"resource": resource, "id": id},
	}
}

// NewSlotUnavailableError reports that no open slot matches a booking request
func NewSlotUnavailableError(doctorID int64, date, timeRange string) *SchedulingError {
	return &SchedulingError{
		Kind:    KindSlotUnavailable,
		Code:    ErrCodeSlotUnavailable,
		Message: fmt.Sprintf("doctor %d has no available slot on %s at %s", doctorID, date, timeRange),
	}
}

// NewDoubleBookingError reports that the slot already has a Booked appointment
func NewDoubleBookingError(doctorID int64, date, timeRange string, cause error) *SchedulingError {
	return &SchedulingError{
		Kind:    KindDoubleBooking,
		Code:    ErrCodeDoubleBooking,
		Message: fmt.Sprintf("doctor %d is already booked on %s at %s", doctorID, date, timeRange),
		Cause:   cause,
	}
}

// NewInvalidTransitionError reports an illegal appointment status change
func NewInvalidTransitionError(code string, from, to AppointmentStatus) *SchedulingError {
	return &SchedulingError{
		Kind:    KindInvalidTransition,
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("appointment %s cannot move from %s to %s", code, from, to),
		Details: map[string]interface{}{"appointment_id": code, "from": from, "to": to},
	}
}

// NewIdentifierExhaustedError reports that every generated identifier collided
func NewIdentifierExhaustedError(attempts int, cause error) *SchedulingError {
	return &SchedulingError{
		Kind:    KindIdentifierExhausted,
		Code:    ErrCodeIdentifierExhausted,
		Message: fmt.Sprintf("identifier generation collided %d times", attempts),
		Cause:   cause,
	}
}

// NewStoreBusyError wraps a transient store conflict; callers may retry
func NewStoreBusyError(cause error) *SchedulingError {
	return &SchedulingError{
		Kind:    KindStoreBusy,
		Code:    ErrCodeStoreBusy,
		Message: "store is busy, retry the request",
		Cause:   cause,
	}
}

// NewForbiddenError reports an actor acting outside its own records
func NewForbiddenError(message string) *SchedulingError {
	return &SchedulingError{
		Kind:    KindForbidden,
		Code:    ErrCodeForbidden,
		Message: message,
	}
}

// KindOf returns the kind of the first SchedulingError in err's chain, or ""
func KindOf(err error) ErrorKind {
	var se *SchedulingError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
