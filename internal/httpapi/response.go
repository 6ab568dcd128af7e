package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/medrex/hms-scheduling/pkg/logger"
	"github.com/medrex/hms-scheduling/pkg/types"
)

// StatusFor maps an error to its HTTP status code
func StatusFor(err error) int {
	switch types.KindOf(err) {
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindForbidden:
		return http.StatusForbidden
	case types.KindSlotUnavailable, types.KindDoubleBooking, types.KindInvalidTransition:
		return http.StatusConflict
	case types.KindIdentifierExhausted, types.KindStoreBusy:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteJSON writes data as a JSON response
func WriteJSON(w http.ResponseWriter, log *logger.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("Failed to encode JSON response")
	}
}

// WriteError writes err using the scheduling error body. Errors outside the
// taxonomy are logged and reported without their internal detail.
func WriteError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	status := StatusFor(err)

	var se *types.SchedulingError
	if !errors.As(err, &se) {
		log.WithContext(r.Context()).WithError(err).Error("Request failed")
		se = &types.SchedulingError{Kind: "internal", Code: "INTERNAL_ERROR", Message: "internal server error"}
	}

	if types.KindOf(err) == types.KindStoreBusy {
		w.Header().Set("Retry-After", "1")
	}

	WriteJSON(w, log, status, se)
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields
func DecodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return types.NewValidationError("invalid request body", map[string]interface{}{"reason": err.Error()})
	}
	return nil
}

// QueryInt64 parses an optional integer query parameter; 0 when absent
func QueryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, types.NewValidationError(name+" must be an integer", map[string]interface{}{name: raw})
	}
	return value, nil
}
