package api

import (
	"errors"
	"net/http"

	"github.com/warp/repasse-engine/calendar"
	"github.com/warp/repasse-engine/logger"
	"github.com/warp/repasse-engine/payout"
)

// statusFor maps an engine error to its HTTP status.
func statusFor(err error) int {
	var dateErr *payout.InvalidDateError
	switch {
	case payout.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &dateErr):
		if dateErr.FromStoredData() {
			return http.StatusInternalServerError
		}
		return http.StatusUnprocessableEntity
	case errors.Is(err, payout.ErrConcurrencyConflict),
		errors.Is(err, payout.ErrDuplicateRecord),
		errors.Is(err, payout.ErrRecordAssigned),
		errors.Is(err, payout.ErrRegistrationLocked):
		return http.StatusConflict
	case errors.Is(err, payout.ErrInvalidFraction),
		errors.Is(err, payout.ErrInvalidInput),
		errors.Is(err, calendar.ErrInvalidDate):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError writes err with its mapped status, kind and retry hint.
// Server-side failures are logged as errors, races as warnings; caller
// mistakes and missing resources are not logged.
func writeEngineError(w http.ResponseWriter, log *logger.Logger, message string, err error) {
	status := statusFor(err)
	code := payout.Kind(err)
	switch {
	case status >= http.StatusInternalServerError:
		log.Error(message, "error", err, "kind", code)
	case !payout.IsClientError(err) && !payout.IsNotFound(err) && !errors.Is(err, calendar.ErrInvalidDate):
		log.Warn(message, "error", err, "kind", code)
	}
	if errors.Is(err, calendar.ErrInvalidDate) && code == "internal" {
		code = "invalid_input"
	}
	writeJSON(w, status, ErrorResponse{
		Error:     message,
		Code:      code,
		Details:   err.Error(),
		Retryable: payout.IsRetryable(err),
	})
}
