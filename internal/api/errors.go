package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"slotbook/internal/booking"
	"slotbook/internal/schedule"
)

// Error codes of the JSON error body.
const (
	CodeBadRequest        = "BAD_REQUEST"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeSlotFull          = "SLOT_FULL"
	CodeSlotNotFound      = "SLOT_NOT_FOUND"
	CodeDailyCapReached   = "DAILY_CAP_REACHED"
	CodePastDate          = "PAST_DATE"
	CodeTooFarAhead       = "TOO_FAR_AHEAD"
	CodeDurationMismatch  = "DURATION_MISMATCH"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeVersionConflict   = "VERSION_CONFLICT"
	CodeUnavailable       = "UNAVAILABLE"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInternal          = "INTERNAL"
)

// retryAfterSeconds is advertised on transient failures.
const retryAfterSeconds = "1"

// ErrorBody is the payload of every non-2xx JSON response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Day     string `json:"day,omitempty"`
	Field   string `json:"field,omitempty"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{booking.ErrSlotFull, http.StatusConflict, CodeSlotFull},
	{booking.ErrSlotNotFound, http.StatusConflict, CodeSlotNotFound},
	{booking.ErrDailyCapReached, http.StatusConflict, CodeDailyCapReached},
	{booking.ErrPastDate, http.StatusUnprocessableEntity, CodePastDate},
	{booking.ErrTooFarAhead, http.StatusUnprocessableEntity, CodeTooFarAhead},
	{booking.ErrDurationMismatch, http.StatusUnprocessableEntity, CodeDurationMismatch},
	{booking.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition},
	{booking.ErrTransientStorage, http.StatusServiceUnavailable, CodeUnavailable},

	{booking.ErrForbidden, http.StatusForbidden, CodeForbidden},
	{schedule.ErrForbidden, http.StatusForbidden, CodeForbidden},

	{booking.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{booking.ErrServiceNotFound, http.StatusNotFound, CodeNotFound},
	{booking.ErrScheduleNotFound, http.StatusNotFound, CodeNotFound},
	{booking.ErrTariffNotFound, http.StatusNotFound, CodeNotFound},
	{schedule.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{schedule.ErrServiceNotFound, http.StatusNotFound, CodeNotFound},

	{schedule.ErrVersionConflict, http.StatusConflict, CodeVersionConflict},

	{booking.ErrInvalidDate, http.StatusBadRequest, CodeBadRequest},
	{booking.ErrUnknownTab, http.StatusBadRequest, CodeBadRequest},
	{booking.ErrInvalidRange, http.StatusBadRequest, CodeBadRequest},
	{booking.ErrRangeTooLarge, http.StatusBadRequest, CodeBadRequest},
}

// statusFor resolves the HTTP status and body of err.
func statusFor(err error) (int, ErrorBody) {
	var verr *schedule.ValidationError
	if errors.As(err, &verr) {
		status := http.StatusBadRequest
		if verr.Code == schedule.CodeOverlappingIntervals {
			status = http.StatusConflict
		}
		return status, ErrorBody{Code: verr.Code, Message: verr.Message, Day: verr.Day, Field: verr.Field}
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, ErrorBody{Code: m.code, Message: m.target.Error()}
		}
	}
	return http.StatusInternalServerError, ErrorBody{Code: CodeInternal, Message: "internal error"}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, body ErrorBody) {
	if status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: body})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusBadRequest, ErrorBody{Code: CodeBadRequest, Message: message})
}

// fail maps a service error to a response and logs unexpected ones.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger := requestLogger(r, &s.logger)
		logger.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeError(w, r, status, body)
}
