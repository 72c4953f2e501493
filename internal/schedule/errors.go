package schedule

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInterval      = errors.New("invalid interval")
	ErrOverlappingIntervals = errors.New("overlapping intervals")
	ErrEmptyDay             = errors.New("enabled day has no windows")
	ErrInvalidParameter     = errors.New("invalid parameter")

	ErrNotFound        = errors.New("schedule not found")
	ErrServiceNotFound = errors.New("service not found")
	ErrForbidden       = errors.New("not authorized")
	ErrVersionConflict = errors.New("schedule was modified concurrently")
)

// Validation error codes surfaced to API callers.
const (
	CodeInvalidInterval      = "INVALID_INTERVAL"
	CodeOverlappingIntervals = "OVERLAPPING_INTERVALS"
	CodeEmptyDay             = "EMPTY_DAY"
	CodeInvalidParameter     = "INVALID_PARAMETER"
)

// ValidationError carries field-level detail about a rejected schedule.
type ValidationError struct {
	Code    string `json:"code"`
	Day     string `json:"day,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`

	err error
}

func (e *ValidationError) Error() string {
	if e.Day != "" {
		return fmt.Sprintf("%s: %s", e.Day, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

func invalidInterval(day, field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Code:    CodeInvalidInterval,
		Day:     day,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		err:     ErrInvalidInterval,
	}
}

func overlapping(day, field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Code:    CodeOverlappingIntervals,
		Day:     day,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		err:     ErrOverlappingIntervals,
	}
}

func invalidParameter(field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Code:    CodeInvalidParameter,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		err:     ErrInvalidParameter,
	}
}
