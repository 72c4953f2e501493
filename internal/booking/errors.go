package booking

import "errors"

var (
	ErrSlotNotFound     = errors.New("slot not found")
	ErrSlotFull         = errors.New("slot is full")
	ErrDailyCapReached  = errors.New("daily booking limit reached")
	ErrPastDate         = errors.New("cannot book in the past")
	ErrTooFarAhead      = errors.New("date is too far in the future")
	ErrTariffNotFound   = errors.New("tariff not found")
	ErrDurationMismatch = errors.New("tariff duration does not match slot duration")

	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("not authorized")
	ErrNotFound          = errors.New("booking not found")
	ErrServiceNotFound   = errors.New("service not found")
	ErrScheduleNotFound  = errors.New("service has no schedule")

	ErrInvalidDate   = errors.New("invalid date")
	ErrUnknownTab    = errors.New("unknown tab")
	ErrInvalidRange  = errors.New("dateFrom must not be after dateTo")
	ErrRangeTooLarge = errors.New("date range too large")

	// ErrTransientStorage means the request may succeed if repeated.
	ErrTransientStorage = errors.New("storage temporarily unavailable")
)
