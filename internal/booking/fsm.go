package booking

import "slotbook/internal/model"

// FSM holds the allowed booking status transitions.
type FSM struct {
	transitions map[model.BookingStatus][]model.BookingStatus
}

// NewFSM creates the booking lifecycle state machine.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[model.BookingStatus][]model.BookingStatus{
			model.StatusPending:   {model.StatusConfirmed, model.StatusCancelled},
			model.StatusConfirmed: {model.StatusCompleted, model.StatusNoShow, model.StatusCancelled},
		},
	}
}

// CanTransition checks if transition is allowed. Terminal statuses never
// move.
func (f *FSM) CanTransition(from, to model.BookingStatus) bool {
	if from.Terminal() {
		return false
	}
	allowed, ok := f.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
