package model

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
	StatusNoShow    BookingStatus = "no_show"
)

// ParseStatus validates a status coming from the outside.
func ParseStatus(s string) (BookingStatus, bool) {
	switch st := BookingStatus(s); st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return st, true
	}
	return "", false
}

// Active reports whether the status still holds slot capacity.
func (s BookingStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal reports whether no further transition is possible.
func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Booking is a reservation of one client against one slot of a service.
type Booking struct {
	ID              int64         `json:"id"`
	ServiceID       int64         `json:"serviceId"`
	TariffID        int64         `json:"tariffId"`
	ClientID        int64         `json:"clientId"`
	ScheduledAt     time.Time     `json:"scheduledAt"`
	EndAt           time.Time     `json:"endAt"`
	DurationMinutes int           `json:"durationMinutes"`
	Status          BookingStatus `json:"status"`
	PricePaid       int64         `json:"pricePaid"`
	ClientNote      string        `json:"clientNote,omitempty"`
	ProviderNote    string        `json:"providerNote,omitempty"`
	CancelReason    string        `json:"cancelReason,omitempty"`
	CancelledBy     *int64        `json:"cancelledBy,omitempty"`
	ChatRoomID      *string       `json:"chatRoomId,omitempty"`
	ConfirmedAt     *time.Time    `json:"confirmedAt,omitempty"`
	CancelledAt     *time.Time    `json:"cancelledAt,omitempty"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	Version         int64         `json:"version"`
}

// Duration returns the booked session length.
func (b *Booking) Duration() time.Duration {
	return b.EndAt.Sub(b.ScheduledAt)
}

// OverlapsWith checks [ScheduledAt, EndAt) intersection with another booking.
func (b *Booking) OverlapsWith(other *Booking) bool {
	return b.ScheduledAt.Before(other.EndAt) && other.ScheduledAt.Before(b.EndAt)
}

// Upcoming reports whether the session has not started yet.
func (b *Booking) Upcoming(now time.Time) bool {
	return b.ScheduledAt.After(now)
}

// StatusChange describes a lifecycle transition persisted by the store.
type StatusChange struct {
	To           BookingStatus
	At           time.Time
	ActorID      *int64
	ProviderNote *string
	CancelReason *string
}
