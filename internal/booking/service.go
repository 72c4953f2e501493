// Package booking allocates bookings against generated slots and drives
// their lifecycle.
package booking

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"slotbook/internal/cache"
	"slotbook/internal/db"
	"slotbook/internal/events"
	"slotbook/internal/lock"
	"slotbook/internal/model"
)

// TariffLookup resolves priced variants of a service.
type TariffLookup interface {
	GetTariff(ctx context.Context, id int64) (*model.Tariff, error)
}

// Store is the persistence the booking service needs.
type Store interface {
	TariffLookup
	GetService(ctx context.Context, id int64) (*model.Service, error)
	ListServicesByOwner(ctx context.Context, ownerID int64) ([]int64, error)
	Holidays(ctx context.Context, serviceID int64, from, to time.Time) (map[string]bool, error)
	GetSchedule(ctx context.Context, serviceID int64) (*model.WeeklyAvailability, error)

	AllocateBooking(ctx context.Context, b *model.Booking, dayStart, dayEnd time.Time, check db.CapacityCheck) (*model.Booking, error)
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id, expectedVersion int64, ch model.StatusChange) (*model.Booking, error)
	SetChatRoom(ctx context.Context, id int64, roomID string) error
	ActiveBookings(ctx context.Context, serviceID int64, from, to time.Time) ([]model.Booking, error)
	DueForCompletion(ctx context.Context, now time.Time, limit int) ([]model.Booking, error)
	ListBookings(ctx context.Context, f db.BookingFilter) ([]model.Booking, int, error)
}

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

// Clock returns the current instant.
type Clock func() time.Time

// Config tunes allocation and queries.
type Config struct {
	Location         *time.Location
	MaxAdvance       time.Duration
	AutoConfirm      bool
	MaxRetries       int
	RetryBaseDelay   time.Duration
	DefaultRangeDays int
	MaxRangeDays     int
	Clock            Clock
}

func (c *Config) applyDefaults() {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.MaxAdvance <= 0 {
		c.MaxAdvance = 30 * 24 * time.Hour
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 20 * time.Millisecond
	}
	if c.DefaultRangeDays <= 0 {
		c.DefaultRangeDays = 30
	}
	if c.MaxRangeDays <= 0 {
		c.MaxRangeDays = 90
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Service implements allocation, lifecycle and queries over bookings.
type Service struct {
	store  Store
	guard  *lock.ServiceGuard
	locker lock.Locker
	cache  cache.Availability
	bus    Publisher
	fsm    *FSM
	cfg    Config
	logger zerolog.Logger
}

// NewService creates a booking service. guard must be shared with the
// schedule service; locker decides whether slot exclusion is local or
// spans processes.
func NewService(
	store Store,
	guard *lock.ServiceGuard,
	locker lock.Locker,
	availability cache.Availability,
	bus Publisher,
	cfg Config,
	logger *zerolog.Logger,
) *Service {
	cfg.applyDefaults()
	if availability == nil {
		availability = cache.Noop{}
	}
	if guard == nil {
		guard = lock.NewServiceGuard()
	}
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &Service{
		store:  store,
		guard:  guard,
		locker: locker,
		cache:  availability,
		bus:    bus,
		fsm:    NewFSM(),
		cfg:    cfg,
		logger: logger.With().Str("component", "booking").Logger(),
	}
}

func (s *Service) now() time.Time {
	return s.cfg.Clock()
}

func (s *Service) publish(ctx context.Context, eventType string, b *model.Booking, actorID int64) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.Event{Type: eventType, Booking: *b, ActorID: actorID})
}

func (s *Service) location(svc *model.Service) *time.Location {
	return svc.Location(s.cfg.Location)
}
