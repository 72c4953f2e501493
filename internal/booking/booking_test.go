package booking

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"slotbook/internal/cache"
	"slotbook/internal/config"
	"slotbook/internal/db"
	"slotbook/internal/events"
	"slotbook/internal/lock"
	"slotbook/internal/model"
)

// 2030-03-04 is a Monday.
var monday = time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

func at(day time.Time, hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	db     *db.DB
	clock  *fakeClock
	bus    *recordingBus
	logger zerolog.Logger
}

func boolPtr(b bool) *bool { return &b }

func testCatalog() *config.CatalogConfig {
	return &config.CatalogConfig{
		Services: []config.ServiceConfig{
			{
				ID: 1, OwnerID: 100, Title: "Consultation", Capacity: 1, IsActive: true,
				Tariffs: []config.TariffConfig{
					{ID: 10, Name: "Hour", DurationMinutes: 60, Price: 3000, SessionsCount: 1},
					{ID: 11, Name: "Long", DurationMinutes: 90, Price: 4000, SessionsCount: 1},
					{ID: 12, Name: "Archived", DurationMinutes: 60, Price: 2000, SessionsCount: 1, IsActive: boolPtr(false)},
				},
			},
			{
				ID: 2, OwnerID: 200, Title: "Group class", Capacity: 3, IsActive: true,
				Tariffs: []config.TariffConfig{
					{ID: 20, Name: "Class", DurationMinutes: 60, Price: 900, SessionsCount: 1},
				},
			},
			{
				ID: 3, OwnerID: 300, Title: "Closed", Capacity: 1, IsActive: false,
				Tariffs: []config.TariffConfig{
					{ID: 30, Name: "Hour", DurationMinutes: 60, Price: 1000, SessionsCount: 1},
				},
			},
		},
		Holidays: []config.HolidayConfig{
			{Date: "2030-03-11", Name: "Day off", ServiceID: 1},
		},
	}
}

// Service 1: Monday 09:00-11:00, hourly. Service 2: Monday 09:00-12:00 and
// Wednesday 09:00-10:00, hourly, two bookings per day at most.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	d, err := db.NewDB(filepath.Join(t.TempDir(), "booking.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	require.NoError(t, d.SyncCatalog(ctx, testCatalog()))

	first := &model.WeeklyAvailability{ServiceID: 1, SlotDurationMinutes: 60}
	first.Days[time.Monday] = model.DayAvailability{
		Enabled: true,
		Windows: []model.TimeWindow{{Start: "09:00", End: "11:00"}},
	}
	_, err = d.ReplaceSchedule(ctx, first, 0)
	require.NoError(t, err)

	second := &model.WeeklyAvailability{ServiceID: 2, SlotDurationMinutes: 60, MaxBookingsPerDay: 2}
	second.Days[time.Monday] = model.DayAvailability{
		Enabled: true,
		Windows: []model.TimeWindow{{Start: "09:00", End: "12:00"}},
	}
	second.Days[time.Wednesday] = model.DayAvailability{
		Enabled: true,
		Windows: []model.TimeWindow{{Start: "09:00", End: "10:00"}},
	}
	_, err = d.ReplaceSchedule(ctx, second, 0)
	require.NoError(t, err)

	return &fixture{
		db:     d,
		clock:  &fakeClock{now: time.Date(2030, 3, 3, 12, 0, 0, 0, time.UTC)},
		bus:    &recordingBus{},
		logger: logger,
	}
}

func (f *fixture) service(mutate ...func(*Config)) *Service {
	return f.serviceWith(nil, nil, mutate...)
}

func (f *fixture) serviceWith(locker lock.Locker, availability cache.Availability, mutate ...func(*Config)) *Service {
	cfg := Config{
		Location:       time.UTC,
		MaxAdvance:     30 * 24 * time.Hour,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
		Clock:          f.clock.Now,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return NewService(f.db, lock.NewServiceGuard(), locker, availability, f.bus, cfg, &f.logger)
}

func dbFilterAll() db.BookingFilter { return db.BookingFilter{} }

func autoConfirm(cfg *Config) { cfg.AutoConfirm = true }

func mustBook(t *testing.T, svc *Service, serviceID, tariffID, clientID int64, when time.Time) *model.Booking {
	t.Helper()
	b, err := svc.Book(context.Background(), BookRequest{
		ServiceID:   serviceID,
		TariffID:    tariffID,
		ClientID:    clientID,
		ScheduledAt: when,
	})
	require.NoError(t, err)
	return b
}
