package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slotbook/internal/db"
	"slotbook/internal/events"
	"slotbook/internal/lock"
	"slotbook/internal/metrics"
	"slotbook/internal/model"
	"slotbook/internal/slots"
)

// BookRequest asks for one spot in the slot starting at ScheduledAt.
type BookRequest struct {
	ServiceID   int64     `json:"serviceId"`
	TariffID    int64     `json:"tariffId"`
	ClientID    int64     `json:"clientId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	ClientNote  string    `json:"clientNote,omitempty"`
}

// Book allocates a booking. Two concurrent requests for the last spot of a
// slot never both succeed.
func (s *Service) Book(ctx context.Context, req BookRequest) (*model.Booking, error) {
	started := time.Now()
	defer func() { metrics.ObserveAllocation(time.Since(started)) }()

	created, err := s.book(ctx, req)
	if err != nil {
		metrics.IncBookingRejected(rejectReason(err))
		s.logger.Debug().
			Err(err).
			Int64("service_id", req.ServiceID).
			Int64("client_id", req.ClientID).
			Time("scheduled_at", req.ScheduledAt).
			Msg("Booking rejected")
		return nil, err
	}

	s.cache.Invalidate(ctx, created.ServiceID)
	metrics.IncBookingCreated(string(created.Status))
	s.publish(ctx, events.BookingCreated, created, req.ClientID)
	if created.Status == model.StatusConfirmed {
		s.publish(ctx, events.BookingConfirmed, created, req.ClientID)
	}

	s.logger.Info().
		Int64("booking_id", created.ID).
		Int64("service_id", created.ServiceID).
		Int64("client_id", created.ClientID).
		Time("scheduled_at", created.ScheduledAt).
		Str("status", string(created.Status)).
		Msg("Booking created")

	return created, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (*model.Booking, error) {
	now := s.now()
	at := req.ScheduledAt
	if !at.After(now) {
		return nil, ErrPastDate
	}
	if at.Sub(now) > s.cfg.MaxAdvance {
		return nil, ErrTooFarAhead
	}

	svc, err := s.store.GetService(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	if !svc.IsActive {
		return nil, ErrServiceNotFound
	}

	tariff, err := s.tariffFor(ctx, svc, req.TariffID)
	if err != nil {
		return nil, err
	}

	loc := s.location(svc)
	dayStart := slots.DateOf(at, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	// A session running past midnight competes with the next day's bookings too.
	if end := at.Add(tariff.Duration()); end.After(dayEnd) {
		dayEnd = end
	}

	holidays, err := s.store.Holidays(ctx, svc.ID, dayStart, dayStart)
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}

	status := model.StatusPending
	if s.cfg.AutoConfirm {
		status = model.StatusConfirmed
	}
	draft := &model.Booking{
		ServiceID:       svc.ID,
		TariffID:        tariff.ID,
		ClientID:        req.ClientID,
		ScheduledAt:     at.UTC(),
		EndAt:           at.Add(tariff.Duration()).UTC(),
		DurationMinutes: int(tariff.Duration() / time.Minute),
		Status:          status,
		PricePaid:       tariff.Price,
		ClientNote:      req.ClientNote,
	}

	check := func(av *model.WeeklyAvailability, active []model.Booking) error {
		now := s.now()
		if !at.After(now) {
			return ErrPastDate
		}
		opts := slots.Options{
			Now:       now,
			Location:  loc,
			Capacity:  svc.Capacity,
			Occupancy: slots.NewOccupancy(active, loc),
			Holidays:  holidays,
		}
		slot, ok := slots.Find(av, at, opts)
		if !ok {
			return ErrSlotNotFound
		}
		if av.SlotDuration() != tariff.Duration() {
			return ErrDurationMismatch
		}
		if slots.DayCapReached(av, at, opts) {
			return ErrDailyCapReached
		}
		if !slot.Available() {
			return ErrSlotFull
		}
		return nil
	}

	return s.withRetry(ctx, func() (*model.Booking, error) {
		return s.allocate(ctx, draft, dayStart, dayEnd, check)
	})
}

func (s *Service) allocate(
	ctx context.Context,
	draft *model.Booking,
	dayStart, dayEnd time.Time,
	check db.CapacityCheck,
) (*model.Booking, error) {
	unlock := s.guard.RLock(draft.ServiceID)
	defer unlock()

	release, err := s.locker.Acquire(ctx, lock.SlotKey(draft.ServiceID, draft.ScheduledAt))
	if err != nil {
		return nil, err
	}
	defer release()

	created, err := s.store.AllocateBooking(ctx, draft, dayStart, dayEnd, check)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return created, nil
}

func (s *Service) tariffFor(ctx context.Context, svc *model.Service, tariffID int64) (*model.Tariff, error) {
	tariff, err := s.store.GetTariff(ctx, tariffID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrTariffNotFound
		}
		return nil, fmt.Errorf("get tariff: %w", err)
	}
	if tariff.ServiceID != svc.ID || !tariff.IsActive {
		return nil, ErrTariffNotFound
	}
	return tariff, nil
}

// withRetry repeats op while it fails with lock or storage contention,
// backing off exponentially between attempts.
func (s *Service) withRetry(ctx context.Context, op func() (*model.Booking, error)) (*model.Booking, error) {
	delay := s.cfg.RetryBaseDelay
	for attempt := 0; ; attempt++ {
		b, err := op()
		if err == nil || !isTransient(err) {
			return b, err
		}
		if attempt >= s.cfg.MaxRetries {
			return nil, fmt.Errorf("%w: %v", ErrTransientStorage, err)
		}

		metrics.IncAllocationRetry()
		s.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Retrying after transient failure")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func isTransient(err error) bool {
	return db.IsBusy(err) || errors.Is(err, lock.ErrNotAcquired)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrSlotFull):
		return "slot_full"
	case errors.Is(err, ErrSlotNotFound):
		return "slot_not_found"
	case errors.Is(err, ErrDailyCapReached):
		return "daily_cap"
	case errors.Is(err, ErrPastDate):
		return "past_date"
	case errors.Is(err, ErrTooFarAhead):
		return "too_far_ahead"
	case errors.Is(err, ErrTariffNotFound), errors.Is(err, ErrServiceNotFound):
		return "not_found"
	case errors.Is(err, ErrDurationMismatch):
		return "duration_mismatch"
	case errors.Is(err, ErrTransientStorage):
		return "transient"
	default:
		return "error"
	}
}
