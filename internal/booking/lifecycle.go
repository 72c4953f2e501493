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
)

// ChatProvisioner opens the conversation room of a confirmed booking.
type ChatProvisioner interface {
	CreateRoom(ctx context.Context, b model.Booking) (string, error)
}

// Subscriber registers event handlers.
type Subscriber interface {
	Subscribe(eventType string, handler events.EventHandler)
}

// transition describes one lifecycle step. Hooks left nil are skipped.
type transition struct {
	to    model.BookingStatus
	event string

	// authorize checks the actor against the booking and its service.
	authorize func(b *model.Booking, svc *model.Service) error
	// done reports that the booking already is where the step leads.
	done func(b *model.Booking) bool
	// ready checks time preconditions once the FSM allowed the step.
	ready func(b *model.Booking, now time.Time) bool
	change func(b *model.Booking, ch *model.StatusChange)

	// slotLock serializes the step with allocations of the same slot.
	slotLock bool
}

// Confirm moves a pending booking to confirmed. Owner only.
func (s *Service) Confirm(ctx context.Context, id, ownerID int64, note string) (*model.Booking, error) {
	return s.apply(ctx, id, ownerID, transition{
		to:        model.StatusConfirmed,
		event:     events.BookingConfirmed,
		authorize: ownerOnly(ownerID),
		change: func(_ *model.Booking, ch *model.StatusChange) {
			if note != "" {
				ch.ProviderNote = &note
			}
		},
	})
}

// Cancel cancels a pending or confirmed booking that has not started yet.
// Either the client or the service owner may cancel.
func (s *Service) Cancel(ctx context.Context, id, actorID int64, reason string) (*model.Booking, error) {
	return s.apply(ctx, id, actorID, transition{
		to:    model.StatusCancelled,
		event: events.BookingCancelled,
		authorize: func(b *model.Booking, svc *model.Service) error {
			if b.ClientID != actorID && svc.OwnerID != actorID {
				return ErrForbidden
			}
			return nil
		},
		ready: func(b *model.Booking, now time.Time) bool {
			return b.Upcoming(now)
		},
		change: func(b *model.Booking, ch *model.StatusChange) {
			ch.ActorID = &actorID
			if reason == "" {
				return
			}
			ch.CancelReason = &reason
			if b.ClientID != actorID {
				ch.ProviderNote = &reason
			}
		},
		slotLock: true,
	})
}

// Complete is the system-driven completion of a confirmed booking whose
// session has ended. Completing a completed booking is a no-op.
func (s *Service) Complete(ctx context.Context, id int64) (*model.Booking, error) {
	return s.apply(ctx, id, 0, transition{
		to:    model.StatusCompleted,
		event: events.BookingCompleted,
		done: func(b *model.Booking) bool {
			return b.Status == model.StatusCompleted
		},
		ready: func(b *model.Booking, now time.Time) bool {
			return !now.Before(b.EndAt)
		},
	})
}

// CompleteByOwner lets the owner close a confirmed booking with a note.
func (s *Service) CompleteByOwner(ctx context.Context, id, ownerID int64, note string) (*model.Booking, error) {
	return s.apply(ctx, id, ownerID, transition{
		to:        model.StatusCompleted,
		event:     events.BookingCompleted,
		authorize: ownerOnly(ownerID),
		change: func(_ *model.Booking, ch *model.StatusChange) {
			if note != "" {
				ch.ProviderNote = &note
			}
		},
	})
}

// MarkNoShow records that the client did not attend a started session.
func (s *Service) MarkNoShow(ctx context.Context, id, ownerID int64) (*model.Booking, error) {
	return s.apply(ctx, id, ownerID, transition{
		to:        model.StatusNoShow,
		event:     events.BookingNoShow,
		authorize: ownerOnly(ownerID),
		ready: func(b *model.Booking, now time.Time) bool {
			return !now.Before(b.ScheduledAt)
		},
	})
}

// AttachChatRoom stores the external chat room of a booking.
func (s *Service) AttachChatRoom(ctx context.Context, id int64, roomID string) error {
	if err := s.store.SetChatRoom(ctx, id, roomID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("attach chat room: %w", err)
	}
	s.logger.Info().Int64("booking_id", id).Str("room_id", roomID).Msg("Chat room attached")
	return nil
}

// ProvisionChatRooms opens a chat room for every booking that gets
// confirmed and stores its identifier.
func (s *Service) ProvisionChatRooms(bus Subscriber, provisioner ChatProvisioner) {
	bus.Subscribe(events.BookingConfirmed, func(ctx context.Context, e events.Event) error {
		if e.Booking.ChatRoomID != nil {
			return nil
		}
		roomID, err := provisioner.CreateRoom(ctx, e.Booking)
		if err != nil {
			return fmt.Errorf("create chat room: %w", err)
		}
		return s.AttachChatRoom(ctx, e.Booking.ID, roomID)
	})
}

// CompleteDue completes up to limit confirmed bookings whose end has passed
// and returns how many were completed.
func (s *Service) CompleteDue(ctx context.Context, limit int) (int, error) {
	due, err := s.store.DueForCompletion(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list due bookings: %w", err)
	}

	completed := 0
	for _, b := range due {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}
		if _, err := s.Complete(ctx, b.ID); err != nil {
			s.logger.Warn().Err(err).Int64("booking_id", b.ID).Msg("Failed to complete booking")
			continue
		}
		completed++
	}
	return completed, nil
}

func ownerOnly(ownerID int64) func(*model.Booking, *model.Service) error {
	return func(_ *model.Booking, svc *model.Service) error {
		if svc.OwnerID != ownerID {
			return ErrForbidden
		}
		return nil
	}
}

// apply runs t against the current version of the booking. A concurrent
// writer makes the versioned update miss; the step is then re-evaluated
// against the fresh row.
func (s *Service) apply(ctx context.Context, id, actorID int64, t transition) (*model.Booking, error) {
	delay := s.cfg.RetryBaseDelay
	for attempt := 0; ; attempt++ {
		b, changed, err := s.applyOnce(ctx, id, t)
		if err == nil {
			if changed {
				s.afterTransition(ctx, b, actorID, t)
			}
			return b, nil
		}

		retry := errors.Is(err, db.ErrConcurrentModification) || isTransient(err)
		if !retry {
			return nil, err
		}
		if attempt >= s.cfg.MaxRetries {
			return nil, fmt.Errorf("%w: %v", ErrTransientStorage, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (s *Service) applyOnce(ctx context.Context, id int64, t transition) (*model.Booking, bool, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("get booking: %w", err)
	}

	svc, err := s.store.GetService(ctx, b.ServiceID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, false, ErrServiceNotFound
		}
		return nil, false, fmt.Errorf("get service: %w", err)
	}

	if t.authorize != nil {
		if err := t.authorize(b, svc); err != nil {
			return nil, false, err
		}
	}
	if t.done != nil && t.done(b) {
		return b, false, nil
	}

	now := s.now()
	if !s.fsm.CanTransition(b.Status, t.to) {
		return nil, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, t.to)
	}
	if t.ready != nil && !t.ready(b, now) {
		return nil, false, fmt.Errorf("%w: %s -> %s not allowed yet", ErrInvalidTransition, b.Status, t.to)
	}

	if t.slotLock {
		unlock := s.guard.RLock(b.ServiceID)
		defer unlock()

		release, err := s.locker.Acquire(ctx, lock.SlotKey(b.ServiceID, b.ScheduledAt))
		if err != nil {
			return nil, false, err
		}
		defer release()
	}

	ch := model.StatusChange{To: t.to, At: now}
	if t.change != nil {
		t.change(b, &ch)
	}

	updated, err := s.store.UpdateBookingStatus(ctx, b.ID, b.Version, ch)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, false, ErrNotFound
		}
		return nil, false, err
	}
	return updated, true, nil
}

func (s *Service) afterTransition(ctx context.Context, b *model.Booking, actorID int64, t transition) {
	s.cache.Invalidate(ctx, b.ServiceID)
	metrics.IncTransition(string(t.to))
	s.publish(ctx, t.event, b, actorID)

	s.logger.Info().
		Int64("booking_id", b.ID).
		Int64("actor_id", actorID).
		Str("status", string(b.Status)).
		Msg("Booking status changed")
}
