package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"slotbook/internal/model"
)

// Event types published by the booking service.
const (
	BookingCreated   = "booking.created"
	BookingConfirmed = "booking.confirmed"
	BookingCancelled = "booking.cancelled"
	BookingCompleted = "booking.completed"
	BookingNoShow    = "booking.no_show"
)

// Event is a booking lifecycle notification. Booking is a snapshot taken
// right after the transition was stored.
type Event struct {
	Type      string
	Booking   model.Booking
	ActorID   int64
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(ctx context.Context, event Event) error

// EventBus provides in-process pub/sub for events. Handlers run on their own
// goroutines so a slow subscriber never delays the publishing request.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	wg          sync.WaitGroup
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. The handlers get a
// context detached from the caller's cancellation.
func (b *EventBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	hctx := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		b.wg.Add(1)
		go func(h EventHandler) {
			defer b.wg.Done()
			if err := h(hctx, event); err != nil {
				b.logger.Error().
					Err(err).
					Str("type", event.Type).
					Int64("booking_id", event.Booking.ID).
					Msg("Event handler failed")
			}
		}(handler)
	}
}

// Wait blocks until all handlers started so far have returned.
func (b *EventBus) Wait() {
	b.wg.Wait()
}
