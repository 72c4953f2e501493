package events

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"slotbook/internal/model"
)

func TestEventBus_PublishToSubscribers(t *testing.T) {
	logger := zerolog.New(io.Discard)
	bus := NewEventBus(&logger)

	var confirmed, cancelled int32
	bus.Subscribe(BookingConfirmed, func(ctx context.Context, e Event) error {
		atomic.AddInt32(&confirmed, 1)
		assert.Equal(t, int64(7), e.Booking.ID)
		assert.False(t, e.CreatedAt.IsZero())
		return nil
	})
	bus.Subscribe(BookingConfirmed, func(ctx context.Context, e Event) error {
		atomic.AddInt32(&confirmed, 1)
		return errors.New("handler failure is only logged")
	})
	bus.Subscribe(BookingCancelled, func(ctx context.Context, e Event) error {
		atomic.AddInt32(&cancelled, 1)
		return nil
	})

	bus.Publish(context.Background(), Event{Type: BookingConfirmed, Booking: model.Booking{ID: 7}})
	bus.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&confirmed))
	assert.Equal(t, int32(0), atomic.LoadInt32(&cancelled))
}

func TestEventBus_HandlerOutlivesCallerContext(t *testing.T) {
	logger := zerolog.New(io.Discard)
	bus := NewEventBus(&logger)

	var ctxErr error
	bus.Subscribe(BookingCreated, func(ctx context.Context, e Event) error {
		ctxErr = ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, Event{Type: BookingCreated})
	bus.Wait()

	assert.NoError(t, ctxErr)
}
