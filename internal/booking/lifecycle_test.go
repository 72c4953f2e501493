package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"slotbook/internal/events"
	"slotbook/internal/model"
)

type mockProvisioner struct {
	mock.Mock
}

func (m *mockProvisioner) CreateRoom(ctx context.Context, b model.Booking) (string, error) {
	args := m.Called(ctx, b)
	return args.String(0), args.Error(1)
}

func TestFSM(t *testing.T) {
	fsm := NewFSM()

	tests := []struct {
		from, to model.BookingStatus
		want     bool
	}{
		{model.StatusPending, model.StatusConfirmed, true},
		{model.StatusPending, model.StatusCancelled, true},
		{model.StatusPending, model.StatusCompleted, false},
		{model.StatusPending, model.StatusNoShow, false},
		{model.StatusConfirmed, model.StatusCompleted, true},
		{model.StatusConfirmed, model.StatusNoShow, true},
		{model.StatusConfirmed, model.StatusCancelled, true},
		{model.StatusConfirmed, model.StatusPending, false},
		{model.StatusCompleted, model.StatusCancelled, false},
		{model.StatusCancelled, model.StatusConfirmed, false},
		{model.StatusNoShow, model.StatusCompleted, false},
		{model.BookingStatus("unknown"), model.StatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, fsm.CanTransition(tt.from, tt.to))
		})
	}
}

func TestFSM_TerminalStatusesNeverMove(t *testing.T) {
	fsm := NewFSM()
	all := []model.BookingStatus{
		model.StatusPending, model.StatusConfirmed, model.StatusCompleted,
		model.StatusCancelled, model.StatusNoShow,
	}
	for _, from := range all {
		for _, to := range all {
			if from.Terminal() {
				assert.False(t, fsm.CanTransition(from, to), "%s -> %s", from, to)
			}
		}
	}
}

func TestConfirm(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	ctx := context.Background()

	b := mustBook(t, svc, 1, 10, 7, at(monday, 9, 0))

	_, err := svc.Confirm(ctx, b.ID, 7, "")
	assert.ErrorIs(t, err, ErrForbidden)

	confirmed, err := svc.Confirm(ctx, b.ID, 100, "see you")
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, confirmed.Status)
	assert.Equal(t, "see you", confirmed.ProviderNote)
	assert.NotNil(t, confirmed.ConfirmedAt)
	assert.Equal(t, int64(2), confirmed.Version)

	_, err = svc.Confirm(ctx, b.ID, 100, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Confirm(ctx, 12345, 100, "")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{events.BookingCreated, events.BookingConfirmed}, f.bus.types())
}

func TestCancel_FreesSpot(t *testing.T) {
	f := newFixture(t)
	svc := f.service(autoConfirm)
	ctx := context.Background()

	b := mustBook(t, svc, 1, 10, 7, at(monday, 9, 0))

	_, err := svc.Book(ctx, BookRequest{ServiceID: 1, TariffID: 10, ClientID: 8, ScheduledAt: at(monday, 9, 0)})
	require.ErrorIs(t, err, ErrSlotFull)

	cancelled, err := svc.Cancel(ctx, b.ID, 7, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, "plans changed", cancelled.CancelReason)
	assert.Empty(t, cancelled.ProviderNote)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, int64(7), *cancelled.CancelledBy)
	assert.NotNil(t, cancelled.CancelledAt)

	days, err := svc.AvailabilityForRange(ctx, 1, "2030-03-04", "2030-03-04")
	require.NoError(t, err)
	assert.Equal(t, 1, days[0].Slots[0].SpotsAvailable)

	mustBook(t, svc, 1, 10, 8, at(monday, 9, 0))
}

func TestCancel_Rules(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	ctx := context.Background()

	b := mustBook(t, svc, 1, 10, 7, at(monday, 9, 0))

	_, err := svc.Cancel(ctx, b.ID, 999, "")
	assert.ErrorIs(t, err, ErrForbidden)

	byOwner, err := svc.Cancel(ctx, b.ID, 100, "specialist is ill")
	require.NoError(t, err)
	assert.Equal(t, "specialist is ill", byOwner.ProviderNote)
	assert.Equal(t, "specialist is ill", byOwner.CancelReason)
	assert.Equal(t, int64(100), *byOwner.CancelledBy)

	_, err = svc.Cancel(ctx, b.ID, 7, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	started := mustBook(t, svc, 1, 10, 7, at(monday, 10, 0))
	f.clock.Set(at(monday, 10, 0))
	_, err = svc.Cancel(ctx, started.ID, 7, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := f.db.GetBooking(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	ctx := context.Background()

	b := mustBook(t, svc, 1, 10, 7, at(monday, 9, 0))

	_, err := svc.Complete(ctx, b.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending bookings are not completed")

	_, err = svc.Confirm(ctx, b.ID, 100, "")
	require.NoError(t, err)

	f.clock.Set(at(monday, 9, 59))
	_, err = svc.Complete(ctx, b.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "session has not ended")

	f.clock.Set(at(monday, 10, 0))
	completed, err := svc.Complete(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)

	again, err := svc.Complete(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, completed.Version, again.Version)

	assert.Equal(t,
		[]string{events.BookingCreated, events.BookingConfirmed, events.BookingCompleted},
		f.bus.types())
}

func TestCompleteByOwner(t *testing.T) {
	f := newFixture(t)
	svc := f.service(autoConfirm)
	ctx := context.Background()

	b := mustBook(t, svc, 1, 10, 7, at(monday, 9, 0))

	_, err := svc.CompleteByOwner(ctx, b.ID, 7, "")
	assert.ErrorIs(t, err, ErrForbidden)

	completed, err := svc.CompleteByOwner(ctx, b.ID, 100, "went well")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, completed.Status)
	assert.Equal(t, "went well", completed.ProviderNote)

	_, err = svc.CompleteByOwner(ctx, b.ID, 100, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkNoShow(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	ctx := context.Background()

	b := mustBook(t, svc, 1, 10, 7, at(monday, 9, 0))

	_, err := svc.MarkNoShow(ctx, b.ID, 100)
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending")

	_, err = svc.Confirm(ctx, b.ID, 100, "")
	require.NoError(t, err)

	_, err = svc.MarkNoShow(ctx, b.ID, 100)
	assert.ErrorIs(t, err, ErrInvalidTransition, "not started")

	f.clock.Set(at(monday, 9, 5))
	_, err = svc.MarkNoShow(ctx, b.ID, 7)
	assert.ErrorIs(t, err, ErrForbidden)

	noShow, err := svc.MarkNoShow(ctx, b.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoShow, noShow.Status)

	_, err = svc.Cancel(ctx, b.ID, 100, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompleteDue(t *testing.T) {
	f := newFixture(t)
	svc := f.service(autoConfirm)
	ctx := context.Background()

	first := mustBook(t, svc, 1, 10, 7, at(monday, 9, 0))
	second := mustBook(t, svc, 1, 10, 8, at(monday, 10, 0))

	f.clock.Set(at(monday, 10, 30))
	n, err := svc.CompleteDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := f.db.GetBooking(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)

	stored, err = f.db.GetBooking(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, stored.Status)

	f.clock.Set(at(monday, 11, 0))
	n, err = svc.CompleteDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = svc.CompleteDue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProvisionChatRooms(t *testing.T) {
	f := newFixture(t)
	bus := events.NewEventBus(&f.logger)
	svc := f.service()
	svc.bus = bus
	ctx := context.Background()

	b := mustBook(t, svc, 1, 10, 7, at(monday, 9, 0))

	provisioner := new(mockProvisioner)
	provisioner.On("CreateRoom", mock.Anything, mock.MatchedBy(func(got model.Booking) bool {
		return got.ID == b.ID && got.Status == model.StatusConfirmed
	})).Return("room-42", nil).Once()
	svc.ProvisionChatRooms(bus, provisioner)

	_, err := svc.Confirm(ctx, b.ID, 100, "")
	require.NoError(t, err)
	bus.Wait()

	stored, err := f.db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ChatRoomID)
	assert.Equal(t, "room-42", *stored.ChatRoomID)
	provisioner.AssertExpectations(t)
}

func TestProvisionChatRooms_FailureKeepsBooking(t *testing.T) {
	f := newFixture(t)
	bus := events.NewEventBus(&f.logger)
	svc := f.service()
	svc.bus = bus
	ctx := context.Background()

	b := mustBook(t, svc, 1, 10, 7, at(monday, 9, 0))

	provisioner := new(mockProvisioner)
	provisioner.On("CreateRoom", mock.Anything, mock.Anything).Return("", errors.New("chat is down"))
	svc.ProvisionChatRooms(bus, provisioner)

	confirmed, err := svc.Confirm(ctx, b.ID, 100, "")
	require.NoError(t, err)
	bus.Wait()

	assert.Equal(t, model.StatusConfirmed, confirmed.Status)
	stored, err := f.db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ChatRoomID)
}

func TestAttachChatRoom_Unknown(t *testing.T) {
	f := newFixture(t)
	svc := f.service()

	err := svc.AttachChatRoom(context.Background(), 404, "room")
	assert.ErrorIs(t, err, ErrNotFound)
}
