package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/internal/slots"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, *RedisAvailability) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := zerolog.New(io.Discard)
	return mr, NewRedisAvailability(client, time.Minute, &logger)
}

func sampleDays() []slots.DayInfo {
	return []slots.DayInfo{{
		Date:    "2030-03-04",
		Weekday: "Monday",
		Slots: []slots.SlotInfo{{
			Start: "09:00", End: "10:00",
			ScheduledAt:    time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC),
			Capacity:       1,
			SpotsAvailable: 1,
			Available:      true,
		}},
	}}
}

func TestRedisAvailability_StoreLookup(t *testing.T) {
	_, c := newTestCache(t)
	ctx := context.Background()

	_, gen, ok := c.Lookup(ctx, 1, "2030-03-04", "2030-03-10")
	assert.False(t, ok)
	assert.Equal(t, int64(0), gen)

	c.Store(ctx, 1, gen, "2030-03-04", "2030-03-10", sampleDays())

	days, _, ok := c.Lookup(ctx, 1, "2030-03-04", "2030-03-10")
	require.True(t, ok)
	require.Len(t, days, 1)
	assert.Equal(t, "09:00", days[0].Slots[0].Start)
	assert.True(t, days[0].Slots[0].ScheduledAt.Equal(time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)))

	_, _, ok = c.Lookup(ctx, 2, "2030-03-04", "2030-03-10")
	assert.False(t, ok, "other services are separate")
}

func TestRedisAvailability_Invalidate(t *testing.T) {
	_, c := newTestCache(t)
	ctx := context.Background()

	_, gen, _ := c.Lookup(ctx, 1, "a", "b")
	c.Store(ctx, 1, gen, "a", "b", sampleDays())

	c.Invalidate(ctx, 1)

	_, newGen, ok := c.Lookup(ctx, 1, "a", "b")
	assert.False(t, ok)
	assert.Equal(t, gen+1, newGen)
}

func TestRedisAvailability_StaleStoreIsOrphaned(t *testing.T) {
	_, c := newTestCache(t)
	ctx := context.Background()

	// reader starts computing under gen 0, a write lands, reader stores late
	_, gen, _ := c.Lookup(ctx, 1, "a", "b")
	c.Invalidate(ctx, 1)
	c.Store(ctx, 1, gen, "a", "b", sampleDays())

	_, _, ok := c.Lookup(ctx, 1, "a", "b")
	assert.False(t, ok)
}

func TestRedisAvailability_DegradedBypass(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, gen, _ := c.Lookup(ctx, 1, "a", "b")
	c.Store(ctx, 1, gen, "a", "b", sampleDays())

	mr.SetError("connection lost")
	c.Invalidate(ctx, 1)
	mr.SetError("")

	_, _, ok := c.Lookup(ctx, 1, "a", "b")
	assert.False(t, ok, "entry that could not be orphaned must not be served")

	// the stale entry expires together with the bypass
	now = now.Add(2 * time.Minute)
	mr.FastForward(2 * time.Minute)
	_, gen, ok = c.Lookup(ctx, 1, "a", "b")
	assert.False(t, ok)

	c.Store(ctx, 1, gen, "a", "b", sampleDays())
	_, _, ok = c.Lookup(ctx, 1, "a", "b")
	assert.True(t, ok, "cache is used again once the bypass ends")
}

func TestNoop(t *testing.T) {
	var c Availability = Noop{}
	ctx := context.Background()
	c.Store(ctx, 1, 0, "a", "b", sampleDays())
	c.Invalidate(ctx, 1)
	_, _, ok := c.Lookup(ctx, 1, "a", "b")
	assert.False(t, ok)
}
