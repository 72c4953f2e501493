package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datetime(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestBooking_Duration(t *testing.T) {
	b := Booking{
		ScheduledAt: datetime(2026, 1, 15, 10, 0),
		EndAt:       datetime(2026, 1, 15, 11, 30),
	}
	assert.Equal(t, 90*time.Minute, b.Duration())
}

func TestBooking_OverlapsWith(t *testing.T) {
	existing := Booking{
		ScheduledAt: datetime(2026, 1, 15, 10, 0),
		EndAt:       datetime(2026, 1, 15, 11, 0),
	}

	before := Booking{ScheduledAt: datetime(2026, 1, 15, 9, 0), EndAt: datetime(2026, 1, 15, 10, 0)}
	assert.False(t, existing.OverlapsWith(&before))

	after := Booking{ScheduledAt: datetime(2026, 1, 15, 11, 0), EndAt: datetime(2026, 1, 15, 12, 0)}
	assert.False(t, existing.OverlapsWith(&after))

	during := Booking{ScheduledAt: datetime(2026, 1, 15, 10, 30), EndAt: datetime(2026, 1, 15, 11, 30)}
	assert.True(t, existing.OverlapsWith(&during))

	same := existing
	assert.True(t, existing.OverlapsWith(&same))
}

func TestBooking_Upcoming(t *testing.T) {
	b := Booking{ScheduledAt: datetime(2026, 1, 15, 10, 0)}
	assert.True(t, b.Upcoming(datetime(2026, 1, 15, 9, 59)))
	assert.False(t, b.Upcoming(datetime(2026, 1, 15, 10, 0)))
	assert.False(t, b.Upcoming(datetime(2026, 1, 15, 10, 30)))
}

func TestBookingStatus(t *testing.T) {
	assert.True(t, StatusPending.Active())
	assert.True(t, StatusConfirmed.Active())
	assert.False(t, StatusCancelled.Active())
	assert.False(t, StatusCompleted.Active())

	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusNoShow.Terminal())
	assert.False(t, StatusPending.Terminal())

	st, ok := ParseStatus("confirmed")
	assert.True(t, ok)
	assert.Equal(t, StatusConfirmed, st)

	_, ok = ParseStatus("approved")
	assert.False(t, ok)
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"09:00", 540, false},
		{"00:00", 0, false},
		{"23:59", 1439, false},
		{"24:00", 1440, false},
		{"24:30", 0, true},
		{"9", 0, true},
		{"09:60", 0, true},
		{"ab:00", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, FormatClock(got))
		})
	}
}

func TestParseDayKey(t *testing.T) {
	d, err := ParseDayKey("Monday")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d)

	d, err = ParseDayKey("0")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, d)

	_, err = ParseDayKey("funday")
	assert.Error(t, err)

	assert.Equal(t, "saturday", DayKey(time.Saturday))
}

func TestTariff_Duration(t *testing.T) {
	assert.Equal(t, time.Hour, (&Tariff{}).Duration())
	assert.Equal(t, 45*time.Minute, (&Tariff{DurationMinutes: 45}).Duration())
}

func TestWeeklyAvailability_JSON(t *testing.T) {
	raw := `{
		"weeklySlots": {
			"monday": {"enabled": true, "slots": [{"startTime": "09:00", "endTime": "11:00"}]},
			"6": {"enabled": false, "slots": []}
		},
		"slotDuration": 60,
		"breakBetween": 15,
		"maxBookingsPerDay": 4,
		"expectedVersion": 3
	}`

	var av WeeklyAvailability
	require.NoError(t, json.Unmarshal([]byte(raw), &av))

	assert.True(t, av.Day(time.Monday).Enabled)
	assert.Equal(t, []TimeWindow{{Start: "09:00", End: "11:00"}}, av.Day(time.Monday).Windows)
	assert.False(t, av.Day(time.Saturday).Enabled)
	assert.False(t, av.Day(time.Sunday).Enabled)
	assert.Equal(t, 60, av.SlotDurationMinutes)
	assert.Equal(t, 75*time.Minute, av.Step())
	assert.Equal(t, int64(3), av.Version)

	out, err := json.Marshal(av)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	slots := back["weeklySlots"].(map[string]any)
	assert.Len(t, slots, 7)
	assert.Contains(t, slots, "sunday")
}

func TestWeeklyAvailability_UnknownDay(t *testing.T) {
	var av WeeklyAvailability
	err := json.Unmarshal([]byte(`{"weeklySlots": {"someday": {"enabled": true}}}`), &av)
	assert.Error(t, err)
}
