package slots

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbook/internal/model"
)

// 2030-03-04 is a Monday.
var monday = time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

func weekly(duration, brk, maxPerDay int) *model.WeeklyAvailability {
	return &model.WeeklyAvailability{
		ServiceID:           1,
		SlotDurationMinutes: duration,
		BreakMinutes:        brk,
		MaxBookingsPerDay:   maxPerDay,
	}
}

func withDay(av *model.WeeklyAvailability, d time.Weekday, windows ...model.TimeWindow) *model.WeeklyAvailability {
	av.Days[d] = model.DayAvailability{Enabled: true, Windows: windows}
	return av
}

func window(start, end string) model.TimeWindow {
	return model.TimeWindow{Start: start, End: end}
}

func starts(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.StartTime.Format("15:04")
	}
	return out
}

func TestExpand_MondayTwoSlots(t *testing.T) {
	av := withDay(weekly(60, 0, 0), time.Monday, window("09:00", "11:00"))
	opts := Options{Now: monday.AddDate(0, 0, -1), Location: time.UTC}

	days := slices.Collect(Expand(av, monday, monday, opts))
	require.Len(t, days, 1)

	slots := days[0].Slots
	require.Len(t, slots, 2)
	assert.Equal(t, []string{"09:00", "10:00"}, starts(slots))
	assert.Equal(t, "10:00", slots[0].EndTime.Format("15:04"))
	assert.Equal(t, "11:00", slots[1].EndTime.Format("15:04"))
	for _, s := range slots {
		assert.Equal(t, 1, s.Capacity)
		assert.Equal(t, 0, s.BookedCount)
		assert.Equal(t, 1, s.SpotsAvailable)
	}
}

func TestExpand_StepAndBreak(t *testing.T) {
	tests := []struct {
		name     string
		duration int
		brk      int
		windows  []model.TimeWindow
		want     []string
	}{
		{
			name:     "break between slots",
			duration: 45, brk: 15,
			windows: []model.TimeWindow{window("09:00", "12:00")},
			want:    []string{"09:00", "10:00", "11:00"},
		},
		{
			name:     "tail shorter than slot is dropped",
			duration: 60, brk: 0,
			windows: []model.TimeWindow{window("09:00", "11:30")},
			want:    []string{"09:00", "10:00"},
		},
		{
			name:     "window shorter than slot",
			duration: 90, brk: 0,
			windows: []model.TimeWindow{window("09:00", "10:00")},
			want:    []string{},
		},
		{
			name:     "two windows",
			duration: 30, brk: 0,
			windows: []model.TimeWindow{window("09:00", "10:00"), window("14:00", "15:00")},
			want:    []string{"09:00", "09:30", "14:00", "14:30"},
		},
		{
			name:     "window until midnight",
			duration: 60, brk: 0,
			windows: []model.TimeWindow{window("22:00", "24:00")},
			want:    []string{"22:00", "23:00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			av := withDay(weekly(tt.duration, tt.brk, 0), time.Monday, tt.windows...)
			days := slices.Collect(Expand(av, monday, monday, Options{Now: monday.AddDate(0, 0, -1)}))
			require.Len(t, days, 1)
			assert.Equal(t, tt.want, starts(days[0].Slots))
		})
	}
}

func TestExpand_NonOverlappingWithinDay(t *testing.T) {
	av := weekly(50, 10, 0)
	for d := time.Sunday; d <= time.Saturday; d++ {
		withDay(av, d, window("08:00", "12:00"), window("12:00", "13:30"), window("15:15", "20:00"))
	}

	opts := Options{Now: monday.AddDate(0, 0, -1)}
	for day := range Expand(av, monday, monday.AddDate(0, 0, 13), opts) {
		for i := 1; i < len(day.Slots); i++ {
			assert.False(t, day.Slots[i].StartTime.Before(day.Slots[i-1].EndTime),
				"slots %s and %s overlap", day.Slots[i-1].StartTime, day.Slots[i].StartTime)
		}
	}
}

func TestExpand_DisabledDaysAndHolidays(t *testing.T) {
	av := withDay(weekly(60, 0, 0), time.Monday, window("09:00", "11:00"))
	av.Days[time.Tuesday] = model.DayAvailability{Enabled: false, Windows: []model.TimeWindow{window("09:00", "11:00")}}

	opts := Options{
		Now:      monday.AddDate(0, 0, -1),
		Holidays: map[string]bool{"2030-03-11": true},
	}
	days := slices.Collect(Expand(av, monday, monday.AddDate(0, 0, 7), opts))
	require.Len(t, days, 8)

	assert.Len(t, days[0].Slots, 2)
	assert.NotNil(t, days[1].Slots)
	assert.Empty(t, days[1].Slots, "disabled tuesday")
	assert.Equal(t, "2030-03-11", days[7].Date.Format(dateLayout))
	assert.Empty(t, days[7].Slots, "holiday monday")
}

func TestExpand_PastSlotsExcluded(t *testing.T) {
	av := withDay(weekly(60, 0, 0), time.Monday, window("09:00", "12:00"))

	// now is exactly the 10:00 slot start: it must not be offered
	now := monday.Add(10 * time.Hour)
	days := slices.Collect(Expand(av, monday, monday, Options{Now: now}))
	assert.Equal(t, []string{"11:00"}, starts(days[0].Slots))

	// dates fully in the past yield empty days
	days = slices.Collect(Expand(av, monday, monday, Options{Now: monday.AddDate(0, 0, 1)}))
	assert.Empty(t, days[0].Slots)
}

func session(start time.Time, minutes int, status model.BookingStatus) model.Booking {
	return model.Booking{ScheduledAt: start, EndAt: start.Add(time.Duration(minutes) * time.Minute), Status: status}
}

func TestExpand_Occupancy(t *testing.T) {
	av := withDay(weekly(60, 0, 0), time.Monday, window("09:00", "12:00"))
	nine := monday.Add(9 * time.Hour)
	ten := monday.Add(10 * time.Hour)

	bookings := []model.Booking{
		session(nine, 60, model.StatusConfirmed),
		session(nine, 60, model.StatusPending),
		session(nine, 60, model.StatusCancelled),
		session(ten, 60, model.StatusPending),
		session(ten, 60, model.StatusPending),
		session(ten, 60, model.StatusPending),
	}
	opts := Options{
		Now:       monday.AddDate(0, 0, -1),
		Capacity:  2,
		Occupancy: NewOccupancy(bookings, time.UTC),
	}

	days := slices.Collect(Expand(av, monday, monday, opts))
	slots := days[0].Slots
	require.Len(t, slots, 3)

	assert.Equal(t, 2, slots[0].BookedCount)
	assert.Equal(t, 0, slots[0].SpotsAvailable)
	assert.Equal(t, 3, slots[1].BookedCount, "over-capacity is reported as is")
	assert.Equal(t, 0, slots[1].SpotsAvailable, "spots never go negative")
	assert.Equal(t, 0, slots[2].BookedCount, "adjacent sessions do not overlap")
	assert.Equal(t, 2, slots[2].SpotsAvailable)
}

func TestExpand_OccupancyCountsOverlaps(t *testing.T) {
	// Slots moved to :30 after two sessions were booked on the hour.
	av := withDay(weekly(60, 0, 0), time.Monday, window("09:30", "12:30"))
	bookings := []model.Booking{
		session(monday.Add(9*time.Hour), 60, model.StatusConfirmed),
		session(monday.Add(11*time.Hour), 30, model.StatusPending),
	}
	opts := Options{
		Now:       monday.AddDate(0, 0, -1),
		Capacity:  1,
		Occupancy: NewOccupancy(bookings, time.UTC),
	}

	slots := slices.Collect(Expand(av, monday, monday, opts))[0].Slots
	require.Equal(t, []string{"09:30", "10:30", "11:30"}, starts(slots))

	assert.Equal(t, 1, slots[0].BookedCount)
	assert.False(t, slots[0].Available())
	assert.Equal(t, 1, slots[1].BookedCount, "10:30-11:30 overlaps 11:00-11:30")
	assert.False(t, slots[1].Available())
	assert.Equal(t, 0, slots[2].BookedCount)
	assert.True(t, slots[2].Available())
}

func TestOccupancy_Overlapping(t *testing.T) {
	nine := monday.Add(9 * time.Hour)
	o := NewOccupancy([]model.Booking{
		session(nine, 90, model.StatusConfirmed),
		session(nine, 30, model.StatusNoShow),
	}, time.UTC)

	assert.Equal(t, 1, o.Overlapping(nine.Add(-time.Hour), nine.Add(time.Minute)))
	assert.Equal(t, 0, o.Overlapping(nine.Add(-time.Hour), nine), "end is exclusive")
	assert.Equal(t, 1, o.Overlapping(nine.Add(time.Hour), nine.Add(2*time.Hour)))
	assert.Equal(t, 0, o.Overlapping(nine.Add(90*time.Minute), nine.Add(3*time.Hour)))
	assert.Equal(t, 1, o.Day(monday))

	var empty *Occupancy
	assert.Equal(t, 0, empty.Overlapping(nine, nine.Add(time.Hour)))
}

func TestExpand_DailyCap(t *testing.T) {
	av := withDay(weekly(60, 0, 2), time.Monday, window("09:00", "13:00"))
	bookings := []model.Booking{
		session(monday.Add(9*time.Hour), 60, model.StatusConfirmed),
		session(monday.Add(11*time.Hour), 60, model.StatusPending),
	}
	opts := Options{
		Now:       monday.AddDate(0, 0, -1),
		Capacity:  3,
		Occupancy: NewOccupancy(bookings, time.UTC),
	}

	days := slices.Collect(Expand(av, monday, monday, opts))
	for _, s := range days[0].Slots {
		assert.Equal(t, 0, s.SpotsAvailable, s.StartTime.Format("15:04"))
	}
	assert.True(t, DayCapReached(av, monday.Add(12*time.Hour), opts))

	next := monday.AddDate(0, 0, 7)
	assert.False(t, DayCapReached(av, next.Add(9*time.Hour), opts))
}

func TestExpand_Idempotent(t *testing.T) {
	av := withDay(weekly(30, 5, 0), time.Monday, window("09:00", "12:00"))
	opts := Options{Now: monday.AddDate(0, 0, -1)}
	seq := Expand(av, monday, monday.AddDate(0, 0, 14), opts)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)
}

func TestExpand_StopsEarly(t *testing.T) {
	av := withDay(weekly(60, 0, 0), time.Monday, window("09:00", "11:00"))
	n := 0
	for range Expand(av, monday, monday.AddDate(1, 0, 0), Options{}) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestExpand_Location(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	av := withDay(weekly(60, 0, 0), time.Monday, window("09:00", "10:00"))
	days := slices.Collect(Expand(av, monday, monday, Options{Location: loc, Now: monday.AddDate(0, 0, -1)}))
	require.Len(t, days[0].Slots, 1)

	// 09:00 Moscow is 06:00 UTC
	assert.Equal(t, time.Date(2030, 3, 4, 6, 0, 0, 0, time.UTC), days[0].Slots[0].StartTime.UTC())
}

func TestFind(t *testing.T) {
	av := withDay(weekly(60, 0, 0), time.Monday, window("09:00", "11:00"))
	opts := Options{Now: monday.AddDate(0, 0, -1)}

	s, ok := Find(av, monday.Add(10*time.Hour), opts)
	require.True(t, ok)
	assert.Equal(t, 1, s.SpotsAvailable)

	_, ok = Find(av, monday.Add(10*time.Hour+30*time.Minute), opts)
	assert.False(t, ok, "not aligned to a slot start")

	_, ok = Find(av, monday.Add(11*time.Hour), opts)
	assert.False(t, ok, "slot would end after the window")

	_, ok = Find(av, monday.AddDate(0, 0, 1).Add(9*time.Hour), opts)
	assert.False(t, ok, "tuesday disabled")
}

func TestToDayInfoAndFilterPast(t *testing.T) {
	av := withDay(weekly(60, 0, 0), time.Monday, window("09:00", "11:00"))
	days := slices.Collect(Expand(av, monday, monday, Options{Now: monday.AddDate(0, 0, -1)}))

	info := ToDayInfo(days)
	require.Len(t, info, 1)
	assert.Equal(t, "2030-03-04", info[0].Date)
	assert.Equal(t, "Monday", info[0].Weekday)
	require.Len(t, info[0].Slots, 2)
	assert.Equal(t, "09:00", info[0].Slots[0].Start)
	assert.True(t, info[0].Slots[0].Available)

	filtered := FilterPast(info, monday.Add(9*time.Hour))
	assert.Len(t, filtered[0].Slots, 1)
	assert.Len(t, info[0].Slots, 2, "input is not modified")
}
