// Package slots expands a weekly availability template into concrete,
// bookable slots over a date range.
package slots

import (
	"iter"
	"time"

	"slotbook/internal/model"
)

const dateLayout = "2006-01-02"

// Slot is one bookable session start.
type Slot struct {
	StartTime      time.Time
	EndTime        time.Time
	Capacity       int
	BookedCount    int
	SpotsAvailable int
}

// Available reports whether the slot can still take a booking.
func (s Slot) Available() bool {
	return s.SpotsAvailable > 0
}

// Day groups the slots of one local date.
type Day struct {
	Date  time.Time // midnight in the service location
	Slots []Slot
}

// Options carry everything the expansion depends on besides the template.
type Options struct {
	Now       time.Time
	Location  *time.Location
	Capacity  int
	Occupancy *Occupancy
	Holidays  map[string]bool // "2006-01-02" -> closed
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

func (o Options) capacity() int {
	if o.Capacity <= 0 {
		return 1
	}
	return o.Capacity
}

// Expand lazily yields one Day per date in [from, to], both taken as dates
// in the options location. The sequence is finite and may be ranged over
// more than once.
func Expand(av *model.WeeklyAvailability, from, to time.Time, opts Options) iter.Seq[Day] {
	loc := opts.location()
	first := DateOf(from, loc)
	last := DateOf(to, loc)

	return func(yield func(Day) bool) {
		for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
			if !yield(Day{Date: d, Slots: daySlots(av, d, opts)}) {
				return
			}
		}
	}
}

// Find resolves the slot of av starting exactly at at. Past slots are never
// found.
func Find(av *model.WeeklyAvailability, at time.Time, opts Options) (Slot, bool) {
	date := DateOf(at, opts.location())
	for _, s := range daySlots(av, date, opts) {
		if s.StartTime.Equal(at) {
			return s, true
		}
	}
	return Slot{}, false
}

// DayCapReached reports whether the daily booking cap of av is exhausted on
// the local date of at.
func DayCapReached(av *model.WeeklyAvailability, at time.Time, opts Options) bool {
	if av.MaxBookingsPerDay <= 0 {
		return false
	}
	date := DateOf(at, opts.location())
	return opts.Occupancy.Day(date) >= av.MaxBookingsPerDay
}

// DateOf returns local midnight of t's calendar date in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

func daySlots(av *model.WeeklyAvailability, date time.Time, opts Options) []Slot {
	slots := []Slot{}

	day := av.Day(date.Weekday())
	if !day.Enabled || opts.Holidays[date.Format(dateLayout)] {
		return slots
	}

	duration := int(av.SlotDuration() / time.Minute)
	step := int(av.Step() / time.Minute)
	if duration <= 0 || step <= 0 {
		return slots
	}

	capacity := opts.capacity()
	capReached := DayCapReached(av, date, opts)

	for _, w := range day.Windows {
		start, end, err := w.Bounds()
		if err != nil {
			continue
		}

		for cursor := start; cursor+duration <= end; cursor += step {
			slotStart := onDate(date, cursor)
			if !slotStart.After(opts.Now) {
				continue
			}

			slotEnd := onDate(date, cursor+duration)
			booked := opts.Occupancy.Overlapping(slotStart, slotEnd)
			spots := max(capacity-booked, 0)
			if capReached {
				spots = 0
			}

			slots = append(slots, Slot{
				StartTime:      slotStart,
				EndTime:        slotEnd,
				Capacity:       capacity,
				BookedCount:    booked,
				SpotsAvailable: spots,
			})
		}
	}

	return slots
}

func onDate(date time.Time, minutes int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), minutes/60, minutes%60, 0, 0, date.Location())
}
