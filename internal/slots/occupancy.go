package slots

import (
	"time"

	"slotbook/internal/model"
)

// Occupancy holds the active bookings a slot competes with and counts them
// per local date. A nil Occupancy is empty.
type Occupancy struct {
	active []model.Booking
	perDay map[string]int
}

// NewOccupancy indexes the active bookings among list.
func NewOccupancy(list []model.Booking, loc *time.Location) *Occupancy {
	if loc == nil {
		loc = time.UTC
	}
	o := &Occupancy{
		active: make([]model.Booking, 0, len(list)),
		perDay: make(map[string]int),
	}
	for i := range list {
		b := list[i]
		if !b.Status.Active() {
			continue
		}
		o.active = append(o.active, b)
		o.perDay[b.ScheduledAt.In(loc).Format(dateLayout)]++
	}
	return o
}

// Overlapping returns the active bookings whose [ScheduledAt, EndAt)
// intersects [start, end). A booking made against an older template still
// occupies every slot it overlaps.
func (o *Occupancy) Overlapping(start, end time.Time) int {
	if o == nil {
		return 0
	}
	slot := model.Booking{ScheduledAt: start, EndAt: end}
	n := 0
	for i := range o.active {
		if o.active[i].OverlapsWith(&slot) {
			n++
		}
	}
	return n
}

// Day returns the active bookings starting on the local date of date.
func (o *Occupancy) Day(date time.Time) int {
	if o == nil {
		return 0
	}
	return o.perDay[date.Format(dateLayout)]
}
