package slots

import "time"

// SlotInfo is the wire representation of a slot.
type SlotInfo struct {
	Start          string    `json:"startTime"` // "10:00"
	End            string    `json:"endTime"`   // "11:00"
	ScheduledAt    time.Time `json:"scheduledAt"`
	Capacity       int       `json:"capacity"`
	BookedCount    int       `json:"bookedCount"`
	SpotsAvailable int       `json:"spotsAvailable"`
	Available      bool      `json:"available"`
}

// DayInfo is the wire representation of a day.
type DayInfo struct {
	Date    string     `json:"date"` // "2026-03-02"
	Weekday string     `json:"weekday"`
	Slots   []SlotInfo `json:"slots"`
}

// ToSlotInfo converts slots for API responses.
func ToSlotInfo(slots []Slot) []SlotInfo {
	result := make([]SlotInfo, len(slots))
	for i, s := range slots {
		result[i] = SlotInfo{
			Start:          s.StartTime.Format("15:04"),
			End:            s.EndTime.Format("15:04"),
			ScheduledAt:    s.StartTime,
			Capacity:       s.Capacity,
			BookedCount:    s.BookedCount,
			SpotsAvailable: s.SpotsAvailable,
			Available:      s.Available(),
		}
	}
	return result
}

// ToDayInfo converts days for API responses.
func ToDayInfo(days []Day) []DayInfo {
	result := make([]DayInfo, len(days))
	for i, d := range days {
		result[i] = DayInfo{
			Date:    d.Date.Format(dateLayout),
			Weekday: d.Date.Weekday().String(),
			Slots:   ToSlotInfo(d.Slots),
		}
	}
	return result
}

// FilterPast drops slots that start at or before now. Cached day lists go
// through it so a snapshot taken earlier never offers an elapsed slot.
func FilterPast(days []DayInfo, now time.Time) []DayInfo {
	out := make([]DayInfo, len(days))
	for i, d := range days {
		kept := make([]SlotInfo, 0, len(d.Slots))
		for _, s := range d.Slots {
			if s.ScheduledAt.After(now) {
				kept = append(kept, s)
			}
		}
		out[i] = DayInfo{Date: d.Date, Weekday: d.Weekday, Slots: kept}
	}
	return out
}
