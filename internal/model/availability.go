package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeWindow is a bookable interval of a weekday in service-local time.
type TimeWindow struct {
	Start string `json:"startTime" yaml:"start"` // "09:00"
	End   string `json:"endTime" yaml:"end"`     // "13:00"
}

// Bounds returns the window as minutes since midnight.
func (w TimeWindow) Bounds() (start, end int, err error) {
	start, err = ParseClock(w.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err = ParseClock(w.End)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// DayAvailability is the template of one weekday.
type DayAvailability struct {
	Enabled bool         `json:"enabled"`
	Windows []TimeWindow `json:"slots"`
}

// WeeklyAvailability is the recurring template of one service.
// Days is indexed by time.Weekday (Sunday = 0).
type WeeklyAvailability struct {
	ServiceID           int64              `json:"serviceId"`
	Days                [7]DayAvailability `json:"-"`
	SlotDurationMinutes int                `json:"slotDuration"`
	BreakMinutes        int                `json:"breakBetween"`
	MaxBookingsPerDay   int                `json:"maxBookingsPerDay"`
	Version             int64              `json:"version"`
	UpdatedAt           time.Time          `json:"updatedAt"`
}

// Day returns the template for a weekday.
func (w *WeeklyAvailability) Day(d time.Weekday) DayAvailability {
	return w.Days[d]
}

// SlotDuration returns the slot length.
func (w *WeeklyAvailability) SlotDuration() time.Duration {
	return time.Duration(w.SlotDurationMinutes) * time.Minute
}

// Step returns the distance between consecutive slot starts.
func (w *WeeklyAvailability) Step() time.Duration {
	return time.Duration(w.SlotDurationMinutes+w.BreakMinutes) * time.Minute
}

type weeklyWire struct {
	ServiceID         int64                      `json:"serviceId"`
	WeeklySlots       map[string]DayAvailability `json:"weeklySlots"`
	SlotDuration      int                        `json:"slotDuration"`
	BreakBetween      int                        `json:"breakBetween"`
	MaxBookingsPerDay int                        `json:"maxBookingsPerDay"`
	Version           int64                      `json:"version"`
	ExpectedVersion   int64                      `json:"expectedVersion,omitempty"`
	UpdatedAt         time.Time                  `json:"updatedAt"`
}

// MarshalJSON renders Days as a map keyed by weekday name.
func (w WeeklyAvailability) MarshalJSON() ([]byte, error) {
	out := weeklyWire{
		ServiceID:         w.ServiceID,
		WeeklySlots:       make(map[string]DayAvailability, 7),
		SlotDuration:      w.SlotDurationMinutes,
		BreakBetween:      w.BreakMinutes,
		MaxBookingsPerDay: w.MaxBookingsPerDay,
		Version:           w.Version,
		UpdatedAt:         w.UpdatedAt,
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		day := w.Days[d]
		if day.Windows == nil {
			day.Windows = []TimeWindow{}
		}
		out.WeeklySlots[DayKey(d)] = day
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts day keys by name or numeric index. Missing days are
// disabled.
func (w *WeeklyAvailability) UnmarshalJSON(data []byte) error {
	var in weeklyWire
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	var days [7]DayAvailability
	for key, day := range in.WeeklySlots {
		d, err := ParseDayKey(key)
		if err != nil {
			return err
		}
		days[d] = day
	}

	*w = WeeklyAvailability{
		ServiceID:           in.ServiceID,
		Days:                days,
		SlotDurationMinutes: in.SlotDuration,
		BreakMinutes:        in.BreakBetween,
		MaxBookingsPerDay:   in.MaxBookingsPerDay,
		Version:             in.Version,
		UpdatedAt:           in.UpdatedAt,
	}
	if in.ExpectedVersion != 0 {
		w.Version = in.ExpectedVersion
	}
	return nil
}

var dayKeys = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// DayKey returns the wire name of a weekday.
func DayKey(d time.Weekday) string {
	if d < time.Sunday || d > time.Saturday {
		return ""
	}
	return dayKeys[d]
}

// ParseDayKey accepts "monday".."sunday" or the numeric form 0..6 (0 = Sunday).
func ParseDayKey(s string) (time.Weekday, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	for i, k := range dayKeys {
		if k == normalized {
			return time.Weekday(i), nil
		}
	}
	n, err := strconv.Atoi(normalized)
	if err != nil || n < 0 || n > 6 {
		return 0, fmt.Errorf("invalid day_of_week: %s", s)
	}
	return time.Weekday(n), nil
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format: %q", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("invalid hour: %q", s)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute: %q", s)
	}

	if hour == 24 && minute != 0 {
		return 0, fmt.Errorf("invalid time: %q", s)
	}
	return hour*60 + minute, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
