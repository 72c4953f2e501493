// Package schedule owns the weekly availability template of a service.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"slotbook/internal/model"
)

// MaxSlotDurationMinutes bounds a single session to one day.
const MaxSlotDurationMinutes = 24 * 60

// Normalize validates a weekly template and returns a copy with every
// enabled day's windows sorted by start. Disabled days keep their windows
// so the owner's draft survives a round trip.
func Normalize(in model.WeeklyAvailability) (model.WeeklyAvailability, error) {
	out := in

	if in.SlotDurationMinutes <= 0 || in.SlotDurationMinutes > MaxSlotDurationMinutes {
		return out, invalidParameter("slotDuration", "slotDuration must be between 1 and %d minutes", MaxSlotDurationMinutes)
	}
	if in.BreakMinutes < 0 {
		return out, invalidParameter("breakBetween", "breakBetween must be non-negative")
	}
	if in.MaxBookingsPerDay < 0 {
		return out, invalidParameter("maxBookingsPerDay", "maxBookingsPerDay must be non-negative")
	}

	for d := time.Sunday; d <= time.Saturday; d++ {
		day := in.Days[d]
		windows := make([]model.TimeWindow, len(day.Windows))
		copy(windows, day.Windows)
		out.Days[d] = model.DayAvailability{Enabled: day.Enabled, Windows: windows}

		if !day.Enabled {
			continue
		}
		if err := validateDay(model.DayKey(d), windows); err != nil {
			return out, err
		}
	}

	return out, nil
}

type interval struct {
	start, end int
	index      int
}

// validateDay sorts windows by start in place, then checks start < end for
// each window and end[i] <= start[i+1] for neighbours.
func validateDay(day string, windows []model.TimeWindow) error {
	if len(windows) == 0 {
		return &ValidationError{
			Code:    CodeEmptyDay,
			Day:     day,
			Field:   "slots",
			Message: "enabled day must have at least one window",
			err:     ErrEmptyDay,
		}
	}

	parsed := make([]interval, len(windows))
	for i, w := range windows {
		field := fmt.Sprintf("slots[%d]", i)
		start, err := model.ParseClock(w.Start)
		if err != nil {
			return invalidInterval(day, field+".startTime", "start time %q must be HH:MM", w.Start)
		}
		end, err := model.ParseClock(w.End)
		if err != nil {
			return invalidInterval(day, field+".endTime", "end time %q must be HH:MM", w.End)
		}
		parsed[i] = interval{start: start, end: end, index: i}
	}

	sort.SliceStable(parsed, func(i, j int) bool {
		return parsed[i].start < parsed[j].start
	})

	for i, iv := range parsed {
		if iv.start >= iv.end {
			return invalidInterval(day, fmt.Sprintf("slots[%d]", iv.index),
				"window %s-%s: start must be before end", model.FormatClock(iv.start), model.FormatClock(iv.end))
		}
		if i > 0 && parsed[i-1].end > iv.start {
			prev := parsed[i-1]
			return overlapping(day, fmt.Sprintf("slots[%d]", iv.index),
				"window %s-%s overlaps %s-%s",
				model.FormatClock(iv.start), model.FormatClock(iv.end),
				model.FormatClock(prev.start), model.FormatClock(prev.end))
		}
	}

	sorted := make([]model.TimeWindow, len(parsed))
	for i, iv := range parsed {
		sorted[i] = model.TimeWindow{Start: model.FormatClock(iv.start), End: model.FormatClock(iv.end)}
	}
	copy(windows, sorted)
	return nil
}
