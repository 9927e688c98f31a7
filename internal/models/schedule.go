package models

import (
	"strconv"
	"strings"
	"time"
)

// WorkSchedule is one row of working hours: either a date override
// (Day = "YYYY-MM-DD") or a weekday default (Day = "1".."7", Monday = 1).
type WorkSchedule struct {
	Day        string `json:"day"`
	Start      Clock  `json:"start"`
	End        Clock  `json:"end"`
	LunchStart *Clock `json:"lunch_start,omitempty"`
	LunchEnd   *Clock `json:"lunch_end,omitempty"`
}

// Valid reports whether the working window itself is well-formed.
func (w *WorkSchedule) Valid() bool {
	return w != nil && w.Start < w.End
}

// Lunch returns the lunch gap if both bounds are present, ordered and inside
// the working window. Malformed lunch entries are ignored.
func (w *WorkSchedule) Lunch() (start, end Clock, ok bool) {
	if w == nil || w.LunchStart == nil || w.LunchEnd == nil {
		return 0, 0, false
	}
	ls, le := *w.LunchStart, *w.LunchEnd
	if ls >= le || ls < w.Start || le > w.End {
		return 0, 0, false
	}
	return ls, le, true
}

// IsOverride reports whether the row targets a specific date.
func (w *WorkSchedule) IsOverride() bool {
	return strings.Contains(w.Day, "-")
}

// IsoWeekday converts time.Weekday to 1..7 with Monday = 1.
func IsoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

// ResolveWorkSchedule picks the effective entry for date: a date override
// wins over the weekday default; nil means closed.
func ResolveWorkSchedule(entries []WorkSchedule, date time.Time) *WorkSchedule {
	dateKey := date.Format(DateLayout)
	weekdayKey := strconv.Itoa(IsoWeekday(date.Weekday()))

	var fallback *WorkSchedule
	for i := range entries {
		e := &entries[i]
		if !e.Valid() {
			continue
		}
		switch strings.TrimSpace(e.Day) {
		case dateKey:
			ws := *e
			return &ws
		case weekdayKey:
			if fallback == nil {
				ws := *e
				fallback = &ws
			}
		}
	}
	return fallback
}

// BlockedInterval is an administrator-declared unavailable range.
type BlockedInterval struct {
	Date  string `json:"date"`
	Start Clock  `json:"start"`
	End   Clock  `json:"end"`
	Note  string `json:"note,omitempty"`
}

// Interval places the blocked range on its date.
func (b BlockedInterval) Interval(loc *time.Location) (Interval, error) {
	day, err := ParseDate(b.Date, loc)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Start: b.Start.On(day, loc), End: b.End.On(day, loc)}, nil
}

// DaySchedule is an immutable snapshot of one date's committed intervals.
type DaySchedule struct {
	Date         string            `json:"date"`
	Blocked      []BlockedInterval `json:"blocked"`
	Appointments []Appointment     `json:"appointments"`
	LoadedAt     time.Time         `json:"loaded_at"`
}

// Intervals flattens blocked ranges and active appointments into busy intervals.
func (d *DaySchedule) Intervals(loc *time.Location) []Interval {
	if d == nil {
		return nil
	}
	out := make([]Interval, 0, len(d.Blocked)+len(d.Appointments))
	for _, b := range d.Blocked {
		if iv, err := b.Interval(loc); err == nil {
			out = append(out, iv)
		}
	}
	for i := range d.Appointments {
		a := &d.Appointments[i]
		if a.Status != StatusActive {
			continue
		}
		if iv, err := a.Interval(loc); err == nil {
			out = append(out, iv)
		}
	}
	return out
}
