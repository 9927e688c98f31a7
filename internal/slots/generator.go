package slots

import (
	"time"

	"salonbot/internal/models"
)

// DefaultStep is the distance between candidate start times.
const DefaultStep = 15 * time.Minute

// Slot is a free start time for a service.
type Slot struct {
	Label string    `json:"label"` // "10:00"
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Input holds everything slot generation depends on.
type Input struct {
	Day       time.Time // any instant on the target date
	Location  *time.Location
	Duration  time.Duration
	Step      time.Duration
	Schedule  *models.WorkSchedule
	Committed []models.Interval
	Now       time.Time
}

// Generate returns the free start times for a day in ascending order.
// The result depends only on in.
func Generate(in Input) []Slot {
	if in.Schedule == nil || !in.Schedule.Valid() || in.Duration <= 0 {
		return nil
	}
	loc := in.Location
	if loc == nil {
		loc = time.Local
	}
	step := in.Step
	if step <= 0 {
		step = DefaultStep
	}

	day := in.Day.In(loc)
	startTime := in.Schedule.Start.On(day, loc)
	endTime := in.Schedule.End.On(day, loc)

	busy := in.Committed
	if ls, le, ok := in.Schedule.Lunch(); ok {
		busy = append(busy[:len(busy):len(busy)], models.Interval{Start: ls.On(day, loc), End: le.On(day, loc)})
	}

	var out []Slot
	for cursor := startTime; !cursor.Add(in.Duration).After(endTime); cursor = cursor.Add(step) {
		if cursor.Before(in.Now) {
			continue
		}
		candidate := models.Interval{Start: cursor, End: cursor.Add(in.Duration)}
		if overlapsAny(candidate, busy) {
			continue
		}
		out = append(out, Slot{
			Label: cursor.Format("15:04"),
			Start: candidate.Start,
			End:   candidate.End,
		})
	}
	return out
}

// Contains reports whether a slot with the given "HH:MM" label is present.
func Contains(slots []Slot, label string) bool {
	for _, s := range slots {
		if s.Label == label {
			return true
		}
	}
	return false
}

// Labels returns the slot labels in order.
func Labels(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Label
	}
	return out
}

func overlapsAny(candidate models.Interval, busy []models.Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
