package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the salon-local calendar date format used everywhere.
const DateLayout = "2006-01-02"

var (
	// ErrNotFound is returned by calendar sources when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotActive is returned by status updates when the stored row has
	// already left Active.
	ErrNotActive = errors.New("appointment is not active")
)

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

// NewClock builds a Clock from hours and minutes.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock parses "HH:MM" (also accepts "H:MM" and "HH:MM:SS").
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid time format: %q", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour: %w", err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute: %w", err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return NewClock(hour, minute), nil
}

// String formats the clock as "HH:MM".
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add returns the clock shifted by d (minute precision).
func (c Clock) Add(d time.Duration) Clock {
	return c + Clock(d/time.Minute)
}

// On places the clock on the given calendar day in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(c)/60, int(c)%60, 0, 0, loc)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseDate parses a YYYY-MM-DD date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}
