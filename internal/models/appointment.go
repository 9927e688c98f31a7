package models

import (
	"fmt"
	"time"
)

// Status is the appointment lifecycle state.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusCancelled
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCancelled:
		return "cancelled"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus maps a stored status string back to the enum.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "active":
		return StatusActive, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	case "completed":
		return StatusCompleted, nil
	default:
		return 0, fmt.Errorf("unknown status %q", s)
	}
}

// CanTransition reports whether s may move to next.
// Cancelled and Completed are terminal.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusActive:
		return next == StatusCancelled || next == StatusCompleted
	case StatusCancelled, StatusCompleted:
		return false
	default:
		return false
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Appointment is a client's reservation of one service slot.
type Appointment struct {
	ID           string     `json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	ServiceKey   string     `json:"service_key"`
	Date         string     `json:"date"`
	TimeStart    Clock      `json:"time_start"`
	TimeEnd      Clock      `json:"time_end"`
	Owner        string     `json:"owner"`
	ContactName  string     `json:"contact_name"`
	ContactPhone string     `json:"contact_phone"`
	Comment      string     `json:"comment,omitempty"`
	CancelCode   string     `json:"cancel_code"`
	Status       Status     `json:"status"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

// Interval places the appointment on its date in loc.
func (a *Appointment) Interval(loc *time.Location) (Interval, error) {
	day, err := ParseDate(a.Date, loc)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Start: a.TimeStart.On(day, loc), End: a.TimeEnd.On(day, loc)}, nil
}

// Before orders appointments for the race tie-break: earlier CreatedAt wins,
// equal timestamps fall back to the lexically smaller ID.
func (a *Appointment) Before(other *Appointment) bool {
	if !a.CreatedAt.Equal(other.CreatedAt) {
		return a.CreatedAt.Before(other.CreatedAt)
	}
	return a.ID < other.ID
}

// StatusUpdate carries a status transition and its timestamps.
type StatusUpdate struct {
	Status      Status
	CompletedAt *time.Time
	CancelledAt *time.Time
}
