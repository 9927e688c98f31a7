package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Service is a bookable offering with a fixed duration.
type Service struct {
	Key             string           `json:"key"`
	Name            string           `json:"name"`
	DurationMinutes int              `json:"duration_minutes"`
	Price           *decimal.Decimal `json:"price,omitempty"`
}

// Duration returns the service length.
func (s *Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Client aggregates what is known about one booking identity.
type Client struct {
	Owner             string     `json:"owner"`
	FirstSeenAt       time.Time  `json:"first_seen_at"`
	ContactName       string     `json:"contact_name"`
	ContactPhone      string     `json:"contact_phone"`
	LastAppointmentAt *time.Time `json:"last_appointment_at,omitempty"`
	TotalAppointments int        `json:"total_appointments"`
	Banned            bool       `json:"banned"`
	BanReason         string     `json:"ban_reason,omitempty"`
}

// BanStatus is the answer of the ban-status collaborator.
type BanStatus struct {
	Banned bool
	Reason string
}
