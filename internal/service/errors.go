package service

import "errors"

var (
	// ErrUnknownService is returned for a service key the source does not know.
	ErrUnknownService = errors.New("unknown service")

	// ErrInvalidDate is returned for a date that is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidTime is returned for a time that is not HH:MM.
	ErrInvalidTime = errors.New("invalid time")

	// ErrSource wraps calendar source failures.
	ErrSource = errors.New("calendar source unavailable")
)

// Reason is a business rejection returned in results, never as an error.
type Reason string

const (
	ReasonClosed              Reason = "closed"
	ReasonSlotTaken           Reason = "slot_taken"
	ReasonLimitExceeded       Reason = "limit_exceeded"
	ReasonAppointmentNotFound Reason = "appointment_not_found"
	ReasonNotOwner            Reason = "not_owner"
	ReasonAlreadyCancelled    Reason = "already_cancelled"
	ReasonBanned              Reason = "banned"
)
