package service

import (
	"context"
	"time"

	"salonbot/internal/models"
)

// CalendarSource is the remote calendar store. Implementations return
// models.ErrNotFound for missing rows.
type CalendarSource interface {
	GetServices(ctx context.Context) ([]models.Service, error)
	// GetWorkSchedule returns the effective entry for date or nil when closed.
	GetWorkSchedule(ctx context.Context, date time.Time) (*models.WorkSchedule, error)
	GetCommittedIntervals(ctx context.Context, date string) (*models.DaySchedule, error)

	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	FindAppointmentByCancelCode(ctx context.Context, code string) (*models.Appointment, error)
	ListActiveAppointments(ctx context.Context) ([]models.Appointment, error)
	// ListAppointments returns every appointment with from <= date <= to.
	ListAppointments(ctx context.Context, from, to string) ([]models.Appointment, error)
	WriteAppointment(ctx context.Context, a *models.Appointment) error
	UpdateAppointmentStatus(ctx context.Context, id string, upd models.StatusUpdate) error

	GetClient(ctx context.Context, owner string) (*models.Client, error)
	UpsertClient(ctx context.Context, c *models.Client) error
}

// BanChecker answers whether an owner may book.
type BanChecker interface {
	GetBanStatus(ctx context.Context, owner string) (models.BanStatus, error)
}

// DayCache is the per-date read-through cache in front of the source.
type DayCache interface {
	GetDaySchedule(ctx context.Context, date string, fresh bool) (*models.DaySchedule, error)
	Invalidate(ctx context.Context, date string)
}

// EventPublisher receives domain events.
type EventPublisher interface {
	PublishJSON(evType string, payload interface{}) error
}
