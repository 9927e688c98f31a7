package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salonbot/internal/events"
	"salonbot/internal/metrics"
	"salonbot/internal/models"
)

// CancelResult is the outcome of a cancellation.
type CancelResult struct {
	OK          bool                `json:"ok"`
	Appointment *models.Appointment `json:"appointment,omitempty"`
	Reason      Reason              `json:"reason,omitempty"`
}

// CancelByOwner cancels an appointment on behalf of the client who made it.
func (s *BookingService) CancelByOwner(ctx context.Context, id, owner string) (*CancelResult, error) {
	a, err := s.source.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &CancelResult{Reason: ReasonAppointmentNotFound}, nil
		}
		return nil, fmt.Errorf("%w: get appointment: %v", ErrSource, err)
	}
	if a.Owner != owner {
		s.logger.Warn().Str("id", id).Str("owner", owner).Msg("cancel rejected: not owner")
		return &CancelResult{Reason: ReasonNotOwner}, nil
	}
	return s.cancel(ctx, a, "owner")
}

// CancelByCode cancels an appointment by its administrative code.
func (s *BookingService) CancelByCode(ctx context.Context, code string) (*CancelResult, error) {
	a, err := s.source.FindAppointmentByCancelCode(ctx, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &CancelResult{Reason: ReasonAppointmentNotFound}, nil
		}
		return nil, fmt.Errorf("%w: find by cancel code: %v", ErrSource, err)
	}
	return s.cancel(ctx, a, "code")
}

func (s *BookingService) cancel(ctx context.Context, a *models.Appointment, by string) (*CancelResult, error) {
	if !a.Status.CanTransition(models.StatusCancelled) {
		return &CancelResult{Reason: ReasonAlreadyCancelled, Appointment: a}, nil
	}

	at := s.now().UTC()
	if err := s.source.UpdateAppointmentStatus(ctx, a.ID, models.StatusUpdate{
		Status:      models.StatusCancelled,
		CancelledAt: &at,
	}); err != nil {
		switch {
		case errors.Is(err, models.ErrNotActive):
			s.logger.Info().Str("id", a.ID).Msg("cancel lost to a concurrent status change")
			return &CancelResult{Reason: ReasonAlreadyCancelled, Appointment: a}, nil
		case errors.Is(err, models.ErrNotFound):
			return &CancelResult{Reason: ReasonAppointmentNotFound}, nil
		}
		return nil, fmt.Errorf("%w: update status: %v", ErrSource, err)
	}
	s.days.Invalidate(ctx, a.Date)

	a.Status = models.StatusCancelled
	a.CancelledAt = &at
	metrics.IncCancelled(by)
	s.publish(events.BookingCancelled, a)
	s.logger.Info().Str("id", a.ID).Str("by", by).Str("date", a.Date).Msg("appointment cancelled")
	return &CancelResult{OK: true, Appointment: a}, nil
}

// CompleteExpired moves every active appointment that ended at or before now
// to Completed. Running it again with the same now changes nothing.
func (s *BookingService) CompleteExpired(ctx context.Context, now time.Time) ([]models.Appointment, error) {
	active, err := s.source.ListActiveAppointments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list active: %v", ErrSource, err)
	}

	var (
		done  []models.Appointment
		errs  []error
		dates = make(map[string]struct{})
	)
	for i := range active {
		a := active[i]
		if a.Status != models.StatusActive {
			continue
		}
		iv, err := a.Interval(s.loc)
		if err != nil {
			s.logger.Warn().Err(err).Str("id", a.ID).Msg("skipping appointment with bad date")
			continue
		}
		if iv.End.After(now) {
			continue
		}

		at := now.UTC()
		if err := s.source.UpdateAppointmentStatus(ctx, a.ID, models.StatusUpdate{
			Status:      models.StatusCompleted,
			CompletedAt: &at,
		}); err != nil {
			if !errors.Is(err, models.ErrNotActive) {
				errs = append(errs, fmt.Errorf("complete %s: %w", a.ID, err))
			}
			continue
		}
		a.Status = models.StatusCompleted
		a.CompletedAt = &at
		dates[a.Date] = struct{}{}
		done = append(done, a)

		s.touchLastVisit(ctx, &a, iv.Start.UTC())
		s.publish(events.BookingCompleted, &a)
	}

	for date := range dates {
		s.days.Invalidate(ctx, date)
	}
	metrics.AddCompleted(len(done))
	if len(done) > 0 {
		s.logger.Info().Int("count", len(done)).Msg("expired appointments completed")
	}

	if len(errs) > 0 {
		return done, fmt.Errorf("%w: %v", ErrSource, errors.Join(errs...))
	}
	return done, nil
}

func (s *BookingService) touchLastVisit(ctx context.Context, a *models.Appointment, visit time.Time) {
	key := a.Owner
	if key == "" {
		key = a.ContactPhone
	}
	if key == "" {
		return
	}

	c, err := s.source.GetClient(ctx, key)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Warn().Err(err).Str("owner", key).Msg("client lookup failed")
			return
		}
		c = &models.Client{Owner: key, FirstSeenAt: a.CreatedAt, ContactName: a.ContactName, ContactPhone: a.ContactPhone}
	}
	if c.LastAppointmentAt != nil && !visit.After(*c.LastAppointmentAt) {
		return
	}
	c.LastAppointmentAt = &visit
	if err := s.source.UpsertClient(ctx, c); err != nil {
		s.logger.Warn().Err(err).Str("owner", key).Msg("client upsert failed")
	}
}
