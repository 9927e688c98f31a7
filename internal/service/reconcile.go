package service

import (
	"context"
	"errors"
	"sort"

	"salonbot/internal/events"
	"salonbot/internal/metrics"
	"salonbot/internal/models"
)

// reconcile re-reads the day after a commit and keeps a single survivor among
// the active appointments overlapping mine. The survivor is the minimum by
// (CreatedAt, ID), so every writer of a contested slot agrees on it without
// talking to the others. It reports whether mine survived.
func (s *BookingService) reconcile(ctx context.Context, mine *models.Appointment) bool {
	day, err := s.days.GetDaySchedule(ctx, mine.Date, true)
	if err != nil {
		s.logger.Warn().Err(err).Str("id", mine.ID).Msg("race check read failed, trusting commit")
		return true
	}

	contenders := s.overlapping(day.Appointments, mine)
	sort.Slice(contenders, func(i, j int) bool {
		return contenders[i].Before(contenders[j])
	})

	if winner := contenders[0]; winner.ID != mine.ID {
		metrics.IncRace("lost")
		s.logger.Info().
			Str("id", mine.ID).
			Str("winner", winner.ID).
			Msg("concurrent booking won the slot")
		if err := s.supersede(ctx, mine); err != nil {
			// The winner demotes us on its own pass.
			s.logger.Error().Err(err).Str("id", mine.ID).Msg("self-cancel after lost race failed")
		}
		return false
	}

	for _, loser := range contenders[1:] {
		metrics.IncRace("won")
		if err := s.supersede(ctx, loser); err != nil {
			s.logger.Error().Err(err).Str("id", loser.ID).Msg("demote of superseded booking failed")
		}
	}
	return true
}

// overlapping returns mine plus every other active appointment of the day
// whose interval intersects it. mine is added even when the read-back does
// not show it yet; when it does, the stored copy is used so every writer
// compares the same CreatedAt values.
func (s *BookingService) overlapping(appts []models.Appointment, mine *models.Appointment) []*models.Appointment {
	myIv, err := mine.Interval(s.loc)
	if err != nil {
		return []*models.Appointment{mine}
	}

	out := []*models.Appointment{mine}
	for i := range appts {
		a := &appts[i]
		if a.Status != models.StatusActive {
			continue
		}
		if a.ID == mine.ID {
			out[0] = a
			continue
		}
		iv, err := a.Interval(s.loc)
		if err != nil || !iv.Overlaps(myIv) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// supersede cancels a lost contender. Both sides of a race may try; only the
// write that moves the row out of Active announces it.
func (s *BookingService) supersede(ctx context.Context, a *models.Appointment) error {
	at := s.now().UTC()
	if err := s.source.UpdateAppointmentStatus(ctx, a.ID, models.StatusUpdate{
		Status:      models.StatusCancelled,
		CancelledAt: &at,
	}); err != nil {
		if errors.Is(err, models.ErrNotActive) {
			return nil
		}
		return err
	}
	s.days.Invalidate(ctx, a.Date)

	cancelled := *a
	cancelled.Status = models.StatusCancelled
	cancelled.CancelledAt = &at
	s.publish(events.BookingSuperseded, &cancelled)
	return nil
}
