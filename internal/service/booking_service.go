package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"salonbot/internal/events"
	"salonbot/internal/metrics"
	"salonbot/internal/models"
	"salonbot/internal/slots"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultMaxPerDay is the number of active appointments one owner may hold on a date.
const DefaultMaxPerDay = 3

// Options tunes the booking service. Zero values fall back to defaults.
type Options struct {
	Location  *time.Location
	MaxPerDay int
	SlotStep  time.Duration
	Bans      BanChecker
	Events    EventPublisher
	Now       func() time.Time
}

// BookingService validates, commits and reconciles appointments.
type BookingService struct {
	source    CalendarSource
	days      DayCache
	bans      BanChecker
	events    EventPublisher
	loc       *time.Location
	maxPerDay int
	step      time.Duration
	now       func() time.Time
	logger    *zerolog.Logger
}

// NewBookingService creates the booking engine.
func NewBookingService(source CalendarSource, days DayCache, opts Options, logger *zerolog.Logger) *BookingService {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.MaxPerDay <= 0 {
		opts.MaxPerDay = DefaultMaxPerDay
	}
	if opts.SlotStep <= 0 {
		opts.SlotStep = slots.DefaultStep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "booking").Logger()

	return &BookingService{
		source:    source,
		days:      days,
		bans:      opts.Bans,
		events:    opts.Events,
		loc:       opts.Location,
		maxPerDay: opts.MaxPerDay,
		step:      opts.SlotStep,
		now:       opts.Now,
		logger:    &l,
	}
}

// Contact is how the salon reaches the client.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// BookingRequest is a request to reserve one slot.
type BookingRequest struct {
	ServiceKey string  `json:"service_key"`
	Date       string  `json:"date"`
	Time       string  `json:"time"`
	Owner      string  `json:"owner"`
	Contact    Contact `json:"contact"`
	Comment    string  `json:"comment,omitempty"`
}

// BookingResult is either a committed appointment or a rejection reason.
type BookingResult struct {
	OK          bool                `json:"ok"`
	Appointment *models.Appointment `json:"appointment,omitempty"`
	Reason      Reason              `json:"reason,omitempty"`
	Detail      string              `json:"detail,omitempty"`
}

func rejected(reason Reason, detail string) *BookingResult {
	metrics.IncBookingAttempt(string(reason))
	return &BookingResult{Reason: reason, Detail: detail}
}

// Location returns the salon time zone.
func (s *BookingService) Location() *time.Location {
	return s.loc
}

// ListServices returns the bookable services.
func (s *BookingService) ListServices(ctx context.Context) ([]models.Service, error) {
	services, err := s.source.GetServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: get services: %v", ErrSource, err)
	}
	return services, nil
}

// ListAvailableSlots returns the free start times of a service on date.
func (s *BookingService) ListAvailableSlots(ctx context.Context, serviceKey, date string) ([]slots.Slot, error) {
	svc, err := s.lookupService(ctx, serviceKey)
	if err != nil {
		return nil, err
	}
	day, err := models.ParseDate(date, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	ws := s.workSchedule(ctx, day)
	if ws == nil {
		return nil, nil
	}
	schedule, err := s.days.GetDaySchedule(ctx, day.Format(models.DateLayout), false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSource, err)
	}
	return s.generate(day, svc, ws, schedule), nil
}

// GetAppointment returns one appointment by id.
func (s *BookingService) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	a, err := s.source.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: get appointment: %v", ErrSource, err)
	}
	return a, nil
}

// Book reserves a slot. Business rejections come back in the result; the
// error is reserved for bad input and source failures.
func (s *BookingService) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	svc, err := s.lookupService(ctx, req.ServiceKey)
	if err != nil {
		return nil, err
	}
	day, err := models.ParseDate(req.Date, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, req.Date)
	}
	start, err := models.ParseClock(req.Time)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTime, req.Time)
	}
	date := day.Format(models.DateLayout)
	log := s.logger.With().Str("date", date).Str("time", start.String()).Str("owner", req.Owner).Logger()

	if s.bans != nil && req.Owner != "" {
		ban, err := s.bans.GetBanStatus(ctx, req.Owner)
		if err != nil {
			return nil, fmt.Errorf("%w: ban status: %v", ErrSource, err)
		}
		if ban.Banned {
			log.Info().Str("ban_reason", ban.Reason).Msg("booking rejected: banned")
			return rejected(ReasonBanned, ban.Reason), nil
		}
	}

	ws := s.workSchedule(ctx, day)
	if ws == nil {
		log.Info().Msg("booking rejected: closed")
		return rejected(ReasonClosed, ""), nil
	}

	schedule, err := s.days.GetDaySchedule(ctx, date, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSource, err)
	}
	if !slots.Contains(s.generate(day, svc, ws, schedule), start.String()) {
		log.Info().Msg("booking rejected: slot taken")
		return rejected(ReasonSlotTaken, ""), nil
	}

	if n := countOwned(schedule.Appointments, req.Owner, req.Contact.Phone); n >= s.maxPerDay {
		log.Info().Int("active", n).Msg("booking rejected: daily limit")
		return rejected(ReasonLimitExceeded, ""), nil
	}

	code, err := s.newCancelCode(ctx)
	if err != nil {
		return nil, err
	}
	appt := &models.Appointment{
		ID:           uuid.NewString(),
		CreatedAt:    s.now().UTC(),
		ServiceKey:   svc.Key,
		Date:         date,
		TimeStart:    start,
		TimeEnd:      start.Add(svc.Duration()),
		Owner:        req.Owner,
		ContactName:  strings.TrimSpace(req.Contact.Name),
		ContactPhone: strings.TrimSpace(req.Contact.Phone),
		Comment:      strings.TrimSpace(req.Comment),
		CancelCode:   code,
		Status:       models.StatusActive,
	}

	if err := s.source.WriteAppointment(ctx, appt); err != nil {
		log.Error().Err(err).Msg("write appointment failed")
		return nil, fmt.Errorf("%w: write appointment: %v", ErrSource, err)
	}
	s.days.Invalidate(ctx, date)
	s.touchClient(ctx, appt)

	if !s.reconcile(ctx, appt) {
		log.Warn().Str("id", appt.ID).Msg("booking lost the race, slot taken")
		return rejected(ReasonSlotTaken, ""), nil
	}

	metrics.IncBookingAttempt("ok")
	s.publish(events.BookingCreated, appt)
	log.Info().Str("id", appt.ID).Str("service", svc.Key).Msg("booking created")
	return &BookingResult{OK: true, Appointment: appt}, nil
}

func (s *BookingService) lookupService(ctx context.Context, key string) (*models.Service, error) {
	services, err := s.source.GetServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: get services: %v", ErrSource, err)
	}
	for i := range services {
		if services[i].Key == key {
			if services[i].DurationMinutes <= 0 {
				break
			}
			return &services[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownService, key)
}

// workSchedule treats lookup failures as closed so a flaky source can never
// open extra slots.
func (s *BookingService) workSchedule(ctx context.Context, day time.Time) *models.WorkSchedule {
	ws, err := s.source.GetWorkSchedule(ctx, day)
	if err != nil {
		s.logger.Warn().Err(err).Str("date", day.Format(models.DateLayout)).Msg("work schedule lookup failed, treating as closed")
		return nil
	}
	if !ws.Valid() {
		return nil
	}
	return ws
}

func (s *BookingService) generate(day time.Time, svc *models.Service, ws *models.WorkSchedule, schedule *models.DaySchedule) []slots.Slot {
	return slots.Generate(slots.Input{
		Day:       day,
		Location:  s.loc,
		Duration:  svc.Duration(),
		Step:      s.step,
		Schedule:  ws,
		Committed: schedule.Intervals(s.loc),
		Now:       s.now(),
	})
}

// countOwned counts active appointments held by owner, or by phone when the
// owner identity is absent.
func countOwned(appts []models.Appointment, owner, phone string) int {
	phone = strings.TrimSpace(phone)
	if owner == "" && phone == "" {
		return 0
	}
	n := 0
	for i := range appts {
		a := &appts[i]
		if a.Status != models.StatusActive {
			continue
		}
		if owner != "" {
			if a.Owner == owner {
				n++
			}
			continue
		}
		if a.ContactPhone == phone {
			n++
		}
	}
	return n
}

func (s *BookingService) newCancelCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
		_, err := s.source.FindAppointmentByCancelCode(ctx, code)
		if errors.Is(err, models.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: check cancel code: %v", ErrSource, err)
		}
	}
	return "", fmt.Errorf("%w: could not allocate a unique cancel code", ErrSource)
}

// touchClient upserts the client aggregate. The counter is approximate under
// concurrent bookings for the same owner.
func (s *BookingService) touchClient(ctx context.Context, a *models.Appointment) {
	key := a.Owner
	if key == "" {
		key = a.ContactPhone
	}
	if key == "" {
		return
	}

	c, err := s.source.GetClient(ctx, key)
	switch {
	case errors.Is(err, models.ErrNotFound):
		c = &models.Client{Owner: key, FirstSeenAt: a.CreatedAt}
	case err != nil:
		s.logger.Warn().Err(err).Str("owner", key).Msg("client lookup failed")
		return
	}
	if a.ContactName != "" {
		c.ContactName = a.ContactName
	}
	if a.ContactPhone != "" {
		c.ContactPhone = a.ContactPhone
	}
	c.TotalAppointments++

	if err := s.source.UpsertClient(ctx, c); err != nil {
		s.logger.Warn().Err(err).Str("owner", key).Msg("client upsert failed")
	}
}

func (s *BookingService) publish(evType string, a *models.Appointment) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(evType, a); err != nil {
		s.logger.Warn().Err(err).Str("event", evType).Msg("publish failed")
	}
}
