package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"salonbot/internal/models"

	"github.com/stretchr/testify/mock"
)

// fakeSource is an in-memory CalendarSource with hooks for race tests.
type fakeSource struct {
	mu           sync.Mutex
	services     []models.Service
	hours        []models.WorkSchedule
	blocked      []models.BlockedInterval
	appointments []models.Appointment
	clients      map[string]models.Client

	hoursErr    error
	writeErr    error
	failReads   bool
	beforeWrite func(a *models.Appointment)
	afterWrite  func(a *models.Appointment)
	afterGet    func(id string)
	afterList   func()
	reads       int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		services: []models.Service{
			{Key: "haircut", Name: "Haircut", DurationMinutes: 60},
			{Key: "trim", Name: "Trim", DurationMinutes: 30},
		},
		hours: []models.WorkSchedule{
			{Day: "1", Start: models.NewClock(9, 0), End: models.NewClock(17, 0)},
			{Day: "2", Start: models.NewClock(9, 0), End: models.NewClock(17, 0)},
			{Day: "3", Start: models.NewClock(9, 0), End: models.NewClock(17, 0)},
			{Day: "4", Start: models.NewClock(9, 0), End: models.NewClock(17, 0)},
			{Day: "5", Start: models.NewClock(9, 0), End: models.NewClock(17, 0)},
		},
		clients: make(map[string]models.Client),
	}
}

func (f *fakeSource) GetServices(context.Context) ([]models.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Service(nil), f.services...), nil
}

func (f *fakeSource) GetWorkSchedule(_ context.Context, date time.Time) (*models.WorkSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hoursErr != nil {
		return nil, f.hoursErr
	}
	return models.ResolveWorkSchedule(f.hours, date), nil
}

func (f *fakeSource) GetCommittedIntervals(_ context.Context, date string) (*models.DaySchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failReads {
		return nil, errors.New("read timeout")
	}
	day := &models.DaySchedule{Date: date}
	for _, b := range f.blocked {
		if b.Date == date {
			day.Blocked = append(day.Blocked, b)
		}
	}
	for _, a := range f.appointments {
		if a.Date == date && a.Status == models.StatusActive {
			day.Appointments = append(day.Appointments, a)
		}
	}
	return day, nil
}

func (f *fakeSource) GetAppointment(_ context.Context, id string) (*models.Appointment, error) {
	f.mu.Lock()
	var found *models.Appointment
	for _, a := range f.appointments {
		if a.ID == id {
			out := a
			found = &out
			break
		}
	}
	f.mu.Unlock()
	if found == nil {
		return nil, models.ErrNotFound
	}
	if f.afterGet != nil {
		f.afterGet(id)
	}
	return found, nil
}

func (f *fakeSource) FindAppointmentByCancelCode(_ context.Context, code string) (*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.appointments {
		if a.CancelCode == code {
			out := a
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeSource) ListActiveAppointments(context.Context) ([]models.Appointment, error) {
	f.mu.Lock()
	var out []models.Appointment
	for _, a := range f.appointments {
		if a.Status == models.StatusActive {
			out = append(out, a)
		}
	}
	f.mu.Unlock()
	if f.afterList != nil {
		f.afterList()
	}
	return out, nil
}

func (f *fakeSource) ListAppointments(_ context.Context, from, to string) ([]models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Appointment
	for _, a := range f.appointments {
		if a.Date >= from && a.Date <= to {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(&out[j]) })
	return out, nil
}

func (f *fakeSource) WriteAppointment(_ context.Context, a *models.Appointment) error {
	if f.beforeWrite != nil {
		f.beforeWrite(a)
	}
	f.mu.Lock()
	if f.writeErr != nil {
		f.mu.Unlock()
		return f.writeErr
	}
	f.appointments = append(f.appointments, *a)
	f.mu.Unlock()
	if f.afterWrite != nil {
		f.afterWrite(a)
	}
	return nil
}

func (f *fakeSource) UpdateAppointmentStatus(_ context.Context, id string, upd models.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.appointments {
		if f.appointments[i].ID == id {
			if f.appointments[i].Status != models.StatusActive {
				return models.ErrNotActive
			}
			f.appointments[i].Status = upd.Status
			if upd.CancelledAt != nil {
				f.appointments[i].CancelledAt = upd.CancelledAt
			}
			if upd.CompletedAt != nil {
				f.appointments[i].CompletedAt = upd.CompletedAt
			}
			return nil
		}
	}
	return models.ErrNotFound
}

func (f *fakeSource) GetClient(_ context.Context, owner string) (*models.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[owner]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &c, nil
}

func (f *fakeSource) UpsertClient(_ context.Context, c *models.Client) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[c.Owner] = *c
	return nil
}

func (f *fakeSource) insert(a models.Appointment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appointments = append(f.appointments, a)
}

func (f *fakeSource) byID(id string) models.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.appointments {
		if a.ID == id {
			return a
		}
	}
	return models.Appointment{}
}

func (f *fakeSource) snapshot() []models.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Appointment(nil), f.appointments...)
}

type mockBans struct {
	mock.Mock
}

func (m *mockBans) GetBanStatus(ctx context.Context, owner string) (models.BanStatus, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(models.BanStatus), args.Error(1)
}

type recordedEvent struct {
	Type    string
	Payload interface{}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) PublishJSON(evType string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: evType, Payload: payload})
	return nil
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
