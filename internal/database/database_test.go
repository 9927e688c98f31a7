package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"salonbot/internal/cache"
	"salonbot/internal/models"
	"salonbot/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clockPtr(c models.Clock) *models.Clock { return &c }

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "salon.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	price := decimal.RequireFromString("1500.50")
	require.NoError(t, db.UpsertService(ctx, models.Service{Key: "haircut", Name: "Haircut", DurationMinutes: 60, Price: &price}))
	require.NoError(t, db.UpsertService(ctx, models.Service{Key: "trim", Name: "Trim", DurationMinutes: 30}))
	require.NoError(t, db.SetWorkHours(ctx, models.WorkSchedule{
		Day:        "2",
		Start:      models.NewClock(9, 0),
		End:        models.NewClock(17, 0),
		LunchStart: clockPtr(models.NewClock(13, 0)),
		LunchEnd:   clockPtr(models.NewClock(14, 0)),
	}))
	require.NoError(t, db.SetWorkHours(ctx, models.WorkSchedule{Day: "2026-03-17", Start: models.NewClock(12, 0), End: models.NewClock(15, 0)}))
	require.NoError(t, db.AddBlocked(ctx, models.BlockedInterval{Date: "2026-03-10", Start: models.NewClock(9, 0), End: models.NewClock(10, 0), Note: "delivery"}))
	return db
}

func appointment(id, code string, start, end models.Clock) *models.Appointment {
	return &models.Appointment{
		ID:           id,
		CreatedAt:    time.Date(2026, 3, 9, 18, 30, 0, 987654321, time.UTC),
		ServiceKey:   "haircut",
		Date:         "2026-03-10",
		TimeStart:    start,
		TimeEnd:      end,
		Owner:        "tg:1",
		ContactName:  "Anna",
		ContactPhone: "+70000000001",
		CancelCode:   code,
		Status:       models.StatusActive,
	}
}

func TestReferenceData(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	services, err := db.GetServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "haircut", services[0].Key)
	require.NotNil(t, services[0].Price)
	assert.Equal(t, "1500.5", services[0].Price.String())

	tuesday, err := db.GetWorkSchedule(ctx, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, tuesday)
	_, _, ok := tuesday.Lunch()
	assert.True(t, ok)

	override, err := db.GetWorkSchedule(ctx, time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, override)
	assert.Equal(t, models.NewClock(12, 0), override.Start)

	monday, err := db.GetWorkSchedule(ctx, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, monday)

	assert.Error(t, db.SetWorkHours(ctx, models.WorkSchedule{Day: "3", Start: models.NewClock(18, 0), End: models.NewClock(9, 0)}))
}

func TestAppointments(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a1 := appointment("a1", "AAAA0001", models.NewClock(10, 0), models.NewClock(11, 0))
	a2 := appointment("a2", "AAAA0002", models.NewClock(14, 0), models.NewClock(15, 0))
	require.NoError(t, db.WriteAppointment(ctx, a1))
	require.NoError(t, db.WriteAppointment(ctx, a2))
	assert.Error(t, db.WriteAppointment(ctx, appointment("a3", "AAAA0001", models.NewClock(16, 0), models.NewClock(17, 0))), "cancel codes are unique")

	got, err := db.GetAppointment(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, a1, got)

	byCode, err := db.FindAppointmentByCancelCode(ctx, "AAAA0002")
	require.NoError(t, err)
	assert.Equal(t, "a2", byCode.ID)

	_, err = db.GetAppointment(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)

	day, err := db.GetCommittedIntervals(ctx, "2026-03-10")
	require.NoError(t, err)
	require.Len(t, day.Blocked, 1)
	assert.Equal(t, "delivery", day.Blocked[0].Note)
	assert.Len(t, day.Appointments, 2)

	cancelledAt := time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpdateAppointmentStatus(ctx, "a1", models.StatusUpdate{Status: models.StatusCancelled, CancelledAt: &cancelledAt}))
	assert.ErrorIs(t, db.UpdateAppointmentStatus(ctx, "nope", models.StatusUpdate{Status: models.StatusCancelled}), models.ErrNotFound)

	completedAt := cancelledAt.Add(time.Hour)
	err = db.UpdateAppointmentStatus(ctx, "a1", models.StatusUpdate{Status: models.StatusCompleted, CompletedAt: &completedAt})
	assert.ErrorIs(t, err, models.ErrNotActive, "cancelled is terminal")

	got, err = db.GetAppointment(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	assert.True(t, cancelledAt.Equal(*got.CancelledAt))
	assert.Nil(t, got.CompletedAt)

	active, err := db.ListActiveAppointments(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a2", active[0].ID)

	all, err := db.ListAppointments(ctx, "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := db.ListAppointments(ctx, "2026-04-01", "2026-04-30")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClients(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.GetClient(ctx, "tg:1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := &models.Client{Owner: "tg:1", FirstSeenAt: first, ContactName: "Anna", TotalAppointments: 1}
	require.NoError(t, db.UpsertClient(ctx, c))

	visit := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	c.TotalAppointments = 2
	c.LastAppointmentAt = &visit
	c.Banned = true
	c.BanReason = "no-shows"
	c.FirstSeenAt = time.Now()
	require.NoError(t, db.UpsertClient(ctx, c))

	got, err := db.GetClient(ctx, "tg:1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalAppointments)
	assert.True(t, got.Banned)
	assert.Equal(t, "no-shows", got.BanReason)
	assert.True(t, first.Equal(got.FirstSeenAt), "first seen is never overwritten")
	require.NotNil(t, got.LastAppointmentAt)
	assert.True(t, visit.Equal(*got.LastAppointmentAt))
}

func TestBookingEngineOnSQLite(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	days := cache.New(nil, db.GetCommittedIntervals, time.Minute, nil)
	svc := service.NewBookingService(db, days, service.Options{
		Location: time.UTC,
		Now:      func() time.Time { return now },
	}, nil)

	free, err := svc.ListAvailableSlots(ctx, "haircut", "2026-03-10")
	require.NoError(t, err)
	// 10:00..12:00 and 14:00..16:00; 09:xx is blocked, lunch is 13-14
	assert.Len(t, free, 9+9)

	res, err := svc.Book(ctx, service.BookingRequest{
		ServiceKey: "haircut",
		Date:       "2026-03-10",
		Time:       "10:00",
		Owner:      "tg:1",
		Contact:    service.Contact{Name: "Anna", Phone: "+70000000001"},
	})
	require.NoError(t, err)
	require.True(t, res.OK, "reason: %s", res.Reason)

	stored, err := db.GetAppointment(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, stored.Status)
	assert.True(t, res.Appointment.CreatedAt.Equal(stored.CreatedAt))

	again, err := svc.Book(ctx, service.BookingRequest{ServiceKey: "haircut", Date: "2026-03-10", Time: "10:30", Owner: "tg:2"})
	require.NoError(t, err)
	assert.Equal(t, service.ReasonSlotTaken, again.Reason)

	cancelled, err := svc.CancelByCode(ctx, res.Appointment.CancelCode)
	require.NoError(t, err)
	assert.True(t, cancelled.OK)

	client, err := db.GetClient(ctx, "tg:1")
	require.NoError(t, err)
	assert.Equal(t, 1, client.TotalAppointments)
}

// sweepingStore runs the completion sweep between the cancel path's read and
// its status write.
type sweepingStore struct {
	*DB
	afterGet func()
}

func (s *sweepingStore) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	a, err := s.DB.GetAppointment(ctx, id)
	if err == nil && s.afterGet != nil {
		s.afterGet()
	}
	return a, err
}

func TestCancelLosesToConcurrentCompletion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	store := &sweepingStore{DB: db}
	days := cache.New(nil, db.GetCommittedIntervals, time.Minute, nil)
	svc := service.NewBookingService(store, days, service.Options{
		Location: time.UTC,
		Now:      func() time.Time { return now },
	}, nil)

	res, err := svc.Book(ctx, service.BookingRequest{ServiceKey: "haircut", Date: "2026-03-10", Time: "10:00", Owner: "tg:1"})
	require.NoError(t, err)
	require.True(t, res.OK)

	store.afterGet = func() {
		store.afterGet = nil
		done, err := svc.CompleteExpired(ctx, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
		assert.NoError(t, err)
		assert.Len(t, done, 1)
	}

	cancelled, err := svc.CancelByOwner(ctx, res.Appointment.ID, "tg:1")
	require.NoError(t, err)
	assert.False(t, cancelled.OK)
	assert.Equal(t, service.ReasonAlreadyCancelled, cancelled.Reason)

	stored, err := db.GetAppointment(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	assert.Nil(t, stored.CancelledAt)
}
