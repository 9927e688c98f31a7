package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"salonbot/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLoader struct {
	calls atomic.Int32
	err   error
}

func (l *countingLoader) load(_ context.Context, date string) (*models.DaySchedule, error) {
	n := l.calls.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	return &models.DaySchedule{
		Date: date,
		Blocked: []models.BlockedInterval{
			{Date: date, Start: models.NewClock(9, 0), End: models.NewClock(9, 0).Add(time.Duration(n) * time.Minute)},
		},
		Appointments: []models.Appointment{{
			ID:         "a1",
			CreatedAt:  time.Date(2026, 3, 9, 18, 30, 0, 123456789, time.UTC),
			ServiceKey: "haircut",
			Date:       date,
			TimeStart:  models.NewClock(10, 0),
			TimeEnd:    models.NewClock(11, 0),
			Status:     models.StatusActive,
		}},
	}, nil
}

func TestDayCache_HitAndInvalidate(t *testing.T) {
	ctx := context.Background()
	l := &countingLoader{}
	c := New(NewMemory(), l.load, time.Minute, nil)

	first, err := c.GetDaySchedule(ctx, "2026-03-10", false)
	require.NoError(t, err)
	second, err := c.GetDaySchedule(ctx, "2026-03-10", false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), l.calls.Load())
	assert.Same(t, first, second)

	c.Invalidate(ctx, "2026-03-10")
	third, err := c.GetDaySchedule(ctx, "2026-03-10", false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), l.calls.Load())
	assert.NotEqual(t, first.Blocked[0].End, third.Blocked[0].End)
}

func TestDayCache_FreshBypassesAndDoesNotStore(t *testing.T) {
	ctx := context.Background()
	l := &countingLoader{}
	mem := NewMemory()
	c := New(mem, l.load, time.Minute, nil)

	_, err := c.GetDaySchedule(ctx, "2026-03-10", true)
	require.NoError(t, err)
	assert.Equal(t, 0, mem.Len(), "fresh read must not populate")

	_, err = c.GetDaySchedule(ctx, "2026-03-10", false)
	require.NoError(t, err)
	_, err = c.GetDaySchedule(ctx, "2026-03-10", true)
	require.NoError(t, err)
	assert.Equal(t, int32(3), l.calls.Load())
	assert.Equal(t, 1, mem.Len())
}

func TestDayCache_ExpiryAndSweep(t *testing.T) {
	ctx := context.Background()
	l := &countingLoader{}
	mem := NewMemory()
	c := New(mem, l.load, time.Minute, nil)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.GetDaySchedule(ctx, "2026-03-10", false)
	require.NoError(t, err)
	_, err = c.GetDaySchedule(ctx, "2026-03-11", false)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = c.GetDaySchedule(ctx, "2026-03-10", false)
	require.NoError(t, err)
	assert.Equal(t, int32(3), l.calls.Load(), "expired entry reloaded")

	assert.Equal(t, 1, c.Sweep(ctx), "only the stale 2026-03-11 entry is dropped")
	assert.Equal(t, 1, mem.Len())
}

func TestDayCache_LoaderError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("sheets down")
	mem := NewMemory()
	c := New(mem, (&countingLoader{err: boom}).load, time.Minute, nil)

	_, err := c.GetDaySchedule(ctx, "2026-03-10", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, mem.Len(), "errors are not cached")
}

func TestRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	l := &countingLoader{}
	c := New(NewRedis(rdb, "test:"), l.load, time.Minute, nil)

	first, err := c.GetDaySchedule(ctx, "2026-03-10", false)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:day:2026-03-10"))

	second, err := c.GetDaySchedule(ctx, "2026-03-10", false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), l.calls.Load())
	assert.Equal(t, first.Blocked, second.Blocked)

	require.Len(t, second.Appointments, 1, "appointments survive the redis round trip")
	got, want := second.Appointments[0], first.Appointments[0]
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Equal(t, models.NewClock(10, 0), got.TimeStart)
	assert.Equal(t, models.NewClock(11, 0), got.TimeEnd)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at keeps nanoseconds for the tie-break")
	assert.False(t, got.Before(&want) || want.Before(&got))

	c.Invalidate(ctx, "2026-03-10")
	assert.False(t, mr.Exists("test:day:2026-03-10"))

	_, err = c.GetDaySchedule(ctx, "2026-03-10", false)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("test:day:2026-03-10"), "ttl handled by redis")
	assert.Equal(t, 0, c.Sweep(ctx))
}
