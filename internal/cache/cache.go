// Package cache memoizes per-date calendar reads with a TTL and explicit
// wholesale invalidation.
package cache

import (
	"context"
	"fmt"
	"time"

	"salonbot/internal/metrics"
	"salonbot/internal/models"

	"github.com/rs/zerolog"
)

// DefaultTTL bounds how stale a cached day may get without an invalidation.
const DefaultTTL = 30 * time.Minute

// Loader reads one date's committed intervals from the calendar source.
type Loader func(ctx context.Context, date string) (*models.DaySchedule, error)

// Entry is a cached snapshot. Entries are never modified after Set.
type Entry struct {
	Schedule  *models.DaySchedule `json:"schedule"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// Backend stores entries keyed by date.
type Backend interface {
	Get(ctx context.Context, date string) (*Entry, bool)
	Set(ctx context.Context, date string, entry *Entry) error
	Delete(ctx context.Context, date string) error
	// Sweep drops entries expired at now and returns how many were removed.
	Sweep(ctx context.Context, now time.Time) int
}

// DayCache is a read-through cache in front of a Loader.
type DayCache struct {
	backend Backend
	load    Loader
	ttl     time.Duration
	now     func() time.Time
	logger  *zerolog.Logger
}

// New creates a day cache. A nil backend means in-process memory.
func New(backend Backend, load Loader, ttl time.Duration, logger *zerolog.Logger) *DayCache {
	if backend == nil {
		backend = NewMemory()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "day_cache").Logger()
	return &DayCache{
		backend: backend,
		load:    load,
		ttl:     ttl,
		now:     time.Now,
		logger:  &l,
	}
}

// GetDaySchedule returns the date's blocked ranges and active appointments.
// fresh skips the cache for both reading and storing, so a read made right
// after a write never pins a possibly stale remote answer for a whole TTL.
func (c *DayCache) GetDaySchedule(ctx context.Context, date string, fresh bool) (*models.DaySchedule, error) {
	if fresh {
		metrics.IncCacheRequest("bypass")
		return c.loadDay(ctx, date)
	}

	if e, ok := c.backend.Get(ctx, date); ok && c.now().Before(e.ExpiresAt) {
		metrics.IncCacheRequest("hit")
		return e.Schedule, nil
	}
	metrics.IncCacheRequest("miss")

	day, err := c.loadDay(ctx, date)
	if err != nil {
		return nil, err
	}
	entry := &Entry{Schedule: day, ExpiresAt: c.now().Add(c.ttl)}
	if err := c.backend.Set(ctx, date, entry); err != nil {
		c.logger.Warn().Err(err).Str("date", date).Msg("cache set failed")
	}
	return day, nil
}

// Invalidate drops the entry for date; the next read repopulates it.
func (c *DayCache) Invalidate(ctx context.Context, date string) {
	if err := c.backend.Delete(ctx, date); err != nil {
		c.logger.Warn().Err(err).Str("date", date).Msg("cache invalidate failed")
		return
	}
	c.logger.Debug().Str("date", date).Msg("cache invalidated")
}

// Sweep removes expired entries.
func (c *DayCache) Sweep(ctx context.Context) int {
	return c.backend.Sweep(ctx, c.now())
}

func (c *DayCache) loadDay(ctx context.Context, date string) (*models.DaySchedule, error) {
	day, err := c.load(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load day %s: %w", date, err)
	}
	if day == nil {
		day = &models.DaySchedule{Date: date}
	}
	if day.LoadedAt.IsZero() {
		day.LoadedAt = c.now()
	}
	return day, nil
}
