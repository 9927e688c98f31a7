// Package sweeper periodically completes finished appointments and drops
// expired day-cache entries.
package sweeper

import (
	"context"
	"sync"
	"time"

	"salonbot/internal/models"

	"github.com/rs/zerolog"
)

type Completer interface {
	CompleteExpired(ctx context.Context, now time.Time) ([]models.Appointment, error)
}

type CacheSweeper interface {
	Sweep(ctx context.Context) int
}

// Config holds configuration for the sweeper.
type Config struct {
	// Interval between runs.
	Interval time.Duration
	// RunOnStart triggers an immediate pass before the first tick.
	RunOnStart bool
}

// DefaultConfig returns the default sweeper configuration.
func DefaultConfig() Config {
	return Config{Interval: 5 * time.Minute, RunOnStart: true}
}

// Sweeper manages the completion schedule.
type Sweeper struct {
	config    Config
	completer Completer
	cache     CacheSweeper
	now       func() time.Time
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// New creates a sweeper; cache may be nil.
func New(config Config, completer Completer, cache CacheSweeper, logger *zerolog.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Sweeper{
		config:    config,
		completer: completer,
		cache:     cache,
		now:       time.Now,
		logger:    l.With().Str("component", "sweeper").Logger(),
		stopCh:    make(chan struct{}),
	}
}

// Start runs the loop until ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Dur("interval", s.config.Interval).Msg("sweeper started")

	if s.config.RunOnStart {
		s.RunOnce(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped by context")
			return
		case <-s.stopCh:
			s.logger.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Stop stops the sweeper.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()
}

// RunOnce performs a single completion and cache pass.
func (s *Sweeper) RunOnce(ctx context.Context) {
	started := s.now()

	completed, err := s.completer.CompleteExpired(ctx, started)
	if err != nil {
		// partial progress is kept; the next pass retries the rest
		s.logger.Error().Err(err).Int("completed", len(completed)).Msg("complete expired")
	}

	swept := 0
	if s.cache != nil {
		swept = s.cache.Sweep(ctx)
	}

	if len(completed) > 0 || swept > 0 {
		s.logger.Info().
			Int("completed", len(completed)).
			Int("cache_swept", swept).
			Dur("duration", time.Since(started)).
			Msg("sweep finished")
	}
}
