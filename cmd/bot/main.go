package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"salonbot/internal/access"
	"salonbot/internal/api"
	"salonbot/internal/cache"
	"salonbot/internal/config"
	"salonbot/internal/database"
	"salonbot/internal/events"
	"salonbot/internal/export"
	"salonbot/internal/google"
	"salonbot/internal/metrics"
	"salonbot/internal/notify"
	"salonbot/internal/service"
	"salonbot/internal/sweeper"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// calendarStore is what both storage backends provide.
type calendarStore interface {
	service.CalendarSource
	export.Source
	access.ClientStore
}

func main() {
	// .env is optional; real environment wins
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("SALONBOT_CONFIG_PATH"))
	if err != nil {
		bootstrap := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootstrap.Fatal().Err(err).Msg("failed to load config")
	}

	logger := newLogger(cfg)
	loc, _ := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, ping, closeStore := openStore(ctx, cfg, &logger)
	defer closeStore()

	var rdb *redis.Client
	var backend cache.Backend
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		backend = cache.NewRedis(rdb, cfg.Redis.Prefix)
	}
	days := cache.New(backend, store.GetCommittedIntervals, cfg.CacheTTL(), &logger)

	bus := events.NewEventBus()
	bus.OnError(func(ev events.Event, err error) {
		logger.Warn().Err(err).Str("event", ev.Type).Int64("event_id", ev.ID).Msg("event handler failed")
	})

	accessSvc := access.NewService(store, cfg.Managers, logger)

	engine := service.NewBookingService(store, days, service.Options{
		Location:  loc,
		MaxPerDay: cfg.MaxPerDay(),
		SlotStep:  cfg.SlotStep(),
		Bans:      accessSvc,
		Events:    bus,
	}, &logger)

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	if cfg.Telegram.BotToken != "" && cfg.Telegram.BotToken != "YOUR_BOT_TOKEN_HERE" {
		tg, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.Fatal().Err(err).Msg("create telegram client")
		}
		tg.Debug = cfg.Telegram.Debug
		notifier := notify.NewManagerNotifier(tg, accessSvc, notify.Options{
			MessagesPerSec: cfg.Telegram.MessagesPerSec,
			Location:       loc,
		}, &logger)
		notifier.Subscribe(bus)
		run(func() { notifier.Run(ctx) })
		if cfg.Telegram.DigestEnabled {
			notifier.StartDailyDigest(ctx, store, cfg.DigestHour())
		}
		logger.Info().Str("bot", tg.Self.UserName).Msg("manager notifications enabled")
	} else {
		logger.Warn().Msg("telegram.bot_token not set; manager notifications disabled")
	}

	sw := sweeper.New(sweeper.Config{Interval: cfg.SweepInterval(), RunOnStart: true}, engine, days, &logger)
	run(func() { sw.Start(ctx) })

	ready := func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return err
		}
		if rdb != nil {
			return rdb.Ping(ctx).Err()
		}
		return nil
	}

	run(func() { startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, ready, &logger) })

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		run(func() { startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger) })
	}

	if cfg.Monitoring.GRPCHealthPort > 0 {
		run(func() { startGRPCHealth(ctx, cfg.Monitoring.GRPCHealthPort, ready, &logger) })
	}

	if cfg.API.Enabled {
		srv := api.NewHTTPServer(api.Config{APIKeys: cfg.API.Keys, AdminKeys: cfg.API.AdminKeys},
			engine, export.NewExporter(store, loc, &logger), accessSvc, ready, &logger)
		run(func() { startAPIServer(ctx, cfg.API.Port, srv, &logger) })
	}

	logger.Info().
		Str("backend", cfg.Storage.Backend).
		Bool("redis_cache", rdb != nil).
		Str("timezone", loc.String()).
		Msg("salonbot started")

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("shutdown timed out")
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.Logging.Console {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		logger = zerolog.New(output)
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(cfg.LogLevel()).With().Timestamp().Logger()
}

// openStore opens the configured calendar backend and returns its readiness
// probe and closer.
func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (calendarStore, func(context.Context) error, func()) {
	switch cfg.Storage.Backend {
	case config.BackendSheets:
		sheets, err := google.NewSheetsService(ctx, google.Config{
			CredentialsFile: cfg.Google.CredentialsFile,
			SpreadsheetID:   cfg.Google.SpreadsheetID,
			RequestsPerMin:  cfg.Google.RequestsPerMinute,
			ReferenceTTL:    cfg.ReferenceTTL(),
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("open google sheets")
		}
		return sheets, sheets.Ping, func() {}
	default:
		db, err := database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("open db error")
		}
		return db, db.PingContext, func() { _ = db.Close() }
	}
}
