package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"salonbot/internal/metrics"
	"salonbot/internal/models"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const timestampLayout = time.RFC3339Nano

// DB is a calendar source on a local SQLite file.
type DB struct {
	*sql.DB
	servicesCache []models.Service
	hoursCache    []models.WorkSchedule
	cacheTime     time.Time
	mu            sync.RWMutex
	logger        *zerolog.Logger
}

// NewDB initializes a new database connection and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, logger: logger}
	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS services (
			key TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
			price TEXT
		)`,
		// day is either YYYY-MM-DD or 1..7
		`CREATE TABLE IF NOT EXISTS work_hours (
			day TEXT PRIMARY KEY,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			lunch_start TEXT,
			lunch_end TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS blocked_intervals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			service_key TEXT NOT NULL,
			date TEXT NOT NULL,
			time_start TEXT NOT NULL,
			time_end TEXT NOT NULL,
			owner TEXT NOT NULL DEFAULT '',
			contact_name TEXT NOT NULL DEFAULT '',
			contact_phone TEXT NOT NULL DEFAULT '',
			comment TEXT NOT NULL DEFAULT '',
			cancel_code TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			completed_at TEXT,
			cancelled_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS clients (
			owner TEXT PRIMARY KEY,
			first_seen_at TEXT NOT NULL,
			contact_name TEXT NOT NULL DEFAULT '',
			contact_phone TEXT NOT NULL DEFAULT '',
			last_appointment_at TEXT,
			total_appointments INTEGER NOT NULL DEFAULT 0,
			banned BOOLEAN NOT NULL DEFAULT 0,
			ban_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_date_status ON appointments(date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_blocked_date ON blocked_intervals(date)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func observe(op string, started time.Time) {
	metrics.ObserveSource("sqlite_"+op, time.Since(started).Seconds())
}

// UpsertService creates or replaces a service.
func (db *DB) UpsertService(ctx context.Context, s models.Service) error {
	var price sql.NullString
	if s.Price != nil {
		price = sql.NullString{String: s.Price.String(), Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO services (key, name, duration_minutes, price) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET name = excluded.name, duration_minutes = excluded.duration_minutes, price = excluded.price`,
		s.Key, s.Name, s.DurationMinutes, price)
	if err != nil {
		return fmt.Errorf("upsert service %s: %w", s.Key, err)
	}
	db.invalidateReference()
	return nil
}

// SetWorkHours creates or replaces one working-hours row.
func (db *DB) SetWorkHours(ctx context.Context, ws models.WorkSchedule) error {
	if !ws.Valid() {
		return fmt.Errorf("work hours %s: start must be before end", ws.Day)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO work_hours (day, start_time, end_time, lunch_start, lunch_end) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET start_time = excluded.start_time, end_time = excluded.end_time,
			lunch_start = excluded.lunch_start, lunch_end = excluded.lunch_end`,
		ws.Day, ws.Start.String(), ws.End.String(), nullClock(ws.LunchStart), nullClock(ws.LunchEnd))
	if err != nil {
		return fmt.Errorf("set work hours %s: %w", ws.Day, err)
	}
	db.invalidateReference()
	return nil
}

// AddBlocked stores an administrator-declared unavailable range.
func (db *DB) AddBlocked(ctx context.Context, b models.BlockedInterval) error {
	if b.Start >= b.End {
		return fmt.Errorf("blocked %s: start must be before end", b.Date)
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO blocked_intervals (date, start_time, end_time, note) VALUES (?, ?, ?, ?)`,
		b.Date, b.Start.String(), b.End.String(), b.Note)
	if err != nil {
		return fmt.Errorf("add blocked %s: %w", b.Date, err)
	}
	return nil
}

func (db *DB) invalidateReference() {
	db.mu.Lock()
	db.cacheTime = time.Time{}
	db.mu.Unlock()
}

// GetServices returns all services, cached for a minute.
func (db *DB) GetServices(ctx context.Context) ([]models.Service, error) {
	if err := db.loadReference(ctx); err != nil {
		return nil, err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]models.Service(nil), db.servicesCache...), nil
}

// GetWorkSchedule resolves the effective working hours for date.
func (db *DB) GetWorkSchedule(ctx context.Context, date time.Time) (*models.WorkSchedule, error) {
	if err := db.loadReference(ctx); err != nil {
		return nil, err
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	return models.ResolveWorkSchedule(db.hoursCache, date), nil
}

func (db *DB) loadReference(ctx context.Context) error {
	db.mu.RLock()
	fresh := !db.cacheTime.IsZero() && time.Since(db.cacheTime) < time.Minute
	db.mu.RUnlock()
	if fresh {
		return nil
	}
	defer observe("reference", time.Now())

	services, err := db.queryServices(ctx)
	if err != nil {
		return err
	}
	hours, err := db.queryWorkHours(ctx)
	if err != nil {
		return err
	}

	db.mu.Lock()
	db.servicesCache = services
	db.hoursCache = hours
	db.cacheTime = time.Now()
	db.mu.Unlock()
	return nil
}

func (db *DB) queryServices(ctx context.Context) ([]models.Service, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, name, duration_minutes, price FROM services ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	var out []models.Service
	for rows.Next() {
		var (
			s     models.Service
			price sql.NullString
		)
		if err := rows.Scan(&s.Key, &s.Name, &s.DurationMinutes, &price); err != nil {
			return nil, err
		}
		if price.Valid && price.String != "" {
			p, err := decimal.NewFromString(price.String)
			if err != nil {
				db.logger.Warn().Err(err).Str("service", s.Key).Msg("bad service price")
			} else {
				s.Price = &p
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *DB) queryWorkHours(ctx context.Context) ([]models.WorkSchedule, error) {
	rows, err := db.QueryContext(ctx, `SELECT day, start_time, end_time, lunch_start, lunch_end FROM work_hours`)
	if err != nil {
		return nil, fmt.Errorf("query work hours: %w", err)
	}
	defer rows.Close()

	var out []models.WorkSchedule
	for rows.Next() {
		var (
			day, start, end      string
			lunchStart, lunchEnd sql.NullString
		)
		if err := rows.Scan(&day, &start, &end, &lunchStart, &lunchEnd); err != nil {
			return nil, err
		}
		s, err1 := models.ParseClock(start)
		e, err2 := models.ParseClock(end)
		if err1 != nil || err2 != nil {
			db.logger.Warn().Str("day", day).Msg("skipping malformed work hours")
			continue
		}
		out = append(out, models.WorkSchedule{
			Day:        day,
			Start:      s,
			End:        e,
			LunchStart: scanClock(lunchStart),
			LunchEnd:   scanClock(lunchEnd),
		})
	}
	return out, rows.Err()
}

// GetCommittedIntervals returns the date's blocked ranges and active appointments.
func (db *DB) GetCommittedIntervals(ctx context.Context, date string) (*models.DaySchedule, error) {
	defer observe("day", time.Now())

	rows, err := db.QueryContext(ctx,
		`SELECT date, start_time, end_time, note FROM blocked_intervals WHERE date = ? ORDER BY start_time`, date)
	if err != nil {
		return nil, fmt.Errorf("query blocked: %w", err)
	}
	defer rows.Close()

	day := &models.DaySchedule{Date: date, LoadedAt: time.Now()}
	for rows.Next() {
		var b models.BlockedInterval
		var start, end string
		if err := rows.Scan(&b.Date, &start, &end, &b.Note); err != nil {
			return nil, err
		}
		s, err1 := models.ParseClock(start)
		e, err2 := models.ParseClock(end)
		if err1 != nil || err2 != nil {
			continue
		}
		b.Start, b.End = s, e
		day.Blocked = append(day.Blocked, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	day.Appointments, err = db.queryAppointments(ctx,
		`WHERE date = ? AND status = ? ORDER BY time_start`, date, models.StatusActive.String())
	if err != nil {
		return nil, err
	}
	return day, nil
}

func nullClock(c *models.Clock) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: c.String(), Valid: true}
}

func scanClock(ns sql.NullString) *models.Clock {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	c, err := models.ParseClock(ns.String)
	if err != nil {
		return nil
	}
	return &c
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timestampLayout), Valid: true}
}

func scanTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(timestampLayout, ns.String)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}
