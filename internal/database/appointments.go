package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"salonbot/internal/models"
)

const appointmentColumns = `id, created_at, service_key, date, time_start, time_end, owner,
	contact_name, contact_phone, comment, cancel_code, status, completed_at, cancelled_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAppointment(row rowScanner) (models.Appointment, error) {
	var (
		a                      models.Appointment
		createdAt, start, end  string
		status                 string
		completedAt, cancelled sql.NullString
	)
	err := row.Scan(&a.ID, &createdAt, &a.ServiceKey, &a.Date, &start, &end, &a.Owner,
		&a.ContactName, &a.ContactPhone, &a.Comment, &a.CancelCode, &status, &completedAt, &cancelled)
	if err != nil {
		return a, err
	}

	ts, err := time.Parse(timestampLayout, createdAt)
	if err != nil {
		return a, fmt.Errorf("appointment %s: created_at: %w", a.ID, err)
	}
	a.CreatedAt = ts.UTC()
	if a.TimeStart, err = models.ParseClock(start); err != nil {
		return a, fmt.Errorf("appointment %s: %w", a.ID, err)
	}
	if a.TimeEnd, err = models.ParseClock(end); err != nil {
		return a, fmt.Errorf("appointment %s: %w", a.ID, err)
	}
	if a.Status, err = models.ParseStatus(status); err != nil {
		return a, fmt.Errorf("appointment %s: %w", a.ID, err)
	}
	a.CompletedAt = scanTime(completedAt)
	a.CancelledAt = scanTime(cancelled)
	return a, nil
}

func (db *DB) queryAppointments(ctx context.Context, where string, args ...interface{}) ([]models.Appointment, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+appointmentColumns+` FROM appointments `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var out []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			db.logger.Warn().Err(err).Msg("skipping malformed appointment")
			continue
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) getAppointmentBy(ctx context.Context, column, value string) (*models.Appointment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE `+column+` = ?`, value)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (db *DB) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	return db.getAppointmentBy(ctx, "id", id)
}

func (db *DB) FindAppointmentByCancelCode(ctx context.Context, code string) (*models.Appointment, error) {
	return db.getAppointmentBy(ctx, "cancel_code", code)
}

func (db *DB) ListActiveAppointments(ctx context.Context) ([]models.Appointment, error) {
	return db.queryAppointments(ctx, `WHERE status = ? ORDER BY date, time_start`, models.StatusActive.String())
}

func (db *DB) ListAppointments(ctx context.Context, from, to string) ([]models.Appointment, error) {
	return db.queryAppointments(ctx, `WHERE date >= ? AND date <= ? ORDER BY date, time_start`, from, to)
}

// WriteAppointment inserts a new appointment row.
func (db *DB) WriteAppointment(ctx context.Context, a *models.Appointment) error {
	defer observe("write", time.Now())

	_, err := db.ExecContext(ctx, `INSERT INTO appointments (`+appointmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.CreatedAt.UTC().Format(timestampLayout),
		a.ServiceKey,
		a.Date,
		a.TimeStart.String(),
		a.TimeEnd.String(),
		a.Owner,
		a.ContactName,
		a.ContactPhone,
		a.Comment,
		a.CancelCode,
		a.Status.String(),
		nullTime(a.CompletedAt),
		nullTime(a.CancelledAt),
	)
	if err != nil {
		return fmt.Errorf("insert appointment %s: %w", a.ID, err)
	}
	return nil
}

// UpdateAppointmentStatus moves an active appointment to upd.Status and
// stamps whichever timestamps the update carries; absent timestamps keep their
// stored value. A row that is no longer active is left untouched and
// ErrNotActive is returned.
func (db *DB) UpdateAppointmentStatus(ctx context.Context, id string, upd models.StatusUpdate) error {
	defer observe("update", time.Now())

	res, err := db.ExecContext(ctx, `
		UPDATE appointments
		SET status = ?,
			completed_at = COALESCE(?, completed_at),
			cancelled_at = COALESCE(?, cancelled_at)
		WHERE id = ? AND status = ?`,
		upd.Status.String(), nullTime(upd.CompletedAt), nullTime(upd.CancelledAt),
		id, models.StatusActive.String())
	if err != nil {
		return fmt.Errorf("update appointment %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var status string
	if err := db.QueryRowContext(ctx, `SELECT status FROM appointments WHERE id = ?`, id).Scan(&status); err != nil {
		return notFound(err)
	}
	return models.ErrNotActive
}

func (db *DB) GetClient(ctx context.Context, owner string) (*models.Client, error) {
	var (
		c         models.Client
		firstSeen string
		lastAppt  sql.NullString
	)
	err := db.QueryRowContext(ctx, `
		SELECT owner, first_seen_at, contact_name, contact_phone, last_appointment_at,
			total_appointments, banned, ban_reason
		FROM clients WHERE owner = ?`, owner).
		Scan(&c.Owner, &firstSeen, &c.ContactName, &c.ContactPhone, &lastAppt,
			&c.TotalAppointments, &c.Banned, &c.BanReason)
	if err != nil {
		return nil, notFound(err)
	}
	if t, err := time.Parse(timestampLayout, firstSeen); err == nil {
		c.FirstSeenAt = t.UTC()
	}
	c.LastAppointmentAt = scanTime(lastAppt)
	return &c, nil
}

func (db *DB) UpsertClient(ctx context.Context, c *models.Client) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO clients (owner, first_seen_at, contact_name, contact_phone, last_appointment_at,
			total_appointments, banned, ban_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET
			contact_name = excluded.contact_name,
			contact_phone = excluded.contact_phone,
			last_appointment_at = excluded.last_appointment_at,
			total_appointments = excluded.total_appointments,
			banned = excluded.banned,
			ban_reason = excluded.ban_reason`,
		c.Owner,
		c.FirstSeenAt.UTC().Format(timestampLayout),
		c.ContactName,
		c.ContactPhone,
		nullTime(c.LastAppointmentAt),
		c.TotalAppointments,
		c.Banned,
		c.BanReason,
	)
	if err != nil {
		return fmt.Errorf("upsert client %s: %w", c.Owner, err)
	}
	return nil
}
