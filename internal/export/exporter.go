// Package export renders a month of appointments as an XLSX workbook.
package export

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"salonbot/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Source lists what the report needs from the calendar store.
type Source interface {
	GetServices(ctx context.Context) ([]models.Service, error)
	ListAppointments(ctx context.Context, from, to string) ([]models.Appointment, error)
}

// MonthNames in Russian for filename generation.
var MonthNames = map[time.Month]string{
	time.January:   "Январь",
	time.February:  "Февраль",
	time.March:     "Март",
	time.April:     "Апрель",
	time.May:       "Май",
	time.June:      "Июнь",
	time.July:      "Июль",
	time.August:    "Август",
	time.September: "Сентябрь",
	time.October:   "Октябрь",
	time.November:  "Ноябрь",
	time.December:  "Декабрь",
}

var appointmentColumns = []string{
	"ID", "Создано", "Услуга", "Дата", "Начало", "Конец", "Владелец",
	"Клиент", "Телефон", "Комментарий", "Статус", "Завершено", "Отменено",
}

var summaryColumns = []string{"Услуга", "Всего", "Активные", "Завершённые", "Отменённые", "Выручка"}

type Exporter struct {
	source Source
	loc    *time.Location
	logger zerolog.Logger
}

func NewExporter(source Source, loc *time.Location, logger *zerolog.Logger) *Exporter {
	if loc == nil {
		loc = time.Local
	}
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Exporter{source: source, loc: loc, logger: l.With().Str("component", "export").Logger()}
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string) (time.Time, error) {
	return time.Parse("2006-01", s)
}

// Filename builds the attachment name for month.
func Filename(month time.Time) string {
	return fmt.Sprintf("Записи_%s_%d.xlsx", MonthNames[month.Month()], month.Year())
}

// WriteMonth writes the workbook for the calendar month containing month.
func (e *Exporter) WriteMonth(ctx context.Context, w io.Writer, month time.Time) error {
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	appts, err := e.source.ListAppointments(ctx, first.Format(models.DateLayout), last.Format(models.DateLayout))
	if err != nil {
		return fmt.Errorf("list appointments: %w", err)
	}
	services, err := e.source.GetServices(ctx)
	if err != nil {
		return fmt.Errorf("list services: %w", err)
	}

	sheet := newSheetWriter()
	defer sheet.close()

	if err := e.writeAppointments(sheet, appts, services); err != nil {
		return err
	}
	if err := writeSummary(sheet, appts, services); err != nil {
		return err
	}

	e.logger.Info().
		Str("month", first.Format("2006-01")).
		Int("appointments", len(appts)).
		Msg("export generated")
	return sheet.save(w)
}

func (e *Exporter) writeAppointments(sheet *sheetWriter, appts []models.Appointment, services []models.Service) error {
	if err := sheet.addSheet("Записи"); err != nil {
		return err
	}
	if err := sheet.writeHeader(appointmentColumns); err != nil {
		return err
	}

	names := serviceNames(services)
	for i := range appts {
		a := &appts[i]
		row := []interface{}{
			a.ID,
			a.CreatedAt.In(e.loc).Format("2006-01-02 15:04:05"),
			names(a.ServiceKey),
			a.Date,
			a.TimeStart.String(),
			a.TimeEnd.String(),
			a.Owner,
			a.ContactName,
			a.ContactPhone,
			a.Comment,
			a.Status.String(),
			e.formatTime(a.CompletedAt),
			e.formatTime(a.CancelledAt),
		}
		if err := sheet.writeRow(row); err != nil {
			return fmt.Errorf("write appointment %s: %w", a.ID, err)
		}
	}
	return nil
}

type serviceTotals struct {
	total, active, completed, cancelled int
	revenue                             decimal.Decimal
}

// writeSummary aggregates per service; revenue counts completed visits only.
func writeSummary(sheet *sheetWriter, appts []models.Appointment, services []models.Service) error {
	if err := sheet.addSheet("Сводка"); err != nil {
		return err
	}
	if err := sheet.writeHeader(summaryColumns); err != nil {
		return err
	}

	prices := make(map[string]decimal.Decimal, len(services))
	for _, s := range services {
		if s.Price != nil {
			prices[s.Key] = *s.Price
		}
	}

	totals := make(map[string]*serviceTotals)
	for _, a := range appts {
		t, ok := totals[a.ServiceKey]
		if !ok {
			t = &serviceTotals{}
			totals[a.ServiceKey] = t
		}
		t.total++
		switch a.Status {
		case models.StatusActive:
			t.active++
		case models.StatusCompleted:
			t.completed++
			t.revenue = t.revenue.Add(prices[a.ServiceKey])
		case models.StatusCancelled:
			t.cancelled++
		}
	}

	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := serviceNames(services)
	for _, k := range keys {
		t := totals[k]
		revenue, _ := t.revenue.Float64()
		if err := sheet.writeRow([]interface{}{names(k), t.total, t.active, t.completed, t.cancelled, revenue}); err != nil {
			return err
		}
	}
	return nil
}

func serviceNames(services []models.Service) func(string) string {
	byKey := make(map[string]string, len(services))
	for _, s := range services {
		byKey[s.Key] = s.Name
	}
	return func(key string) string {
		if name, ok := byKey[key]; ok && name != "" {
			return name
		}
		return key
	}
}

func (e *Exporter) formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(e.loc).Format("2006-01-02 15:04:05")
}
