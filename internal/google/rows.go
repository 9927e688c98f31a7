package google

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"salonbot/internal/models"

	"github.com/shopspring/decimal"
)

const (
	servicesRange     = "Services!A2:D"
	workHoursRange    = "WorkHours!A2:E"
	blockedRange      = "Blocked!A2:D"
	appointmentsRange = "Appointments!A2:N"
	clientsRange      = "Clients!A2:H"

	timestampLayout = time.RFC3339Nano
)

// Appointments sheet columns.
const (
	colID = iota
	colCreatedAt
	colServiceKey
	colDate
	colStart
	colEnd
	colOwner
	colName
	colPhone
	colComment
	colCancelCode
	colStatus
	colCompletedAt
	colCancelledAt
)

func cell(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(timestampLayout, s); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC)
}

func optionalTimestamp(s string) *time.Time {
	t, err := parseTimestamp(s)
	if err != nil {
		return nil
	}
	return &t
}

func formatTimestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

func optionalClock(s string) *models.Clock {
	if s == "" {
		return nil
	}
	c, err := models.ParseClock(s)
	if err != nil {
		return nil
	}
	return &c
}

func parseService(row []interface{}) (models.Service, error) {
	key := cell(row, 0)
	if key == "" {
		return models.Service{}, fmt.Errorf("empty service key")
	}
	minutes, err := strconv.Atoi(cell(row, 2))
	if err != nil || minutes <= 0 {
		return models.Service{}, fmt.Errorf("service %s: bad duration %q", key, cell(row, 2))
	}
	svc := models.Service{Key: key, Name: cell(row, 1), DurationMinutes: minutes}
	if raw := strings.ReplaceAll(cell(row, 3), ",", "."); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return models.Service{}, fmt.Errorf("service %s: bad price %q", key, cell(row, 3))
		}
		svc.Price = &price
	}
	return svc, nil
}

func parseWorkSchedule(row []interface{}) (models.WorkSchedule, error) {
	day := cell(row, 0)
	start, err := models.ParseClock(cell(row, 1))
	if err != nil {
		return models.WorkSchedule{}, fmt.Errorf("work hours %s: %w", day, err)
	}
	end, err := models.ParseClock(cell(row, 2))
	if err != nil {
		return models.WorkSchedule{}, fmt.Errorf("work hours %s: %w", day, err)
	}
	ws := models.WorkSchedule{
		Day:        day,
		Start:      start,
		End:        end,
		LunchStart: optionalClock(cell(row, 3)),
		LunchEnd:   optionalClock(cell(row, 4)),
	}
	if !ws.Valid() {
		return models.WorkSchedule{}, fmt.Errorf("work hours %s: start must be before end", day)
	}
	return ws, nil
}

func parseBlocked(row []interface{}) (models.BlockedInterval, error) {
	date := cell(row, 0)
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return models.BlockedInterval{}, fmt.Errorf("blocked: bad date %q", date)
	}
	start, err := models.ParseClock(cell(row, 1))
	if err != nil {
		return models.BlockedInterval{}, fmt.Errorf("blocked %s: %w", date, err)
	}
	end, err := models.ParseClock(cell(row, 2))
	if err != nil {
		return models.BlockedInterval{}, fmt.Errorf("blocked %s: %w", date, err)
	}
	if start >= end {
		return models.BlockedInterval{}, fmt.Errorf("blocked %s: start must be before end", date)
	}
	return models.BlockedInterval{Date: date, Start: start, End: end, Note: cell(row, 3)}, nil
}

func parseAppointment(row []interface{}) (models.Appointment, error) {
	id := cell(row, colID)
	if id == "" {
		return models.Appointment{}, fmt.Errorf("empty appointment id")
	}
	createdAt, err := parseTimestamp(cell(row, colCreatedAt))
	if err != nil {
		return models.Appointment{}, fmt.Errorf("appointment %s: created_at: %w", id, err)
	}
	start, err := models.ParseClock(cell(row, colStart))
	if err != nil {
		return models.Appointment{}, fmt.Errorf("appointment %s: %w", id, err)
	}
	end, err := models.ParseClock(cell(row, colEnd))
	if err != nil {
		return models.Appointment{}, fmt.Errorf("appointment %s: %w", id, err)
	}
	status, err := models.ParseStatus(strings.ToLower(cell(row, colStatus)))
	if err != nil {
		return models.Appointment{}, fmt.Errorf("appointment %s: %w", id, err)
	}

	return models.Appointment{
		ID:           id,
		CreatedAt:    createdAt,
		ServiceKey:   cell(row, colServiceKey),
		Date:         cell(row, colDate),
		TimeStart:    start,
		TimeEnd:      end,
		Owner:        cell(row, colOwner),
		ContactName:  cell(row, colName),
		ContactPhone: cell(row, colPhone),
		Comment:      cell(row, colComment),
		CancelCode:   cell(row, colCancelCode),
		Status:       status,
		CompletedAt:  optionalTimestamp(cell(row, colCompletedAt)),
		CancelledAt:  optionalTimestamp(cell(row, colCancelledAt)),
	}, nil
}

func appointmentRowValues(a *models.Appointment) []interface{} {
	return []interface{}{
		a.ID,
		formatTimestamp(&a.CreatedAt),
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
		formatTimestamp(a.CompletedAt),
		formatTimestamp(a.CancelledAt),
	}
}

func parseClient(row []interface{}) (models.Client, error) {
	owner := cell(row, 0)
	if owner == "" {
		return models.Client{}, fmt.Errorf("empty client owner")
	}
	c := models.Client{
		Owner:             owner,
		ContactName:       cell(row, 2),
		ContactPhone:      cell(row, 3),
		LastAppointmentAt: optionalTimestamp(cell(row, 4)),
		BanReason:         cell(row, 7),
	}
	if t, err := parseTimestamp(cell(row, 1)); err == nil {
		c.FirstSeenAt = t
	}
	if n, err := strconv.Atoi(cell(row, 5)); err == nil {
		c.TotalAppointments = n
	}
	c.Banned, _ = strconv.ParseBool(strings.ToLower(cell(row, 6)))
	return c, nil
}

func clientRowValues(c *models.Client) []interface{} {
	return []interface{}{
		c.Owner,
		formatTimestamp(&c.FirstSeenAt),
		c.ContactName,
		c.ContactPhone,
		formatTimestamp(c.LastAppointmentAt),
		c.TotalAppointments,
		strconv.FormatBool(c.Banned),
		c.BanReason,
	}
}

var rowFromRange = regexp.MustCompile(`![A-Z]+(\d+)`)

// rowNumber extracts the first row number from an A1 range such as
// "Appointments!A42:N42".
func rowNumber(a1 string) (int, bool) {
	m := rowFromRange.FindStringSubmatch(a1)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
