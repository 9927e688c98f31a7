// Package google stores the salon calendar in a Google spreadsheet.
package google

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"salonbot/internal/models"

	"github.com/rs/zerolog"
)

// Config selects the spreadsheet and its credentials.
type Config struct {
	CredentialsFile string
	SpreadsheetID   string
	RequestsPerMin  int
	// ReferenceTTL bounds how long services and work hours are reused.
	ReferenceTTL time.Duration
}

// SheetsService is a calendar source backed by one spreadsheet with the
// sheets Services, WorkHours, Blocked, Appointments and Clients.
type SheetsService struct {
	values valuesClient
	logger *zerolog.Logger

	refTTL      time.Duration
	refMu       sync.Mutex
	services    []models.Service
	hours       []models.WorkSchedule
	refLoadedAt time.Time

	// sheet row numbers of appointments by id and clients by owner
	cacheMu   sync.RWMutex
	rowCache  map[string]int
	clientRow map[string]int
	appendMu  sync.Mutex
}

// NewSheetsService connects to the spreadsheet.
func NewSheetsService(ctx context.Context, cfg Config, logger *zerolog.Logger) (*SheetsService, error) {
	values, err := newSheetsValues(ctx, cfg.CredentialsFile, cfg.SpreadsheetID, cfg.RequestsPerMin)
	if err != nil {
		return nil, err
	}
	return newSheetsService(values, cfg.ReferenceTTL, logger), nil
}

func newSheetsService(values valuesClient, refTTL time.Duration, logger *zerolog.Logger) *SheetsService {
	if refTTL <= 0 {
		refTTL = 5 * time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "sheets").Logger()
	return &SheetsService{
		values:    values,
		logger:    &l,
		refTTL:    refTTL,
		rowCache:  make(map[string]int),
		clientRow: make(map[string]int),
	}
}

// Ping checks that the spreadsheet is reachable.
func (s *SheetsService) Ping(ctx context.Context) error {
	_, err := s.values.Get(ctx, "Services!A1:A1")
	return err
}

// GetServices returns the services sheet.
func (s *SheetsService) GetServices(ctx context.Context) ([]models.Service, error) {
	if err := s.loadReference(ctx); err != nil {
		return nil, err
	}
	s.refMu.Lock()
	defer s.refMu.Unlock()
	return append([]models.Service(nil), s.services...), nil
}

// GetWorkSchedule resolves the effective working hours for date.
func (s *SheetsService) GetWorkSchedule(ctx context.Context, date time.Time) (*models.WorkSchedule, error) {
	if err := s.loadReference(ctx); err != nil {
		return nil, err
	}
	s.refMu.Lock()
	defer s.refMu.Unlock()
	return models.ResolveWorkSchedule(s.hours, date), nil
}

// loadReference refreshes services and work hours once refTTL has passed.
// Malformed rows are skipped with a warning.
func (s *SheetsService) loadReference(ctx context.Context) error {
	s.refMu.Lock()
	fresh := !s.refLoadedAt.IsZero() && time.Since(s.refLoadedAt) < s.refTTL
	s.refMu.Unlock()
	if fresh {
		return nil
	}

	serviceRows, err := s.values.Get(ctx, servicesRange)
	if err != nil {
		return err
	}
	hourRows, err := s.values.Get(ctx, workHoursRange)
	if err != nil {
		return err
	}

	services := make([]models.Service, 0, len(serviceRows))
	for i, row := range serviceRows {
		svc, err := parseService(row)
		if err != nil {
			s.logger.Warn().Err(err).Int("row", i+2).Msg("skipping service row")
			continue
		}
		services = append(services, svc)
	}
	hours := make([]models.WorkSchedule, 0, len(hourRows))
	for i, row := range hourRows {
		ws, err := parseWorkSchedule(row)
		if err != nil {
			s.logger.Warn().Err(err).Int("row", i+2).Msg("skipping work hours row")
			continue
		}
		hours = append(hours, ws)
	}

	s.refMu.Lock()
	s.services = services
	s.hours = hours
	s.refLoadedAt = time.Now()
	s.refMu.Unlock()
	return nil
}

// InvalidateReference forces the next read to reload services and work hours.
func (s *SheetsService) InvalidateReference() {
	s.refMu.Lock()
	s.refLoadedAt = time.Time{}
	s.refMu.Unlock()
}

// GetCommittedIntervals returns the date's blocked ranges and active appointments.
func (s *SheetsService) GetCommittedIntervals(ctx context.Context, date string) (*models.DaySchedule, error) {
	blockedRows, err := s.values.Get(ctx, blockedRange)
	if err != nil {
		return nil, err
	}
	appts, err := s.readAppointments(ctx)
	if err != nil {
		return nil, err
	}

	day := &models.DaySchedule{Date: date, LoadedAt: time.Now()}
	for _, row := range blockedRows {
		b, err := parseBlocked(row)
		if err != nil || b.Date != date {
			continue
		}
		day.Blocked = append(day.Blocked, b)
	}
	for _, a := range appts {
		if a.Date == date && a.Status == models.StatusActive {
			day.Appointments = append(day.Appointments, a)
		}
	}
	return day, nil
}

// readAppointments reads the whole Appointments sheet and refreshes the row cache.
func (s *SheetsService) readAppointments(ctx context.Context) ([]models.Appointment, error) {
	rows, err := s.values.Get(ctx, appointmentsRange)
	if err != nil {
		return nil, err
	}

	out := make([]models.Appointment, 0, len(rows))
	index := make(map[string]int, len(rows))
	for i, row := range rows {
		a, err := parseAppointment(row)
		if err != nil {
			if cell(row, colID) != "" {
				s.logger.Warn().Err(err).Int("row", i+2).Msg("skipping appointment row")
			}
			continue
		}
		index[a.ID] = i + 2
		out = append(out, a)
	}

	s.cacheMu.Lock()
	s.rowCache = index
	s.cacheMu.Unlock()
	return out, nil
}

func (s *SheetsService) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	return s.findAppointment(ctx, func(a *models.Appointment) bool { return a.ID == id })
}

func (s *SheetsService) FindAppointmentByCancelCode(ctx context.Context, code string) (*models.Appointment, error) {
	return s.findAppointment(ctx, func(a *models.Appointment) bool { return a.CancelCode == code })
}

func (s *SheetsService) findAppointment(ctx context.Context, match func(*models.Appointment) bool) (*models.Appointment, error) {
	appts, err := s.readAppointments(ctx)
	if err != nil {
		return nil, err
	}
	for i := range appts {
		if match(&appts[i]) {
			return &appts[i], nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *SheetsService) ListActiveAppointments(ctx context.Context) ([]models.Appointment, error) {
	appts, err := s.readAppointments(ctx)
	if err != nil {
		return nil, err
	}
	return filterActive(appts), nil
}

func (s *SheetsService) ListAppointments(ctx context.Context, from, to string) ([]models.Appointment, error) {
	appts, err := s.readAppointments(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Appointment
	for _, a := range appts {
		if a.Date >= from && a.Date <= to {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].TimeStart < out[j].TimeStart
	})
	return out, nil
}

func filterActive(appts []models.Appointment) []models.Appointment {
	out := make([]models.Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Status == models.StatusActive {
			out = append(out, a)
		}
	}
	return out
}

// WriteAppointment appends a row to the Appointments sheet.
func (s *SheetsService) WriteAppointment(ctx context.Context, a *models.Appointment) error {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	updated, err := s.values.Append(ctx, appointmentsRange, [][]interface{}{appointmentRowValues(a)})
	if err != nil {
		return err
	}
	if row, ok := rowNumber(updated); ok {
		s.setCachedRow(a.ID, row)
	}
	return nil
}

// UpdateAppointmentStatus moves an active appointment to upd.Status. Only the
// timestamp the update carries is replaced; the other keeps its stored value.
// A row that has already left Active is not written and ErrNotActive is
// returned.
func (s *SheetsService) UpdateAppointmentStatus(ctx context.Context, id string, upd models.StatusUpdate) error {
	row, current, err := s.locateAppointment(ctx, id)
	if err != nil {
		return err
	}
	if status, err := models.ParseStatus(cell(current, colStatus)); err != nil || status != models.StatusActive {
		return models.ErrNotActive
	}

	completedAt, cancelledAt := cell(current, colCompletedAt), cell(current, colCancelledAt)
	if upd.CompletedAt != nil {
		completedAt = formatTimestamp(upd.CompletedAt)
	}
	if upd.CancelledAt != nil {
		cancelledAt = formatTimestamp(upd.CancelledAt)
	}

	rng := fmt.Sprintf("Appointments!L%d:N%d", row, row)
	values := [][]interface{}{{upd.Status.String(), completedAt, cancelledAt}}
	if err := s.values.Update(ctx, rng, values); err != nil {
		s.deleteCacheRow(id)
		return err
	}
	return nil
}

// locateAppointment returns the sheet row of id together with its current
// cells. A cached row number is verified first since rows can be moved by
// hand.
func (s *SheetsService) locateAppointment(ctx context.Context, id string) (int, []interface{}, error) {
	if row, current, ok, err := s.readCachedRow(ctx, id); err != nil || ok {
		return row, current, err
	}

	if _, err := s.readAppointments(ctx); err != nil {
		return 0, nil, err
	}
	row, current, ok, err := s.readCachedRow(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, models.ErrNotFound
	}
	return row, current, nil
}

func (s *SheetsService) readCachedRow(ctx context.Context, id string) (int, []interface{}, bool, error) {
	row, ok := s.getCachedRow(id)
	if !ok {
		return 0, nil, false, nil
	}
	got, err := s.values.Get(ctx, fmt.Sprintf("Appointments!A%d:N%d", row, row))
	if err != nil {
		return 0, nil, false, err
	}
	if len(got) == 0 || cell(got[0], colID) != id {
		s.deleteCacheRow(id)
		return 0, nil, false, nil
	}
	return row, got[0], true, nil
}

func (s *SheetsService) GetClient(ctx context.Context, owner string) (*models.Client, error) {
	clients, err := s.readClients(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := clients[owner]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &c, nil
}

// UpsertClient rewrites the client's row or appends a new one.
func (s *SheetsService) UpsertClient(ctx context.Context, c *models.Client) error {
	s.cacheMu.RLock()
	row, ok := s.clientRow[c.Owner]
	s.cacheMu.RUnlock()
	if !ok {
		if _, err := s.readClients(ctx); err != nil {
			return err
		}
		s.cacheMu.RLock()
		row, ok = s.clientRow[c.Owner]
		s.cacheMu.RUnlock()
	}

	values := [][]interface{}{clientRowValues(c)}
	if ok {
		return s.values.Update(ctx, fmt.Sprintf("Clients!A%d:H%d", row, row), values)
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	updated, err := s.values.Append(ctx, clientsRange, values)
	if err != nil {
		return err
	}
	if n, ok := rowNumber(updated); ok {
		s.cacheMu.Lock()
		s.clientRow[c.Owner] = n
		s.cacheMu.Unlock()
	}
	return nil
}

func (s *SheetsService) readClients(ctx context.Context) (map[string]models.Client, error) {
	rows, err := s.values.Get(ctx, clientsRange)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Client, len(rows))
	index := make(map[string]int, len(rows))
	for i, row := range rows {
		c, err := parseClient(row)
		if err != nil {
			continue
		}
		out[c.Owner] = c
		index[c.Owner] = i + 2
	}
	s.cacheMu.Lock()
	s.clientRow = index
	s.cacheMu.Unlock()
	return out, nil
}

func (s *SheetsService) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsService) deleteCacheRow(id string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}

// ClearCache drops every cached row number.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
	s.clientRow = make(map[string]int)
}
