package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"salonbot/internal/models"
	"salonbot/internal/service"
	"salonbot/internal/slots"

	"github.com/gorilla/mux"
)

// rejection is the body of a business rejection.
type rejection struct {
	OK     bool           `json:"ok"`
	Reason service.Reason `json:"reason"`
	Detail string         `json:"detail,omitempty"`
}

type slotsResponse struct {
	Service string       `json:"service"`
	Date    string       `json:"date"`
	Slots   []slots.Slot `json:"slots"`
}

type cancelRequest struct {
	Owner string `json:"owner"`
}

// reasonStatus maps a business rejection to its HTTP status.
func reasonStatus(r service.Reason) int {
	switch r {
	case service.ReasonClosed:
		return http.StatusUnprocessableEntity
	case service.ReasonSlotTaken, service.ReasonAlreadyCancelled:
		return http.StatusConflict
	case service.ReasonLimitExceeded:
		return http.StatusTooManyRequests
	case service.ReasonBanned, service.ReasonNotOwner:
		return http.StatusForbidden
	case service.ReasonAppointmentNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// writeEngineError maps engine errors: bad input is 400, source failures 503.
func (s *HTTPServer) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownService),
		errors.Is(err, service.ErrInvalidDate),
		errors.Is(err, service.ErrInvalidTime):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, rejection{Reason: service.ReasonAppointmentNotFound})
	case errors.Is(err, service.ErrSource):
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("calendar source failure")
		writeError(w, http.StatusServiceUnavailable, "calendar source unavailable")
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("unexpected error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// GET /api/v1/services
func (s *HTTPServer) handleServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.engine.ListServices(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if services == nil {
		services = []models.Service{}
	}
	writeJSON(w, http.StatusOK, services)
}

// GET /api/v1/services/{key}/slots?date=YYYY-MM-DD
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}

	free, err := s.engine.ListAvailableSlots(r.Context(), key, date)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if free == nil {
		free = []slots.Slot{}
	}
	writeJSON(w, http.StatusOK, slotsResponse{Service: key, Date: date, Slots: free})
}

// POST /api/v1/bookings
func (s *HTTPServer) handleBook(w http.ResponseWriter, r *http.Request) {
	var req service.BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ServiceKey == "" || req.Date == "" || req.Time == "" {
		writeError(w, http.StatusBadRequest, "service_key, date and time are required")
		return
	}
	req.Owner = strings.TrimSpace(req.Owner)

	res, err := s.engine.Book(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if !res.OK {
		writeJSON(w, reasonStatus(res.Reason), rejection{Reason: res.Reason, Detail: res.Detail})
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GET /api/v1/bookings/{id}
func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.GetAppointment(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// POST /api/v1/bookings/{id}/cancel
func (s *HTTPServer) handleCancelByOwner(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	res, err := s.engine.CancelByOwner(r.Context(), mux.Vars(r)["id"], req.Owner)
	s.writeCancelResult(w, r, res, err)
}

func (s *HTTPServer) writeCancelResult(w http.ResponseWriter, r *http.Request, res *service.CancelResult, err error) {
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if !res.OK {
		writeJSON(w, reasonStatus(res.Reason), rejection{Reason: res.Reason})
		return
	}
	writeJSON(w, http.StatusOK, res)
}
