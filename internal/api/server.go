// Package api exposes the booking engine over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"salonbot/internal/metrics"
	"salonbot/internal/models"
	"salonbot/internal/service"
	"salonbot/internal/slots"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Engine is the booking surface served by the API.
type Engine interface {
	ListServices(ctx context.Context) ([]models.Service, error)
	ListAvailableSlots(ctx context.Context, serviceKey, date string) ([]slots.Slot, error)
	Book(ctx context.Context, req service.BookingRequest) (*service.BookingResult, error)
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	CancelByOwner(ctx context.Context, id, owner string) (*service.CancelResult, error)
	CancelByCode(ctx context.Context, code string) (*service.CancelResult, error)
	CompleteExpired(ctx context.Context, now time.Time) ([]models.Appointment, error)
}

type Exporter interface {
	WriteMonth(ctx context.Context, w io.Writer, month time.Time) error
}

type BanManager interface {
	Ban(ctx context.Context, owner, reason, bannedBy string) error
	Unban(ctx context.Context, owner, unbannedBy string) error
}

// ReadinessCheck reports whether backing stores are reachable.
type ReadinessCheck func(ctx context.Context) error

// Config holds API authentication settings.
type Config struct {
	APIKeys   []string
	AdminKeys []string
}

// HTTPServer routes API requests to the engine.
type HTTPServer struct {
	engine   Engine
	exporter Exporter
	bans     BanManager
	ready    ReadinessCheck
	apiKeys  []string
	admin    []string
	now      func() time.Time
	router   *mux.Router
	logger   zerolog.Logger
}

// NewHTTPServer builds the router. exporter, bans and ready may be nil.
func NewHTTPServer(cfg Config, engine Engine, exporter Exporter, bans BanManager, ready ReadinessCheck, logger *zerolog.Logger) *HTTPServer {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	s := &HTTPServer{
		engine:   engine,
		exporter: exporter,
		bans:     bans,
		ready:    ready,
		apiKeys:  cfg.APIKeys,
		admin:    cfg.AdminKeys,
		now:      time.Now,
		logger:   l.With().Str("component", "api").Logger(),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(requireKey("x-api-key", s.apiKeys))

	api.HandleFunc("/services", s.handleServices).Methods(http.MethodGet)
	api.HandleFunc("/services/{key}/slots", s.handleSlots).Methods(http.MethodGet)
	api.HandleFunc("/bookings", s.handleBook).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}", s.handleGetBooking).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}/cancel", s.handleCancelByOwner).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(requireKey("x-admin-key", s.admin))

	admin.HandleFunc("/cancel/{code}", s.handleCancelByCode).Methods(http.MethodPost)
	admin.HandleFunc("/complete-expired", s.handleCompleteExpired).Methods(http.MethodPost)
	admin.HandleFunc("/export", s.handleExport).Methods(http.MethodGet)
	admin.HandleFunc("/clients/{owner}/ban", s.handleBan).Methods(http.MethodPut)
	admin.HandleFunc("/clients/{owner}/ban", s.handleUnban).Methods(http.MethodDelete)

	return r
}

// requireKey rejects requests whose header does not carry one of keys.
// An empty key list rejects everything.
func requireKey(header string, keys []string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if got == "" || !matchKey(got, keys) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func matchKey(got string, keys []string) bool {
	for _, k := range keys {
		if k != "" && subtle.ConstantTimeCompare([]byte(got), []byte(k)) == 1 {
			return true
		}
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.ObserveHTTP(route, rec.status, time.Since(started).Seconds())
		s.logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("duration", time.Since(started)).
			Msg("http request")
	})
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
