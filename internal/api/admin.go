package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"salonbot/internal/access"
	"salonbot/internal/export"
	"salonbot/internal/models"

	"github.com/gorilla/mux"
)

type completeResponse struct {
	Completed    int                  `json:"completed"`
	Appointments []models.Appointment `json:"appointments"`
}

type banRequest struct {
	Reason string `json:"reason"`
	By     string `json:"by,omitempty"`
}

// POST /api/v1/admin/cancel/{code}
func (s *HTTPServer) handleCancelByCode(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.CancelByCode(r.Context(), mux.Vars(r)["code"])
	s.writeCancelResult(w, r, res, err)
}

// POST /api/v1/admin/complete-expired
// Partial progress is reported even when some updates failed.
func (s *HTTPServer) handleCompleteExpired(w http.ResponseWriter, r *http.Request) {
	done, err := s.engine.CompleteExpired(r.Context(), s.now())
	if done == nil {
		done = []models.Appointment{}
	}
	if err != nil && len(done) == 0 {
		s.writeEngineError(w, r, err)
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Int("completed", len(done)).Msg("complete expired partially failed")
	}
	writeJSON(w, http.StatusOK, completeResponse{Completed: len(done), Appointments: done})
}

// GET /api/v1/admin/export?month=YYYY-MM
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export disabled")
		return
	}
	month, err := export.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month format; expected YYYY-MM")
		return
	}

	var buf bytes.Buffer
	if err := s.exporter.WriteMonth(r.Context(), &buf, month); err != nil {
		s.logger.Error().Err(err).Str("month", month.Format("2006-01")).Msg("export failed")
		writeError(w, http.StatusServiceUnavailable, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(export.Filename(month))))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// PUT /api/v1/admin/clients/{owner}/ban
func (s *HTTPServer) handleBan(w http.ResponseWriter, r *http.Request) {
	if s.bans == nil {
		writeError(w, http.StatusNotImplemented, "ban management disabled")
		return
	}
	var req banRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	owner := mux.Vars(r)["owner"]
	if err := s.bans.Ban(r.Context(), owner, req.Reason, req.By); err != nil {
		s.writeBanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"owner": owner, "banned": true})
}

// DELETE /api/v1/admin/clients/{owner}/ban?by=
func (s *HTTPServer) handleUnban(w http.ResponseWriter, r *http.Request) {
	if s.bans == nil {
		writeError(w, http.StatusNotImplemented, "ban management disabled")
		return
	}
	owner := mux.Vars(r)["owner"]
	if err := s.bans.Unban(r.Context(), owner, r.URL.Query().Get("by")); err != nil {
		s.writeBanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"owner": owner, "banned": false})
}

func (s *HTTPServer) writeBanError(w http.ResponseWriter, err error) {
	if access.IsAccessDenied(err) {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	s.logger.Error().Err(err).Msg("ban update failed")
	writeError(w, http.StatusServiceUnavailable, "client store unavailable")
}
