package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/hwcd/internal/display"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snap := s.display.Snapshot()
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		SessionID:     snap.SessionID,
		RefreshRate:   snap.Refresh.Current,
		DroppedEvents: s.events.Dropped(),
	})
}

// handleStatus handles GET /display.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.display.Snapshot())
}

// handlePerform handles POST /display/perform.
func (s *Server) handlePerform(w http.ResponseWriter, r *http.Request) {
	var req PerformRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tag, err := display.ParseTag(req.Operation)
	if err != nil {
		s.logger.Warn("invalid operation", "operation", req.Operation, "error", err)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	op, err := display.ParseOperation(tag, req.Value)
	if err != nil {
		s.logger.Warn("invalid operation", "operation", req.Operation, "value", req.Value, "error", err)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = s.display.Perform(op)
	resp := PerformResponse{Operation: tag.String(), Status: "ok"}
	code := http.StatusOK
	if err != nil {
		code = statusFor(err)
		resp.Status = "error"
		resp.Error = err.Error()
	}
	resp.Display = s.display.Snapshot()
	respondJSON(w, code, resp)
}

// handleRefresh handles POST /display/refresh. A refresh that was not pending
// still lowers the rate, so it is reported as a result rather than an error.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.display.Refresh()
	result := "invalidated"
	switch {
	case err == nil:
	case errors.Is(err, display.ErrNotSupported):
		result = "not_supported"
	default:
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, RefreshResponse{
		Result:      result,
		RefreshRate: s.display.Snapshot().Refresh.Current,
	})
}

// handleSecure handles PUT /display/secure.
func (s *Server) handleSecure(w http.ResponseWriter, r *http.Request) {
	var req SecureRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.display.SetSecureDisplay(req.Active)
	respondJSON(w, http.StatusOK, s.display.Snapshot().Flags)
}

// handlePaused handles PUT /display/paused.
func (s *Server) handlePaused(w http.ResponseWriter, r *http.Request) {
	var req PausedRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.display.SetPaused(req.Paused)
	respondJSON(w, http.StatusOK, s.display.Snapshot().Flags)
}

// handleSessions handles GET /display/sessions?limit=N.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "session history not configured")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	recs, err := s.history.Recent(r.Context(), s.display.Snapshot().DisplayID, limit)
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": recs})
}

// handleProperties handles GET /properties.
func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	if s.props == nil {
		s.writeError(w, http.StatusNotFound, "property store not configured")
		return
	}
	respondJSON(w, http.StatusOK, s.props.Snapshot())
}

// handleReloadProperties handles POST /properties/reload.
func (s *Server) handleReloadProperties(w http.ResponseWriter, r *http.Request) {
	if s.props == nil {
		s.writeError(w, http.StatusNotFound, "property store not configured")
		return
	}
	if err := s.props.Reload(); err != nil {
		s.logger.Warn("property reload failed", "error", err)
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.logger.Info("properties reloaded")
	s.events.Publish("properties.reloaded", nil)
	respondJSON(w, http.StatusOK, s.props.Snapshot())
}

// statusFor maps session errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, display.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, display.ErrApply):
		return http.StatusConflict
	case errors.Is(err, display.ErrDestroyed), errors.Is(err, display.ErrParameters):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
