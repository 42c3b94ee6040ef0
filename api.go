package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/oszuidwest/zwfm-meter/internal/events"
	"github.com/oszuidwest/zwfm-meter/internal/server"
	"github.com/oszuidwest/zwfm-meter/internal/types"
)

// Limits for the event log API.
const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseJSON reads and parses JSON from request body.
// Returns parsed value and true on success, zero value and false on failure.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	return v, true
}

// handleAPIStatus returns the full meter status.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.buildStatus())
}

// handleAPIDevices returns available audio devices.
// GET /api/devices
func (s *Server) handleAPIDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"devices": s.devices(),
	})
}

// handleAPIEvents returns the newest lifecycle events from the event log.
// GET /api/events?limit=N
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	cfg := s.config.Snapshot()
	if !cfg.HasEventLog() {
		s.writeError(w, http.StatusNotFound, "Event log not configured")
		return
	}

	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = min(n, maxEventLimit)
	}

	entries, err := events.ReadLast(cfg.EventLog, limit)
	if err != nil {
		slog.Error("failed to read event log", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to read event log")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"events": entries,
	})
}

// handleAPIMeter returns or partially updates the meter settings.
// GET /api/meter, POST /api/meter
func (s *Server) handleAPIMeter(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.config.Snapshot().Meter)
	case http.MethodPost:
		req, ok := parseJSON[server.MeterUpdateRequest](s, w, r)
		if !ok {
			return
		}
		if err := server.ValidateStruct(&req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err})
			return
		}
		if err := s.station.UpdateMeter(req.Apply(s.config.Snapshot().Meter)); err != nil {
			var verr *types.ValidationError
			if errors.As(err, &verr) {
				s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr})
				return
			}
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, s.config.Snapshot().Meter)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleMeterPNG renders the last meter frame as a PNG image.
// GET /meter.png
func (s *Server) handleMeterPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var buf bytes.Buffer
	if err := s.station.RenderPNG(&buf); err != nil {
		slog.Error("failed to render meter image", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to render meter")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("failed to write meter image", "error", err)
	}
}
