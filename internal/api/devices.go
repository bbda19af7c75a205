package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/garden-core/internal/device"
	"github.com/nerrad567/garden-core/internal/gateway"
	"github.com/nerrad567/garden-core/internal/payload"
)

// History listing limits.
const (
	defaultMeasurementLimit = 100
	defaultAlertLimit       = 50
	maxListLimit            = 1000
)

// handleListDevices returns all devices, optionally filtered by owner.
//
// Query parameters:
//   - user_id: filter by owning user
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		devices []device.Device
		err     error
	)
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		devices, err = s.devices.ListByUser(ctx, userID)
	} else {
		devices, err = s.devices.List(ctx)
	}
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by MAC.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	mac, ok := s.macParam(w, r)
	if !ok {
		return
	}

	dev, err := s.devices.GetByMAC(r.Context(), mac)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleListMeasurements returns recent sensor samples, newest first.
//
// Query parameters:
//   - limit: maximum rows to return (default 100, capped at 1000)
func (s *Server) handleListMeasurements(w http.ResponseWriter, r *http.Request) {
	mac, ok := s.macParam(w, r)
	if !ok {
		return
	}

	limit := queryLimit(r, defaultMeasurementLimit)
	samples, err := s.measurements.ListByDevice(r.Context(), mac, limit)
	if err != nil {
		writeInternalError(w, "failed to list measurements")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"measurements": samples, "count": len(samples)})
}

// handleLatestMeasurement returns the most recent sensor sample.
func (s *Server) handleLatestMeasurement(w http.ResponseWriter, r *http.Request) {
	mac, ok := s.macParam(w, r)
	if !ok {
		return
	}

	sample, err := s.measurements.Latest(r.Context(), mac)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "no measurements for device")
			return
		}
		writeInternalError(w, "failed to get latest measurement")
		return
	}

	writeJSON(w, http.StatusOK, sample)
}

// handleListAlerts returns recent alerts, newest first.
//
// Query parameters:
//   - limit: maximum rows to return (default 50, capped at 1000)
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	mac, ok := s.macParam(w, r)
	if !ok {
		return
	}

	limit := queryLimit(r, defaultAlertLimit)
	alerts, err := s.alerts.ListByDevice(r.Context(), mac, limit)
	if err != nil {
		writeInternalError(w, "failed to list alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

// handleUnreadAlertCount returns the number of unread alerts for a device.
func (s *Server) handleUnreadAlertCount(w http.ResponseWriter, r *http.Request) {
	mac, ok := s.macParam(w, r)
	if !ok {
		return
	}

	count, err := s.alerts.CountUnread(r.Context(), mac)
	if err != nil {
		writeInternalError(w, "failed to count unread alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

// handleMarkAlertRead flips an alert's read flag. Idempotent.
func (s *Server) handleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.macParam(w, r); !ok {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid alert id")
		return
	}

	if err := s.alerts.MarkRead(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrAlertNotFound) {
			writeNotFound(w, "alert not found")
			return
		}
		writeInternalError(w, "failed to mark alert read")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// waterRequest is the optional body for a water command.
type waterRequest struct {
	Duration *int `json:"duration"`
}

// handleWaterCommand publishes a watering command to the device.
// The command is asynchronous; the response is 202 Accepted.
func (s *Server) handleWaterCommand(w http.ResponseWriter, r *http.Request) {
	mac := chi.URLParam(r, "mac")

	var req waterRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	if req.Duration != nil && *req.Duration <= 0 {
		writeBadRequest(w, "duration must be positive")
		return
	}

	if err := s.gateway.SendWaterCommand(r.Context(), mac, req.Duration); err != nil {
		s.writeCommandError(w, err, "failed to send water command")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

// measureRequest is the optional body for a measure command.
type measureRequest struct {
	Fields []string `json:"fields"`
}

// handleMeasureCommand asks the device for an immediate sensor read.
func (s *Server) handleMeasureCommand(w http.ResponseWriter, r *http.Request) {
	mac := chi.URLParam(r, "mac")

	var req measureRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}

	if err := s.gateway.SendMeasureCommand(r.Context(), mac, req.Fields); err != nil {
		s.writeCommandError(w, err, "failed to send measure command")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

// handleGetSettings reads the device's current settings over the bus.
//
// A device that does not answer within the configured deadline yields an
// empty snapshot with 200, not an error: the caller learns "current state
// unknown" and the UI falls back to defaults.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	mac := chi.URLParam(r, "mac")

	snapshot, err := s.gateway.RequestSettings(r.Context(), mac)
	if err != nil {
		if errors.Is(err, gateway.ErrSettingsTimeout) {
			s.logger.Warn("settings read timed out", "mac", mac)
			writeJSON(w, http.StatusOK, &payload.Settings{})
			return
		}
		s.writeCommandError(w, err, "failed to read settings")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// handleUpdateSettings publishes a partial settings snapshot to the device.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	mac := chi.URLParam(r, "mac")

	var snapshot payload.Settings
	if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if snapshot.IsEmpty() {
		writeBadRequest(w, "no settings fields provided")
		return
	}

	if err := s.gateway.UpdateSettings(r.Context(), mac, &snapshot); err != nil {
		s.writeCommandError(w, err, "failed to send settings update")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

// handleResetSettings tells the device to restore its firmware defaults.
func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	mac := chi.URLParam(r, "mac")

	if err := s.gateway.ResetSettings(r.Context(), mac); err != nil {
		s.writeCommandError(w, err, "failed to send settings reset")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

// writeCommandError maps gateway command errors to HTTP responses.
func (s *Server) writeCommandError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, device.ErrInvalidMAC):
		writeBadRequest(w, "invalid device identity")
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}

// macParam extracts and normalises the {mac} route parameter.
// Writes a 400 response and returns false on an invalid identity.
func (s *Server) macParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	mac, err := device.NormalizeMAC(chi.URLParam(r, "mac"))
	if err != nil {
		writeBadRequest(w, "invalid device identity")
		return "", false
	}
	return mac, true
}

// decodeOptionalBody decodes a JSON body into v, treating an empty body
// as an empty object. Writes a 400 response and returns false on bad JSON.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// queryLimit parses the limit query parameter with a default and cap.
func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return def
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
