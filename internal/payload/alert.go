package payload

import (
	"encoding/json"
	"fmt"
	"time"
)

// Alert severities as sent by device firmware.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Alert is one inbound alert event from a device.
//
// Known codes include threshold alerts (temperature_low, humidity_high,
// soil_moisture_low, water_level_critical), lifecycle events
// (wifi.disconnected, system.factory_reset, connection.mqtt_connected)
// and command progress (command.watering_started).
type Alert struct {
	Device    string          `json:"device"`
	User      string          `json:"user,omitempty"`
	Timestamp *int64          `json:"timestamp,omitempty"`
	Code      string          `json:"code,omitempty"`
	Severity  string          `json:"severity,omitempty"`
	Subsystem string          `json:"subsystem,omitempty"`
	Message   string          `json:"message,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// UnmarshalJSON decodes an alert, accepting the legacy "msg" field name
// for the human-readable message. Older firmware still sends it.
func (a *Alert) UnmarshalJSON(data []byte) error {
	type alias Alert
	aux := struct {
		*alias
		Msg string `json:"msg,omitempty"`
	}{alias: (*alias)(a)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if a.Message == "" && aux.Msg != "" {
		a.Message = aux.Msg
	}
	return nil
}

// ParseAlert decodes an inbound alert payload.
//
// Severity defaults to info when the device omits it, so downstream
// filtering never has to handle an empty severity.
//
// Parameters:
//   - data: Raw JSON bytes from the bus
//
// Returns:
//   - *Alert: Parsed payload
//   - error: ErrMalformedPayload if not JSON or missing the device field
func ParseAlert(data []byte) (*Alert, error) {
	var a Alert
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if a.Device == "" {
		return nil, fmt.Errorf("%w: missing device field", ErrMalformedPayload)
	}
	if a.Severity == "" {
		a.Severity = SeverityInfo
	}
	return &a, nil
}

// EffectiveTimestamp resolves the alert's timestamp against the time the
// message was received, preferring the device's epoch-millisecond value.
func (a *Alert) EffectiveTimestamp(received time.Time) time.Time {
	if a.Timestamp != nil && *a.Timestamp > 0 {
		return time.UnixMilli(*a.Timestamp)
	}
	return received
}
