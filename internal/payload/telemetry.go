package payload

import (
	"encoding/json"
	"fmt"
	"time"
)

// SensorReadings holds one sample of the optional sensor fields a device
// may report. Every field is a pointer: a nil value means the device did
// not send that reading, which is different from a zero reading.
type SensorReadings struct {
	SoilMoisture *int     `json:"soil_moisture_pct,omitempty"`
	Temperature  *float64 `json:"air_temperature_c,omitempty"`
	Humidity     *float64 `json:"air_humidity_pct,omitempty"`
	Pressure     *float64 `json:"pressure_hpa,omitempty"`
	LightLux     *float64 `json:"light_lux,omitempty"`
	WaterTankOK  *bool    `json:"water_tank_ok,omitempty"`
}

// Fields returns the readings that are actually present, keyed by wire
// name. Used for the time-series mirror, which must not record absent
// sensors as zeroes.
func (s *SensorReadings) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if s == nil {
		return fields
	}
	if s.SoilMoisture != nil {
		fields["soil_moisture_pct"] = *s.SoilMoisture
	}
	if s.Temperature != nil {
		fields["air_temperature_c"] = *s.Temperature
	}
	if s.Humidity != nil {
		fields["air_humidity_pct"] = *s.Humidity
	}
	if s.Pressure != nil {
		fields["pressure_hpa"] = *s.Pressure
	}
	if s.LightLux != nil {
		fields["light_lux"] = *s.LightLux
	}
	if s.WaterTankOK != nil {
		fields["water_tank_ok"] = *s.WaterTankOK
	}
	return fields
}

// Telemetry is one inbound sensor sample from a device.
//
// Devices without a synchronised clock report sample age as seconds_ago
// instead of an absolute timestamp (epoch milliseconds). When both are
// present, seconds_ago wins since the device's wall clock cannot be
// trusted in that state.
type Telemetry struct {
	Device     string          `json:"device"`
	User       string          `json:"user,omitempty"`
	Timestamp  *int64          `json:"timestamp,omitempty"`
	SecondsAgo *int64          `json:"seconds_ago,omitempty"`
	Sensors    *SensorReadings `json:"sensors,omitempty"`
}

// ParseTelemetry decodes an inbound telemetry payload.
//
// Parameters:
//   - data: Raw JSON bytes from the bus
//
// Returns:
//   - *Telemetry: Parsed payload
//   - error: ErrMalformedPayload if not JSON or missing the device field
func ParseTelemetry(data []byte) (*Telemetry, error) {
	var t Telemetry
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if t.Device == "" {
		return nil, fmt.Errorf("%w: missing device field", ErrMalformedPayload)
	}
	return &t, nil
}

// EffectiveTimestamp resolves the sample's timestamp against the time
// the message was received.
//
// Resolution order: seconds_ago relative to receipt, then the absolute
// epoch-millisecond timestamp, then the receipt time itself.
func (t *Telemetry) EffectiveTimestamp(received time.Time) time.Time {
	switch {
	case t.SecondsAgo != nil && *t.SecondsAgo >= 0:
		return received.Add(-time.Duration(*t.SecondsAgo) * time.Second)
	case t.Timestamp != nil && *t.Timestamp > 0:
		return time.UnixMilli(*t.Timestamp)
	default:
		return received
	}
}
