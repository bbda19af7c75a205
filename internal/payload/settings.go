package payload

import (
	"encoding/json"
	"fmt"
)

// Settings is the sparse threshold/duration snapshot exchanged with a
// device. The device owns the authoritative values; this structure is
// only a request/response DTO.
//
// All fields are pointers with omitempty: a partial update serialises
// only the fields the caller set, and the device leaves unspecified
// fields untouched. ActiveProfileName is backend-only metadata echoed
// for client convenience; firmware ignores it.
type Settings struct {
	TempMin  *float64 `json:"temp_min,omitempty"`
	TempMax  *float64 `json:"temp_max,omitempty"`
	HumMin   *float64 `json:"hum_min,omitempty"`
	HumMax   *float64 `json:"hum_max,omitempty"`
	SoilMin  *int     `json:"soil_min,omitempty"`
	SoilMax  *int     `json:"soil_max,omitempty"`
	LightMin *float64 `json:"light_min,omitempty"`
	LightMax *float64 `json:"light_max,omitempty"`

	WateringDurationSeconds    *int `json:"watering_duration_sec,omitempty"`
	MeasurementIntervalSeconds *int `json:"measurement_interval_sec,omitempty"`

	ActiveProfileName *string `json:"active_profile_name,omitempty"`
}

// ParseSettings decodes a settings/state response payload.
//
// Unlike telemetry and alerts, the device field is not required here:
// the topic the response arrived on already identifies the device, and
// firmware revisions differ in whether they repeat the identity in the
// body.
//
// Returns:
//   - *Settings: Parsed snapshot (possibly empty)
//   - error: ErrMalformedPayload if not valid JSON
func ParseSettings(data []byte) (*Settings, error) {
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return &s, nil
}

// IsEmpty reports whether no field of the snapshot is set.
func (s *Settings) IsEmpty() bool {
	return s.TempMin == nil && s.TempMax == nil &&
		s.HumMin == nil && s.HumMax == nil &&
		s.SoilMin == nil && s.SoilMax == nil &&
		s.LightMin == nil && s.LightMax == nil &&
		s.WateringDurationSeconds == nil &&
		s.MeasurementIntervalSeconds == nil &&
		s.ActiveProfileName == nil
}

// WaterCommand is the outbound payload for a watering command. An empty
// payload (nil duration) tells the device to use its own configured
// watering duration.
type WaterCommand struct {
	Duration *int `json:"duration,omitempty"`
}

// MeasureCommand is the outbound payload for an on-demand sensor read.
// An empty field list requests all sensors.
type MeasureCommand struct {
	Fields []string `json:"fields,omitempty"`
}
