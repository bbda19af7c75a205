package device

import (
	"encoding/json"
	"time"
)

// Device is a registered garden controller.
//
// MAC is the canonical identity (see NormalizeMAC). UserID is the owning
// user; owner-scoped MQTT topics and event channels derive from it.
// ActiveProfile is backend-only metadata naming the plant profile whose
// thresholds were last pushed to the device.
type Device struct {
	MAC           string     `json:"mac"`
	UserID        string     `json:"user_id"`
	FriendlyName  string     `json:"friendly_name"`
	Online        bool       `json:"online"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
	ActiveProfile *string    `json:"active_profile,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Measurement is one persisted sensor sample. Reading fields are
// pointers: nil means the device did not report that sensor in this
// sample.
type Measurement struct {
	ID           int64     `json:"id"`
	DeviceMAC    string    `json:"device_mac"`
	Timestamp    time.Time `json:"timestamp"`
	SoilMoisture *int      `json:"soil_moisture,omitempty"`
	Temperature  *float64  `json:"temperature,omitempty"`
	Humidity     *float64  `json:"humidity,omitempty"`
	Pressure     *float64  `json:"pressure,omitempty"`
	LightLux     *float64  `json:"light_lux,omitempty"`
	WaterTankOK  *bool     `json:"water_tank_ok,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Alert is one persisted alert event. Alerts are immutable except for
// the read flag, which transitions false to true exactly once.
type Alert struct {
	ID        int64           `json:"id"`
	DeviceMAC string          `json:"device_mac"`
	Timestamp time.Time       `json:"timestamp"`
	Code      string          `json:"code"`
	Severity  string          `json:"severity"`
	Subsystem string          `json:"subsystem,omitempty"`
	Message   string          `json:"message,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
}

// TransferResult describes what happened to a device's history during
// an ownership transfer.
type TransferResult string

const (
	// TransferPreserved means the owner was unchanged (or the device is
	// new) and history was kept.
	TransferPreserved TransferResult = "preserved"

	// TransferReset means the device moved to a different owner and its
	// measurement/alert history was purged.
	TransferReset TransferResult = "reset"
)
