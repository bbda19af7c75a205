package gateway

import "time"

// Event types broadcast to connected clients.
const (
	EventTelemetryReceived = "telemetry.received"
	EventAlertRaised       = "alert.raised"
	EventDeviceOnline      = "device.online"
)

// Event is a realtime notification fanned out to interested clients.
// Channels name the subscription channels the event belongs to, e.g.
// "device:AABBCCDDEEFF" and "user:alice".
type Event struct {
	Type      string    `json:"type"`
	Device    string    `json:"device"`
	Owner     string    `json:"owner,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Channels []string `json:"-"`
}

// DeviceChannel returns the per-device event channel name.
func DeviceChannel(mac string) string { return "device:" + mac }

// UserChannel returns the per-owner event channel name.
func UserChannel(owner string) string { return "user:" + owner }

// EventSink receives events for fan-out. Implemented by the WebSocket
// hub; a nil-safe noop is used when no sink is configured.
type EventSink interface {
	Broadcast(event Event)
}

// noopSink discards events.
type noopSink struct{}

func (noopSink) Broadcast(Event) {}
