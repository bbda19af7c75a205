package payload

import (
	"encoding/json"
	"fmt"
)

// Heartbeat is the periodic capability advertisement a device publishes
// to signal liveness. Only identity matters; capability detail is
// currently informational and not persisted.
type Heartbeat struct {
	Device string `json:"device"`
	User   string `json:"user,omitempty"`
}

// ParseHeartbeat decodes an inbound capabilities/heartbeat payload.
//
// Returns:
//   - *Heartbeat: Parsed payload
//   - error: ErrMalformedPayload if not JSON or missing the device field
func ParseHeartbeat(data []byte) (*Heartbeat, error) {
	var h Heartbeat
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if h.Device == "" {
		return nil, fmt.Errorf("%w: missing device field", ErrMalformedPayload)
	}
	return &h, nil
}
