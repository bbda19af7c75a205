package gateway

import "errors"

// Domain-specific errors for gateway operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrSettingsTimeout is returned when a settings read receives no
	// response from the device within the deadline. Callers should treat
	// this as "current state unknown", not as a hard failure.
	ErrSettingsTimeout = errors.New("gateway: settings request timed out")
)
