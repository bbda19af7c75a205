package payload

import "errors"

// Domain-specific errors for payload parsing.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrMalformedPayload is returned when a payload is not valid JSON or
	// is missing the required device field.
	ErrMalformedPayload = errors.New("payload: malformed")
)
