package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device identity does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidMAC is returned when an identity does not normalise to
	// 12 hexadecimal characters.
	ErrInvalidMAC = errors.New("device: invalid mac address")

	// ErrUnknownDevice is returned under the strict policy when a message
	// arrives from an unregistered device.
	ErrUnknownDevice = errors.New("device: unknown device")

	// ErrAlertNotFound is returned when an alert ID does not exist.
	ErrAlertNotFound = errors.New("device: alert not found")
)
