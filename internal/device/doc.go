// Package device manages garden device identity, liveness and history.
//
// Devices are identified by normalised MAC address (12 uppercase hex
// characters, no separators). Every inbound message carries a device
// identity; the Directory resolves it to a registered device, applying
// the configured unknown-device policy:
//
//   - strict: messages from unregistered devices are dropped
//   - permissive: unregistered devices are auto-registered on first contact
//
// The Directory also owns ownership transfer. Moving a device to a new
// owner purges its measurement and alert history in one transaction, so
// the new owner never sees the previous owner's data. Re-provisioning
// under the same owner leaves history untouched.
//
// Persistence follows the repository pattern: Repository,
// MeasurementRepository and AlertRepository interfaces with SQLite
// implementations, mockable for tests.
package device
