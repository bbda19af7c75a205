package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Directory.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Directory resolves device identities and applies the unknown-device
// policy. It is the single gate through which ingestion touches device
// records.
//
// Record writes are serialised per device: two concurrent inbound
// messages for the same device cannot interleave a liveness touch with
// an ownership transfer. Different devices proceed in parallel.
//
// All public methods are thread-safe.
type Directory struct {
	repo   Repository
	strict bool
	logger Logger

	// locks holds one mutex per device identity, created on first use.
	locks   map[string]*sync.Mutex
	locksMu sync.Mutex
}

// NewDirectory creates a device directory.
//
// Parameters:
//   - repo: Device persistence
//   - strict: Unknown-device policy; true drops unregistered devices,
//     false auto-registers them on first contact
func NewDirectory(repo Repository, strict bool) *Directory {
	return &Directory{
		repo:   repo,
		strict: strict,
		logger: noopLogger{},
		locks:  make(map[string]*sync.Mutex),
	}
}

// SetLogger sets the logger for the directory.
func (d *Directory) SetLogger(logger Logger) {
	d.logger = logger
}

// lockFor returns the mutex serialising writes for one device.
func (d *Directory) lockFor(mac string) *sync.Mutex {
	d.locksMu.Lock()
	defer d.locksMu.Unlock()

	mu, ok := d.locks[mac]
	if !ok {
		mu = &sync.Mutex{}
		d.locks[mac] = mu
	}
	return mu
}

// Resolve looks up a device by raw identity.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - rawMAC: Device identity in any accepted wire form
//
// Returns:
//   - *Device: The registered device
//   - error: ErrInvalidMAC or ErrDeviceNotFound
func (d *Directory) Resolve(ctx context.Context, rawMAC string) (*Device, error) {
	mac, err := NormalizeMAC(rawMAC)
	if err != nil {
		return nil, err
	}
	return d.repo.GetByMAC(ctx, mac)
}

// ResolveForIngestion looks up a device during message ingestion,
// applying the unknown-device policy.
//
// Under the strict policy an unregistered device yields ErrUnknownDevice
// and the caller drops the message. Under the permissive policy the
// device is registered on the spot with the claimed owner and a default
// friendly name.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - rawMAC: Device identity in any accepted wire form
//   - claimedOwner: Owner asserted by the message payload; used only
//     when auto-registering, empty falls back to "unknown"
//
// Returns:
//   - *Device: The resolved (possibly newly registered) device
//   - error: ErrInvalidMAC, or ErrUnknownDevice under the strict policy
func (d *Directory) ResolveForIngestion(ctx context.Context, rawMAC, claimedOwner string) (*Device, error) {
	mac, err := NormalizeMAC(rawMAC)
	if err != nil {
		return nil, err
	}

	mu := d.lockFor(mac)
	mu.Lock()
	defer mu.Unlock()

	dev, err := d.repo.GetByMAC(ctx, mac)
	if err == nil {
		return dev, nil
	}
	if !errors.Is(err, ErrDeviceNotFound) {
		return nil, err
	}

	if d.strict {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, mac)
	}

	owner := claimedOwner
	if owner == "" {
		owner = "unknown"
	}

	now := time.Now().UTC()
	dev = &Device{
		MAC:          mac,
		UserID:       owner,
		FriendlyName: FriendlyName(mac),
		Online:       true,
		LastSeen:     &now,
	}
	if err := d.repo.Create(ctx, dev); err != nil {
		// Lost a race with another registration path; re-read.
		if errors.Is(err, ErrDeviceExists) {
			return d.repo.GetByMAC(ctx, mac)
		}
		return nil, err
	}

	d.logger.Info("auto-registered device", "mac", mac, "owner", owner)
	return dev, nil
}

// TouchLiveness marks a device online and updates its last-seen
// timestamp. Called for every inbound message from the device.
func (d *Directory) TouchLiveness(ctx context.Context, mac string, seen time.Time) error {
	mu := d.lockFor(mac)
	mu.Lock()
	defer mu.Unlock()

	return d.repo.TouchLiveness(ctx, mac, true, seen)
}

// TransferOwnership assigns a device to a new owner.
//
// Behaviour depends on the device's current state:
//   - unregistered: the device is created under the new owner
//   - same owner: no-op on history, result is TransferPreserved
//   - different owner: measurements and alerts are purged in one
//     transaction with the reassignment, result is TransferReset
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - rawMAC: Device identity in any accepted wire form
//   - newOwner: User taking ownership
//
// Returns:
//   - TransferResult: What happened to the device's history
//   - error: ErrInvalidMAC, or a persistence error
func (d *Directory) TransferOwnership(ctx context.Context, rawMAC, newOwner string) (TransferResult, error) {
	mac, err := NormalizeMAC(rawMAC)
	if err != nil {
		return "", err
	}

	mu := d.lockFor(mac)
	mu.Lock()
	defer mu.Unlock()

	dev, err := d.repo.GetByMAC(ctx, mac)
	if errors.Is(err, ErrDeviceNotFound) {
		dev = &Device{
			MAC:          mac,
			UserID:       newOwner,
			FriendlyName: FriendlyName(mac),
		}
		if err := d.repo.Create(ctx, dev); err != nil {
			return "", err
		}
		d.logger.Info("registered device", "mac", mac, "owner", newOwner)
		return TransferPreserved, nil
	}
	if err != nil {
		return "", err
	}

	if dev.UserID == newOwner {
		return TransferPreserved, nil
	}

	if err := d.repo.Reassign(ctx, mac, newOwner, true); err != nil {
		return "", err
	}

	d.logger.Info("device ownership transferred",
		"mac", mac, "previous_owner", dev.UserID, "new_owner", newOwner)
	return TransferReset, nil
}
