package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/garden-core/internal/device"
	"github.com/nerrad567/garden-core/internal/infrastructure/mqtt"
)

// deviceLoginPrefix prefixes every device broker login. The firmware
// derives the same login from its own MAC, so this is wire-compatible
// with deployed controllers.
const deviceLoginPrefix = "device_"

// ErrMissingOwner is returned when registration is attempted without a
// target user.
var ErrMissingOwner = errors.New("provisioning: owner is required")

// Credentials is the provisioning response handed back to the caller,
// who passes it to the device over the setup channel (BLE/SoftAP). The
// plaintext secret appears here and nowhere else.
type Credentials struct {
	Login     string `json:"mqtt_login"`
	Secret    string `json:"mqtt_password"`
	UserID    string `json:"user_id"`
	BrokerURL string `json:"broker_url"`
}

// OwnershipDirectory is the slice of the device directory that
// provisioning needs.
type OwnershipDirectory interface {
	TransferOwnership(ctx context.Context, rawMAC, newOwner string) (device.TransferResult, error)
}

// PendingEvictor drops in-flight settings reads for a device.
// Implemented by the gateway; optional.
type PendingEvictor interface {
	EvictPending(mac string)
}

// MirrorPurger removes a device's mirrored telemetry.
// Implemented by the InfluxDB client; optional.
type MirrorPurger interface {
	PurgeDevice(ctx context.Context, mac string) error
}

// Logger defines the logging interface used by the Manager.
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

// Manager orchestrates device registration: ownership assignment,
// credential rotation and topic grants.
type Manager struct {
	directory   OwnershipDirectory
	credentials CredentialRepository
	grants      GrantRepository
	topics      mqtt.Topics

	brokerURL string

	evictor PendingEvictor
	mirror  MirrorPurger
	logger  Logger
}

// NewManager creates a provisioning manager.
//
// Parameters:
//   - directory: Ownership transfer authority
//   - credentials: Broker login persistence
//   - grants: Broker ACL persistence
//   - topics: Topic grammar for the configured realm
//   - brokerURL: Public broker address returned to devices
func NewManager(
	directory OwnershipDirectory,
	credentials CredentialRepository,
	grants GrantRepository,
	topics mqtt.Topics,
	brokerURL string,
) *Manager {
	return &Manager{
		directory:   directory,
		credentials: credentials,
		grants:      grants,
		topics:      topics,
		brokerURL:   brokerURL,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetPendingEvictor wires the gateway's pending-request eviction.
func (m *Manager) SetPendingEvictor(evictor PendingEvictor) {
	m.evictor = evictor
}

// SetMirrorPurger wires the telemetry mirror purge for ownership resets.
func (m *Manager) SetMirrorPurger(mirror MirrorPurger) {
	m.mirror = mirror
}

// Register provisions a device for an owner.
//
// The operation is all-or-nothing per attempt and safe to retry:
// rotation simply issues another new secret. On ownership change the
// previous owner's history is purged (authoritative store and mirror)
// and any in-flight settings read is evicted.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - rawMAC: Device identity in any accepted wire form
//   - owner: User taking ownership
//
// Returns:
//   - *Credentials: Fresh broker credentials for the device
//   - device.TransferResult: Whether history was preserved or reset
//   - error: device.ErrInvalidMAC, ErrMissingOwner, or a persistence error
func (m *Manager) Register(ctx context.Context, rawMAC, owner string) (*Credentials, device.TransferResult, error) {
	if owner == "" {
		return nil, "", ErrMissingOwner
	}

	mac, err := device.NormalizeMAC(rawMAC)
	if err != nil {
		return nil, "", err
	}

	result, err := m.directory.TransferOwnership(ctx, mac, owner)
	if err != nil {
		return nil, "", fmt.Errorf("assigning ownership of %s: %w", mac, err)
	}

	if result == device.TransferReset {
		if m.evictor != nil {
			m.evictor.EvictPending(mac)
		}
		if m.mirror != nil {
			if err := m.mirror.PurgeDevice(ctx, mac); err != nil {
				// The authoritative purge already committed; a stale
				// mirror is logged, not fatal.
				m.logger.Error("mirror purge failed", "mac", mac, "error", err)
			}
		}
	}

	login := deviceLoginPrefix + strings.ToLower(mac)

	secret := NewSecret()
	hash, err := HashSecret(secret)
	if err != nil {
		return nil, "", fmt.Errorf("hashing device secret: %w", err)
	}

	if err := m.credentials.Upsert(ctx, &Credential{
		Username:     login,
		PasswordHash: hash,
		Superuser:    false,
	}); err != nil {
		return nil, "", fmt.Errorf("rotating credentials for %s: %w", login, err)
	}

	if err := m.ensureGrant(ctx, login, m.topics.DeviceSubtree(mac)); err != nil {
		return nil, "", err
	}

	m.logger.Info("device provisioned",
		"mac", mac, "owner", owner, "login", login, "history", string(result))

	return &Credentials{
		Login:     login,
		Secret:    secret,
		UserID:    owner,
		BrokerURL: m.brokerURL,
	}, result, nil
}

// SeedBackendIdentity ensures the backend's own broker login exists.
//
// Unlike device registration this does not rotate: the backend password
// comes from configuration and is only written when the login is
// missing. The realm-wide grant is ensured even when the login already
// existed.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - login: Backend broker username
//   - password: Backend broker password from configuration
func (m *Manager) SeedBackendIdentity(ctx context.Context, login, password string) error {
	if login == "" {
		return nil
	}

	_, err := m.credentials.FindByUsername(ctx, login)
	switch {
	case errors.Is(err, ErrCredentialNotFound):
		hash, hashErr := HashSecret(password)
		if hashErr != nil {
			return fmt.Errorf("hashing backend password: %w", hashErr)
		}
		if upsertErr := m.credentials.Upsert(ctx, &Credential{
			Username:     login,
			PasswordHash: hash,
			Superuser:    true,
		}); upsertErr != nil {
			return fmt.Errorf("seeding backend credential: %w", upsertErr)
		}
		m.logger.Info("seeded backend broker identity", "login", login)
	case err != nil:
		return fmt.Errorf("checking backend credential: %w", err)
	}

	return m.ensureGrant(ctx, login, m.topics.All())
}

// ensureGrant inserts a read-write grant if it is not already present.
func (m *Manager) ensureGrant(ctx context.Context, username, topic string) error {
	exists, err := m.grants.Exists(ctx, username, topic)
	if err != nil {
		return fmt.Errorf("checking grant for %s: %w", username, err)
	}
	if exists {
		return nil
	}

	if err := m.grants.Insert(ctx, &Grant{
		Username: username,
		Topic:    topic,
		RW:       AccessReadWrite,
	}); err != nil {
		return fmt.Errorf("granting %s on %s: %w", username, topic, err)
	}
	return nil
}
