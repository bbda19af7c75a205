package provisioning

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/garden-core/internal/device"
	"github.com/nerrad567/garden-core/internal/infrastructure/mqtt"
)

// mockOwnership records transfer calls and plays back canned results.
type mockOwnership struct {
	mu     sync.Mutex
	owners map[string]string
}

func newMockOwnership() *mockOwnership {
	return &mockOwnership{owners: make(map[string]string)}
}

func (m *mockOwnership) TransferOwnership(_ context.Context, rawMAC, newOwner string) (device.TransferResult, error) {
	mac, err := device.NormalizeMAC(rawMAC)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.owners[mac]
	m.owners[mac] = newOwner
	if ok && prev != newOwner {
		return device.TransferReset, nil
	}
	return device.TransferPreserved, nil
}

// mockCredentials is an in-memory CredentialRepository.
type mockCredentials struct {
	mu    sync.Mutex
	creds map[string]Credential
	fail  bool
}

func newMockCredentials() *mockCredentials {
	return &mockCredentials{creds: make(map[string]Credential)}
}

func (m *mockCredentials) FindByUsername(_ context.Context, username string) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[username]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return &c, nil
}

func (m *mockCredentials) Upsert(_ context.Context, cred *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("database locked")
	}
	m.creds[cred.Username] = *cred
	return nil
}

// mockGrants is an in-memory GrantRepository.
type mockGrants struct {
	mu     sync.Mutex
	grants map[string]Grant
}

func newMockGrants() *mockGrants {
	return &mockGrants{grants: make(map[string]Grant)}
}

func (m *mockGrants) key(username, topic string) string { return username + "|" + topic }

func (m *mockGrants) Exists(_ context.Context, username, topic string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.grants[m.key(username, topic)]
	return ok, nil
}

func (m *mockGrants) Insert(_ context.Context, grant *Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[m.key(grant.Username, grant.Topic)] = *grant
	return nil
}

// mockEvictor records evicted identities.
type mockEvictor struct {
	mu      sync.Mutex
	evicted []string
}

func (m *mockEvictor) EvictPending(mac string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evicted = append(m.evicted, mac)
}

// mockPurger records mirror purges.
type mockPurger struct {
	mu     sync.Mutex
	purged []string
}

func (m *mockPurger) PurgeDevice(_ context.Context, mac string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purged = append(m.purged, mac)
	return nil
}

func testManager() (*Manager, *mockOwnership, *mockCredentials, *mockGrants) {
	ownership := newMockOwnership()
	creds := newMockCredentials()
	grants := newMockGrants()
	m := NewManager(ownership, creds, grants, mqtt.Topics{Realm: "garden"}, "mqtts://broker.example:8883")
	return m, ownership, creds, grants
}

func TestManager_Register(t *testing.T) {
	m, _, creds, grants := testManager()
	ctx := context.Background()

	got, result, err := m.Register(ctx, "aa:bb:cc:dd:ee:ff", "alice")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if got.Login != "device_aabbccddeeff" {
		t.Errorf("Login = %q, want device_aabbccddeeff", got.Login)
	}
	if len(got.Secret) != secretLength {
		t.Errorf("len(Secret) = %d, want %d", len(got.Secret), secretLength)
	}
	if got.UserID != "alice" {
		t.Errorf("UserID = %q, want alice", got.UserID)
	}
	if got.BrokerURL != "mqtts://broker.example:8883" {
		t.Errorf("BrokerURL = %q", got.BrokerURL)
	}
	if result != device.TransferPreserved {
		t.Errorf("result = %q, want preserved for first registration", result)
	}

	// Secret is stored only as a hash.
	cred, err := creds.FindByUsername(ctx, "device_aabbccddeeff")
	if err != nil {
		t.Fatalf("FindByUsername() error = %v", err)
	}
	if cred.PasswordHash == got.Secret {
		t.Error("plaintext secret stored in credential table")
	}
	if ok, _ := VerifySecret(got.Secret, cred.PasswordHash); !ok {
		t.Error("stored hash does not verify against issued secret")
	}
	if cred.Superuser {
		t.Error("device credential marked superuser")
	}

	// Grant scopes the device to its own subtree.
	if ok, _ := grants.Exists(ctx, "device_aabbccddeeff", "garden/+/AABBCCDDEEFF/#"); !ok {
		t.Error("device subtree grant missing")
	}
}

func TestManager_Register_AlwaysRotates(t *testing.T) {
	m, _, _, _ := testManager()
	ctx := context.Background()

	first, _, err := m.Register(ctx, "AABBCCDDEEFF", "alice")
	if err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	second, result, err := m.Register(ctx, "AABBCCDDEEFF", "alice")
	if err != nil {
		t.Fatalf("second Register() error = %v", err)
	}

	if first.Secret == second.Secret {
		t.Error("re-provisioning did not rotate the secret")
	}
	if result != device.TransferPreserved {
		t.Errorf("result = %q, want preserved for same owner", result)
	}
}

func TestManager_Register_OwnershipChange(t *testing.T) {
	m, _, _, _ := testManager()
	evictor := &mockEvictor{}
	purger := &mockPurger{}
	m.SetPendingEvictor(evictor)
	m.SetMirrorPurger(purger)
	ctx := context.Background()

	if _, _, err := m.Register(ctx, "AABBCCDDEEFF", "alice"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, result, err := m.Register(ctx, "AABBCCDDEEFF", "bob")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if result != device.TransferReset {
		t.Errorf("result = %q, want reset for new owner", result)
	}
	if len(evictor.evicted) != 1 || evictor.evicted[0] != "AABBCCDDEEFF" {
		t.Errorf("evicted = %v, want the transferred device", evictor.evicted)
	}
	if len(purger.purged) != 1 || purger.purged[0] != "AABBCCDDEEFF" {
		t.Errorf("purged = %v, want the transferred device", purger.purged)
	}
}

func TestManager_Register_Validation(t *testing.T) {
	m, _, _, _ := testManager()
	ctx := context.Background()

	if _, _, err := m.Register(ctx, "AABBCCDDEEFF", ""); !errors.Is(err, ErrMissingOwner) {
		t.Errorf("error = %v, want ErrMissingOwner", err)
	}
	if _, _, err := m.Register(ctx, "not-a-mac", "alice"); !errors.Is(err, device.ErrInvalidMAC) {
		t.Errorf("error = %v, want ErrInvalidMAC", err)
	}
}

func TestManager_Register_PersistenceFailureSurfaced(t *testing.T) {
	m, _, creds, _ := testManager()
	creds.fail = true
	ctx := context.Background()

	if _, _, err := m.Register(ctx, "AABBCCDDEEFF", "alice"); err == nil {
		t.Error("Register() succeeded despite credential persistence failure")
	}
}

func TestManager_SeedBackendIdentity(t *testing.T) {
	m, _, creds, grants := testManager()
	ctx := context.Background()

	if err := m.SeedBackendIdentity(ctx, "gardencore-backend", "s3cret"); err != nil {
		t.Fatalf("SeedBackendIdentity() error = %v", err)
	}

	cred, err := creds.FindByUsername(ctx, "gardencore-backend")
	if err != nil {
		t.Fatalf("FindByUsername() error = %v", err)
	}
	if !cred.Superuser {
		t.Error("backend credential not superuser")
	}
	if ok, _ := grants.Exists(ctx, "gardencore-backend", "garden/#"); !ok {
		t.Error("realm-wide backend grant missing")
	}

	// Seeding again must not rotate the configured password.
	firstHash := cred.PasswordHash
	if err := m.SeedBackendIdentity(ctx, "gardencore-backend", "different"); err != nil {
		t.Fatalf("second SeedBackendIdentity() error = %v", err)
	}
	cred, _ = creds.FindByUsername(ctx, "gardencore-backend")
	if cred.PasswordHash != firstHash {
		t.Error("re-seeding rotated the backend password")
	}
}
