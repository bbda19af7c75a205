package provisioning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Broker ACL access levels (Mosquitto convention).
const (
	AccessRead      = 1
	AccessWrite     = 2
	AccessReadWrite = 3
)

// Credential is one broker login. The plaintext secret is never stored;
// PasswordHash is an Argon2id PHC string the broker's auth plugin
// verifies against.
type Credential struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Superuser    bool      `json:"superuser"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Grant is one broker ACL row scoping a login to a topic pattern.
type Grant struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Topic    string `json:"topic"`
	RW       int    `json:"rw"`
}

// CredentialRepository defines persistence for broker logins.
type CredentialRepository interface {
	// FindByUsername retrieves a credential.
	// Returns ErrCredentialNotFound if the login does not exist.
	FindByUsername(ctx context.Context, username string) (*Credential, error)

	// Upsert inserts or replaces a credential by username.
	Upsert(ctx context.Context, cred *Credential) error
}

// GrantRepository defines persistence for broker ACL rows.
type GrantRepository interface {
	// Exists reports whether a grant for this login and topic exists.
	Exists(ctx context.Context, username, topic string) (bool, error)

	// Insert adds a grant. Inserting an existing (username, topic) pair
	// is a no-op.
	Insert(ctx context.Context, grant *Grant) error
}

// ErrCredentialNotFound is returned when a broker login does not exist.
var ErrCredentialNotFound = errors.New("provisioning: credential not found")

// SQLiteCredentialRepository implements CredentialRepository using SQLite.
type SQLiteCredentialRepository struct {
	db *sql.DB
}

// NewSQLiteCredentialRepository creates a new SQLite-backed credential repository.
func NewSQLiteCredentialRepository(db *sql.DB) *SQLiteCredentialRepository {
	return &SQLiteCredentialRepository{db: db}
}

// FindByUsername retrieves a credential by login.
func (r *SQLiteCredentialRepository) FindByUsername(ctx context.Context, username string) (*Credential, error) {
	query := `
		SELECT username, password_hash, superuser, created_at, updated_at
		FROM mqtt_users WHERE username = ?`

	var c Credential
	var superuser int
	var createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&c.Username, &c.PasswordHash, &superuser, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("querying credential: %w", err)
	}

	c.Superuser = superuser != 0

	var parseErr error
	c.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	c.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &c, nil
}

// Upsert inserts or replaces a credential by username.
func (r *SQLiteCredentialRepository) Upsert(ctx context.Context, cred *Credential) error {
	now := time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	superuser := 0
	if cred.Superuser {
		superuser = 1
	}

	query := `
		INSERT INTO mqtt_users (username, password_hash, superuser, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			password_hash = excluded.password_hash,
			superuser = excluded.superuser,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		cred.Username,
		cred.PasswordHash,
		superuser,
		cred.CreatedAt.Format(time.RFC3339),
		cred.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting credential: %w", err)
	}
	return nil
}

// SQLiteGrantRepository implements GrantRepository using SQLite.
type SQLiteGrantRepository struct {
	db *sql.DB
}

// NewSQLiteGrantRepository creates a new SQLite-backed grant repository.
func NewSQLiteGrantRepository(db *sql.DB) *SQLiteGrantRepository {
	return &SQLiteGrantRepository{db: db}
}

// Exists reports whether a grant for this login and topic exists.
func (r *SQLiteGrantRepository) Exists(ctx context.Context, username, topic string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM mqtt_acls WHERE username = ? AND topic = ?",
		username, topic,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking grant exists: %w", err)
	}
	return count > 0, nil
}

// Insert adds a grant, ignoring duplicates.
func (r *SQLiteGrantRepository) Insert(ctx context.Context, grant *Grant) error {
	query := `
		INSERT INTO mqtt_acls (username, topic, rw)
		VALUES (?, ?, ?)
		ON CONFLICT(username, topic) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, grant.Username, grant.Topic, grant.RW)
	if err != nil {
		return fmt.Errorf("inserting grant: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		grant.ID = id
	}
	return nil
}
