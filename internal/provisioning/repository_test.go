package provisioning

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the broker auth schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE mqtt_users (
			username      TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			superuser     INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);
		CREATE TABLE mqtt_acls (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL,
			topic    TEXT NOT NULL,
			rw       INTEGER NOT NULL DEFAULT 3,
			UNIQUE (username, topic)
		);`

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteCredentialRepository_Upsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteCredentialRepository(db)
	ctx := context.Background()

	if err := repo.Upsert(ctx, &Credential{
		Username:     "device_aabbccddeeff",
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA",
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.FindByUsername(ctx, "device_aabbccddeeff")
	if err != nil {
		t.Fatalf("FindByUsername() error = %v", err)
	}
	if got.Superuser {
		t.Error("Superuser = true, want false")
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not populated")
	}

	// Rotation replaces the hash but keeps the row.
	if err := repo.Upsert(ctx, &Credential{
		Username:     "device_aabbccddeeff",
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=1$b3RoZXI$b3RoZXI",
	}); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	rotated, err := repo.FindByUsername(ctx, "device_aabbccddeeff")
	if err != nil {
		t.Fatalf("FindByUsername() after rotation error = %v", err)
	}
	if rotated.PasswordHash == got.PasswordHash {
		t.Error("rotation did not replace the stored hash")
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM mqtt_users").Scan(&count); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}
}

func TestSQLiteCredentialRepository_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteCredentialRepository(db)

	_, err := repo.FindByUsername(context.Background(), "missing")
	if !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("error = %v, want ErrCredentialNotFound", err)
	}
}

func TestSQLiteGrantRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteGrantRepository(db)
	ctx := context.Background()

	exists, err := repo.Exists(ctx, "device_aabbccddeeff", "garden/+/AABBCCDDEEFF/#")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("Exists() = true before insert")
	}

	grant := &Grant{
		Username: "device_aabbccddeeff",
		Topic:    "garden/+/AABBCCDDEEFF/#",
		RW:       AccessReadWrite,
	}
	if err := repo.Insert(ctx, grant); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	exists, err = repo.Exists(ctx, "device_aabbccddeeff", "garden/+/AABBCCDDEEFF/#")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("Exists() = false after insert")
	}

	// Re-inserting the same grant is a no-op, not an error.
	if err := repo.Insert(ctx, grant); err != nil {
		t.Fatalf("duplicate Insert() error = %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM mqtt_acls").Scan(&count); err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}
}
