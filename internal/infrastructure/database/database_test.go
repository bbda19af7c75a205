package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/garden-core/internal/infrastructure/database"
	_ "github.com/nerrad567/garden-core/migrations"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return db
}

func TestOpen_CreatesDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestMigrate_CreatesSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"devices", "measurements", "alerts", "mqtt_users", "mqtt_acls"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q missing after Migrate: %v", table, err)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("first Migrate() error = %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("counting migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("schema_migrations rows = %d, want 1", count)
	}
}

func TestMigrateDown_RollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='devices'",
	).Scan(&name)
	if err == nil {
		t.Error("devices table still present after MigrateDown")
	}
}

func TestForeignKeys_CascadeDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO devices (mac, user_id, friendly_name, created_at, updated_at)
		VALUES ('AABBCCDDEEFF', 'alice', 'Balcony', '2026-08-15T00:00:00Z', '2026-08-15T00:00:00Z')
	`)
	if err != nil {
		t.Fatalf("inserting device: %v", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO measurements (device_mac, ts, soil_moisture, created_at)
		VALUES ('AABBCCDDEEFF', '2026-08-15T00:01:00Z', 42, '2026-08-15T00:01:00Z')
	`)
	if err != nil {
		t.Fatalf("inserting measurement: %v", err)
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM devices WHERE mac = 'AABBCCDDEEFF'"); err != nil {
		t.Fatalf("deleting device: %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM measurements").Scan(&count); err != nil {
		t.Fatalf("counting measurements: %v", err)
	}
	if count != 0 {
		t.Errorf("measurements after cascade delete = %d, want 0", count)
	}
}
