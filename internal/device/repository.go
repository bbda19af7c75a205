package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByMAC retrieves a device by its normalised identity.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByMAC(ctx context.Context, mac string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// ListByUser retrieves all devices owned by a user.
	ListByUser(ctx context.Context, userID string) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same MAC already exists.
	Create(ctx context.Context, device *Device) error

	// Update modifies an existing device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device. History rows cascade at the schema level.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, mac string) error

	// TouchLiveness updates only the online flag and last-seen timestamp.
	// This is optimised for the per-message liveness update on ingestion.
	TouchLiveness(ctx context.Context, mac string, online bool, lastSeen time.Time) error

	// Reassign moves a device to a new owner in a single transaction.
	// When purgeHistory is set, the device's measurements and alerts are
	// deleted in the same transaction, so a crash cannot leave the new
	// owner with a partial view of the old owner's history.
	Reassign(ctx context.Context, mac, newOwner string, purgeHistory bool) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `mac, user_id, friendly_name, online, last_seen, active_profile, created_at, updated_at`

// GetByMAC retrieves a device by its normalised identity.
func (r *SQLiteRepository) GetByMAC(ctx context.Context, mac string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE mac = ?`

	row := r.db.QueryRowContext(ctx, query, mac)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by mac: %w", err)
	}
	return device, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY friendly_name`
	return r.queryDevices(ctx, query)
}

// ListByUser retrieves all devices owned by a user.
func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE user_id = ? ORDER BY friendly_name`
	return r.queryDevices(ctx, query, userID)
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		device.MAC,
		device.UserID,
		device.FriendlyName,
		boolToInt(device.Online),
		nullableTime(device.LastSeen),
		nullableString(device.ActiveProfile),
		device.CreatedAt.Format(time.RFC3339),
		device.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}

	return nil
}

// Update modifies an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices SET
			user_id = ?, friendly_name = ?, online = ?, last_seen = ?,
			active_profile = ?, updated_at = ?
		WHERE mac = ?`

	result, err := r.db.ExecContext(ctx, query,
		device.UserID,
		device.FriendlyName,
		boolToInt(device.Online),
		nullableTime(device.LastSeen),
		nullableString(device.ActiveProfile),
		device.UpdatedAt.Format(time.RFC3339),
		device.MAC,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	return requireRowAffected(result, ErrDeviceNotFound)
}

// Delete removes a device by identity.
func (r *SQLiteRepository) Delete(ctx context.Context, mac string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE mac = ?", mac)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireRowAffected(result, ErrDeviceNotFound)
}

// TouchLiveness updates only the online flag and last-seen timestamp.
func (r *SQLiteRepository) TouchLiveness(ctx context.Context, mac string, online bool, lastSeen time.Time) error {
	now := time.Now().UTC()
	query := `
		UPDATE devices
		SET online = ?, last_seen = ?, updated_at = ?
		WHERE mac = ?`

	result, err := r.db.ExecContext(ctx, query,
		boolToInt(online),
		lastSeen.UTC().Format(time.RFC3339),
		now.Format(time.RFC3339),
		mac,
	)
	if err != nil {
		return fmt.Errorf("updating device liveness: %w", err)
	}
	return requireRowAffected(result, ErrDeviceNotFound)
}

// Reassign moves a device to a new owner, optionally purging history,
// in a single transaction.
func (r *SQLiteRepository) Reassign(ctx context.Context, mac, newOwner string, purgeHistory bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning reassign transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if purgeHistory {
		if _, err := tx.ExecContext(ctx, "DELETE FROM measurements WHERE device_mac = ?", mac); err != nil {
			return fmt.Errorf("purging measurements: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM alerts WHERE device_mac = ?", mac); err != nil {
			return fmt.Errorf("purging alerts: %w", err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := tx.ExecContext(ctx,
		"UPDATE devices SET user_id = ?, updated_at = ? WHERE mac = ?",
		newOwner, now, mac,
	)
	if err != nil {
		return fmt.Errorf("reassigning device: %w", err)
	}
	if err := requireRowAffected(result, ErrDeviceNotFound); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reassign transaction: %w", err)
	}
	return nil
}

// queryDevices executes a query and returns a slice of devices.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return devices, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row or rows result into a Device.
func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var online int
	var lastSeen, activeProfile sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.MAC,
		&d.UserID,
		&d.FriendlyName,
		&online,
		&lastSeen,
		&activeProfile,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Online = online != 0

	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err == nil {
			d.LastSeen = &t
		}
	}
	if activeProfile.Valid {
		d.ActiveProfile = &activeProfile.String
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &d, nil
}

// requireRowAffected returns notFound if the statement affected no rows.
func requireRowAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
