package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AlertRepository defines persistence for alert events.
type AlertRepository interface {
	// Insert persists one alert. Duplicates are never coalesced; every
	// inbound alert is a new row. The alert's ID is set on success.
	Insert(ctx context.Context, a *Alert) error

	// ListByDevice retrieves the most recent alerts for a device,
	// newest first, up to limit rows.
	ListByDevice(ctx context.Context, mac string, limit int) ([]Alert, error)

	// CountUnread returns the number of unread alerts for a device.
	CountUnread(ctx context.Context, mac string) (int, error)

	// MarkRead flips an alert's read flag to true. Idempotent: marking
	// an already-read alert succeeds without effect.
	// Returns ErrAlertNotFound if the alert does not exist.
	MarkRead(ctx context.Context, id int64) error

	// DeleteByDevice removes all alerts for a device.
	DeleteByDevice(ctx context.Context, mac string) error
}

// SQLiteAlertRepository implements AlertRepository using SQLite.
type SQLiteAlertRepository struct {
	db *sql.DB
}

// NewSQLiteAlertRepository creates a new SQLite-backed alert repository.
func NewSQLiteAlertRepository(db *sql.DB) *SQLiteAlertRepository {
	return &SQLiteAlertRepository{db: db}
}

// Insert persists one alert.
func (r *SQLiteAlertRepository) Insert(ctx context.Context, a *Alert) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO alerts (device_mac, ts, code, severity, subsystem, message, details, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var details sql.NullString
	if len(a.Details) > 0 {
		details = sql.NullString{String: string(a.Details), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		a.DeviceMAC,
		a.Timestamp.UTC().Format(time.RFC3339),
		a.Code,
		a.Severity,
		a.Subsystem,
		a.Message,
		details,
		boolToInt(a.Read),
		a.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting alert: %w", err)
	}

	a.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading alert id: %w", err)
	}
	return nil
}

// ListByDevice retrieves the most recent alerts for a device, newest first.
func (r *SQLiteAlertRepository) ListByDevice(ctx context.Context, mac string, limit int) ([]Alert, error) {
	query := `
		SELECT id, device_mac, ts, code, severity, subsystem, message, details, read, created_at
		FROM alerts WHERE device_mac = ?
		ORDER BY ts DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, mac, limit)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alerts: %w", err)
	}
	return alerts, nil
}

// CountUnread returns the number of unread alerts for a device.
func (r *SQLiteAlertRepository) CountUnread(ctx context.Context, mac string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM alerts WHERE device_mac = ? AND read = 0", mac,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread alerts: %w", err)
	}
	return count, nil
}

// MarkRead flips an alert's read flag to true.
func (r *SQLiteAlertRepository) MarkRead(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "UPDATE alerts SET read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("marking alert read: %w", err)
	}
	return requireRowAffected(result, ErrAlertNotFound)
}

// DeleteByDevice removes all alerts for a device.
func (r *SQLiteAlertRepository) DeleteByDevice(ctx context.Context, mac string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM alerts WHERE device_mac = ?", mac); err != nil {
		return fmt.Errorf("deleting alerts: %w", err)
	}
	return nil
}

// scanAlert scans a row into an Alert.
func scanAlert(scanner rowScanner) (*Alert, error) {
	var a Alert
	var ts, createdAt string
	var details sql.NullString
	var read int

	err := scanner.Scan(
		&a.ID,
		&a.DeviceMAC,
		&ts,
		&a.Code,
		&a.Severity,
		&a.Subsystem,
		&a.Message,
		&details,
		&read,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	a.Read = read != 0
	if details.Valid {
		a.Details = []byte(details.String)
	}

	var parseErr error
	a.Timestamp, parseErr = time.Parse(time.RFC3339, ts)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing ts: %w", parseErr)
	}
	a.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}

	return &a, nil
}
