package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MeasurementRepository defines persistence for sensor samples.
type MeasurementRepository interface {
	// Insert persists one sample. The sample's ID is set on success.
	Insert(ctx context.Context, m *Measurement) error

	// ListByDevice retrieves the most recent samples for a device,
	// newest first, up to limit rows.
	ListByDevice(ctx context.Context, mac string, limit int) ([]Measurement, error)

	// Latest retrieves the single most recent sample for a device.
	// Returns ErrDeviceNotFound if the device has no samples.
	Latest(ctx context.Context, mac string) (*Measurement, error)

	// DeleteByDevice removes all samples for a device.
	DeleteByDevice(ctx context.Context, mac string) error
}

// SQLiteMeasurementRepository implements MeasurementRepository using SQLite.
type SQLiteMeasurementRepository struct {
	db *sql.DB
}

// NewSQLiteMeasurementRepository creates a new SQLite-backed measurement repository.
func NewSQLiteMeasurementRepository(db *sql.DB) *SQLiteMeasurementRepository {
	return &SQLiteMeasurementRepository{db: db}
}

const measurementColumns = `id, device_mac, ts, soil_moisture, temperature, humidity, pressure, light_lux, water_tank_ok, created_at`

// Insert persists one sample.
func (r *SQLiteMeasurementRepository) Insert(ctx context.Context, m *Measurement) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO measurements (device_mac, ts, soil_moisture, temperature,
			humidity, pressure, light_lux, water_tank_ok, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		m.DeviceMAC,
		m.Timestamp.UTC().Format(time.RFC3339),
		nullableInt(m.SoilMoisture),
		nullableFloat(m.Temperature),
		nullableFloat(m.Humidity),
		nullableFloat(m.Pressure),
		nullableFloat(m.LightLux),
		nullableBool(m.WaterTankOK),
		m.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting measurement: %w", err)
	}

	m.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading measurement id: %w", err)
	}
	return nil
}

// ListByDevice retrieves the most recent samples for a device, newest first.
func (r *SQLiteMeasurementRepository) ListByDevice(ctx context.Context, mac string, limit int) ([]Measurement, error) {
	query := `SELECT ` + measurementColumns + `
		FROM measurements WHERE device_mac = ?
		ORDER BY ts DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, mac, limit)
	if err != nil {
		return nil, fmt.Errorf("querying measurements: %w", err)
	}
	defer rows.Close()

	var measurements []Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning measurement: %w", err)
		}
		measurements = append(measurements, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating measurements: %w", err)
	}
	return measurements, nil
}

// Latest retrieves the single most recent sample for a device.
func (r *SQLiteMeasurementRepository) Latest(ctx context.Context, mac string) (*Measurement, error) {
	measurements, err := r.ListByDevice(ctx, mac, 1)
	if err != nil {
		return nil, err
	}
	if len(measurements) == 0 {
		return nil, ErrDeviceNotFound
	}
	return &measurements[0], nil
}

// DeleteByDevice removes all samples for a device.
func (r *SQLiteMeasurementRepository) DeleteByDevice(ctx context.Context, mac string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM measurements WHERE device_mac = ?", mac); err != nil {
		return fmt.Errorf("deleting measurements: %w", err)
	}
	return nil
}

// scanMeasurement scans a row into a Measurement.
func scanMeasurement(scanner rowScanner) (*Measurement, error) {
	var m Measurement
	var ts, createdAt string
	var soilMoisture sql.NullInt64
	var temperature, humidity, pressure, lightLux sql.NullFloat64
	var waterTankOK sql.NullInt64

	err := scanner.Scan(
		&m.ID,
		&m.DeviceMAC,
		&ts,
		&soilMoisture,
		&temperature,
		&humidity,
		&pressure,
		&lightLux,
		&waterTankOK,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if soilMoisture.Valid {
		v := int(soilMoisture.Int64)
		m.SoilMoisture = &v
	}
	if temperature.Valid {
		m.Temperature = &temperature.Float64
	}
	if humidity.Valid {
		m.Humidity = &humidity.Float64
	}
	if pressure.Valid {
		m.Pressure = &pressure.Float64
	}
	if lightLux.Valid {
		m.LightLux = &lightLux.Float64
	}
	if waterTankOK.Valid {
		v := waterTankOK.Int64 != 0
		m.WaterTankOK = &v
	}

	var parseErr error
	m.Timestamp, parseErr = time.Parse(time.RFC3339, ts)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing ts: %w", parseErr)
	}
	m.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}

	return &m, nil
}

// nullableInt returns a sql.NullInt64 for optional int pointers.
func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// nullableFloat returns a sql.NullFloat64 for optional float pointers.
func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// nullableBool returns a sql.NullInt64 for optional bool pointers.
func nullableBool(v *bool) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	var i int64
	if *v {
		i = 1
	}
	return sql.NullInt64{Int64: i, Valid: true}
}
