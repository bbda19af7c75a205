package influxdb

import (
	"context"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// telemetryMeasurement is the InfluxDB measurement (table) name for
// mirrored sensor samples.
const telemetryMeasurement = "garden_telemetry"

// WriteTelemetry mirrors one sensor sample to InfluxDB.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Only the readings actually present in the sample should be passed -
// absent sensors must not appear as zero-valued fields.
//
// Parameters:
//   - mac: Normalised device identity (tag)
//   - owner: Owning user id (tag)
//   - fields: Present readings, e.g. {"soil_moisture_pct": 42}
//   - ts: Sample timestamp (already resolved from the payload)
func (c *Client) WriteTelemetry(mac, owner string, fields map[string]interface{}, ts time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		telemetryMeasurement,
		map[string]string{
			"device": mac,
			"owner":  owner,
		},
		fields,
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// PurgeDevice deletes all mirrored samples for a device.
//
// Called on ownership transfer with history reset and on device removal,
// so the new owner cannot query the previous owner's history out of the
// mirror. The authoritative SQLite purge happens first; a mirror delete
// failure is surfaced so the caller can log it, but it does not roll back
// the transfer.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - mac: Normalised device identity
//
// Returns:
//   - error: If the delete request fails
func (c *Client) PurgeDevice(ctx context.Context, mac string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	deleteCtx, cancel := context.WithTimeout(ctx, defaultDeleteTimeout)
	defer cancel()

	deleteAPI := c.client.DeleteAPI()
	predicate := fmt.Sprintf(`_measurement="%s" AND device="%s"`, telemetryMeasurement, mac)

	err := deleteAPI.DeleteWithName(
		deleteCtx,
		c.cfg.Org,
		c.cfg.Bucket,
		time.Unix(0, 0),
		time.Now().UTC(),
		predicate,
	)
	if err != nil {
		return fmt.Errorf("purging device %s from mirror: %w", mac, err)
	}
	return nil
}
