// Package influxdb provides the optional telemetry time-series mirror.
//
// SQLite is the authoritative store for measurements; when the mirror is
// enabled, every ingested sample is additionally written to InfluxDB for
// dashboard history queries. Writes are batched and non-blocking, and a
// mirror failure never blocks or fails telemetry ingestion.
//
// On ownership transfer with history reset the mirror is purged for the
// device via the delete API, matching the SQLite purge.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without the mirror
//	}
package influxdb
