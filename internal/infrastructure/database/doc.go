// Package database provides SQLite connectivity for Garden Core.
//
// This package manages:
//   - Opening the database with WAL mode and busy timeout
//   - Schema migrations embedded into the binary
//   - Health checks and lifecycle management
//
// The database is the keyed store behind the device directory, the
// measurement/alert history, and the broker credential tables read by the
// Mosquitto auth plugin. Writes that touch multiple tables (the
// ownership-transfer purge) run in a single transaction.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/gardencore.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
