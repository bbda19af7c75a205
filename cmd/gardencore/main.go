// Garden Core - Smart Garden Device Gateway
//
// This is the main entry point for the Garden Core backend. It connects
// the MQTT broker, SQLite store and optional InfluxDB mirror, routes
// device bus traffic through the gateway, and serves the HTTP/WebSocket
// API used by the companion app.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/garden-core/migrations"

	"github.com/nerrad567/garden-core/internal/api"
	"github.com/nerrad567/garden-core/internal/device"
	"github.com/nerrad567/garden-core/internal/gateway"
	"github.com/nerrad567/garden-core/internal/infrastructure/config"
	"github.com/nerrad567/garden-core/internal/infrastructure/database"
	"github.com/nerrad567/garden-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/garden-core/internal/infrastructure/logging"
	"github.com/nerrad567/garden-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/garden-core/internal/provisioning"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Garden Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	deviceRepo := device.NewSQLiteRepository(db.DB)
	measurementRepo := device.NewSQLiteMeasurementRepository(db.DB)
	alertRepo := device.NewSQLiteAlertRepository(db.DB)
	credentialRepo := provisioning.NewSQLiteCredentialRepository(db.DB)
	grantRepo := provisioning.NewSQLiteGrantRepository(db.DB)

	// Device directory
	strict := cfg.Gateway.DevicePolicy == config.DevicePolicyStrict
	directory := device.NewDirectory(deviceRepo, strict)
	directory.SetLogger(log)
	log.Info("device directory initialised", "policy", cfg.Gateway.DevicePolicy)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB mirror (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Gateway
	topics := mqtt.Topics{Realm: cfg.Gateway.Realm}
	gw := gateway.New(mqttClient, topics, directory, measurementRepo, alertRepo)
	gw.SetLogger(log)
	gw.SetQoS(byte(cfg.MQTT.QoS))
	gw.SetSettingsTimeout(cfg.SettingsReadTimeout())
	if influxClient != nil {
		gw.SetTelemetryMirror(influxClient)
	}

	// Provisioning
	provisioner := provisioning.NewManager(
		directory, credentialRepo, grantRepo, topics, cfg.Provisioning.PublicBrokerURL)
	provisioner.SetLogger(log)
	provisioner.SetPendingEvictor(gw)
	if influxClient != nil {
		provisioner.SetMirrorPurger(influxClient)
	}

	if seedErr := provisioner.SeedBackendIdentity(ctx,
		cfg.Provisioning.BackendLogin, cfg.Provisioning.BackendPassword); seedErr != nil {
		return fmt.Errorf("seeding backend broker identity: %w", seedErr)
	}

	// HTTP API + WebSocket hub
	apiServer, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Logger:       log,
		Devices:      deviceRepo,
		Measurements: measurementRepo,
		Alerts:       alertRepo,
		Gateway:      gw,
		Provisioner:  provisioner,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	gw.SetEventSink(apiServer.EventHub())

	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Subscribe the gateway last: from here on, device traffic flows.
	if startErr := gw.Start(); startErr != nil {
		return fmt.Errorf("starting gateway: %w", startErr)
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Database

	log.Info("Garden Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GARDENCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GARDENCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
