package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Device policies for unknown-device handling.
//
// The fleet has shipped under both behaviours at different times: early
// deployments auto-created a device record on first telemetry, later ones
// require provisioning before the backend will accept traffic. The policy
// is therefore an explicit configuration switch rather than a constant.
const (
	// DevicePolicyStrict drops messages from devices that have never been
	// provisioned. This is the default: bus credentials gate publishing,
	// but a compromised credential must not be able to create records.
	DevicePolicyStrict = "strict"

	// DevicePolicyPermissive auto-creates a device record on first contact.
	// Intended for bench and development setups without a provisioning flow.
	DevicePolicyPermissive = "permissive"
)

// Config is the root configuration structure for Garden Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway      GatewayConfig      `yaml:"gateway"`
	Database     DatabaseConfig     `yaml:"database"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	API          APIConfig          `yaml:"api"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Provisioning ProvisioningConfig `yaml:"provisioning"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// GatewayConfig contains device-communication gateway settings.
type GatewayConfig struct {
	// Realm is the first segment of every bus topic:
	// {realm}/{owner}/{mac}/{kind}. Devices are flashed with the same value,
	// so changing it on a live fleet orphans every controller.
	Realm string `yaml:"realm"`

	// DevicePolicy controls unknown-device handling: "strict" or "permissive".
	DevicePolicy string `yaml:"device_policy"`

	// SettingsTimeout is the maximum time to wait for a device to answer a
	// settings read, in seconds.
	SettingsTimeout int `yaml:"settings_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
// These are the backend's own broker credentials; device credentials are
// issued by the provisioning manager.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains settings for the optional measurement mirror.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// ProvisioningConfig contains device provisioning settings.
type ProvisioningConfig struct {
	// BackendLogin is the privileged broker identity seeded at startup.
	BackendLogin    string `yaml:"backend_login"`
	BackendPassword string `yaml:"backend_password"`

	// PublicBrokerURL is handed to devices at provisioning time; it is the
	// broker address reachable from the garden network, not necessarily the
	// one the backend itself connects to.
	PublicBrokerURL string `yaml:"public_broker_url"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GARDENCORE_SECTION_KEY
// For example: GARDENCORE_DATABASE_PATH, GARDENCORE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Realm:           "garden",
			DevicePolicy:    DevicePolicyStrict,
			SettingsTimeout: 5,
		},
		Database: DatabaseConfig{
			Path:        "./data/gardencore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "gardencore",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Provisioning: ProvisioningConfig{
			BackendLogin:    "gardencore-backend",
			PublicBrokerURL: "tcp://localhost:1883",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GARDENCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := os.Getenv("GARDENCORE_GATEWAY_REALM"); v != "" {
		cfg.Gateway.Realm = v
	}
	if v := os.Getenv("GARDENCORE_GATEWAY_DEVICE_POLICY"); v != "" {
		cfg.Gateway.DevicePolicy = v
	}

	// Database
	if v := os.Getenv("GARDENCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GARDENCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GARDENCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GARDENCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GARDENCORE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GARDENCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Provisioning - backend broker credentials
	if v := os.Getenv("GARDENCORE_BACKEND_LOGIN"); v != "" {
		cfg.Provisioning.BackendLogin = v
	}
	if v := os.Getenv("GARDENCORE_BACKEND_PASSWORD"); v != "" {
		cfg.Provisioning.BackendPassword = v
	}
	if v := os.Getenv("GARDENCORE_PUBLIC_BROKER_URL"); v != "" {
		cfg.Provisioning.PublicBrokerURL = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Gateway validation
	if c.Gateway.Realm == "" {
		errs = append(errs, "gateway.realm is required")
	} else if strings.ContainsAny(c.Gateway.Realm, "/#+") {
		errs = append(errs, "gateway.realm must not contain MQTT topic separators or wildcards")
	}
	if c.Gateway.DevicePolicy != DevicePolicyStrict && c.Gateway.DevicePolicy != DevicePolicyPermissive {
		errs = append(errs, `gateway.device_policy must be "strict" or "permissive"`)
	}
	if c.Gateway.SettingsTimeout < 1 {
		errs = append(errs, "gateway.settings_timeout must be at least 1 second")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Provisioning validation - this identity holds a wildcard grant over
	// the whole device topic tree, so it must never run with an empty secret.
	if c.Provisioning.BackendLogin == "" {
		errs = append(errs, "provisioning.backend_login is required")
	}
	if c.Provisioning.BackendPassword == "" {
		errs = append(errs, "provisioning.backend_password is required (set GARDENCORE_BACKEND_PASSWORD environment variable)")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// SettingsReadTimeout returns the settings-read timeout as a Duration.
func (c *Config) SettingsReadTimeout() time.Duration {
	return time.Duration(c.Gateway.SettingsTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
