package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for a labnode instance.
// All configuration is loaded from YAML and can be overridden by environment
// variables (LABNODE_SECTION_KEY).
type Config struct {
	Node        NodeConfig        `yaml:"node"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	DataService DataServiceConfig `yaml:"data_service"`
	Database    DatabaseConfig    `yaml:"database"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// NodeConfig identifies this node and declares its hardware capabilities.
type NodeConfig struct {
	// ID is the unique node identifier. All MQTT topics and data-service
	// endpoints for this node are derived from it. Required.
	ID string `yaml:"id"`

	// Hardware declares which capability-gated states this node may enter.
	Hardware HardwareConfig `yaml:"hardware"`

	// DataDir is the base directory for locally persisted experiment data.
	DataDir string `yaml:"data_dir"`
}

// HardwareConfig contains the capability flags for a node.
// Calibration and sensor tests require a sensor; actuator tests require
// an actuator.
type HardwareConfig struct {
	HasSensor   bool `yaml:"has_sensor"`
	HasActuator bool `yaml:"has_actuator"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// HeartbeatInterval is the number of seconds between heartbeat
	// publications on the status topic. Zero disables the heartbeat.
	HeartbeatInterval int `yaml:"heartbeat_interval"`

	// MessageLogSize is the capacity of the in-memory message ring buffer.
	// Zero selects the default (1000).
	MessageLogSize int `yaml:"message_log_size"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DataServiceConfig contains settings for the bulk data REST service.
type DataServiceConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`

	// Timeout bounds every HTTP call, in seconds.
	Timeout int `yaml:"timeout"`
}

// DatabaseConfig contains SQLite database settings for per-node persistence
// (calibration models, transition history, message logs).
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains settings for the optional telemetry mirror.
// When enabled, every experiment sample is also written to InfluxDB.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. A .env file in the working directory, if present (loaded into the
//     process environment, never overriding variables already set)
//  3. YAML file values (override defaults)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern LABNODE_SECTION_KEY, for example
// LABNODE_NODE_ID or LABNODE_MQTT_HOST.
func Load(path string) (*Config, error) {
	// Best effort: a missing .env file is the normal case in production.
	_ = godotenv.Load()

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
		Node: NodeConfig{
			DataDir: "./data",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			HeartbeatInterval: 0,
			MessageLogSize:    1000,
		},
		DataService: DataServiceConfig{
			Host:    "localhost",
			Port:    5000,
			Timeout: 15,
		},
		Database: DatabaseConfig{
			Path:        "./data/labnode.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LABNODE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Node
	if v := os.Getenv("LABNODE_NODE_ID"); v != "" {
		cfg.Node.ID = v
	}
	if v := os.Getenv("LABNODE_NODE_DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}

	// MQTT
	if v := os.Getenv("LABNODE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LABNODE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("LABNODE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LABNODE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Data service
	if v := os.Getenv("LABNODE_DATA_SERVICE_HOST"); v != "" {
		cfg.DataService.Host = v
	}
	if v := os.Getenv("LABNODE_DATA_SERVICE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.DataService.Port = port
		}
	}

	// Database
	if v := os.Getenv("LABNODE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("LABNODE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Node.ID == "" {
		errs = append(errs, "node.id is required (set LABNODE_NODE_ID or node.id in config)")
	}
	if strings.ContainsAny(c.Node.ID, "/+#") {
		errs = append(errs, "node.id must not contain MQTT topic characters (/ + #)")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.HeartbeatInterval < 0 {
		errs = append(errs, "mqtt.heartbeat_interval must not be negative")
	}

	if c.DataService.Port < 1 || c.DataService.Port > 65535 {
		errs = append(errs, "data_service.port must be between 1 and 65535")
	}
	if c.DataService.Timeout <= 0 {
		errs = append(errs, "data_service.timeout must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetDataServiceTimeout returns the data service HTTP timeout as a Duration.
func (c *Config) GetDataServiceTimeout() time.Duration {
	return time.Duration(c.DataService.Timeout) * time.Second
}

// GetHeartbeatInterval returns the heartbeat interval as a Duration.
// Zero means the heartbeat is disabled.
func (c *Config) GetHeartbeatInterval() time.Duration {
	return time.Duration(c.MQTT.HeartbeatInterval) * time.Second
}
