package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
node:
  id: "carriage-01"
  hardware:
    has_sensor: true
    has_actuator: true
  data_dir: "/tmp/labnode-data"
mqtt:
  broker:
    host: "localhost"
    port: 1883
  qos: 1
  heartbeat_interval: 30
data_service:
  host: "localhost"
  port: 5000
  timeout: 15
database:
  path: "/tmp/labnode.db"
  wal_mode: true
  busy_timeout: 5
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Node.ID != "carriage-01" {
		t.Errorf("Node.ID = %q, want %q", cfg.Node.ID, "carriage-01")
	}
	if !cfg.Node.Hardware.HasSensor {
		t.Error("Node.Hardware.HasSensor = false, want true")
	}
	if cfg.MQTT.HeartbeatInterval != 30 {
		t.Errorf("MQTT.HeartbeatInterval = %d, want 30", cfg.MQTT.HeartbeatInterval)
	}
	if cfg.DataService.Port != 5000 {
		t.Errorf("DataService.Port = %d, want 5000", cfg.DataService.Port)
	}
	if cfg.Database.Path != "/tmp/labnode.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/labnode.db")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "node: [not a mapping"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingNodeID(t *testing.T) {
	content := `
database:
  path: "/tmp/labnode.db"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for missing node.id")
	}
	if !strings.Contains(err.Error(), "node.id") {
		t.Errorf("Load() error = %v, want mention of node.id", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	content := `
node:
  id: "sensor-02"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want default %q", cfg.MQTT.Broker.Host, "localhost")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.DataService.Timeout != 15 {
		t.Errorf("DataService.Timeout = %d, want default 15", cfg.DataService.Timeout)
	}
	if cfg.MQTT.MessageLogSize != 1000 {
		t.Errorf("MQTT.MessageLogSize = %d, want default 1000", cfg.MQTT.MessageLogSize)
	}
	if cfg.MQTT.HeartbeatInterval != 0 {
		t.Errorf("MQTT.HeartbeatInterval = %d, want default 0 (disabled)", cfg.MQTT.HeartbeatInterval)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
node:
  id: "file-node"
`
	t.Setenv("LABNODE_NODE_ID", "env-node")
	t.Setenv("LABNODE_MQTT_HOST", "broker.lab.internal")
	t.Setenv("LABNODE_DATA_SERVICE_PORT", "8443")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Node.ID != "env-node" {
		t.Errorf("Node.ID = %q, want env override %q", cfg.Node.ID, "env-node")
	}
	if cfg.MQTT.Broker.Host != "broker.lab.internal" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
	if cfg.DataService.Port != 8443 {
		t.Errorf("DataService.Port = %d, want env override 8443", cfg.DataService.Port)
	}
}

func TestValidate_NodeIDTopicCharacters(t *testing.T) {
	cfg := defaultConfig()
	cfg.Node.ID = "bad/id"

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for node.id containing topic separator")
	}
}

func TestValidate_InvalidQoS(t *testing.T) {
	cfg := defaultConfig()
	cfg.Node.ID = "node"
	cfg.MQTT.QoS = 3

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for QoS 3")
	}
}

func TestValidate_InfluxRequiresURL(t *testing.T) {
	cfg := defaultConfig()
	cfg.Node.ID = "node"
	cfg.InfluxDB.Enabled = true

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for enabled influxdb without url")
	}
}
