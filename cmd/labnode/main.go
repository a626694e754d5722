// labnode - distributed laboratory experiment node
//
// This is the entry point for a single experiment node. Each node connects
// to the laboratory MQTT broker, probes the bulk data service, brings its
// hardware online, and then sits in the FSM lifecycle waiting for commands
// from the master tooling (Calibrate, Test, Run, ...).
//
// The binary wires the concrete infrastructure clients to the controller's
// ports and handles signal-driven shutdown; all behaviour lives in
// internal/experiment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wavelab/labnode/internal/experiment"
	"github.com/wavelab/labnode/internal/infrastructure/config"
	"github.com/wavelab/labnode/internal/infrastructure/database"
	"github.com/wavelab/labnode/internal/infrastructure/influxdb"
	"github.com/wavelab/labnode/internal/infrastructure/logging"
	"github.com/wavelab/labnode/internal/infrastructure/mqtt"
	"github.com/wavelab/labnode/internal/infrastructure/rest"
	"github.com/wavelab/labnode/internal/simnode"
)

// Version information - set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Default configuration file path.
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting labnode", "version", version, "commit", commit)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, cfg.Node.ID)
	log.Info("configuration loaded", "path", configPath, "node_id", cfg.Node.ID)

	// Open the node's local store and apply schema migrations
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Connect to the laboratory broker
	mqttClient, err := mqtt.Connect(cfg.MQTT, cfg.Node.ID)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"node_id", cfg.Node.ID,
	)

	// Bulk data service client
	restClient, err := rest.New(cfg.DataService, cfg.Node.ID)
	if err != nil {
		return fmt.Errorf("creating data service client: %w", err)
	}

	// Optional telemetry mirror
	var telemetry experiment.TelemetryWriter
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		telemetry = influxClient
		log.Info("InfluxDB telemetry mirror enabled", "url", cfg.InfluxDB.URL)
	} else {
		log.Info("InfluxDB telemetry mirror disabled")
	}

	// Simulated hardware; a real deployment substitutes its own
	// experiment.Hardware implementation here.
	carriage := simnode.New(log)

	controller, err := experiment.New(
		cfg.Node,
		&mqttMessenger{client: mqttClient},
		&restUploader{client: restClient},
		experiment.NewStore(db),
		telemetry,
		carriage,
		log,
	)
	if err != nil {
		return fmt.Errorf("initializing controller: %w", err)
	}

	mqttClient.StartHeartbeat(cfg.GetHeartbeatInterval())

	log.Info("initialisation complete, node is IDLE", "state", controller.State().String())

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Persists session artefacts and disconnects the broker client.
	controller.Shutdown()

	log.Info("labnode stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LABNODE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LABNODE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// mqttMessenger adapts the MQTT client to the controller's Messenger port.
type mqttMessenger struct {
	client *mqtt.Client
}

func (m *mqttMessenger) IsConnected() bool { return m.client.IsConnected() }

func (m *mqttMessenger) PublishJSON(topic string, payload []byte) error {
	return m.client.PublishJSON(topic, payload)
}

func (m *mqttMessenger) Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error {
	return m.client.Subscribe(topic, qos, handler)
}

func (m *mqttMessenger) MessageLog() []experiment.MessageLogEntry {
	entries := m.client.MessageLog()
	out := make([]experiment.MessageLogEntry, len(entries))
	for i, e := range entries {
		out[i] = experiment.MessageLogEntry{
			Timestamp: e.Timestamp,
			Topic:     e.Topic,
			Message:   e.Message,
		}
	}
	return out
}

func (m *mqttMessenger) Close() error { return m.client.Close() }

// restUploader adapts the data service client to the DataUploader port.
type restUploader struct {
	client *rest.Client
}

func (u *restUploader) CheckHealth(ctx context.Context) bool {
	return u.client.CheckHealth(ctx)
}

func (u *restUploader) SendData(ctx context.Context, records []map[string]any, experimentName string) error {
	converted := make([]rest.Record, len(records))
	for i, r := range records {
		converted[i] = rest.Record(r)
	}
	_, err := u.client.SendData(ctx, converted, experimentName, rest.FormatAuto)
	return err
}
