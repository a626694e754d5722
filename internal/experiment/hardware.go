package experiment

import (
	"context"
	"time"

	"github.com/wavelab/labnode/internal/infrastructure/config"
)

// Hardware is the capability surface a concrete node supplies. The
// controller drives these hooks from state entry/exit; it never touches
// hardware directly.
//
// Stop must be idempotent: it is called from the abort path and again on
// IDLE/exit handlers, possibly back to back.
type Hardware interface {
	// Initialize prepares the hardware at construction. A failure aborts
	// controller construction.
	Initialize(cfg config.NodeConfig) error

	// HandleCalibrate is invoked on entry to CALIBRATING, once per
	// Calibrate command.
	HandleCalibrate(cmd Command) error

	// HandleTest runs sensor or actuator diagnostics depending on the
	// command's target.
	HandleTest(cmd Command) error

	// HandleRun begins the experiment routine using the validated
	// configuration. It must return promptly; long-running work belongs on
	// the hardware's own goroutine, stopped via Stop.
	HandleRun(cmd Command) error

	// Configure validates (and applies) one experiment parameter set.
	// Returning false rejects the configuration without faulting the node.
	Configure(params map[string]any) bool

	// ReadSensor returns one raw sensor reading.
	ReadSensor() (float64, error)

	// Stop halts actuators and terminates readings. Idempotent.
	Stop() error

	// Shutdown releases hardware resources at node shutdown.
	Shutdown() error
}

// ExperimentSetup is an optional hook run once per (sub-)experiment after
// validation and between sub-experiments of a sequence.
type ExperimentSetup interface {
	SetupExperiment(params map[string]any) error
}

// Recorder is the surface hardware uses to report back during RUNNING:
// samples stream in via RecordSample, and RunComplete signals that the run
// loop has finished. The controller implements it; hardware binds to it
// via RecorderBinder.
type Recorder interface {
	RecordSample(sampleType string, value float64, units string)
	RunComplete()

	// ApplyCalibration converts a raw sensor reading into calibrated units
	// using the active model.
	ApplyCalibration(raw float64) float64
}

// RecorderBinder is implemented by hardware that emits samples. The
// controller binds itself during construction.
type RecorderBinder interface {
	BindRecorder(r Recorder)
}

// Messenger is the pub/sub port the controller publishes and subscribes
// through. Satisfied by the mqtt client via a thin adapter in cmd/labnode.
type Messenger interface {
	IsConnected() bool
	PublishJSON(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
	MessageLog() []MessageLogEntry
	Close() error
}

// DataUploader is the bulk data port for dataset uploads.
type DataUploader interface {
	CheckHealth(ctx context.Context) bool
	SendData(ctx context.Context, records []map[string]any, experimentName string) error
}

// TelemetryWriter mirrors samples and transitions into a time-series
// store. Optional; a nil writer disables mirroring.
type TelemetryWriter interface {
	WriteSample(nodeID, sampleType string, value float64, units string, ts time.Time)
	WriteStateTransition(nodeID, fromState, toState string)
}

// Store is the durable per-node persistence port.
type Store interface {
	// LoadCalibration returns the persisted model, or nil when none exists.
	LoadCalibration(ctx context.Context, nodeID string) (*CalibrationModel, error)
	SaveCalibration(ctx context.Context, nodeID string, model CalibrationModel, points int) error
	SaveHistory(ctx context.Context, nodeID string, history []StateRecord) error
	SaveMessageLog(ctx context.Context, nodeID string, entries []MessageLogEntry) error
}

// StateRecord is one entry of the transition history: a state and when it
// was entered.
type StateRecord struct {
	State     string
	EnteredAt time.Time
}

// MessageLogEntry is one captured pub/sub message, as persisted at
// shutdown.
type MessageLogEntry struct {
	Timestamp time.Time
	Topic     string
	Message   string
}

// DataRecord is one observation accumulated during RUNNING.
type DataRecord struct {
	Type      string  `json:"type"`
	Value     float64 `json:"value"`
	Units     string  `json:"units"`
	Timestamp string  `json:"timestamp"`
}
