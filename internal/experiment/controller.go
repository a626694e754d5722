package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/wavelab/labnode/internal/infrastructure/config"
	"github.com/wavelab/labnode/internal/infrastructure/logging"
	"github.com/wavelab/labnode/internal/infrastructure/mqtt"
	"github.com/wavelab/labnode/internal/infrastructure/rest"
)

const (
	// timestampLayout matches the wire format of status, log and data records.
	timestampLayout = "2006-01-02 15:04:05.000"

	// commandQoS is the subscription QoS for the command topic.
	commandQoS = 1

	// shutdownPersistTimeout bounds the durable writes at shutdown.
	shutdownPersistTimeout = 10 * time.Second
)

// invalidNameChars matches filename characters replaced during tag
// sanitization.
var invalidNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// Controller is the FSM at the centre of a node. It owns the current
// state, dispatches commands, and drives the Hardware hooks.
type Controller struct {
	cfg       config.NodeConfig
	comm      Messenger
	data      DataUploader
	store     Store
	telemetry TelemetryWriter
	hw        Hardware
	logger    *logging.Logger
	topics    mqtt.Topics

	// mu serializes command dispatch. Broker callbacks arrive on their own
	// goroutines; no second command may run while a transition is in flight.
	mu sync.Mutex

	state   State
	history []StateRecord
	fsmLog  []string

	calibration CalibrationModel
	calPoints   []calibrationPoint

	experimentSpec *Command
	currentIndex   int
	lastCmd        Command

	runData []DataRecord
	dataMu  sync.Mutex
}

// New constructs a controller and brings the node to IDLE.
//
// Construction is all-or-nothing: a disconnected messenger, an offline data
// service, or a hardware initialization failure aborts with an error — no
// half-initialized node escapes. A missing persisted calibration is not a
// fault; the identity model is substituted and a warning logged.
func New(cfg config.NodeConfig, comm Messenger, data DataUploader, store Store, telemetry TelemetryWriter, hw Hardware, logger *logging.Logger) (*Controller, error) {
	if logger == nil {
		logger = logging.Default()
	}

	c := &Controller{
		cfg:         cfg,
		comm:        comm,
		data:        data,
		store:       store,
		telemetry:   telemetry,
		hw:          hw,
		logger:      logger,
		state:       StateBoot,
		history:     []StateRecord{{State: StateBoot.String(), EnteredAt: time.Now()}},
		calibration: IdentityModel(),
	}

	if !comm.IsConnected() {
		return nil, ErrCommNotConnected
	}
	if !data.CheckHealth(context.Background()) {
		return nil, ErrDataServiceUnavailable
	}

	model, err := store.LoadCalibration(context.Background(), cfg.ID)
	switch {
	case err != nil:
		logger.Warn("failed to load calibration model, using identity", "error", err)
	case model == nil:
		logger.Warn("no persisted calibration model, using identity")
	default:
		c.calibration = *model
		logger.Info("calibration model loaded", "slope", model.Slope, "intercept", model.Intercept)
	}

	if err := hw.Initialize(cfg); err != nil {
		return nil, fmt.Errorf("initializing hardware: %w", err)
	}

	if binder, ok := hw.(RecorderBinder); ok {
		binder.BindRecorder(c)
	}

	// Hold the dispatch lock across subscribe and the implicit BOOT -> IDLE
	// so no early command observes a half-initialized node.
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := comm.Subscribe(c.topics.Command(cfg.ID), commandQoS, c.onMessage); err != nil {
		return nil, fmt.Errorf("subscribing to command topic: %w", err)
	}

	c.transition(StateIdle)

	return c, nil
}

// State returns the current FSM state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns a copy of the transition history, oldest first.
func (c *Controller) History() []StateRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]StateRecord, len(c.history))
	copy(out, c.history)
	return out
}

// Calibration returns the active calibration model. Guarded by the data
// lock so hardware goroutines can read it mid-run without contending with
// command dispatch.
func (c *Controller) Calibration() CalibrationModel {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	return c.calibration
}

// onMessage handles inbound command topic messages.
func (c *Controller) onMessage(topic string, payload []byte) error {
	cmd, err := ParseCommand(payload)
	if err != nil {
		// Protocol error: logged, no state change.
		c.logf("ERROR", fmt.Sprintf("rejected message on %s: %v", topic, err))
		return nil
	}
	c.HandleCommand(cmd)
	return nil
}

// HandleCommand dispatches one command through the FSM.
//
// Dispatch is serialized; a hook error never propagates — it is logged with
// the command context and converted into a transition to ERROR.
func (c *Controller) HandleCommand(cmd Command) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !validCommands[cmd.Name] {
		c.logf("ERROR", "unknown command: "+cmd.Name)
		return
	}

	c.lastCmd = cmd

	var err error
	switch cmd.Name {
	case "Calibrate":
		err = c.handleCalibrate(cmd)
	case "Test":
		if cmd.StringParam("target") == "sensor" {
			c.transition(StateTestingSensor)
		} else {
			spec := cmd
			c.experimentSpec = &spec
			c.transition(StateConfigureValidate)
		}
	case "Run":
		spec := cmd
		c.experimentSpec = &spec
		c.transition(StateConfigureValidate)
	case "TestValid":
		c.transition(StateTestingActuator)
	case "RunValid":
		if c.state != StateConfigurePending {
			c.logf("WARN", fmt.Sprintf("invalid RunValid from state %s", c.state))
			c.forceError()
			return
		}
		c.transition(StateRunning)
	case "Reset":
		c.transition(StateIdle)
	case "Abort":
		c.abort("operator request via command")
	}

	if err != nil {
		c.logf("ERROR", fmt.Sprintf("command handler error: cmd=%s: %v", cmd.Name, err))
		c.forceError()
	}
}

// handleCalibrate runs one step of the calibration protocol: enter
// CALIBRATING, then either accumulate a (raw, reference) pair or finalize
// the fit when params.finished is set.
func (c *Controller) handleCalibrate(cmd Command) error {
	c.transition(StateCalibrating)
	if c.state != StateCalibrating {
		// Entry was rejected (capability gate or hook failure); the fault
		// has already been handled.
		return nil
	}

	if cmd.BoolParam("finished") {
		c.finalizeCalibration()
		return nil
	}

	reference, err := cmd.referenceValue()
	if err != nil {
		return err
	}
	raw, err := c.hw.ReadSensor()
	if err != nil {
		return fmt.Errorf("reading sensor for calibration: %w", err)
	}

	c.calPoints = append(c.calPoints, calibrationPoint{raw: raw, reference: reference})
	c.logf("INFO", fmt.Sprintf("calibration point %d recorded: raw=%.4f reference=%.4f",
		len(c.calPoints), raw, reference))
	return nil
}

// finalizeCalibration fits and persists the model from accumulated points,
// then returns to IDLE. Zero points is a warning, not a fault.
func (c *Controller) finalizeCalibration() {
	points := c.calPoints
	c.calPoints = nil

	if len(points) == 0 {
		c.logf("WARN", "calibration finished with no accumulated points")
		c.transition(StateIdle)
		return
	}

	model, err := fitLinear(points)
	if err != nil {
		c.logf("ERROR", fmt.Sprintf("calibration fit failed: %v", err))
		c.transition(StateIdle)
		return
	}

	c.dataMu.Lock()
	c.calibration = model
	c.dataMu.Unlock()
	c.logf("INFO", fmt.Sprintf("calibration fitted over %d points: slope=%.6f intercept=%.6f",
		len(points), model.Slope, model.Intercept))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownPersistTimeout)
	defer cancel()
	if err := c.store.SaveCalibration(ctx, c.cfg.ID, model, len(points)); err != nil {
		c.logf("ERROR", fmt.Sprintf("persisting calibration model: %v", err))
	}

	c.transition(StateIdle)
}

// abort publishes an abort status record, stops hardware best-effort, and
// lands in ERROR.
func (c *Controller) abort(reason string) {
	payload, _ := json.Marshal(map[string]string{
		"state":     "ABORT",
		"reason":    reason,
		"timestamp": time.Now().Format(timestampLayout),
	})
	if err := c.comm.PublishJSON(c.topics.Status(c.cfg.ID), payload); err != nil {
		c.logger.Warn("abort status publish failed", "error", err)
	}

	if err := c.hw.Stop(); err != nil {
		c.logger.Warn("hardware stop during abort failed", "error", err)
	}

	c.transition(StateError)
}

// transition moves the FSM to a new state after checking legality.
// An illegal attempt is not ignored: it logs a warning and forces ERROR.
func (c *Controller) transition(to State) {
	if !canTransition(c.state, to) {
		c.logf("WARN", fmt.Sprintf("invalid transition: %s -> %s", c.state, to))
		c.forceError()
		return
	}

	from := c.state
	c.exitState(from)

	c.state = to
	c.history = append(c.history, StateRecord{State: to.String(), EnteredAt: time.Now()})
	if c.telemetry != nil {
		c.telemetry.WriteStateTransition(c.cfg.ID, from.String(), to.String())
	}
	c.logger.Info("state transition", "from", from.String(), "to", to.String())

	if err := c.enterState(to); err != nil {
		c.logf("ERROR", fmt.Sprintf("state entry failed: %s: %v", to, err))
		c.forceError()
	}
}

// forceError sets ERROR directly and runs its entry action once. It never
// routes back through transition, so a misbehaving entry hook cannot cause
// unbounded recursion. The source state's exit hook still runs: a fault
// while RUNNING must leave the hardware stopped, not ticking under ERROR.
func (c *Controller) forceError() {
	if c.state == StateError {
		return
	}

	from := c.state
	c.exitState(from)
	c.state = StateError
	c.history = append(c.history, StateRecord{State: StateError.String(), EnteredAt: time.Now()})
	if c.telemetry != nil {
		c.telemetry.WriteStateTransition(c.cfg.ID, from.String(), StateError.String())
	}
	c.publishStatus(StateError)
	c.logger.Error("controller faulted", "from", from.String())
}

// enterState runs the entry behaviour of a state, after the state field is
// updated. The status record goes out unconditionally for every state.
func (c *Controller) enterState(s State) error {
	c.publishStatus(s)

	switch s {
	case StateIdle:
		return c.hw.Stop()

	case StateCalibrating:
		if !c.cfg.Hardware.HasSensor {
			return fmt.Errorf("%w: cannot calibrate without a sensor", ErrMissingCapability)
		}
		return c.hw.HandleCalibrate(c.lastCmd)

	case StateTestingSensor:
		if !c.cfg.Hardware.HasSensor {
			return fmt.Errorf("%w: cannot test sensor", ErrMissingCapability)
		}
		return c.hw.HandleTest(c.lastCmd)

	case StateTestingActuator:
		if !c.cfg.Hardware.HasActuator {
			return fmt.Errorf("%w: cannot test actuator", ErrMissingCapability)
		}
		return c.hw.HandleTest(c.lastCmd)

	case StateConfigureValidate:
		return c.enterConfigureValidate()

	case StateConfigurePending:
		c.logf("INFO", "configuration valid, awaiting confirmation")

	case StateRunning:
		return c.hw.HandleRun(c.lastCmd)

	case StatePostProc:
		return c.enterPostProc()

	case StateDone:
		c.enterDone()
	}

	return nil
}

// exitState runs cleanup before leaving a state. Stop failures here are
// logged and swallowed; the transition proceeds regardless.
func (c *Controller) exitState(s State) {
	switch s {
	case StateRunning, StateTestingSensor:
		if err := c.hw.Stop(); err != nil {
			c.logger.Warn("hardware stop on state exit failed", "state", s.String(), "error", err)
		}
	case StateCalibrating:
		c.logger.Debug("leaving calibration")
	}
}

// enterConfigureValidate validates the stored experiment spec. Validation
// failure is a recoverable rejection: back to IDLE, never ERROR.
func (c *Controller) enterConfigureValidate() error {
	if c.experimentSpec == nil {
		return fmt.Errorf("%w: no experiment specification stored", ErrInvalidCommand)
	}

	experiments := c.experimentSpec.Experiments()
	if experiments != nil {
		// All sub-experiments validate before any is accepted.
		for i, params := range experiments {
			if !c.hw.Configure(params) {
				c.logf("WARN", fmt.Sprintf("invalid parameters in experiment %d of %d", i+1, len(experiments)))
				c.transition(StateIdle)
				return nil
			}
		}
	} else {
		params := c.experimentSpec.Params
		if params == nil {
			params = map[string]any{}
		}
		if !c.hw.Configure(params) {
			c.logf("WARN", "invalid configuration parameters")
			c.transition(StateIdle)
			return nil
		}
	}

	c.currentIndex = 0
	if err := c.setupCurrentExperiment(); err != nil {
		c.logf("ERROR", fmt.Sprintf("experiment setup failed: %v", err))
		c.transition(StateIdle)
		return nil
	}

	c.transition(StateConfigurePending)
	return nil
}

// setupCurrentExperiment prepares the indexed (sub-)experiment and runs the
// optional setup hook.
func (c *Controller) setupCurrentExperiment() error {
	params := c.currentParams()

	if experiments := c.experimentSpec.Experiments(); experiments != nil {
		name := "unnamed"
		if n, ok := params["name"].(string); ok {
			name = n
		}
		c.logf("INFO", fmt.Sprintf("setting up experiment %d/%d: %s",
			c.currentIndex+1, len(experiments), name))
	} else {
		c.logf("INFO", "setting up single experiment")
	}

	if setup, ok := c.hw.(ExperimentSetup); ok {
		return setup.SetupExperiment(params)
	}
	return nil
}

// currentParams returns the parameter set of the active (sub-)experiment.
func (c *Controller) currentParams() map[string]any {
	if experiments := c.experimentSpec.Experiments(); experiments != nil {
		if c.currentIndex < len(experiments) {
			return experiments[c.currentIndex]
		}
		return map[string]any{}
	}
	if c.experimentSpec.Params != nil {
		return c.experimentSpec.Params
	}
	return map[string]any{}
}

// enterPostProc persists the run's data locally, then either advances to
// the next sub-experiment or completes the sequence.
func (c *Controller) enterPostProc() error {
	records := c.snapshotRunData()
	tag := c.experimentTag()

	if len(records) > 0 {
		c.persistLocally(records, tag)
	}

	experiments := c.experimentSpec.Experiments()
	if experiments != nil && c.currentIndex < len(experiments)-1 {
		// Mid-sequence: upload this sub-experiment, set up the next, and go
		// straight back to RUNNING. Validation from CONFIGURE_VALIDATE is
		// trusted; it was all-or-nothing.
		c.uploadData(records, tag)
		c.clearRunData()

		c.currentIndex++
		if err := c.setupCurrentExperiment(); err != nil {
			c.logf("ERROR", fmt.Sprintf("setup for next experiment failed: %v", err))
			c.forceError()
			return nil
		}
		c.transition(StateRunning)
		return nil
	}

	c.transition(StateDone)
	return nil
}

// enterDone uploads the final dataset best-effort and returns to IDLE.
func (c *Controller) enterDone() {
	records := c.snapshotRunData()
	c.uploadData(records, c.experimentTag())
	c.clearRunData()

	c.logf("INFO", "experiment complete")
	c.transition(StateIdle)
}

// persistLocally writes records under <dataDir>/<id>Data, as CSV when the
// records tabulate cleanly and JSONL otherwise.
func (c *Controller) persistLocally(records []DataRecord, tag string) {
	outDir := filepath.Join(c.cfg.DataDir, c.cfg.ID+"Data")

	if c.experimentSpec.Experiments() != nil {
		sub := c.experimentSpec.StringParam("name")
		if sub == "" {
			sub = "sequence_" + time.Now().Format("20060102_150405")
		}
		outDir = filepath.Join(outDir, sanitizeName(sub))
	}

	if err := os.MkdirAll(outDir, 0750); err != nil {
		c.logf("ERROR", fmt.Sprintf("creating data directory: %v", err))
		return
	}

	base := filepath.Join(outDir, fmt.Sprintf("%s_data_%s", c.cfg.ID, tag))

	csvText, err := rest.ConvertToCSV(toRestRecords(records))
	if err == nil {
		path := base + ".csv"
		if writeErr := os.WriteFile(path, []byte(csvText), 0600); writeErr == nil {
			c.logf("INFO", "experiment data saved: "+path)
			return
		}
	}

	// Fallback: newline-delimited JSON.
	path := base + ".jsonl"
	f, err := os.Create(path)
	if err != nil {
		c.logf("ERROR", fmt.Sprintf("saving experiment data: %v", err))
		return
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			c.logf("ERROR", fmt.Sprintf("saving experiment data: %v", err))
			return
		}
	}
	c.logf("INFO", "experiment data saved: "+path)
}

// uploadData sends records to the data service, tagged by experiment.
// Transport failures are logged and never alter FSM state.
func (c *Controller) uploadData(records []DataRecord, tag string) {
	if len(records) == 0 {
		c.logf("INFO", "no experiment data to upload")
		return
	}

	if err := c.data.SendData(context.Background(), toMaps(records), tag); err != nil {
		c.logf("ERROR", fmt.Sprintf("data upload failed: %v", err))
		return
	}
	c.logf("INFO", "experiment data uploaded: "+tag)
}

// experimentTag names the current (sub-)experiment for filenames and
// uploads, falling back to a timestamp.
func (c *Controller) experimentTag() string {
	if c.experimentSpec == nil {
		return time.Now().Format("20060102_150405")
	}

	if experiments := c.experimentSpec.Experiments(); experiments != nil {
		params := c.currentParams()
		if name, ok := params["name"].(string); ok && name != "" {
			return sanitizeName(name)
		}
		if parent := c.experimentSpec.StringParam("name"); parent != "" {
			return sanitizeName(fmt.Sprintf("%s_%d", parent, c.currentIndex+1))
		}
		return fmt.Sprintf("experiment_%d_%s", c.currentIndex+1, time.Now().Format("20060102_150405"))
	}

	if name := c.experimentSpec.StringParam("name"); name != "" {
		return sanitizeName(name)
	}
	return time.Now().Format("20060102_150405")
}

// sanitizeName replaces filename-hostile characters with underscores.
func sanitizeName(name string) string {
	return invalidNameChars.ReplaceAllString(name, "_")
}

// RecordSample appends one observation to the run buffer, publishes it on
// the data topic, and mirrors it to the telemetry store when enabled.
// Safe to call from hardware goroutines during RUNNING.
func (c *Controller) RecordSample(sampleType string, value float64, units string) {
	now := time.Now()
	record := DataRecord{
		Type:      sampleType,
		Value:     value,
		Units:     units,
		Timestamp: now.Format(timestampLayout),
	}

	c.dataMu.Lock()
	c.runData = append(c.runData, record)
	c.dataMu.Unlock()

	payload, _ := json.Marshal(record)
	if err := c.comm.PublishJSON(c.topics.Data(c.cfg.ID), payload); err != nil {
		c.logger.Warn("sample publish failed", "error", err)
	}

	if c.telemetry != nil {
		c.telemetry.WriteSample(c.cfg.ID, sampleType, value, units, now)
	}
}

// RunComplete signals that the hardware run loop has finished. It moves
// RUNNING to POSTPROC through the serialized dispatch path; calls in any
// other state are ignored (an abort or reset already won the race).
func (c *Controller) RunComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		c.logger.Debug("run completion ignored", "state", c.state.String())
		return
	}
	c.transition(StatePostProc)
}

// ApplyCalibration converts a raw sensor reading through the active model.
func (c *Controller) ApplyCalibration(raw float64) float64 {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	return c.calibration.Apply(raw)
}

func (c *Controller) snapshotRunData() []DataRecord {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	out := make([]DataRecord, len(c.runData))
	copy(out, c.runData)
	return out
}

func (c *Controller) clearRunData() {
	c.dataMu.Lock()
	c.runData = nil
	c.dataMu.Unlock()
}

// publishStatus emits the {state, timestamp} record for a state entry.
func (c *Controller) publishStatus(s State) {
	payload, _ := json.Marshal(map[string]string{
		"state":     s.String(),
		"timestamp": time.Now().Format(timestampLayout),
	})
	if err := c.comm.PublishJSON(c.topics.Status(c.cfg.ID), payload); err != nil {
		c.logger.Warn("status publish failed", "state", s.String(), "error", err)
	}
}

// logf publishes a structured log record on the node's log topic, keeps it
// in the session log, and mirrors it to the process logger.
func (c *Controller) logf(level, msg string) {
	payload, _ := json.Marshal(map[string]string{
		"level":     level,
		"msg":       msg,
		"timestamp": time.Now().Format(timestampLayout),
	})

	if err := c.comm.PublishJSON(c.topics.Log(c.cfg.ID), payload); err != nil {
		c.logger.Warn("log publish failed", "error", err)
	}
	c.fsmLog = append(c.fsmLog, string(payload))

	switch level {
	case "ERROR":
		c.logger.Error(msg)
	case "WARN":
		c.logger.Warn(msg)
	case "DEBUG":
		c.logger.Debug(msg)
	default:
		c.logger.Info(msg)
	}
}

// Shutdown persists session artefacts and disconnects. Every step is
// best-effort; one failure never stops the rest.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownPersistTimeout)
	defer cancel()

	if err := c.hw.Shutdown(); err != nil {
		c.logger.Warn("hardware shutdown failed", "error", err)
	}

	if err := c.store.SaveMessageLog(ctx, c.cfg.ID, c.comm.MessageLog()); err != nil {
		c.logger.Warn("persisting message log failed", "error", err)
	}

	if err := c.store.SaveHistory(ctx, c.cfg.ID, c.history); err != nil {
		c.logger.Warn("persisting state history failed", "error", err)
	}

	if err := c.comm.Close(); err != nil {
		c.logger.Warn("messenger close failed", "error", err)
	}

	c.logger.Info("node shutdown complete")
}

// toMaps converts data records into the uploader's generic row shape.
func toMaps(records []DataRecord) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = map[string]any{
			"type":      r.Type,
			"value":     r.Value,
			"units":     r.Units,
			"timestamp": r.Timestamp,
		}
	}
	return out
}

func toRestRecords(records []DataRecord) []rest.Record {
	out := make([]rest.Record, len(records))
	for i, m := range toMaps(records) {
		out[i] = rest.Record(m)
	}
	return out
}
