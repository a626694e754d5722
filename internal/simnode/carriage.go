package simnode

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/wavelab/labnode/internal/experiment"
	"github.com/wavelab/labnode/internal/infrastructure/config"
	"github.com/wavelab/labnode/internal/infrastructure/logging"
)

// Physical and protocol bounds for the simulated carriage.
const (
	// sensorGain converts depth in metres to raw sensor counts. The
	// calibration procedure should recover roughly the inverse mapping.
	sensorGain = 0.2

	// noiseAmplitude is the raw-count noise band of the simulated sensor.
	noiseAmplitude = 0.002

	// maxDurationSeconds bounds a single (sub-)experiment.
	maxDurationSeconds = 3600.0

	// maxSpeedMPS is the carriage drive limit.
	maxSpeedMPS = 2.0

	// defaultSampleInterval paces the run loop's sample stream.
	defaultSampleInterval = 100 * time.Millisecond

	// waveAmplitude and wavePeriod shape the simulated water surface.
	waveAmplitude = 0.05
	wavePeriod    = 2 * time.Second
)

// Carriage is a simulated wave-flume carriage: depth sensor plus drive
// actuator. It implements experiment.Hardware, experiment.ExperimentSetup
// and experiment.RecorderBinder.
type Carriage struct {
	logger *logging.Logger

	mu       sync.Mutex
	recorder experiment.Recorder
	rng      *rand.Rand

	// baseDepth is the still-water depth the sensor observes, adjustable
	// during calibration.
	baseDepth float64

	// next run's validated parameters
	duration time.Duration
	speed    float64

	sampleInterval time.Duration

	stopCh chan struct{}
}

// New creates a simulated carriage with a still-water depth of 0.5 m.
func New(logger *logging.Logger) *Carriage {
	if logger == nil {
		logger = logging.Default()
	}
	return &Carriage{
		logger:         logger,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		baseDepth:      0.5,
		sampleInterval: defaultSampleInterval,
	}
}

// BindRecorder attaches the controller's recorder surface.
func (c *Carriage) BindRecorder(r experiment.Recorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder = r
}

// Initialize prepares the simulated hardware.
func (c *Carriage) Initialize(cfg config.NodeConfig) error {
	c.logger.Info("simulated carriage initialized",
		"has_sensor", cfg.Hardware.HasSensor,
		"has_actuator", cfg.Hardware.HasActuator)
	return nil
}

// HandleCalibrate moves the simulated water level to the commanded depth,
// mimicking an operator filling the flume to a known reference before the
// controller samples the sensor.
func (c *Carriage) HandleCalibrate(cmd experiment.Command) error {
	depth, ok := cmd.FloatParam("depth")
	if !ok {
		// Finalize step carries no reference depth; nothing to move.
		return nil
	}

	c.mu.Lock()
	c.baseDepth = depth
	c.mu.Unlock()

	c.logger.Info("flume set to reference depth", "depth_m", depth)
	return nil
}

// HandleTest reads the sensor once and logs the result.
func (c *Carriage) HandleTest(cmd experiment.Command) error {
	raw, err := c.ReadSensor()
	if err != nil {
		return err
	}
	c.logger.Info("diagnostic reading",
		"target", cmd.StringParam("target"), "raw", raw)
	return nil
}

// Configure validates one experiment parameter set: a positive bounded
// duration is required, speed is optional but bounded when present.
func (c *Carriage) Configure(params map[string]any) bool {
	duration, ok := asFloat(params["duration_seconds"])
	if !ok || duration <= 0 || duration > maxDurationSeconds {
		c.logger.Warn("rejected configuration: duration_seconds out of bounds",
			"value", params["duration_seconds"])
		return false
	}

	if raw, present := params["speed_mps"]; present {
		speed, ok := asFloat(raw)
		if !ok || speed <= 0 || speed > maxSpeedMPS {
			c.logger.Warn("rejected configuration: speed_mps out of bounds", "value", raw)
			return false
		}
	}

	return true
}

// SetupExperiment latches the validated parameters for the next run.
func (c *Carriage) SetupExperiment(params map[string]any) error {
	duration, ok := asFloat(params["duration_seconds"])
	if !ok {
		return fmt.Errorf("simnode: duration_seconds missing at setup")
	}

	speed := 0.0
	if v, ok := asFloat(params["speed_mps"]); ok {
		speed = v
	}

	c.mu.Lock()
	c.duration = time.Duration(duration * float64(time.Second))
	c.speed = speed
	c.mu.Unlock()

	return nil
}

// HandleRun starts the run loop on its own goroutine and returns
// immediately. The loop streams depth (and speed, when driving) samples
// through the recorder and signals completion when the duration elapses.
// Stop ends the loop early without signalling completion.
func (c *Carriage) HandleRun(experiment.Command) error {
	c.mu.Lock()
	if c.recorder == nil {
		c.mu.Unlock()
		return fmt.Errorf("simnode: no recorder bound")
	}
	if c.stopCh != nil {
		c.mu.Unlock()
		return fmt.Errorf("simnode: run already in progress")
	}
	stopCh := make(chan struct{})
	c.stopCh = stopCh
	recorder := c.recorder
	duration := c.duration
	speed := c.speed
	interval := c.sampleInterval
	c.mu.Unlock()

	go c.runLoop(recorder, stopCh, duration, speed, interval)
	return nil
}

func (c *Carriage) runLoop(recorder experiment.Recorder, stopCh chan struct{}, duration time.Duration, speed float64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	start := time.Now()
	for {
		select {
		case <-stopCh:
			// Aborted: no completion signal.
			return

		case <-deadline.C:
			c.clearRun()
			recorder.RunComplete()
			return

		case <-ticker.C:
			raw, err := c.ReadSensor()
			if err != nil {
				continue
			}
			recorder.RecordSample("depth_m", recorder.ApplyCalibration(raw), "m")
			if speed > 0 {
				recorder.RecordSample("carriage_position", speed*time.Since(start).Seconds(), "m")
			}
		}
	}
}

// ReadSensor returns one raw depth reading: the wave-modulated surface
// through the sensor gain, plus noise.
func (c *Carriage) ReadSensor() (float64, error) {
	c.mu.Lock()
	depth := c.baseDepth
	noise := (c.rng.Float64()*2 - 1) * noiseAmplitude
	c.mu.Unlock()

	phase := float64(time.Now().UnixNano()) / float64(wavePeriod.Nanoseconds())
	surface := depth + waveAmplitude*math.Sin(2*math.Pi*phase)

	return surface*sensorGain + noise, nil
}

// Stop halts any run loop in progress. Idempotent; called from both the
// abort path and state exits.
func (c *Carriage) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	return nil
}

// clearRun marks the run loop finished so a new run may start.
func (c *Carriage) clearRun() {
	c.mu.Lock()
	c.stopCh = nil
	c.mu.Unlock()
}

// Shutdown releases the simulated hardware.
func (c *Carriage) Shutdown() error {
	if err := c.Stop(); err != nil {
		return err
	}
	c.logger.Info("simulated carriage shut down")
	return nil
}

// asFloat normalises the numeric shapes a decoded parameter can take.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
