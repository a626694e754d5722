package simnode

import (
	"sync"
	"testing"
	"time"

	"github.com/wavelab/labnode/internal/experiment"
	"github.com/wavelab/labnode/internal/infrastructure/config"
)

// stubRecorder captures the recorder surface for run-loop tests.
type stubRecorder struct {
	mu       sync.Mutex
	samples  []string
	complete int
}

func (r *stubRecorder) RecordSample(sampleType string, _ float64, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, sampleType)
}

func (r *stubRecorder) RunComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete++
}

func (r *stubRecorder) ApplyCalibration(raw float64) float64 { return raw }

func (r *stubRecorder) snapshot() (samples []string, complete int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.samples...), r.complete
}

func newTestCarriage(t *testing.T) *Carriage {
	t.Helper()
	c := New(nil)
	c.sampleInterval = 10 * time.Millisecond
	if err := c.Initialize(config.NodeConfig{}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return c
}

func TestConfigureValidation(t *testing.T) {
	c := newTestCarriage(t)

	tests := []struct {
		name   string
		params map[string]any
		want   bool
	}{
		{"valid minimal", map[string]any{"duration_seconds": 5.0}, true},
		{"valid with speed", map[string]any{"duration_seconds": 5.0, "speed_mps": 1.5}, true},
		{"missing duration", map[string]any{"speed_mps": 1.0}, false},
		{"zero duration", map[string]any{"duration_seconds": 0.0}, false},
		{"negative duration", map[string]any{"duration_seconds": -3.0}, false},
		{"duration too long", map[string]any{"duration_seconds": 7200.0}, false},
		{"speed too fast", map[string]any{"duration_seconds": 5.0, "speed_mps": 9.0}, false},
		{"speed not numeric", map[string]any{"duration_seconds": 5.0, "speed_mps": "fast"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Configure(tt.params); got != tt.want {
				t.Errorf("Configure(%v) = %v, want %v", tt.params, got, tt.want)
			}
		})
	}
}

func TestCalibrateMovesReferenceDepth(t *testing.T) {
	c := newTestCarriage(t)

	cmd := experiment.Command{Name: "Calibrate", Params: map[string]any{"depth": 1.0}}
	if err := c.HandleCalibrate(cmd); err != nil {
		t.Fatalf("HandleCalibrate() error = %v", err)
	}

	// Raw counts track depth through the sensor gain, within the wave and
	// noise band.
	raw, err := c.ReadSensor()
	if err != nil {
		t.Fatalf("ReadSensor() error = %v", err)
	}
	want := 1.0 * sensorGain
	band := (waveAmplitude * sensorGain) + noiseAmplitude
	if raw < want-band || raw > want+band {
		t.Errorf("ReadSensor() = %v, want within %v of %v", raw, band, want)
	}
}

func TestRunLoopStreamsAndCompletes(t *testing.T) {
	c := newTestCarriage(t)
	recorder := &stubRecorder{}
	c.BindRecorder(recorder)

	if err := c.SetupExperiment(map[string]any{"duration_seconds": 0.1, "speed_mps": 0.5}); err != nil {
		t.Fatalf("SetupExperiment() error = %v", err)
	}
	if err := c.HandleRun(experiment.Command{Name: "Run"}); err != nil {
		t.Fatalf("HandleRun() error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if _, complete := recorder.snapshot(); complete == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timeout waiting for run completion")
		case <-time.After(10 * time.Millisecond):
		}
	}

	samples, _ := recorder.snapshot()
	if len(samples) == 0 {
		t.Fatal("run loop produced no samples")
	}

	var sawDepth, sawPosition bool
	for _, s := range samples {
		switch s {
		case "depth_m":
			sawDepth = true
		case "carriage_position":
			sawPosition = true
		}
	}
	if !sawDepth || !sawPosition {
		t.Errorf("samples = %v, want depth_m and carriage_position", samples)
	}
}

func TestStopPreventsCompletion(t *testing.T) {
	c := newTestCarriage(t)
	recorder := &stubRecorder{}
	c.BindRecorder(recorder)

	if err := c.SetupExperiment(map[string]any{"duration_seconds": 10.0}); err != nil {
		t.Fatalf("SetupExperiment() error = %v", err)
	}
	if err := c.HandleRun(experiment.Command{Name: "Run"}); err != nil {
		t.Fatalf("HandleRun() error = %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	// Idempotent.
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if _, complete := recorder.snapshot(); complete != 0 {
		t.Error("aborted run must not signal completion")
	}
}

func TestHandleRunRequiresRecorder(t *testing.T) {
	c := newTestCarriage(t)
	if err := c.HandleRun(experiment.Command{Name: "Run"}); err == nil {
		t.Error("HandleRun() without a bound recorder should error")
	}
}

func TestHandleRunRejectsOverlap(t *testing.T) {
	c := newTestCarriage(t)
	c.BindRecorder(&stubRecorder{})

	if err := c.SetupExperiment(map[string]any{"duration_seconds": 10.0}); err != nil {
		t.Fatalf("SetupExperiment() error = %v", err)
	}
	if err := c.HandleRun(experiment.Command{Name: "Run"}); err != nil {
		t.Fatalf("HandleRun() error = %v", err)
	}
	defer c.Stop()

	if err := c.HandleRun(experiment.Command{Name: "Run"}); err == nil {
		t.Error("second HandleRun() while running should error")
	}
}
