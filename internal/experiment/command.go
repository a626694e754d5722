package experiment

import (
	"encoding/json"
	"fmt"
)

// Command is one inbound instruction from the command topic.
//
// Params is command-specific and mostly opaque to the dispatcher; only a
// handful of keys are inspected (target, finished, experiments, name).
type Command struct {
	Name      string         `json:"cmd"`
	Params    map[string]any `json:"params,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// validCommands is the fixed command vocabulary.
var validCommands = map[string]bool{
	"Calibrate": true,
	"Test":      true,
	"Run":       true,
	"TestValid": true,
	"RunValid":  true,
	"Reset":     true,
	"Abort":     true,
}

// ParseCommand decodes a command payload and checks its name against the
// vocabulary. Malformed or unknown commands are protocol errors; the caller
// logs them and leaves state untouched.
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if cmd.Name == "" {
		return Command{}, fmt.Errorf("%w: missing cmd field", ErrInvalidCommand)
	}
	if !validCommands[cmd.Name] {
		return Command{}, fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, cmd.Name)
	}
	return cmd, nil
}

// BoolParam returns the named parameter as a bool, false when absent or
// not a bool.
func (c Command) BoolParam(key string) bool {
	v, ok := c.Params[key].(bool)
	return ok && v
}

// FloatParam returns the named parameter as a float64.
func (c Command) FloatParam(key string) (float64, bool) {
	return toFloat(c.Params[key])
}

// StringParam returns the named parameter as a string, empty when absent.
func (c Command) StringParam(key string) string {
	v, _ := c.Params[key].(string)
	return v
}

// Experiments returns the ordered sub-experiment parameter sets of a
// multi-experiment command, or nil for a single-experiment command.
func (c Command) Experiments() []map[string]any {
	raw, ok := c.Params["experiments"].([]any)
	if !ok || len(raw) == 0 {
		return nil
	}

	experiments := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		params, ok := item.(map[string]any)
		if !ok {
			return nil
		}
		experiments = append(experiments, params)
	}
	return experiments
}

// referenceValue extracts the calibration reference from a Calibrate
// command: the single numeric parameter that is not a reserved key.
// Zero or multiple candidates make the command ambiguous.
func (c Command) referenceValue() (float64, error) {
	reserved := map[string]bool{"finished": true, "name": true, "target": true}

	var (
		value float64
		found bool
	)
	for key, v := range c.Params {
		if reserved[key] {
			continue
		}
		num, ok := toFloat(v)
		if !ok {
			continue
		}
		if found {
			return 0, fmt.Errorf("%w: multiple numeric parameters", ErrNoCalibrationReference)
		}
		value = num
		found = true
	}
	if !found {
		return 0, ErrNoCalibrationReference
	}
	return value, nil
}

// toFloat normalises the numeric types json.Unmarshal can produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
