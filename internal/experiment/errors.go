package experiment

import "errors"

// Sentinel errors for controller construction and command handling.
var (
	// ErrCommNotConnected indicates the messaging client was not connected
	// when the controller was constructed.
	ErrCommNotConnected = errors.New("experiment: messaging client not connected")

	// ErrDataServiceUnavailable indicates the bulk data service failed its
	// health probe during construction.
	ErrDataServiceUnavailable = errors.New("experiment: data service is not online")

	// ErrMissingCapability indicates a command requires a sensor or actuator
	// the node does not have.
	ErrMissingCapability = errors.New("experiment: node lacks required capability")

	// ErrInvalidCommand indicates a command payload that could not be parsed
	// or carries an unknown name.
	ErrInvalidCommand = errors.New("experiment: invalid command")

	// ErrNoCalibrationReference indicates a Calibrate command without exactly
	// one numeric reference parameter.
	ErrNoCalibrationReference = errors.New("experiment: no calibration reference value")

	// ErrNotEnoughPoints indicates a calibration fit was attempted with
	// fewer than two points.
	ErrNotEnoughPoints = errors.New("experiment: not enough calibration points")
)
