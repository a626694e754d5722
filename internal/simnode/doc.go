// Package simnode provides a simulated wave-flume carriage implementing
// the experiment.Hardware surface.
//
// The simulated carriage carries a depth sensor returning noisy raw counts
// and a drive actuator with bounded speed. It exists so the node binary
// runs end to end without laboratory hardware and so tests can exercise
// the full hook surface: calibration against known depths, configuration
// validation, and a run loop streaming samples through the bound recorder.
package simnode
