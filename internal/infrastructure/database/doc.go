// Package database provides the node's durable SQLite store.
//
// Experiment nodes run unattended for days at a time; anything that must
// survive a restart lands here:
//   - Calibration models, so a calibrated node stays calibrated across
//     power cycles
//   - Controller state history, for post-hoc review of a run
//   - The MQTT message log captured at shutdown
//
// The package wraps database/sql with the mattn/go-sqlite3 driver,
// configures WAL mode and busy timeouts from config.yaml, and applies
// schema migrations on open. Higher-level persistence lives with the
// experiment package; this package owns the connection and schema only.
package database
