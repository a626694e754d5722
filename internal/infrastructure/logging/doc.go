// Package logging provides structured logging for labnode.
//
// This package wraps log/slog with:
//   - Level filtering configured from config.yaml
//   - JSON or text output formats
//   - Default fields (service name, node identity)
//
// Usage:
//
//	log := logging.New(cfg.Logging, cfg.Node.ID)
//	log.Info("node started", "state", "IDLE")
package logging
