// Package rest provides the bulk data transfer client for experiment nodes.
//
// Where the mqtt package carries small real-time messages (commands, status,
// per-sample telemetry), this package moves complete experiment datasets to
// and from the companion data service over HTTP:
//   - SendData posts a finished run's records to POST /data/<nodeID>,
//     as CSV when the records are homogeneous or JSONL otherwise
//   - FetchData retrieves stored datasets, used by master nodes aggregating
//     results across the laboratory
//   - CheckHealth probes GET /health and degrades to false on any fault,
//     so callers can branch without error plumbing
//
// All operations take a context and share a single timeout from
// configuration. Failures are returned as wrapped sentinel errors; the
// client never retries on its own.
package rest
