// Package influxdb mirrors experiment telemetry into a time-series store.
//
// The canonical data path is MQTT (real-time samples) plus the REST data
// service (complete datasets). This mirror is strictly optional: when
// enabled in config.yaml, every sample the controller records is also
// written to InfluxDB for Grafana dashboards during long-running tests.
// When disabled, Connect returns ErrDisabled and the node runs without it.
//
// Writes are non-blocking and batched; a write failure never interrupts an
// experiment.
package influxdb
