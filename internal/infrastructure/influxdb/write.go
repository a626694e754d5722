package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSample mirrors one experiment sample into the time-series store.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Disconnected clients drop the point silently — the canonical copy has
// already gone out over MQTT and the data service.
//
// Parameters:
//   - nodeID: The node that produced the sample
//   - sampleType: What was measured (e.g. "depth_m", "carriage_speed")
//   - value: The calibrated reading
//   - units: Measurement units, stored as a field for dashboard labels
//   - ts: The sample timestamp
func (c *Client) WriteSample(nodeID, sampleType string, value float64, units string, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"value": value,
	}
	if units != "" {
		fields["units"] = units
	}

	point := write.NewPoint(
		"experiment_samples",
		map[string]string{
			"node_id":     nodeID,
			"sample_type": sampleType,
		},
		fields,
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WriteStateTransition records a controller state change for run timelines.
func (c *Client) WriteStateTransition(nodeID, fromState, toState string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"state_transitions",
		map[string]string{
			"node_id": nodeID,
		},
		map[string]interface{}{
			"from": fromState,
			"to":   toState,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
