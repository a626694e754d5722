// Package mqtt provides the messaging client for experiment nodes.
//
// This package manages:
//   - Connection to the laboratory broker with auto-reconnect
//   - Node-scoped topic derivation (<nodeID>/cmd, /status, /data, /log)
//   - Message publishing with QoS guarantees (never silently dropped)
//   - Runtime subscriptions with wildcard support and restoration on reconnect
//   - A bounded ring log of all inbound and outbound traffic
//   - An optional periodic heartbeat on the status topic
//   - Last Will and Testament (LWT) for crash detection
//
// # Architecture
//
// Each node in the distributed laboratory owns a four-topic namespace derived
// from its identity. Commands arrive on <nodeID>/cmd, state transitions and
// heartbeats go out on <nodeID>/status, per-sample data on <nodeID>/data, and
// structured logs on <nodeID>/log. The broker decouples nodes from the master
// tooling; delivery is per-topic, at-most-once from the application's view.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, "carriage-01")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.Command("carriage-01"), 1,
//	    func(topic string, payload []byte) error {
//	        return dispatch(payload)
//	    })
//
//	client.StartHeartbeat(30 * time.Second)
package mqtt
