package mqtt

import "fmt"

// Topic suffixes per the node messaging contract.
//
// Every node owns a four-topic namespace derived from its identity:
//
//	<nodeID>/cmd     - inbound experiment commands (JSON)
//	<nodeID>/status  - state transitions, heartbeat, abort notices
//	<nodeID>/data    - per-sample experiment data during a run
//	<nodeID>/log     - structured log records
const (
	SuffixCommand = "cmd"
	SuffixStatus  = "status"
	SuffixData    = "data"
	SuffixLog     = "log"
)

// Topics provides builders for node-scoped MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.Command("carriage-01") // "carriage-01/cmd"
type Topics struct{}

// Command returns the inbound command topic for a node.
func (Topics) Command(nodeID string) string {
	return fmt.Sprintf("%s/%s", nodeID, SuffixCommand)
}

// Status returns the status topic for a node.
func (Topics) Status(nodeID string) string {
	return fmt.Sprintf("%s/%s", nodeID, SuffixStatus)
}

// Data returns the live data topic for a node.
func (Topics) Data(nodeID string) string {
	return fmt.Sprintf("%s/%s", nodeID, SuffixData)
}

// Log returns the log topic for a node.
func (Topics) Log(nodeID string) string {
	return fmt.Sprintf("%s/%s", nodeID, SuffixLog)
}

// Node returns a pattern matching every topic of one node.
//
// Pattern: <nodeID>/#
func (Topics) Node(nodeID string) string {
	return fmt.Sprintf("%s/#", nodeID)
}

// AllStatus returns a pattern matching status updates from every node.
// Used by fleet tooling observing the whole laboratory.
//
// Pattern: +/status
func (Topics) AllStatus() string {
	return fmt.Sprintf("+/%s", SuffixStatus)
}

// AllData returns a pattern matching live data from every node.
//
// Pattern: +/data
func (Topics) AllData() string {
	return fmt.Sprintf("+/%s", SuffixData)
}

// AllLogs returns a pattern matching log records from every node.
//
// Pattern: +/log
func (Topics) AllLogs() string {
	return fmt.Sprintf("+/%s", SuffixLog)
}
