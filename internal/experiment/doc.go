// Package experiment implements the state-machine controller at the heart
// of every laboratory node.
//
// A node moves through a fixed lifecycle: boot, calibrate or test, validate
// a configuration, run, post-process, done. The Controller owns the current
// state, checks every transition against a closed table, dispatches inbound
// commands (Calibrate, Test, Run, TestValid, RunValid, Reset, Abort), and
// publishes a status record on every state change.
//
// Hardware behaviour is delegated through the Hardware interface; transport
// is injected through the Messenger and DataUploader ports. The Controller
// never reaches for a broker or HTTP client directly, which is what lets the
// tests drive a full lifecycle against in-memory fakes.
//
// Commands are serialized: the broker delivers messages on its own
// goroutines, and a single mutex guarantees no second command is dispatched
// while a transition (including nested entry hooks) is in flight.
package experiment
