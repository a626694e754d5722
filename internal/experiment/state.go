package experiment

// State is one phase of the experiment lifecycle. The set is closed; only
// the transition table defines reachability.
type State int

// Lifecycle states, in the order a straight-through run visits them.
const (
	StateBoot State = iota
	StateIdle
	StateCalibrating
	StateTestingSensor
	StateConfigureValidate
	StateConfigurePending
	StateTestingActuator
	StateRunning
	StatePostProc
	StateDone
	StateError
)

var stateNames = map[State]string{
	StateBoot:              "BOOT",
	StateIdle:              "IDLE",
	StateCalibrating:       "CALIBRATING",
	StateTestingSensor:     "TESTING_SENSOR",
	StateConfigureValidate: "CONFIGURE_VALIDATE",
	StateConfigurePending:  "CONFIGURE_PENDING",
	StateTestingActuator:   "TESTING_ACTUATOR",
	StateRunning:           "RUNNING",
	StatePostProc:          "POSTPROC",
	StateDone:              "DONE",
	StateError:             "ERROR",
}

// String returns the wire name of the state as published on status topics.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// validTransitions maps each state to the states it may move to.
// IDLE and ERROR are additionally reachable from every state; that override
// lives in canTransition rather than being repeated in every row.
var validTransitions = map[State][]State{
	StateBoot:              {StateIdle},
	StateIdle:              {StateCalibrating, StateTestingSensor, StateConfigureValidate},
	StateCalibrating:       {StateCalibrating}, // self-loop while collecting points
	StateTestingSensor:     {StateIdle},
	StateConfigureValidate: {StateConfigurePending, StateIdle},
	StateConfigurePending:  {StateTestingActuator, StateRunning},
	StateTestingActuator:   {StateIdle},
	StateRunning:           {StatePostProc},
	StatePostProc:          {StateDone, StateRunning}, // RUNNING only mid multi-experiment sequence
	StateDone:              {StateIdle},
	StateError:             {StateIdle},
}

// canTransition reports whether moving from one state to another is legal.
// IDLE and ERROR are always-reachable fallbacks from any source state.
func canTransition(from, to State) bool {
	if to == StateIdle || to == StateError {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
