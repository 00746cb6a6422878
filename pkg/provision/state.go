package provision

import "fmt"

// State is a step of a provisioning run.
type State uint8

const (
	StateUnconfigured State = iota
	StateConfigLoaded
	StateModuleReady
	StateConfigfsMounted
	StateDescriptorWritten
	StateFunctionAttached
	StateBound

	// Terminal states reached through fail-open exits.
	StateDisabled
	StateSkippedNoModule
	StateSkippedNoController

	// StateFatal is reached when the configuration source is missing or
	// configfs cannot be mounted.
	StateFatal
)

var stateNames = map[State]string{
	StateUnconfigured:        "Unconfigured",
	StateConfigLoaded:        "ConfigLoaded",
	StateModuleReady:         "ModuleReady",
	StateConfigfsMounted:     "ConfigfsMounted",
	StateDescriptorWritten:   "DescriptorWritten",
	StateFunctionAttached:    "FunctionAttached",
	StateBound:               "Bound",
	StateDisabled:            "Disabled",
	StateSkippedNoModule:     "SkippedNoModule",
	StateSkippedNoController: "SkippedNoController",
	StateFatal:               "Fatal",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", s)
}

// MarshalText renders the state name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Skipped reports whether s is one of the fail-open terminal states.
func (s State) Skipped() bool {
	switch s {
	case StateDisabled, StateSkippedNoModule, StateSkippedNoController:
		return true
	}
	return false
}

// next lists the only forward transition of every non-terminal state.
var next = map[State]State{
	StateUnconfigured:      StateConfigLoaded,
	StateConfigLoaded:      StateModuleReady,
	StateModuleReady:       StateConfigfsMounted,
	StateConfigfsMounted:   StateDescriptorWritten,
	StateDescriptorWritten: StateFunctionAttached,
	StateFunctionAttached:  StateBound,
}

// NextState returns the state following current on success, and false when
// current is terminal.
func NextState(current State) (State, bool) {
	s, ok := next[current]
	return s, ok
}

// Outcome classifies how a run ended.
type Outcome uint8

const (
	// OutcomeProvisioned: the gadget is bound to a controller.
	OutcomeProvisioned Outcome = iota
	// OutcomeSkipped: nothing to provision on this host; not an error.
	OutcomeSkipped
	// OutcomeFailed: the run aborted.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProvisioned:
		return "provisioned"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", o)
}

// MarshalText renders the outcome name in JSON output.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}
