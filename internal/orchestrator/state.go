// Package orchestrator implements the top-level state machine (spec C8): a
// single-threaded cooperative tick loop that drives wireless association,
// transport connection, and audio streaming, with per-state timeouts and a
// consecutive-error guard into Maintenance instead of a reboot. The
// transition-table enforcement pattern is grounded on the teacher module's
// own explicit-states-and-allowed-transitions shape in
// internal/audiocore (source lifecycle states), adapted here to spec.md
// §4.7's table.
package orchestrator

// State is the orchestrator's closed state set.
type State int

const (
	StateInitializing State = iota
	StateAssociatingWireless
	StateConnectingTransport
	StateStreaming
	StateDisconnected
	StateErrored
	StateMaintenance
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "Initializing"
	case StateAssociatingWireless:
		return "AssociatingWireless"
	case StateConnectingTransport:
		return "ConnectingTransport"
	case StateStreaming:
		return "Streaming"
	case StateDisconnected:
		return "Disconnected"
	case StateErrored:
		return "Errored"
	case StateMaintenance:
		return "Maintenance"
	default:
		return "Unknown"
	}
}

// Trigger distinguishes an ordinary table-checked transition from the two
// override triggers that bypass the admissible-transition table.
type Trigger int

const (
	TriggerNormal Trigger = iota
	TriggerEmergency
	TriggerManual
)

// transitionTable enumerates every admissible (from, to) pair from spec.md
// §4.7. Transitions not listed here are rejected unless the trigger is
// Emergency or Manual.
var transitionTable = map[State]map[State]bool{
	StateInitializing: {
		StateAssociatingWireless: true,
		StateErrored:             true,
	},
	StateAssociatingWireless: {
		StateConnectingTransport: true,
		StateErrored:             true,
		StateAssociatingWireless: true,
	},
	StateConnectingTransport: {
		StateStreaming:           true,
		StateErrored:             true,
		StateAssociatingWireless: true,
		StateConnectingTransport: true,
	},
	StateStreaming: {
		StateDisconnected:        true,
		StateErrored:             true,
		StateAssociatingWireless: true,
		StateConnectingTransport: true,
	},
	StateDisconnected: {
		StateConnectingTransport: true,
		StateErrored:             true,
		StateAssociatingWireless: true,
	},
	StateErrored: {
		StateAssociatingWireless: true,
		StateMaintenance:         true,
		StateErrored:             true,
	},
	StateMaintenance: {
		StateInitializing:        true,
		StateAssociatingWireless: true,
	},
}

// stateMaxMs is the per-state timeout table from spec.md §4.7. A zero value
// means no timeout (Streaming, Maintenance run indefinitely).
var stateMaxMs = map[State]uint64{
	StateInitializing:        10000,
	StateAssociatingWireless: 30000,
	StateConnectingTransport: 10000,
	StateStreaming:           0,
	StateErrored:             60000,
	StateMaintenance:         0,
}

// Allowed reports whether (from, to) is in the admissible transition table.
func Allowed(from, to State) bool {
	row, ok := transitionTable[from]
	if !ok {
		return false
	}
	return row[to]
}
