package monitor

// State is the lifecycle state of a review session as observed from its
// output stream.
type State string

const (
	StateIdle       State = "idle"
	StateThinking   State = "thinking"
	StateGenerating State = "generating"
	StateStalled    State = "stalled"
	StateComplete   State = "complete"
	StateError      State = "error"
)

// IsTerminal reports whether the state is absorbing
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateError
}

// validTransitions encodes the legal confirmed-state changes. Terminal
// states have no outgoing edges. Stalled never becomes a confirmed state
// itself; it only drives recovery, so it has no row here.
var validTransitions = map[State]map[State]bool{
	StateIdle: {
		StateThinking:   true,
		StateGenerating: true,
		StateComplete:   true,
		StateError:      true,
	},
	StateThinking: {
		StateIdle:       true,
		StateGenerating: true,
		StateComplete:   true,
		StateError:      true,
	},
	StateGenerating: {
		StateIdle:       true,
		StateThinking:   true,
		StateComplete:   true,
		StateError:      true,
	},
	StateComplete: {},
	StateError:    {},
}

// canTransition reports whether a confirmed-state change is legal
func canTransition(from, to State) bool {
	if from == to {
		return true
	}
	return validTransitions[from][to]
}
