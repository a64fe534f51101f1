package firmware

import "fmt"

// UnknownReason says why a state could not be interpreted.
type UnknownReason uint8

const (
	// ReasonUnparseable: the probe ran but its output matched no domain value.
	ReasonUnparseable UnknownReason = iota
	// ReasonExecutorFailure: the probe command itself failed.
	ReasonExecutorFailure
)

// String returns the reason name.
func (r UnknownReason) String() string {
	switch r {
	case ReasonExecutorFailure:
		return "executor_failure"
	default:
		return "unparseable"
	}
}

// State is the observed state of a setting: either Known(value) or Unknown(raw).
// The zero State is Unknown with empty raw text.
type State struct {
	known  bool
	value  Value
	raw    string
	reason UnknownReason
}

// KnownValue builds a Known state, rejecting values outside the domain of s.
func KnownValue(s Setting, v Value) (State, error) {
	if !s.Contains(v) {
		return State{}, fmt.Errorf("value %d is not in the domain of %s", v, s)
	}
	return State{known: true, value: v}, nil
}

// Unknown builds an Unknown state carrying the raw text that could not be interpreted.
func Unknown(raw string, reason UnknownReason) State {
	return State{raw: raw, reason: reason}
}

// IsKnown reports whether the state holds a validated value.
func (st State) IsKnown() bool {
	return st.known
}

// Value returns the known value. ok is false for Unknown states.
func (st State) Value() (v Value, ok bool) {
	return st.value, st.known
}

// Raw returns the uninterpreted text of an Unknown state.
func (st State) Raw() string {
	return st.raw
}

// Reason returns why the state is Unknown. Meaningless for Known states.
func (st State) Reason() UnknownReason {
	return st.reason
}

// Equal compares two states.
func (st State) Equal(other State) bool {
	if st.known != other.known {
		return false
	}
	if st.known {
		return st.value == other.value
	}
	return st.raw == other.raw && st.reason == other.reason
}

// Describe renders the state for s the way status output shows it.
func (st State) Describe(s Setting) string {
	if st.known {
		return s.ValueLabel(st.value)
	}
	return "Unknown status: " + st.raw
}
