// Package stateful defines how simulated elements expose their state for
// checkpointing.
package stateful

import (
	"github.com/sarchlab/picsim/sim/naming"
)

// A State is a collection of data that can be serialized and deserialized.
type State interface {
	naming.Named

	Serialize() (map[string]any, error)
	Deserialize(map[string]any) error
}

// A StateHolder is a component that has a state.
type StateHolder interface {
	naming.Named

	// State returns a copy of the current state.
	State() State

	// SetState replaces the current state. It panics if the state was not
	// produced by the same kind of holder.
	SetState(State)
}
