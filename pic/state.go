package pic

import (
	"fmt"

	"github.com/sarchlab/picsim/sim/stateful"
)

// State is a checkpoint of every field that decides a controller's behavior.
type State struct {
	name string

	// RequestRegister is the active-low request image: bit i clear means line
	// i is asserted.
	RequestRegister   uint8 `json:"request_register"`
	CurrentLevel      uint8 `json:"current_level"`
	LatchedLevel      uint8 `json:"latched_level"`
	ServiceInDisable  bool  `json:"service_in_disable"`
	MasterEnable      bool  `json:"master_enable"`
	GroupEnableGate   bool  `json:"group_enable_gate"`
	StatusGroupSelect bool  `json:"status_group_select"`
}

var _ stateful.State = (*State)(nil)

// Name returns the name of the controller the state belongs to.
func (s *State) Name() string {
	return s.name
}

// Serialize converts the state into a map.
func (s *State) Serialize() (map[string]any, error) {
	return map[string]any{
		"request_register":    s.RequestRegister,
		"current_level":       s.CurrentLevel,
		"latched_level":       s.LatchedLevel,
		"service_in_disable":  s.ServiceInDisable,
		"master_enable":       s.MasterEnable,
		"group_enable_gate":   s.GroupEnableGate,
		"status_group_select": s.StatusGroupSelect,
	}, nil
}

// Deserialize fills the state from a map produced by Serialize, possibly after
// a round trip through a codec.
func (s *State) Deserialize(data map[string]any) error {
	var (
		st  State
		err error
	)

	uints := []struct {
		key string
		max uint64
		dst *uint8
	}{
		{"request_register", 0xff, &st.RequestRegister},
		{"current_level", levelMask, &st.CurrentLevel},
		{"latched_level", levelMask, &st.LatchedLevel},
	}

	for _, f := range uints {
		v, err := stateful.Uint(data, f.key, f.max)
		if err != nil {
			return fmt.Errorf("pic state: %w", err)
		}

		*f.dst = uint8(v)
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"service_in_disable", &st.ServiceInDisable},
		{"master_enable", &st.MasterEnable},
		{"group_enable_gate", &st.GroupEnableGate},
		{"status_group_select", &st.StatusGroupSelect},
	}

	for _, f := range bools {
		*f.dst, err = stateful.Bool(data, f.key)
		if err != nil {
			return fmt.Errorf("pic state: %w", err)
		}
	}

	st.name = s.name
	*s = st

	return nil
}

// State returns a copy of the controller state.
func (c *Comp) State() stateful.State {
	return &State{
		name:              c.Name(),
		RequestRegister:   ^c.pending,
		CurrentLevel:      c.currentLevel,
		LatchedLevel:      c.latchedLevel,
		ServiceInDisable:  c.serviceInDisable,
		MasterEnable:      c.masterEnable,
		GroupEnableGate:   c.groupEnableGate,
		StatusGroupSelect: c.statusGroupSelect,
	}
}

// SetState restores the controller from a state. It neither arbitrates nor
// drives the outputs.
func (c *Comp) SetState(s stateful.State) {
	st, ok := s.(*State)
	if !ok {
		panic(fmt.Sprintf("pic: %s: cannot restore from %T", c.Name(), s))
	}

	c.pending = ^st.RequestRegister
	c.currentLevel = st.CurrentLevel & levelMask
	c.latchedLevel = st.LatchedLevel & levelMask
	c.serviceInDisable = st.ServiceInDisable
	c.masterEnable = st.MasterEnable
	c.groupEnableGate = st.GroupEnableGate
	c.statusGroupSelect = st.StatusGroupSelect
}

// Snapshot returns the typed state.
func (c *Comp) Snapshot() State {
	return *c.State().(*State)
}

var _ stateful.StateHolder = (*Comp)(nil)
