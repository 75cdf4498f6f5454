package pic

// Sink receives the two output signals of a controller.
type Sink interface {
	// SetInterrupt drives the interrupt output. A grant always calls
	// SetInterrupt(true) immediately followed by SetInterrupt(false).
	SetInterrupt(asserted bool)

	// SetGroupEnable drives the group-enable output, which is held low from a
	// grant until the following status write.
	SetGroupEnable(enabled bool)
}

// NopSink drops all signals.
type NopSink struct{}

// SetInterrupt does nothing.
func (NopSink) SetInterrupt(bool) {}

// SetGroupEnable does nothing.
func (NopSink) SetGroupEnable(bool) {}

// SinkFuncs adapts a pair of functions to the Sink interface. Nil functions
// are skipped.
type SinkFuncs struct {
	Interrupt   func(asserted bool)
	GroupEnable func(enabled bool)
}

// SetInterrupt calls s.Interrupt.
func (s SinkFuncs) SetInterrupt(asserted bool) {
	if s.Interrupt != nil {
		s.Interrupt(asserted)
	}
}

// SetGroupEnable calls s.GroupEnable.
func (s SinkFuncs) SetGroupEnable(enabled bool) {
	if s.GroupEnable != nil {
		s.GroupEnable(enabled)
	}
}

type multiSink []Sink

// MultiSink forwards every signal to all sinks, in the order given.
func MultiSink(sinks ...Sink) Sink {
	return multiSink(sinks)
}

func (m multiSink) SetInterrupt(asserted bool) {
	for _, s := range m {
		s.SetInterrupt(asserted)
	}
}

func (m multiSink) SetGroupEnable(enabled bool) {
	for _, s := range m {
		s.SetGroupEnable(enabled)
	}
}

type cascadeSink struct {
	sub *Comp
}

// CascadeSink wires a controller's group-enable output to the group-enable
// gate of a subordinate controller. The interrupt output is ignored; combine
// with MultiSink to also reach the host.
func CascadeSink(sub *Comp) Sink {
	if sub == nil {
		panic("pic: cascade target must not be nil")
	}

	return cascadeSink{sub: sub}
}

func (c cascadeSink) SetInterrupt(bool) {}

func (c cascadeSink) SetGroupEnable(enabled bool) {
	c.sub.SetGroupEnableGate(enabled)
}
