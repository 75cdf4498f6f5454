package pic

import (
	"log"

	"github.com/sarchlab/picsim/sim/hooking"
	"github.com/sarchlab/picsim/sim/naming"
)

// Builder can build controllers.
type Builder struct {
	sink         Sink
	logger       *log.Logger
	masterEnable bool
	groupSelect  bool
	hooks        []hooking.Hook
}

// MakeBuilder returns a Builder with a NopSink, no logger, master enable off
// and the unconditional policy.
func MakeBuilder() Builder {
	return Builder{
		sink: NopSink{},
	}
}

// WithSink sets the sink that receives the output signals.
func (b Builder) WithSink(sink Sink) Builder {
	if sink == nil {
		sink = NopSink{}
	}

	b.sink = sink

	return b
}

// WithLogger makes the controller log every register access to logger. A nil
// logger keeps the controller silent.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// WithMasterEnable sets the master enable the controller starts with.
func (b Builder) WithMasterEnable(enabled bool) Builder {
	b.masterEnable = enabled
	return b
}

// WithGroupSelect sets the arbitration policy the controller starts with.
func (b Builder) WithGroupSelect(selected bool) Builder {
	b.groupSelect = selected
	return b
}

// WithHook registers a hook on every controller built.
func (b Builder) WithHook(hook hooking.Hook) Builder {
	b.hooks = append(append([]hooking.Hook(nil), b.hooks...), hook)
	return b
}

// Build creates a controller. The name must follow the naming convention.
func (b Builder) Build(name string) *Comp {
	c := &Comp{
		HookableBase: hooking.NewHookableBase(),
		NamedBase:    naming.MakeNamedBase(name),
		sink:         b.sink,
		logger:       b.logger,
	}

	c.Reset()
	c.masterEnable = b.masterEnable
	c.statusGroupSelect = b.groupSelect

	for _, h := range b.hooks {
		c.AcceptHook(h)
	}

	return c
}
